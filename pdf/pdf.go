// Package pdf renders a recorded page to a single-page PDF document.
// It mirrors the SVG renderer's scaling contract and exists for
// viewers that want a print-ready export of a page.
package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/jung-kurt/gofpdf"

	"github.com/gdlive/gdlive/draw"
	"github.com/gdlive/gdlive/history"
)

// Render produces a PDF for the page scaled to width x height points.
// Non-positive target dimensions fall back to the page's nominal size.
func Render(p *history.Page, width, height float64) ([]byte, error) {
	if width <= 0 {
		width = p.Width
	}
	if height <= 0 {
		height = p.Height
	}
	sx, sy := 1.0, 1.0
	if p.Width > 0 {
		sx = width / p.Width
	}
	if p.Height > 0 {
		sy = height / p.Height
	}

	doc := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: width, Ht: height},
	})
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()

	if !p.Background.Transparent() {
		bg := p.Background
		doc.SetFillColor(int(bg.Red()), int(bg.Green()), int(bg.Blue()))
		doc.Rect(0, 0, width, height, "F")
	}

	r := &renderer{doc: doc, sx: sx, sy: sy}
	for i, cmd := range p.Commands {
		r.command(cmd, i)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type renderer struct {
	doc    *gofpdf.Fpdf
	sx, sy float64
}

func (r *renderer) applyStroke(gc draw.GC) {
	c := gc.Stroke
	r.doc.SetDrawColor(int(c.Red()), int(c.Green()), int(c.Blue()))
	r.doc.SetLineWidth(gc.LineWidth)
	if dashes := gc.LineType.DashArray(gc.LineWidth); dashes != nil {
		r.doc.SetDashPattern(dashes, 0)
	} else {
		r.doc.SetDashPattern([]float64{}, 0)
	}
}

func (r *renderer) applyFill(fill draw.Color) {
	r.doc.SetFillColor(int(fill.Red()), int(fill.Green()), int(fill.Blue()))
}

// styleString picks the gofpdf draw mode from the captured colors.
func styleString(gc draw.GC) string {
	fill := !gc.Fill.Transparent()
	stroke := !gc.Stroke.Transparent() && gc.LineWidth > 0 && gc.LineType != draw.Blank
	switch {
	case fill && stroke:
		return "FD"
	case fill:
		return "F"
	default:
		return "D"
	}
}

func (r *renderer) command(cmd draw.Command, seq int) {
	gc := cmd.Context()
	clip := gc.Clip
	useClip := clip != (draw.Clip{})
	if useClip {
		r.doc.ClipRect(clip.X0*r.sx, clip.Y0*r.sy,
			(clip.X1-clip.X0)*r.sx, (clip.Y1-clip.Y0)*r.sy, false)
	}

	switch c := cmd.(type) {
	case draw.Line:
		r.applyStroke(gc)
		r.doc.Line(c.P1.X*r.sx, c.P1.Y*r.sy, c.P2.X*r.sx, c.P2.Y*r.sy)
	case draw.Polyline:
		r.applyStroke(gc)
		for i := 1; i < len(c.Points); i++ {
			r.doc.Line(c.Points[i-1].X*r.sx, c.Points[i-1].Y*r.sy,
				c.Points[i].X*r.sx, c.Points[i].Y*r.sy)
		}
	case draw.Polygon:
		r.applyStroke(gc)
		r.applyFill(gc.Fill)
		r.doc.Polygon(r.scalePoints(c.Points), styleString(gc))
	case draw.Path:
		r.applyStroke(gc)
		r.applyFill(gc.Fill)
		offset := 0
		for _, n := range c.PointsPer {
			if offset+n > len(c.Points) {
				break
			}
			r.doc.Polygon(r.scalePoints(c.Points[offset:offset+n]), styleString(gc))
			offset += n
		}
	case draw.Rect:
		r.applyStroke(gc)
		r.applyFill(gc.Fill)
		x0, x1 := c.A.X, c.B.X
		if x0 > x1 {
			x0, x1 = x1, x0
		}
		y0, y1 := c.A.Y, c.B.Y
		if y0 > y1 {
			y0, y1 = y1, y0
		}
		r.doc.Rect(x0*r.sx, y0*r.sy, (x1-x0)*r.sx, (y1-y0)*r.sy, styleString(gc))
	case draw.Circle:
		r.applyStroke(gc)
		r.applyFill(gc.Fill)
		radius := c.Radius * (r.sx + r.sy) / 2
		r.doc.Circle(c.Center.X*r.sx, c.Center.Y*r.sy, radius, styleString(gc))
	case draw.Text:
		r.text(c)
	case draw.Raster:
		r.raster(c, seq)
	}

	if useClip {
		r.doc.ClipEnd()
	}
}

func (r *renderer) scalePoints(pts []draw.Point) []gofpdf.PointType {
	out := make([]gofpdf.PointType, len(pts))
	for i, p := range pts {
		out[i] = gofpdf.PointType{X: p.X * r.sx, Y: p.Y * r.sy}
	}
	return out
}

// coreFont maps the captured family onto the closest PDF core font;
// embedding the original face is out of scope for this export path.
func coreFont(info draw.FontInfo) (string, string) {
	family := "helvetica"
	switch {
	case containsAny(info.Family, "times", "serif"):
		family = "times"
	case containsAny(info.Family, "mono", "courier"):
		family = "courier"
	}
	style := ""
	if info.Bold {
		style += "B"
	}
	if info.Italic {
		style += "I"
	}
	return family, style
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if bytes.Contains(bytes.ToLower([]byte(s)), []byte(sub)) {
			return true
		}
	}
	return false
}

func (r *renderer) text(c draw.Text) {
	family, style := coreFont(c.Font)
	r.doc.SetFont(family, style, c.Font.Size*r.sy)
	col := c.GC.Stroke
	r.doc.SetTextColor(int(col.Red()), int(col.Green()), int(col.Blue()))

	x := c.Pos.X * r.sx
	if c.Font.Width > 0 && c.HAdj > 0 {
		x -= c.Font.Width * r.sx * c.HAdj
	}
	if c.Rot != 0 {
		r.doc.TransformBegin()
		r.doc.TransformRotate(c.Rot, c.Pos.X*r.sx, c.Pos.Y*r.sy)
		r.doc.Text(x, c.Pos.Y*r.sy, c.Str)
		r.doc.TransformEnd()
		return
	}
	r.doc.Text(x, c.Pos.Y*r.sy, c.Str)
}

func (r *renderer) raster(c draw.Raster, seq int) {
	img := image.NewNRGBA(image.Rect(0, 0, c.Width, c.Height))
	n := c.Width * c.Height
	if len(c.Pixels) < n {
		n = len(c.Pixels)
	}
	for i := 0; i < n; i++ {
		word := c.Pixels[i]
		off := i * 4
		img.Pix[off+0] = uint8(word)
		img.Pix[off+1] = uint8(word >> 8)
		img.Pix[off+2] = uint8(word >> 16)
		img.Pix[off+3] = uint8(word >> 24)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return
	}
	name := fmt.Sprintf("raster-%d", seq)
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	r.doc.RegisterImageOptionsReader(name, opts, &buf)

	x, y, w, h := c.X, c.Y, c.W, c.H
	if w < 0 {
		x += w
		w = -w
	}
	if h < 0 {
		y += h
		h = -h
	}
	r.doc.ImageOptions(name, x*r.sx, y*r.sy-h*r.sy, w*r.sx, h*r.sy, false, opts, 0, "")
}
