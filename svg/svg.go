// Package svg renders a recorded page to an SVG document at an
// arbitrary target size. Rendering is pure: it reads only the page
// snapshot and the captured command attributes, so the same page at the
// same size always produces identical bytes.
package svg

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"

	"github.com/gdlive/gdlive/draw"
	"github.com/gdlive/gdlive/history"
)

// Render produces the SVG document for the page scaled to
// width x height points. Non-positive target dimensions fall back to
// the page's nominal size. X and Y scale independently.
func Render(p *history.Page, width, height float64) []byte {
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

	r := &renderer{page: p, sx: sx, sy: sy}

	r.printf(`<?xml version="1.0" encoding="UTF-8"?>`+"\n")
	r.printf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%s" height="%s" viewBox="0 0 %s %s">`+"\n",
		num(width), num(height), num(width), num(height))

	r.writeClipDefs()

	if !p.Background.Transparent() {
		r.printf(`<rect width="100%%" height="100%%" fill="%s"`, p.Background.CSS())
		if !p.Background.Opaque() {
			r.printf(` fill-opacity="%s"`, num(p.Background.Opacity()))
		}
		r.printf("/>\n")
	}

	for _, cmd := range p.Commands {
		r.command(cmd)
	}

	r.printf("</svg>\n")
	return []byte(r.b.String())
}

type renderer struct {
	page   *history.Page
	b      strings.Builder
	sx, sy float64
	clips  []draw.Clip
}

func (r *renderer) printf(format string, args ...interface{}) {
	fmt.Fprintf(&r.b, format, args...)
}

// num formats coordinates with fixed precision so repeated renders are
// byte-identical.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func (r *renderer) x(v float64) string { return num(v * r.sx) }
func (r *renderer) y(v float64) string { return num(v * r.sy) }

// clipped reports whether the command's clip actually cuts into the
// page; the zero clip and any clip covering the whole page are ignored.
func (r *renderer) clipped(c draw.Clip) bool {
	if c == (draw.Clip{}) {
		return false
	}
	const eps = 0.01
	return c.X0 > eps || c.Y0 > eps ||
		c.X1 < r.page.Width-eps || c.Y1 < r.page.Height-eps
}

func (r *renderer) clipID(c draw.Clip) int {
	for i, known := range r.clips {
		if known == c {
			return i
		}
	}
	r.clips = append(r.clips, c)
	return len(r.clips) - 1
}

func (r *renderer) writeClipDefs() {
	var defs []string
	for _, cmd := range r.page.Commands {
		c := cmd.Context().Clip
		if !r.clipped(c) {
			continue
		}
		before := len(r.clips)
		id := r.clipID(c)
		if len(r.clips) == before {
			continue // already emitted
		}
		defs = append(defs, fmt.Sprintf(
			`<clipPath id="c%d"><rect x="%s" y="%s" width="%s" height="%s"/></clipPath>`,
			id, r.x(c.X0), r.y(c.Y0), num((c.X1-c.X0)*r.sx), num((c.Y1-c.Y0)*r.sy)))
	}
	if len(defs) == 0 {
		return
	}
	r.printf("<defs>\n")
	for _, d := range defs {
		r.printf("%s\n", d)
	}
	r.printf("</defs>\n")
}

func (r *renderer) command(cmd draw.Command) {
	clip := cmd.Context().Clip
	if r.clipped(clip) {
		r.printf(`<g clip-path="url(#c%d)">`, r.clipID(clip))
	}
	switch c := cmd.(type) {
	case draw.Line:
		r.line(c)
	case draw.Polyline:
		r.polyline(c)
	case draw.Polygon:
		r.polygon(c)
	case draw.Path:
		r.path(c)
	case draw.Rect:
		r.rect(c)
	case draw.Circle:
		r.circle(c)
	case draw.Text:
		r.text(c)
	case draw.Raster:
		r.raster(c)
	}
	if r.clipped(clip) {
		r.printf("</g>")
	}
	r.printf("\n")
}

func (r *renderer) strokeAttrs(gc draw.GC) string {
	if gc.Stroke.Transparent() || gc.LineWidth <= 0 || gc.LineType == draw.Blank {
		return ` stroke="none"`
	}
	var b strings.Builder
	fmt.Fprintf(&b, ` stroke="%s"`, gc.Stroke.CSS())
	if !gc.Stroke.Opaque() {
		fmt.Fprintf(&b, ` stroke-opacity="%s"`, num(gc.Stroke.Opacity()))
	}
	fmt.Fprintf(&b, ` stroke-width="%s"`, num(gc.LineWidth))
	if dashes := gc.LineType.DashArray(gc.LineWidth); dashes != nil {
		parts := make([]string, len(dashes))
		for i, d := range dashes {
			parts[i] = num(d)
		}
		fmt.Fprintf(&b, ` stroke-dasharray="%s"`, strings.Join(parts, ","))
	}
	return b.String()
}

func (r *renderer) fillAttrs(fill draw.Color) string {
	if fill.Transparent() {
		return ` fill="none"`
	}
	s := fmt.Sprintf(` fill="%s"`, fill.CSS())
	if !fill.Opaque() {
		s += fmt.Sprintf(` fill-opacity="%s"`, num(fill.Opacity()))
	}
	return s
}

func (r *renderer) points(pts []draw.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = r.x(p.X) + "," + r.y(p.Y)
	}
	return strings.Join(parts, " ")
}

func (r *renderer) line(c draw.Line) {
	r.printf(`<line x1="%s" y1="%s" x2="%s" y2="%s" fill="none"%s/>`,
		r.x(c.P1.X), r.y(c.P1.Y), r.x(c.P2.X), r.y(c.P2.Y), r.strokeAttrs(c.GC))
}

func (r *renderer) polyline(c draw.Polyline) {
	r.printf(`<polyline points="%s" fill="none"%s/>`, r.points(c.Points), r.strokeAttrs(c.GC))
}

func (r *renderer) polygon(c draw.Polygon) {
	r.printf(`<polygon points="%s"%s%s/>`, r.points(c.Points), r.fillAttrs(c.GC.Fill), r.strokeAttrs(c.GC))
}

func (r *renderer) path(c draw.Path) {
	var d strings.Builder
	offset := 0
	for _, n := range c.PointsPer {
		if offset+n > len(c.Points) {
			break
		}
		for i := 0; i < n; i++ {
			p := c.Points[offset+i]
			if i == 0 {
				fmt.Fprintf(&d, "M %s %s ", r.x(p.X), r.y(p.Y))
			} else {
				fmt.Fprintf(&d, "L %s %s ", r.x(p.X), r.y(p.Y))
			}
		}
		d.WriteString("Z ")
		offset += n
	}
	rule := "evenodd"
	if c.Winding {
		rule = "nonzero"
	}
	r.printf(`<path d="%s" fill-rule="%s"%s%s/>`,
		strings.TrimSpace(d.String()), rule, r.fillAttrs(c.GC.Fill), r.strokeAttrs(c.GC))
}

func (r *renderer) rect(c draw.Rect) {
	x0, x1 := c.A.X, c.B.X
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	y0, y1 := c.A.Y, c.B.Y
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	r.printf(`<rect x="%s" y="%s" width="%s" height="%s"%s%s/>`,
		r.x(x0), r.y(y0), num((x1-x0)*r.sx), num((y1-y0)*r.sy),
		r.fillAttrs(c.GC.Fill), r.strokeAttrs(c.GC))
}

func (r *renderer) circle(c draw.Circle) {
	// Radii scale by the mean of the axis factors; the renderer does
	// not turn circles into ellipses under non-uniform scaling.
	radius := c.Radius * (r.sx + r.sy) / 2
	r.printf(`<circle cx="%s" cy="%s" r="%s"%s%s/>`,
		r.x(c.Center.X), r.y(c.Center.Y), num(radius),
		r.fillAttrs(c.GC.Fill), r.strokeAttrs(c.GC))
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

func (r *renderer) text(c draw.Text) {
	anchor := "start"
	switch {
	case c.HAdj >= 0.75:
		anchor = "end"
	case c.HAdj >= 0.25:
		anchor = "middle"
	}
	r.printf(`<text x="%s" y="%s"`, r.x(c.Pos.X), r.y(c.Pos.Y))
	if c.Rot != 0 {
		r.printf(` transform="rotate(%s,%s,%s)"`, num(-c.Rot), r.x(c.Pos.X), r.y(c.Pos.Y))
	}
	if anchor != "start" {
		r.printf(` text-anchor="%s"`, anchor)
	}
	r.printf(` font-family="%s" font-size="%spx"`, escape(c.Font.Family), num(c.Font.Size*r.sy))
	if c.Font.Bold {
		r.printf(` font-weight="bold"`)
	}
	if c.Font.Italic {
		r.printf(` font-style="italic"`)
	}
	// Width was measured at capture time; pinning textLength keeps the
	// layout stable however the viewer resolves the family.
	if c.Font.Width > 0 {
		r.printf(` textLength="%spx" lengthAdjust="spacingAndGlyphs"`, num(c.Font.Width*r.sx))
	}
	r.printf(`%s>%s</text>`, r.fillAttrs(c.GC.Stroke), escape(c.Str))
}

func (r *renderer) raster(c draw.Raster) {
	x, y, w, h := c.X, c.Y, c.W, c.H
	if w < 0 {
		x += w
		w = -w
	}
	if h < 0 {
		y += h
		h = -h
	}
	r.printf(`<image x="%s" y="%s" width="%s" height="%s" preserveAspectRatio="none"`,
		r.x(x), num(y*r.sy-h*r.sy), num(w*r.sx), num(h*r.sy))
	if !c.Interpolate {
		r.printf(` image-rendering="pixelated"`)
	}
	if c.Rot != 0 {
		r.printf(` transform="rotate(%s,%s,%s)"`, num(-c.Rot), r.x(x), r.y(y))
	}
	r.printf(` xlink:href="data:image/png;base64,%s"/>`, encodePixels(c.Pixels, c.Width, c.Height))
}

// encodePixels converts the packed little-endian RGBA words into an
// inline PNG. One word per pixel, red in the low byte, alpha in the
// high byte, rows top to bottom.
func encodePixels(pixels []uint32, width, height int) string {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	n := width * height
	if len(pixels) < n {
		n = len(pixels)
	}
	for i := 0; i < n; i++ {
		word := pixels[i]
		off := i * 4
		img.Pix[off+0] = uint8(word)
		img.Pix[off+1] = uint8(word >> 8)
		img.Pix[off+2] = uint8(word >> 16)
		img.Pix[off+3] = uint8(word >> 24)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
