// Package draw holds the immutable command model recorded by the
// drawing device: one value per primitive operation, carrying the
// geometry and a snapshot of the graphics context active when the host
// engine issued it. Commands never change once constructed; the history
// store and the renderers rely on that.
package draw

import "math"

// Point is a coordinate pair in device-independent points.
type Point struct {
	X, Y float64
}

// Clip is an axis-aligned clip rectangle in device points, normalized
// so that X0 <= X1 and Y0 <= Y1.
type Clip struct {
	X0, X1, Y0, Y1 float64
}

// NewClip normalizes and sanitizes the given rectangle.
func NewClip(x0, x1, y0, y1 float64) Clip {
	x0, x1 = sanitize(x0), sanitize(x1)
	y0, y1 = sanitize(y0), sanitize(y1)
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return Clip{X0: x0, X1: x1, Y0: y0, Y1: y1}
}

// LineType is the host engine's packed dash pattern: up to eight
// 4-bit run lengths, low nibble first, terminated by a zero nibble.
// Zero means solid.
type LineType int32

const (
	Solid LineType = 0
	Blank LineType = -1
)

// DashArray expands the packed pattern into dash segment lengths,
// scaled by the line width as the host engine specifies. Returns nil
// for solid lines.
func (lt LineType) DashArray(lineWidth float64) []float64 {
	if lt <= 0 {
		return nil
	}
	if lineWidth < 1 {
		lineWidth = 1
	}
	var dashes []float64
	for v := int32(lt); v != 0 && len(dashes) < 8; v >>= 4 {
		seg := v & 0xF
		if seg == 0 {
			break
		}
		dashes = append(dashes, float64(seg)*lineWidth)
	}
	return dashes
}

// GC is the snapshot of graphics-context attributes captured with each
// command.
type GC struct {
	Stroke    Color
	Fill      Color
	LineWidth float64
	LineType  LineType
	Clip      Clip
}

// FontInfo carries the text attributes resolved at capture time.
// Width is the measured string width in points; re-rendering never
// re-measures, so output stays stable even if the metrics service
// disappears later.
type FontInfo struct {
	Family string
	Size   float64
	Bold   bool
	Italic bool
	Width  float64
}

// sanitize clamps NaN and infinite coordinates to 0.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sanitizePoints(xs, ys []float64) []Point {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	pts := make([]Point, n)
	for i := 0; i < n; i++ {
		pts[i] = Point{X: sanitize(xs[i]), Y: sanitize(ys[i])}
	}
	return pts
}
