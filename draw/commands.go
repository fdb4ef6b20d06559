package draw

// Kind discriminates the command variants.
type Kind int

const (
	KindLine Kind = iota
	KindPolyline
	KindPolygon
	KindPath
	KindRect
	KindCircle
	KindText
	KindRaster
)

// Command is one recorded drawing primitive. Implementations are value
// types and immutable once constructed.
type Command interface {
	Kind() Kind
	Context() GC
}

type Line struct {
	GC     GC
	P1, P2 Point
}

func NewLine(gc GC, x1, y1, x2, y2 float64) Line {
	return Line{
		GC: gc,
		P1: Point{X: sanitize(x1), Y: sanitize(y1)},
		P2: Point{X: sanitize(x2), Y: sanitize(y2)},
	}
}

func (c Line) Kind() Kind  { return KindLine }
func (c Line) Context() GC { return c.GC }

type Polyline struct {
	GC     GC
	Points []Point
}

func NewPolyline(gc GC, xs, ys []float64) Polyline {
	return Polyline{GC: gc, Points: sanitizePoints(xs, ys)}
}

func (c Polyline) Kind() Kind  { return KindPolyline }
func (c Polyline) Context() GC { return c.GC }

type Polygon struct {
	GC     GC
	Points []Point
}

func NewPolygon(gc GC, xs, ys []float64) Polygon {
	return Polygon{GC: gc, Points: sanitizePoints(xs, ys)}
}

func (c Polygon) Kind() Kind  { return KindPolygon }
func (c Polygon) Context() GC { return c.GC }

// Path is a multi-subpath polygon. PointsPer gives the number of
// points of each subpath, in order; Points concatenates all subpaths.
type Path struct {
	GC        GC
	Points    []Point
	PointsPer []int
	Winding   bool
}

func NewPath(gc GC, xs, ys []float64, pointsPer []int, winding bool) Path {
	per := make([]int, len(pointsPer))
	copy(per, pointsPer)
	return Path{GC: gc, Points: sanitizePoints(xs, ys), PointsPer: per, Winding: winding}
}

func (c Path) Kind() Kind  { return KindPath }
func (c Path) Context() GC { return c.GC }

type Rect struct {
	GC   GC
	A, B Point // opposite corners, not ordered
}

func NewRect(gc GC, x0, y0, x1, y1 float64) Rect {
	return Rect{
		GC: gc,
		A:  Point{X: sanitize(x0), Y: sanitize(y0)},
		B:  Point{X: sanitize(x1), Y: sanitize(y1)},
	}
}

func (c Rect) Kind() Kind  { return KindRect }
func (c Rect) Context() GC { return c.GC }

type Circle struct {
	GC     GC
	Center Point
	Radius float64
}

func NewCircle(gc GC, x, y, r float64) Circle {
	return Circle{GC: gc, Center: Point{X: sanitize(x), Y: sanitize(y)}, Radius: sanitize(r)}
}

func (c Circle) Kind() Kind  { return KindCircle }
func (c Circle) Context() GC { return c.GC }

// Text records the string together with metrics resolved at capture
// time (see FontInfo). Rot is the rotation in degrees counterclockwise;
// HAdj the horizontal adjustment in [0,1] (0 left, 0.5 center, 1 right).
type Text struct {
	GC   GC
	Pos  Point
	Str  string
	Rot  float64
	HAdj float64
	Font FontInfo
}

func NewText(gc GC, x, y float64, str string, rot, hadj float64, font FontInfo) Text {
	return Text{
		GC:   gc,
		Pos:  Point{X: sanitize(x), Y: sanitize(y)},
		Str:  str,
		Rot:  sanitize(rot),
		HAdj: sanitize(hadj),
		Font: font,
	}
}

func (c Text) Kind() Kind  { return KindText }
func (c Text) Context() GC { return c.GC }

// Raster records a pixel rectangle. Pixels holds Width*Height packed
// color words in row-major order, in the Color layout (red low byte,
// alpha high byte). X/Y is the lower-left corner of the destination
// rectangle in page points; W/H its size.
type Raster struct {
	GC          GC
	Pixels      []uint32
	Width       int
	Height      int
	X, Y        float64
	W, H        float64
	Rot         float64
	Interpolate bool
}

func NewRaster(gc GC, pixels []uint32, width, height int, x, y, w, h, rot float64, interpolate bool) Raster {
	px := make([]uint32, len(pixels))
	copy(px, pixels)
	return Raster{
		GC:          gc,
		Pixels:      px,
		Width:       width,
		Height:      height,
		X:           sanitize(x),
		Y:           sanitize(y),
		W:           sanitize(w),
		H:           sanitize(h),
		Rot:         sanitize(rot),
		Interpolate: interpolate,
	}
}

func (c Raster) Kind() Kind  { return KindRaster }
func (c Raster) Context() GC { return c.GC }
