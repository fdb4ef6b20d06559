package device

import (
	"github.com/gdlive/gdlive/draw"
	"github.com/gdlive/gdlive/fonts"
	"github.com/gdlive/gdlive/observability"
)

// The Sink methods below run on the engine's thread. Each mutation
// takes the guard only for the append itself; text measurement and
// notification happen outside the critical section.

// BeginPage closes the current page and opens the next. Non-positive
// dimensions fall back to the configured device size.
func (s *Session) BeginPage(width, height float64, background draw.Color) {
	s.guard.Poll()
	if width <= 0 {
		width = s.cfg.Width
	}
	if height <= 0 {
		height = s.cfg.Height
	}
	s.guard.Exclusive(func() {
		s.store.NewPage(width, height, background)
	})
	s.notify()
}

// Clip records the active clip rectangle; it is stamped onto every
// subsequent command until changed.
func (s *Session) Clip(x0, x1, y0, y1 float64) {
	s.clip = draw.NewClip(x0, x1, y0, y1)
}

// Mode marks the start (true) and end (false) of a burst of drawing
// operations. Deferred work runs here, and viewers are notified once
// per burst rather than per command.
func (s *Session) Mode(drawing bool) {
	s.guard.Poll()
	if !drawing {
		s.notify()
	}
}

func (s *Session) stamp(gc draw.GC) draw.GC {
	gc.Clip = s.clip
	return gc
}

func (s *Session) append(cmd draw.Command) {
	s.guard.Exclusive(func() {
		s.store.Append(cmd)
	})
}

func (s *Session) Line(gc draw.GC, x1, y1, x2, y2 float64) {
	s.append(draw.NewLine(s.stamp(gc), x1, y1, x2, y2))
}

func (s *Session) Polyline(gc draw.GC, xs, ys []float64) {
	s.append(draw.NewPolyline(s.stamp(gc), xs, ys))
}

func (s *Session) Polygon(gc draw.GC, xs, ys []float64) {
	s.append(draw.NewPolygon(s.stamp(gc), xs, ys))
}

func (s *Session) Path(gc draw.GC, xs, ys []float64, pointsPer []int, winding bool) {
	s.append(draw.NewPath(s.stamp(gc), xs, ys, pointsPer, winding))
}

func (s *Session) Rect(gc draw.GC, x0, y0, x1, y1 float64) {
	s.append(draw.NewRect(s.stamp(gc), x0, y0, x1, y1))
}

func (s *Session) Circle(gc draw.GC, x, y, r float64) {
	s.append(draw.NewCircle(s.stamp(gc), x, y, r))
}

// Text measures the string now and freezes the result into the
// command. A metrics failure degrades to width 0; the draw itself
// never fails.
func (s *Session) Text(gc draw.GC, x, y float64, str string, rot, hadj float64, style fonts.Style, size float64) {
	width, err := s.metrics.StringWidth(str, style, size)
	if err != nil {
		s.logger.Warn("text measurement failed",
			observability.String("family", style.Family),
			observability.Error("err", err))
		width = 0
	}
	info := draw.FontInfo{
		Family: style.Family,
		Size:   size,
		Bold:   style.Bold,
		Italic: style.Italic,
		Width:  width,
	}
	s.append(draw.NewText(s.stamp(gc), x, y, str, rot, hadj, info))
}

func (s *Session) Raster(gc draw.GC, pixels []uint32, width, height int, x, y, w, h, rot float64, interpolate bool) {
	s.append(draw.NewRaster(s.stamp(gc), pixels, width, height, x, y, w, h, rot, interpolate))
}

// GlyphMetrics exposes the metrics service for the host's metric-info
// callback; failures degrade to zero extents.
func (s *Session) GlyphMetrics(r rune, style fonts.Style, size float64) fonts.Metrics {
	m, err := s.metrics.GlyphMetrics(r, style, size)
	if err != nil {
		return fonts.Metrics{}
	}
	return m
}
