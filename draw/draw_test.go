package draw

import (
	"math"
	"testing"
)

func TestNewClipNormalizes(t *testing.T) {
	c := NewClip(10, 2, 8, 1)
	if c.X0 != 2 || c.X1 != 10 || c.Y0 != 1 || c.Y1 != 8 {
		t.Fatalf("clip not normalized: %+v", c)
	}
}

func TestSanitizeClampsInvalidCoordinates(t *testing.T) {
	l := NewLine(GC{}, math.NaN(), math.Inf(1), 3, math.Inf(-1))
	if l.P1.X != 0 || l.P1.Y != 0 || l.P2.Y != 0 {
		t.Fatalf("invalid coordinates not clamped: %+v", l)
	}
	if l.P2.X != 3 {
		t.Fatalf("valid coordinate altered: %+v", l)
	}
}

func TestColorChannels(t *testing.T) {
	c := RGBA(0x11, 0x22, 0x33, 0x44)
	if c.Red() != 0x11 || c.Green() != 0x22 || c.Blue() != 0x33 || c.Alpha() != 0x44 {
		t.Fatalf("channel unpack mismatch: %08x", uint32(c))
	}
	if got := c.CSS(); got != "rgb(17,34,51)" {
		t.Fatalf("css = %q", got)
	}
	if !Transparent.Transparent() || !Black.Opaque() {
		t.Fatalf("alpha predicates wrong")
	}
}

func TestLineTypeDashArray(t *testing.T) {
	if got := Solid.DashArray(2); got != nil {
		t.Fatalf("solid produced dashes: %v", got)
	}
	// 4-4 dashed pattern, packed low nibble first.
	lt := LineType(0x44)
	got := lt.DashArray(2)
	if len(got) != 2 || got[0] != 8 || got[1] != 8 {
		t.Fatalf("dash array = %v", got)
	}
	// Line width below 1 must not shrink the pattern.
	got = lt.DashArray(0)
	if len(got) != 2 || got[0] != 4 {
		t.Fatalf("dash array at lwd 0 = %v", got)
	}
}

func TestRasterCopiesPixels(t *testing.T) {
	src := []uint32{1, 2, 3, 4}
	r := NewRaster(GC{}, src, 2, 2, 0, 0, 10, 10, 0, false)
	src[0] = 99
	if r.Pixels[0] != 1 {
		t.Fatalf("raster aliases caller pixel buffer")
	}
}
