package svg

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/gdlive/gdlive/draw"
	"github.com/gdlive/gdlive/history"
)

func strokeGC() draw.GC {
	return draw.GC{Stroke: draw.Black, Fill: draw.Transparent, LineWidth: 1}
}

func onePageStore(cmds ...draw.Command) *history.Page {
	s := history.NewStore(true)
	s.NewPage(100, 100, draw.White)
	for _, c := range cmds {
		s.Append(c)
	}
	p, err := s.Page(1)
	if err != nil {
		panic(err)
	}
	return p
}

func TestRenderScalesLineEndpoints(t *testing.T) {
	p := onePageStore(draw.NewLine(strokeGC(), 0, 0, 50, 50))
	out := string(Render(p, 200, 200))
	if !strings.Contains(out, `x1="0.00" y1="0.00" x2="100.00" y2="100.00"`) {
		t.Fatalf("line not rescaled 2x:\n%s", out)
	}
}

func TestRenderNonUniformScale(t *testing.T) {
	p := onePageStore(draw.NewLine(strokeGC(), 10, 10, 50, 50))
	out := string(Render(p, 200, 400))
	if !strings.Contains(out, `x1="20.00" y1="40.00" x2="100.00" y2="200.00"`) {
		t.Fatalf("independent axis scaling wrong:\n%s", out)
	}
}

func TestRenderDeterministic(t *testing.T) {
	p := onePageStore(
		draw.NewLine(strokeGC(), 0, 0, 50, 50),
		draw.NewCircle(strokeGC(), 30, 30, 10),
		draw.NewText(strokeGC(), 10, 90, "hello", 0, 0,
			draw.FontInfo{Family: "sans", Size: 12, Width: 36}),
	)
	a := Render(p, 300, 300)
	b := Render(p, 300, 300)
	if !bytes.Equal(a, b) {
		t.Fatalf("repeated render differs")
	}
}

func TestRenderEmptyPage(t *testing.T) {
	p := onePageStore()
	out := string(Render(p, 100, 100))
	if !strings.HasPrefix(out, `<?xml`) || !strings.Contains(out, "</svg>") {
		t.Fatalf("not a valid document:\n%s", out)
	}
	if !strings.Contains(out, `fill="rgb(255,255,255)"`) {
		t.Fatalf("background fill missing:\n%s", out)
	}
	if strings.Contains(out, "<line") {
		t.Fatalf("empty page emitted primitives")
	}
}

func TestRenderTransparentBackgroundOmitsRect(t *testing.T) {
	s := history.NewStore(true)
	s.NewPage(100, 100, draw.Transparent)
	p, _ := s.Page(1)
	if out := string(Render(p, 100, 100)); strings.Contains(out, "<rect") {
		t.Fatalf("transparent background emitted a rect:\n%s", out)
	}
}

func TestRenderZeroTargetFallsBackToPageSize(t *testing.T) {
	p := onePageStore(draw.NewLine(strokeGC(), 0, 0, 50, 50))
	out := string(Render(p, 0, 0))
	if !strings.Contains(out, `width="100.00" height="100.00"`) {
		t.Fatalf("fallback size wrong:\n%s", out)
	}
}

func TestRenderClipEmission(t *testing.T) {
	gc := strokeGC()
	gc.Clip = draw.NewClip(10, 60, 10, 60)
	p := onePageStore(draw.NewLine(gc, 0, 0, 100, 100))
	out := string(Render(p, 200, 200))
	if !strings.Contains(out, `<clipPath id="c0"><rect x="20.00" y="20.00" width="100.00" height="100.00"/></clipPath>`) {
		t.Fatalf("scaled clip def missing:\n%s", out)
	}
	if !strings.Contains(out, `clip-path="url(#c0)"`) {
		t.Fatalf("clip not applied:\n%s", out)
	}
}

func TestRenderFullPageClipIgnored(t *testing.T) {
	gc := strokeGC()
	gc.Clip = draw.NewClip(0, 100, 0, 100)
	p := onePageStore(draw.NewLine(gc, 0, 0, 100, 100))
	if out := string(Render(p, 100, 100)); strings.Contains(out, "clipPath") {
		t.Fatalf("full-page clip emitted:\n%s", out)
	}
}

func TestRenderTextUsesCapturedMetrics(t *testing.T) {
	gc := strokeGC()
	p := onePageStore(draw.NewText(gc, 10, 50, "a<b", 90, 0.5,
		draw.FontInfo{Family: "serif", Size: 10, Bold: true, Italic: true, Width: 40}))
	out := string(Render(p, 200, 200))
	for _, want := range []string{
		`font-family="serif"`,
		`font-size="20.00px"`, // scaled by sy
		`font-weight="bold"`,
		`font-style="italic"`,
		`textLength="80.00px"`, // captured width scaled by sx
		`text-anchor="middle"`,
		`rotate(-90.00,20.00,100.00)`,
		`>a&lt;b</text>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderDashPattern(t *testing.T) {
	gc := strokeGC()
	gc.LineWidth = 2
	gc.LineType = draw.LineType(0x44)
	p := onePageStore(draw.NewLine(gc, 0, 0, 50, 50))
	out := string(Render(p, 100, 100))
	if !strings.Contains(out, `stroke-dasharray="8.00,8.00"`) {
		t.Fatalf("dash array missing:\n%s", out)
	}
}

func TestRasterPixelChannels(t *testing.T) {
	// One red and one half-transparent blue pixel, packed RGBA words.
	pixels := []uint32{0xFF0000FF, 0x80FF0000}
	gc := draw.GC{}
	p := onePageStore(draw.NewRaster(gc, pixels, 2, 1, 0, 50, 50, 25, 0, false))
	out := string(Render(p, 100, 100))

	marker := "base64,"
	i := strings.Index(out, marker)
	if i < 0 {
		t.Fatalf("no inline image:\n%s", out)
	}
	rest := out[i+len(marker):]
	enc := rest[:strings.IndexByte(rest, '"')]
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		t.Fatalf("decode inline image: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	r, g, b, a := img.At(0, 0).RGBA()
	if r>>8 != 0xFF || g != 0 || b != 0 || a>>8 != 0xFF {
		t.Fatalf("pixel 0 = %d %d %d %d, want opaque red", r>>8, g>>8, b>>8, a>>8)
	}
	_, _, b, a = img.At(1, 0).RGBA()
	// Premultiplied readback: blue at half alpha.
	if a>>8 != 0x80 || b == 0 {
		t.Fatalf("pixel 1 alpha/blue wrong: b=%d a=%d", b>>8, a>>8)
	}
	if !strings.Contains(out, `image-rendering="pixelated"`) {
		t.Fatalf("nearest-neighbor hint missing")
	}
}

func TestRenderEscapesFontFamilyQuotes(t *testing.T) {
	p := onePageStore(draw.NewText(strokeGC(), 10, 50, "hi", 0, 0,
		draw.FontInfo{Family: `"Comic" Sans`, Size: 12}))
	out := string(Render(p, 100, 100))
	if !strings.Contains(out, `font-family="&quot;Comic&quot; Sans"`) {
		t.Fatalf("family quotes not escaped:\n%s", out)
	}
}
