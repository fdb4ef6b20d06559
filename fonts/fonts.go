// Package fonts answers the text measurement questions the device asks
// while capturing text commands: string widths and line extents for a
// family/style/size. Results are captured into the command at draw
// time, so rendering never comes back here.
package fonts

import (
	"fmt"
	"sync"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/fontscan"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// Style selects a font face.
type Style struct {
	Family string
	Bold   bool
	Italic bool
}

// Metrics are vertical extents and advance width in points.
type Metrics struct {
	Ascent  float64
	Descent float64
	Width   float64
}

// Service measures text. A failed measurement degrades to zero metrics
// at the caller, never into a draw error.
type Service interface {
	GlyphMetrics(r rune, style Style, size float64) (Metrics, error)
	StringWidth(s string, style Style, size float64) (float64, error)
}

// SystemService resolves faces from the installed system fonts and
// measures by shaping.
type SystemService struct {
	mu     sync.Mutex
	fm     *fontscan.FontMap
	shaper shaping.HarfbuzzShaper
}

// NewSystemService scans the system font directories. cacheDir may be
// empty to use the default location.
func NewSystemService(cacheDir string) (*SystemService, error) {
	fm := fontscan.NewFontMap(nil)
	if err := fm.UseSystemFonts(cacheDir); err != nil {
		return nil, fmt.Errorf("scan system fonts: %w", err)
	}
	return &SystemService{fm: fm}, nil
}

func (s *SystemService) shape(runes []rune, style Style, size float64) (shaping.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	aspect := font.Aspect{Style: font.StyleNormal, Weight: font.WeightNormal}
	if style.Bold {
		aspect.Weight = font.WeightBold
	}
	if style.Italic {
		aspect.Style = font.StyleItalic
	}
	s.fm.SetQuery(fontscan.Query{Families: []string{style.Family}, Aspect: aspect})

	face := s.fm.ResolveFace(runes[0])
	if face == nil {
		return shaping.Output{}, fmt.Errorf("no face for family %q", style.Family)
	}

	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      face,
		Size:      fixed.Int26_6(size * 64),
		Script:    language.LookupScript(runes[0]),
		Language:  language.DefaultLanguage(),
	}
	return s.shaper.Shape(input), nil
}

func (s *SystemService) GlyphMetrics(r rune, style Style, size float64) (Metrics, error) {
	out, err := s.shape([]rune{r}, style, size)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		Ascent:  float64(out.LineBounds.Ascent) / 64,
		Descent: -float64(out.LineBounds.Descent) / 64,
		Width:   float64(out.Advance) / 64,
	}, nil
}

func (s *SystemService) StringWidth(str string, style Style, size float64) (float64, error) {
	runes := []rune(str)
	if len(runes) == 0 {
		return 0, nil
	}
	out, err := s.shape(runes, style, size)
	if err != nil {
		return 0, err
	}
	return float64(out.Advance) / 64, nil
}

// Fixed is a deterministic stand-in service: every glyph advances
// Factor*size, with 3/4 of the size above the baseline. Used by tests
// and by headless deployments with no system fonts.
type Fixed struct {
	Factor float64
}

func (f Fixed) factor() float64 {
	if f.Factor <= 0 {
		return 0.6
	}
	return f.Factor
}

func (f Fixed) GlyphMetrics(_ rune, _ Style, size float64) (Metrics, error) {
	return Metrics{Ascent: size * 0.75, Descent: size * 0.25, Width: size * f.factor()}, nil
}

func (f Fixed) StringWidth(s string, _ Style, size float64) (float64, error) {
	return float64(len([]rune(s))) * size * f.factor(), nil
}
