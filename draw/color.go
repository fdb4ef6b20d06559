package draw

import "fmt"

// Color is one packed 32-bit color word as delivered by the host engine:
// red in the low byte, then green and blue, alpha in the high byte.
type Color uint32

func RGBA(r, g, b, a uint8) Color {
	return Color(uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24)
}

func RGB(r, g, b uint8) Color { return RGBA(r, g, b, 255) }

const (
	Black       Color = 0xFF000000
	White       Color = 0xFFFFFFFF
	Transparent Color = 0x00FFFFFF
)

func (c Color) Red() uint8   { return uint8(c) }
func (c Color) Green() uint8 { return uint8(c >> 8) }
func (c Color) Blue() uint8  { return uint8(c >> 16) }
func (c Color) Alpha() uint8 { return uint8(c >> 24) }

func (c Color) Opaque() bool      { return c.Alpha() == 255 }
func (c Color) Transparent() bool { return c.Alpha() == 0 }

// Opacity returns the alpha channel as a fraction in [0,1].
func (c Color) Opacity() float64 { return float64(c.Alpha()) / 255.0 }

// CSS returns the color in rgb(r,g,b) notation. Opacity is carried
// separately (stroke-opacity / fill-opacity) by the renderers.
func (c Color) CSS() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.Red(), c.Green(), c.Blue())
}
