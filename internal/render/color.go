package render

import (
	"image/color"
	"math"
)

const (
	SolidTheme    ColorTheme = "solid"
	ProgressTheme ColorTheme = "progress"
)

// ColorTheme selects how the trajectory polyline is colored.
type ColorTheme string

var (
	TrajectoryColor = color.RGBA{R: 0x1f, G: 0x3f, B: 0xd0, A: 0xff}
	TargetColor     = color.RGBA{R: 0xe0, G: 0x10, B: 0x10, A: 0xff}
	GridColor       = color.RGBA{R: 0xe4, G: 0xe4, B: 0xe4, A: 0xff}
	FrameColor      = color.RGBA{R: 0x30, G: 0x30, B: 0x30, A: 0xff}
)

// HSV represents a color in HSV color space
type HSV struct {
	H float64 // Hue [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value [0-1]
}

// RGB converts HSV color space to RGB
// H: [0-360], S: [0-1], V: [0-1]
func (hsv HSV) RGB() color.RGBA {
	h := hsv.H
	s := hsv.S
	v := hsv.V

	if s <= 0.0 {
		rgb := uint8(v * 255)
		return color.RGBA{R: rgb, G: rgb, B: rgb, A: 0xff}
	}

	// Normalize hue to [0-6]
	h = math.Mod(h, 360) / 60
	i := math.Floor(h)
	f := h - i

	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64

	switch int(i) {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}

	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 0xff}
}

// GetColorTheme returns the color of the trajectory at progress [0-1] along the
// flight.
func GetColorTheme(theme ColorTheme) func(progress float64) color.RGBA {
	switch theme {
	case ProgressTheme: // Blue at takeoff -> Red at landing
		return func(progress float64) color.RGBA {
			progress = math.Max(0, math.Min(1, progress))
			hsv := HSV{
				H: 240 - (progress * 240),
				S: 0.9,
				V: 0.85,
			}
			return hsv.RGB()
		}

	default:
		return func(float64) color.RGBA {
			return TrajectoryColor
		}
	}
}
