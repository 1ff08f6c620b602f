package render

import (
	"image"
	"image/color"
	"math"
)

// Bounds are the fixed axis limits of the plot, in metres.
type Bounds struct {
	XMin, XMax float64
	YMin, YMax float64
	ZMin, ZMax float64
}

// DefaultBounds covers the capture volume.
func DefaultBounds() Bounds {
	return Bounds{XMin: -2, XMax: 2, YMin: -2, YMax: 2, ZMin: 0, ZMax: 1}
}

// panel is a 2D projection of the capture volume onto a screen rectangle. The
// vertical axis grows upwards.
type panel struct {
	title          string
	hLabel, vLabel string

	area       image.Rectangle
	hMin, hMax float64
	vMin, vMax float64
}

func (p *panel) toPixel(h, v float64) image.Point {
	w, ht := float64(p.area.Dx()-1), float64(p.area.Dy()-1)
	x := p.area.Min.X + int(math.Round((h-p.hMin)/(p.hMax-p.hMin)*w))
	y := p.area.Max.Y - 1 - int(math.Round((v-p.vMin)/(p.vMax-p.vMin)*ht))
	return image.Point{X: x, Y: y}
}

func (p *panel) set(img *image.RGBA, pt image.Point, c color.Color) {
	if pt.In(p.area) {
		img.Set(pt.X, pt.Y, c)
	}
}

// drawFrame draws the panel outline and grid lines at every tick.
func (p *panel) drawFrame(img *image.RGBA, hStep, vStep float64) {
	for _, h := range ticks(p.hMin, p.hMax, hStep) {
		x := p.toPixel(h, p.vMin).X
		for y := p.area.Min.Y; y < p.area.Max.Y; y++ {
			img.Set(x, y, GridColor)
		}
	}
	for _, v := range ticks(p.vMin, p.vMax, vStep) {
		y := p.toPixel(p.hMin, v).Y
		for x := p.area.Min.X; x < p.area.Max.X; x++ {
			img.Set(x, y, GridColor)
		}
	}

	r := p.area
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, FrameColor)
		img.Set(x, r.Max.Y-1, FrameColor)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, FrameColor)
		img.Set(r.Max.X-1, y, FrameColor)
	}
}

// drawLine draws a one pixel wide segment, clipped to the panel.
func (p *panel) drawLine(img *image.RGBA, a, b image.Point, c color.Color) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}

	errAcc := dx + dy
	for {
		p.set(img, a, c)
		if a == b {
			return
		}
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			a.X += sx
		}
		if e2 <= dx {
			errAcc += dx
			a.Y += sy
		}
	}
}

// clip trims the segment a-b, given in axis units, to the panel limits using
// the Liang-Barsky parametric test. ok is false when the segment lies entirely
// outside the panel or has a non-finite end.
func (p *panel) clip(a, b [2]float64) (ca, cb [2]float64, ok bool) {
	for _, v := range [4]float64{a[0], a[1], b[0], b[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ca, cb, false
		}
	}

	dh, dv := b[0]-a[0], b[1]-a[1]
	t0, t1 := 0.0, 1.0
	for _, e := range [4]struct{ p, q float64 }{
		{-dh, a[0] - p.hMin},
		{dh, p.hMax - a[0]},
		{-dv, a[1] - p.vMin},
		{dv, p.vMax - a[1]},
	} {
		if e.p == 0 {
			if e.q < 0 {
				return ca, cb, false
			}
			continue
		}
		r := e.q / e.p
		if e.p < 0 {
			if r > t1 {
				return ca, cb, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return ca, cb, false
			}
			t1 = math.Min(t1, r)
		}
	}

	ca = [2]float64{a[0] + t0*dh, a[1] + t0*dv}
	cb = [2]float64{a[0] + t1*dh, a[1] + t1*dv}
	return ca, cb, true
}

// drawSegment draws the segment a-b, given in axis units, after clipping it to
// the panel so the pixel walk stays bounded by the panel size.
func (p *panel) drawSegment(img *image.RGBA, a, b [2]float64, width int, c color.Color) {
	ca, cb, ok := p.clip(a, b)
	if !ok {
		return
	}
	p.drawThickLine(img, p.toPixel(ca[0], ca[1]), p.toPixel(cb[0], cb[1]), width, c)
}

// contains reports whether (h, v) is a finite point within the panel limits.
func (p *panel) contains(h, v float64) bool {
	return h >= p.hMin && h <= p.hMax && v >= p.vMin && v <= p.vMax
}

// drawThickLine draws a segment with a square brush of the given width.
func (p *panel) drawThickLine(img *image.RGBA, a, b image.Point, width int, c color.Color) {
	off := width / 2
	for ox := -off; ox < width-off; ox++ {
		for oy := -off; oy < width-off; oy++ {
			d := image.Point{X: ox, Y: oy}
			p.drawLine(img, a.Add(d), b.Add(d), c)
		}
	}
}

// drawDisc draws a filled circle, clipped to the panel.
func (p *panel) drawDisc(img *image.RGBA, center image.Point, radius int, c color.Color) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				p.set(img, center.Add(image.Point{X: x, Y: y}), c)
			}
		}
	}
}

// ticks returns the multiples of step within [min, max].
func ticks(min, max, step float64) []float64 {
	if step <= 0 || max <= min {
		return nil
	}

	var out []float64
	start := math.Ceil(min/step-1e-9) * step
	for v := start; v <= max+step*1e-9; v += step {
		out = append(out, math.Round(v/step)*step)
	}
	return out
}

// niceStep picks a grid spacing giving roughly one label per pixelsPerLabel.
func niceStep(span float64, pixels int) float64 {
	steps := []float64{0.05, 0.1, 0.2, 0.25, 0.5, 1, 2, 5, 10}

	desired := float64(pixels) / pixelsPerLabel
	if desired < 1 {
		desired = 1
	}
	target := span / desired

	for _, step := range steps {
		if step >= target {
			return step
		}
	}
	return span / 2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
