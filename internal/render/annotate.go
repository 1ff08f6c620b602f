package render

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const tickMarkLength = 5

type annotatorConfig struct {
	FontSize       float64
	DatetimeFormat string
	Location       *time.Location
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) textWidth(s string) int {
	return font.MeasureString(a.fontFace, s).Round()
}

func (a *annotator) drawString(s string, x, y int) error {
	if _, err := a.context.DrawString(s, freetype.Pt(x, y)); err != nil {
		return fmt.Errorf("drawing '%s': %w", s, err)
	}
	return nil
}

func (a *annotator) drawTitle(img *image.RGBA, title string) error {
	if title == "" {
		return nil
	}
	x := (img.Bounds().Dx() - a.textWidth(title)) / 2
	return a.drawString(title, x, a.fontHeight()+4)
}

// drawScales labels the ticks and axes of a panel.
func (a *annotator) drawScales(img *image.RGBA, p *panel, hStep, vStep float64) error {
	fh := a.fontHeight()
	descent := a.fontFace.Metrics().Descent.Round()

	// panel title, centered above the panel
	if err := a.drawString(p.title, p.area.Min.X+(p.area.Dx()-a.textWidth(p.title))/2, p.area.Min.Y-8); err != nil {
		return err
	}

	for _, h := range ticks(p.hMin, p.hMax, hStep) {
		x := p.toPixel(h, p.vMin).X

		for y := p.area.Max.Y; y < p.area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatMetres(h)
		if err := a.drawString(label, x-a.textWidth(label)/2, p.area.Max.Y+tickMarkLength+fh); err != nil {
			return err
		}
	}

	for _, v := range ticks(p.vMin, p.vMax, vStep) {
		y := p.toPixel(p.hMin, v).Y

		for x := p.area.Min.X - tickMarkLength; x < p.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatMetres(v)
		x := p.area.Min.X - tickMarkLength - 3 - a.textWidth(label)
		if err := a.drawString(label, x, y+fh/2-descent); err != nil {
			return err
		}
	}

	// axis names: horizontal under the tick labels, vertical above the axis
	hx := p.area.Min.X + (p.area.Dx()-a.textWidth(p.hLabel))/2
	if err := a.drawString(p.hLabel, hx, p.area.Max.Y+tickMarkLength+2*fh+4); err != nil {
		return err
	}
	return a.drawString(p.vLabel, p.area.Min.X-a.textWidth(p.vLabel)-tickMarkLength-3, p.area.Min.Y-8)
}

func (a *annotator) drawLegend(img *image.RGBA, lineColor color.Color) error {
	fh := a.fontHeight()
	baseline := img.Bounds().Max.Y - a.config.Borders.Bottom + 3*fh + 12
	x := a.config.Borders.Left

	// trajectory sample
	for i := 0; i < 24; i++ {
		img.Set(x+i, baseline-fh/3, lineColor)
		img.Set(x+i, baseline-fh/3+1, lineColor)
	}
	x += 30
	label := "Trajectory (motion capture)"
	if err := a.drawString(label, x, baseline); err != nil {
		return err
	}
	x += a.textWidth(label) + 30

	// target sample
	r := 5
	cy := baseline - fh/3
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				img.Set(x+r+dx, cy+dy, TargetColor)
			}
		}
	}
	return a.drawString("Target", x+2*r+6, baseline)
}

func (a *annotator) drawInfoBar(img *image.RGBA, s summary) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Points: %s", humanize.Comma(int64(s.Points))))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Path: %s m", humanize.FtoaWithDigits(s.PathLength, 3)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Final offset: %s m", humanize.FtoaWithDigits(s.FinalError, 3)))

	if s.Start != nil && s.End != nil {
		sb.WriteString("; ")
		sb.WriteString(fmt.Sprintf("Time: %s - %s (%s)",
			s.Start.In(a.config.Location).Format(a.config.DatetimeFormat),
			s.End.In(a.config.Location).Format(a.config.DatetimeFormat),
			s.End.Sub(*s.Start).Round(time.Millisecond)))
	}

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - 8 - metrics.Descent.Round()

	return a.drawString(sb.String(), a.config.Borders.Left, textY)
}

// formatMetres prints a tick value without trailing zeros.
func formatMetres(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
