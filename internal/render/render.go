// Package render draws a flight trajectory as a PNG: a top view (X/Y) and a
// side view (X/Z) of the capture volume with the target marker.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/trajectory"
)

const (
	dpi            = 96.0
	fontSize       = 11.0
	pixelsPerLabel = 90.0

	defaultPanelWidth  = 520
	defaultPanelHeight = 520
	defaultPanelGap    = 90

	defaultTopBorder    = 50
	defaultLeftBorder   = 70
	defaultBottomBorder = 90
	defaultRightBorder  = 30

	defaultZOffset        = 0.024
	defaultLineWidth      = 2
	defaultMarkerRadius   = 6
	defaultDatetimeFormat = "2006-01-02 15:04:05.000"
)

// ErrNoData is returned when there is nothing to draw
var ErrNoData = errors.New("no trajectory data")

// BorderConfig defines the sizes of white space around the panels
type BorderConfig struct {
	Top    int // Space for titles
	Left   int // Space for the vertical scale
	Bottom int // Space for the horizontal scale, legend and information bar
	Right  int // Right padding
}

// Config holds all configuration options for trajectory rendering
type Config struct {
	Title  string
	Bounds Bounds

	// ZOffset is subtracted from every recorded height before drawing. It
	// compensates for the height of the marker above the vehicle's base.
	ZOffset float64

	PanelWidth  int
	PanelHeight int
	PanelGap    int

	FontSize       float64
	ColorTheme     ColorTheme
	LineWidth      int
	MarkerRadius   int
	DatetimeFormat string
	Location       *time.Location

	BorderConfig BorderConfig
}

// DefaultConfig returns the configuration of the standard flight report.
func DefaultConfig() Config {
	return Config{
		Title:   "Flight to target",
		Bounds:  DefaultBounds(),
		ZOffset: defaultZOffset,
	}
}

// Renderer draws trajectories
type Renderer struct {
	config Config
}

// NewRenderer creates a new renderer with the given configuration
func NewRenderer(config Config) (*Renderer, error) {
	if config.Bounds == (Bounds{}) {
		config.Bounds = DefaultBounds()
	}
	b := config.Bounds
	if b.XMax <= b.XMin || b.YMax <= b.YMin || b.ZMax <= b.ZMin {
		return nil, fmt.Errorf("invalid plot bounds %+v", b)
	}

	if config.PanelWidth == 0 {
		config.PanelWidth = defaultPanelWidth
	}
	if config.PanelHeight == 0 {
		config.PanelHeight = defaultPanelHeight
	}
	if config.PanelGap == 0 {
		config.PanelGap = defaultPanelGap
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.LineWidth == 0 {
		config.LineWidth = defaultLineWidth
	}
	if config.MarkerRadius == 0 {
		config.MarkerRadius = defaultMarkerRadius
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &Renderer{config: config}, nil
}

// Render draws the trajectory through points and the target marker. It returns
// ErrNoData when points is empty.
func (r *Renderer) Render(points []pose.Pose, target pose.Pose) (*image.RGBA, error) {
	if len(points) == 0 {
		return nil, ErrNoData
	}

	cfg := r.config
	borders := cfg.BorderConfig

	fullWidth := borders.Left + 2*cfg.PanelWidth + cfg.PanelGap + borders.Right
	fullHeight := borders.Top + cfg.PanelHeight + borders.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	top, side := r.layout()

	ann, err := newAnnotator(annotatorConfig{
		FontSize:       cfg.FontSize,
		DatetimeFormat: cfg.DatetimeFormat,
		Location:       cfg.Location,
		Borders:        borders,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	ann.context.SetClip(img.Bounds())
	ann.context.SetDst(img)

	colorAt := GetColorTheme(cfg.ColorTheme)

	for _, p := range []struct {
		panel *panel
		h     func(pose.Pose) float64
		v     func(pose.Pose) float64
	}{
		{top, func(p pose.Pose) float64 { return p.X }, func(p pose.Pose) float64 { return p.Y }},
		{side, func(p pose.Pose) float64 { return p.X }, func(p pose.Pose) float64 { return p.Z - cfg.ZOffset }},
	} {
		hStep := niceStep(p.panel.hMax-p.panel.hMin, p.panel.area.Dx())
		vStep := niceStep(p.panel.vMax-p.panel.vMin, p.panel.area.Dy())

		p.panel.drawFrame(img, hStep, vStep)
		if err = ann.drawScales(img, p.panel, hStep, vStep); err != nil {
			return nil, fmt.Errorf("drawing %s scales: %w", p.panel.title, err)
		}

		prev := [2]float64{p.h(points[0]), p.v(points[0])}
		for i := 1; i < len(points); i++ {
			next := [2]float64{p.h(points[i]), p.v(points[i])}
			c := colorAt(float64(i) / float64(len(points)-1))
			p.panel.drawSegment(img, prev, next, cfg.LineWidth, c)
			prev = next
		}
		if len(points) == 1 && p.panel.contains(prev[0], prev[1]) {
			p.panel.drawDisc(img, p.panel.toPixel(prev[0], prev[1]), cfg.LineWidth, colorAt(0))
		}
	}

	// the marker sits on the floor, so it is drawn without the height offset
	if top.contains(target.X, target.Y) {
		top.drawDisc(img, top.toPixel(target.X, target.Y), cfg.MarkerRadius, TargetColor)
	}
	if side.contains(target.X, target.Z) {
		side.drawDisc(img, side.toPixel(target.X, target.Z), cfg.MarkerRadius, TargetColor)
	}

	steps := []struct {
		msg string
		fn  func() error
	}{
		{"drawing title", func() error { return ann.drawTitle(img, cfg.Title) }},
		{"drawing legend", func() error { return ann.drawLegend(img, colorAt(0)) }},
		{"drawing info bar", func() error { return ann.drawInfoBar(img, summarize(points, target)) }},
	}
	for _, s := range steps {
		if err = s.fn(); err != nil {
			return nil, fmt.Errorf("%s: %w", s.msg, err)
		}
	}

	return img, nil
}

// layout places the top and side view panels on the canvas.
func (r *Renderer) layout() (top, side *panel) {
	cfg := r.config
	borders := cfg.BorderConfig

	top = &panel{
		title:  "Top view",
		hLabel: "X [m]",
		vLabel: "Y [m]",
		area:   image.Rect(borders.Left, borders.Top, borders.Left+cfg.PanelWidth, borders.Top+cfg.PanelHeight),
		hMin:   cfg.Bounds.XMin,
		hMax:   cfg.Bounds.XMax,
		vMin:   cfg.Bounds.YMin,
		vMax:   cfg.Bounds.YMax,
	}

	sideLeft := top.area.Max.X + cfg.PanelGap
	side = &panel{
		title:  "Side view",
		hLabel: "X [m]",
		vLabel: "Z [m]",
		area:   image.Rect(sideLeft, borders.Top, sideLeft+cfg.PanelWidth, borders.Top+cfg.PanelHeight),
		hMin:   cfg.Bounds.XMin,
		hMax:   cfg.Bounds.XMax,
		vMin:   cfg.Bounds.ZMin,
		vMax:   cfg.Bounds.ZMax,
	}

	return top, side
}

// summary is the data shown in the information bar.
type summary struct {
	Points     int
	PathLength float64
	Start, End *time.Time
	FinalError float64 // horizontal distance between the last pose and the target
}

func summarize(points []pose.Pose, target pose.Pose) summary {
	last := points[len(points)-1]

	s := summary{
		Points:     len(points),
		PathLength: trajectory.PathLength(points),
		FinalError: pose.New(last.X, last.Y, 0).Distance(pose.New(target.X, target.Y, 0)),
	}

	for _, p := range points {
		if p.Timestamp == nil {
			continue
		}
		if s.Start == nil || p.Timestamp.Before(*s.Start) {
			s.Start = p.Timestamp
		}
		if s.End == nil || p.Timestamp.After(*s.End) {
			s.End = p.Timestamp
		}
	}

	return s
}
