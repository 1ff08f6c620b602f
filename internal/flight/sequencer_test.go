package flight

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/vehicle/sim"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.TakeoffWait = time.Millisecond
	cfg.NavigateSettle = time.Millisecond
	cfg.HoverDuration = time.Millisecond
	cfg.LandWait = time.Millisecond
	return cfg
}

type phaseRecorder struct {
	mu       sync.Mutex
	started  []Phase
	finished []Phase
	failed   []Phase
}

func (r *phaseRecorder) PhaseStarted(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, p)
}

func (r *phaseRecorder) PhaseFinished(p Phase, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, p)
	if err != nil {
		r.failed = append(r.failed, p)
	}
}

func validSink() *pose.Sink {
	sink := pose.NewSink()
	sink.Write(pose.New(0.5, 0.5, 0))
	return sink
}

func TestSequencer_PhaseOrder(t *testing.T) {
	v := sim.New()
	rec := &phaseRecorder{}
	s := NewSequencer(fastConfig(), validSink(), v, WithPhaseObserver(rec))

	if s.Phase() != AwaitingPose {
		t.Fatalf("expected initial phase %s, got %s", AwaitingPose, s.Phase())
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !slices.Equal(rec.started, Phases) {
		t.Errorf("expected phases %v, got %v", Phases, rec.started)
	}
	if s.Phase() != Done {
		t.Errorf("expected final phase %s, got %s", Done, s.Phase())
	}

	wantCalls := []string{sim.CmdTakeoff, sim.CmdGoTo, sim.CmdLand, sim.CmdStop}
	if got := v.CallNames(); !slices.Equal(got, wantCalls) {
		t.Errorf("expected commands %v, got %v", wantCalls, got)
	}

	calls := v.Calls()
	if got := calls[0].Args; !slices.Equal(got, []float64{0.5, 3}) {
		t.Errorf("unexpected takeoff args %v", got)
	}
	if got := calls[1].Args; !slices.Equal(got, []float64{0.131, -1.032, 0.5, 0, 0.6, 0}) {
		t.Errorf("unexpected goto args %v", got)
	}
	if got := calls[2].Args; !slices.Equal(got, []float64{0, 2}) {
		t.Errorf("unexpected land args %v", got)
	}
}

func TestSequencer_MotionFailureAbortsFlight(t *testing.T) {
	testCases := []struct {
		name      string
		command   string
		phase     Phase
		wantCalls []string
	}{
		{"takeoff", sim.CmdTakeoff, TakingOff, []string{sim.CmdTakeoff}},
		{"navigate", sim.CmdGoTo, Navigating, []string{sim.CmdTakeoff, sim.CmdGoTo}},
		{"land", sim.CmdLand, Landing, []string{sim.CmdTakeoff, sim.CmdGoTo, sim.CmdLand}},
		{"stop", sim.CmdStop, Landing, []string{sim.CmdTakeoff, sim.CmdGoTo, sim.CmdLand, sim.CmdStop}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			boom := errors.New("link lost")
			v := sim.New(sim.WithFailure(tc.command, boom))
			rec := &phaseRecorder{}
			s := NewSequencer(fastConfig(), validSink(), v, WithPhaseObserver(rec))

			err := s.Run(context.Background())

			var phaseErr *PhaseError
			if !errors.As(err, &phaseErr) {
				t.Fatalf("expected PhaseError, got %v", err)
			}
			if phaseErr.Phase != tc.phase {
				t.Errorf("expected failure in %s, got %s", tc.phase, phaseErr.Phase)
			}
			if !errors.Is(err, boom) {
				t.Errorf("expected cause to be preserved, got %v", err)
			}

			if got := rec.started[len(rec.started)-1]; got != tc.phase {
				t.Errorf("a phase after %s was entered: %v", tc.phase, rec.started)
			}
			if !slices.Equal(rec.failed, []Phase{tc.phase}) {
				t.Errorf("expected only %s to fail, got %v", tc.phase, rec.failed)
			}
			if got := v.CallNames(); !slices.Equal(got, tc.wantCalls) {
				t.Errorf("expected commands %v, got %v", tc.wantCalls, got)
			}
		})
	}
}

func TestSequencer_BarrierHoldsOnZeroPose(t *testing.T) {
	v := sim.New()
	s := NewSequencer(fastConfig(), pose.NewSink(), v)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)

	var phaseErr *PhaseError
	if !errors.As(err, &phaseErr) || phaseErr.Phase != AwaitingPose {
		t.Fatalf("expected AwaitingPose failure, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if len(v.Calls()) != 0 {
		t.Errorf("no command may be issued before the first fix, got %v", v.CallNames())
	}
}

func TestSequencer_BarrierReleasesOnFirstFix(t *testing.T) {
	sink := pose.NewSink()
	v := sim.New()
	s := NewSequencer(fastConfig(), sink, v)

	go func() {
		time.Sleep(20 * time.Millisecond)
		sink.Write(pose.New(0, 0, 0)) // still the sentinel
		time.Sleep(20 * time.Millisecond)
		sink.Write(pose.New(0, 0, 0.01))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.CallNames()[0] != sim.CmdTakeoff {
		t.Errorf("expected takeoff after the first fix, got %v", v.CallNames())
	}
}

func TestSequencer_OriginIsFirstFix(t *testing.T) {
	sink := pose.NewSink()
	s := NewSequencer(fastConfig(), sink, sim.New())

	if _, ok := s.Origin(); ok {
		t.Fatal("expected no origin before the first fix")
	}

	fix := pose.New(-0.4, 0.3, 0.02)
	sink.Write(fix)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, ok := s.Origin()
	if !ok {
		t.Fatal("expected an origin after the flight")
	}
	if !got.SamePosition(fix) {
		t.Errorf("expected origin %s, got %s", fix, got)
	}
}

func TestSequencer_BarrierTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.BarrierTimeout = 10 * time.Millisecond

	s := NewSequencer(cfg, pose.NewSink(), sim.New())

	err := s.Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected barrier timeout, got %v", err)
	}
}

func TestSequencer_CancelledMidFlight(t *testing.T) {
	cfg := fastConfig()
	cfg.HoverDuration = time.Minute

	v := sim.New()
	rec := &phaseRecorder{}
	s := NewSequencer(cfg, validSink(), v, WithPhaseObserver(rec))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for s.Phase() != Hovering {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := s.Run(ctx)

	var phaseErr *PhaseError
	if !errors.As(err, &phaseErr) || phaseErr.Phase != Hovering {
		t.Fatalf("expected Hovering to be interrupted, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if slices.Contains(v.CallNames(), sim.CmdLand) {
		t.Error("landing must not start after cancellation")
	}
}

func TestSequencer_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	v := sim.New(sim.WithFailure(sim.CmdGoTo, errors.New("link lost")))
	s := NewSequencer(fastConfig(), validSink(), v, WithTracerProvider(tp))

	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected failure")
	}

	spans := sr.Ended()
	var names []string
	var root sdktrace.ReadOnlySpan
	for _, span := range spans {
		names = append(names, span.Name())
		if span.Name() == "flight" {
			root = span
		}
	}

	want := []string{"awaiting_pose", "taking_off", "navigating", "flight"}
	if !slices.Equal(names, want) {
		t.Fatalf("expected spans %v, got %v", want, names)
	}

	for _, span := range spans {
		if span.Name() == "flight" {
			continue
		}
		if span.Parent().SpanID() != root.SpanContext().SpanID() {
			t.Errorf("span %s is not a child of the flight span", span.Name())
		}
	}
	if len(spans[2].Events()) == 0 {
		t.Error("expected the failing phase span to record the error")
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero hover height", func(c *Config) { c.HoverHeight = 0 }, true},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"negative barrier timeout", func(c *Config) { c.BarrierTimeout = -time.Second }, true},
		{"zero speed", func(c *Config) { c.NavigateSpeed = 0 }, true},
		{"negative hover", func(c *Config) { c.HoverDuration = -time.Second }, true},
		{"zero waits", func(c *Config) { c.TakeoffWait, c.LandWait = 0, 0 }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("expected error %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPhase_String(t *testing.T) {
	want := []string{"awaiting_pose", "taking_off", "navigating", "hovering", "landing", "done"}
	for i, p := range Phases {
		if p.String() != want[i] {
			t.Errorf("expected %q, got %q", want[i], p.String())
		}
	}
	if Phase(42).String() != "unknown" {
		t.Error("expected unknown phase name")
	}
}
