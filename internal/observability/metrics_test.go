package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/roman-kulish/mocap-flight/internal/flight"
	"github.com/roman-kulish/mocap-flight/internal/posestream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollector_MessagesAndPoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveMessage(posestream.ResultAccepted)
	c.ObserveMessage(posestream.ResultAccepted)
	c.ObserveMessage(posestream.ResultStale)
	c.ObserveMessage(posestream.ResultMalformed)
	c.ObserveInjectionError()

	if got := testutil.ToFloat64(c.Messages.WithLabelValues(posestream.ResultAccepted)); got != 2 {
		t.Errorf("expected 2 accepted, got %v", got)
	}
	if got := testutil.ToFloat64(c.Messages.WithLabelValues(posestream.ResultStale)); got != 1 {
		t.Errorf("expected 1 stale, got %v", got)
	}
	if got := testutil.ToFloat64(c.TrajectoryPoints); got != 2 {
		t.Errorf("expected 2 trajectory points, got %v", got)
	}
	if got := testutil.ToFloat64(c.InjectionErrors); got != 1 {
		t.Errorf("expected 1 injection error, got %v", got)
	}
}

func TestCollector_Phases(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.PhaseStarted(flight.Navigating)
	c.PhaseFinished(flight.Navigating, 4*time.Second, nil)
	c.PhaseStarted(flight.Hovering)

	if got := testutil.ToFloat64(c.FlightPhase); got != float64(flight.Hovering) {
		t.Errorf("expected phase gauge %d, got %v", flight.Hovering, got)
	}
	if got := testutil.CollectAndCount(c.PhaseDurations, "flight_phase_duration_seconds"); got != 1 {
		t.Errorf("expected one phase histogram series, got %d", got)
	}

	expected := `
# HELP mocap_injection_errors_total External position updates the vehicle failed to accept.
# TYPE mocap_injection_errors_total counter
mocap_injection_errors_total 0
`
	if err = testutil.GatherAndCompare(reg, strings.NewReader(expected), "mocap_injection_errors_total"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestCollector_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	first.ObserveMessage(posestream.ResultAccepted)
	if got := testutil.ToFloat64(second.Messages.WithLabelValues(posestream.ResultAccepted)); got != 1 {
		t.Errorf("expected collectors to share series, got %v", got)
	}
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveMessage(posestream.ResultAccepted)
	c.ObserveInjectionError()
	c.PhaseStarted(flight.TakingOff)
	c.PhaseFinished(flight.TakingOff, time.Second, errors.New("boom"))
}

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveMessage(posestream.ResultAccepted)

	srv, err := StartMetricsServer("127.0.0.1:0", c.Handler(), discardLogger())
	if err != nil {
		t.Fatalf("StartMetricsServer: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("scraping metrics: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}

	if !strings.Contains(string(body), `mocap_messages_total{result="accepted"} 1`) {
		t.Errorf("metrics output missing accepted counter:\n%s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err = srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
