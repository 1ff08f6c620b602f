package sim

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/vehicle"
)

func TestVehicle_RecordsAndMoves(t *testing.T) {
	ctx := context.Background()
	v := New(WithStartPosition(pose.New(0.5, 0.5, 0)))

	steps := []func() error{
		func() error { return v.SetParameter(vehicle.ParamEstimator, vehicle.EstimatorKalman) },
		func() error { return v.SetExternalPosition(0.5, 0.5, 0) },
		func() error { return v.Takeoff(ctx, 0.5, 3) },
		func() error { return v.GoTo(ctx, 0.131, -1.032, 0.5, 0, 0.6, true) },
		func() error { return v.Land(ctx, 0, 2) },
		func() error { return v.Stop(ctx) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	want := []string{CmdParam, CmdExtPos, CmdTakeoff, CmdGoTo, CmdLand, CmdStop}
	if got := v.CallNames(); !slices.Equal(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}
	if got := v.CallNames(CmdExtPos, CmdParam); !slices.Equal(got, want[2:]) {
		t.Errorf("expected filtered calls %v, got %v", want[2:], got)
	}

	if got := v.Position(); !got.SamePosition(pose.New(0.131, -1.032, 0)) {
		t.Errorf("unexpected final position %s", got)
	}

	calls := v.Calls()
	if calls[0].Param != vehicle.ParamEstimator || calls[0].Value != "2" {
		t.Errorf("unexpected param call %+v", calls[0])
	}
}

func TestVehicle_RelativeGoTo(t *testing.T) {
	v := New(WithStartPosition(pose.New(1, 1, 0.5)))

	if err := v.GoTo(context.Background(), 0.5, -0.5, 0, 0, 1, false); err != nil {
		t.Fatalf("GoTo: %v", err)
	}
	if got := v.Position(); !got.SamePosition(pose.New(1.5, 0.5, 0.5)) {
		t.Errorf("unexpected position %s", got)
	}
}

func TestVehicle_Failure(t *testing.T) {
	boom := errors.New("link lost")
	v := New(WithFailure(CmdGoTo, boom))

	err := v.GoTo(context.Background(), 1, 1, 1, 0, 1, true)
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if got := v.Position(); !got.SamePosition(pose.Pose{}) {
		t.Errorf("failed command must not move the vehicle, got %s", got)
	}
}

func TestVehicle_Closed(t *testing.T) {
	v := New()
	if err := v.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !v.Closed() {
		t.Error("expected vehicle to be closed")
	}
	if err := v.Takeoff(context.Background(), 0.5, 3); !errors.Is(err, vehicle.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestVehicle_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New()
	if err := v.Land(ctx, 0, 2); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(v.Calls()) != 0 {
		t.Error("cancelled command must not be recorded")
	}
}

func TestFeed_PublishesPosition(t *testing.T) {
	v := New(WithStartPosition(pose.New(0.25, -0.75, 0.1)))
	f := NewFeed(v, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages := make(chan []byte, 1)
	go func() {
		_ = f.Subscribe(ctx, "ignored", func(data []byte) {
			select {
			case messages <- data:
			default:
			}
		})
	}()

	var msg feedMessage
	select {
	case data := <-messages:
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decoding feed message: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed produced no message")
	}

	if p := msg.Payload.Pose.Position; p.X != 0.25 || p.Y != -0.75 || p.Z != 0.1 {
		t.Errorf("unexpected position %+v", p)
	}
	if _, err := time.Parse(time.RFC3339Nano, msg.TS); err != nil {
		t.Errorf("unexpected timestamp %q: %v", msg.TS, err)
	}
}
