//go:build !windows

package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/vehicle"
)

const helperModeEnv = "BRIDGE_HELPER_MODE"

// TestHelperProcess is not a real test. It is re-executed by the tests below to
// stand in for the bridge binary.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperModeEnv)
	if mode == "" {
		return
	}
	defer os.Exit(0)

	switch mode {
	case "exit":
		fmt.Fprintln(os.Stderr, "no radio found")
		os.Exit(3)
	case "silent":
		time.Sleep(time.Minute)
		return
	case "stalled":
		fmt.Println(lineReady)
		time.Sleep(time.Minute) // stdin is never read
		return
	}

	uri := os.Args[len(os.Args)-1]
	fmt.Fprintf(os.Stderr, "connecting to %s\n", uri)
	fmt.Println("booting")
	fmt.Println(lineReady)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case cmdQuit:
			return
		case cmdExtPos:
			if len(fields) != 4 {
				fmt.Fprintln(os.Stderr, "malformed extpos")
			}
		case cmdParam:
			if len(fields) != 3 {
				fmt.Fprintln(os.Stderr, "malformed param")
			}
		case cmdTakeoff:
			if mode == "slow" {
				continue // never answered
			}
			fmt.Println(lineOK)
		case cmdGoTo:
			if len(fields) != 7 || fields[6] != "abs" {
				fmt.Println("err malformed goto")
				continue
			}
			if mode == "fail-goto" {
				fmt.Println("err out of bounds")
				continue
			}
			fmt.Println(lineOK)
		case cmdLand, cmdStop:
			fmt.Println(lineOK)
		default:
			fmt.Printf("err unknown command %s\n", fields[0])
		}
	}
}

func connectHelper(t *testing.T, mode string, options ...func(*Bridge)) (*Bridge, error) {
	t.Helper()
	t.Setenv(helperModeEnv, mode)

	options = append([]func(*Bridge){
		WithRuntime(os.Args[0]),
		WithArgs("-test.run=TestHelperProcess", "--"),
		WithConnectTimeout(5 * time.Second),
		WithCommandTimeout(5 * time.Second),
	}, options...)

	return Connect(context.Background(), "radio://0/80/2M/E7E7E7E7E9", options...)
}

func TestBridge_FlightCommands(t *testing.T) {
	b, err := connectHelper(t, "normal")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx := context.Background()
	steps := []struct {
		name string
		fn   func() error
	}{
		{"param", func() error { return b.SetParameter(vehicle.ParamEstimator, vehicle.EstimatorKalman) }},
		{"extpos", func() error { return b.SetExternalPosition(0.1, -0.2, 0.3) }},
		{"takeoff", func() error { return b.Takeoff(ctx, 0.5, 3) }},
		{"goto", func() error { return b.GoTo(ctx, 0.131, -1.032, 0.5, 0, 0.6, true) }},
		{"land", func() error { return b.Land(ctx, 0, 2) }},
		{"stop", func() error { return b.Stop(ctx) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
	}

	if err = b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err = b.Stop(ctx); !errors.Is(err, vehicle.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
	if err = b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestBridge_CloseWithBlockedWrite(t *testing.T) {
	b, err := connectHelper(t, "stalled")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// fill the pipe until a write blocks
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			if err := b.SetExternalPosition(0.1, -0.2, 0.3); err != nil {
				return
			}
		}
	}()
	time.Sleep(200 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = b.Close()
	}()

	select {
	case <-closed:
	case <-time.After(shutdownGrace + 5*time.Second):
		t.Fatal("Close blocked behind a pending write")
	}

	select {
	case <-writerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("pending write was not released after Close")
	}

	if err = b.SetExternalPosition(0, 0, 0); !errors.Is(err, vehicle.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestBridge_CommandError(t *testing.T) {
	b, err := connectHelper(t, "fail-goto")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Close()

	err = b.GoTo(context.Background(), 5, 5, 0.5, 0, 0.6, true)

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.Command != cmdGoTo || cmdErr.Reason != "out of bounds" {
		t.Errorf("unexpected command error %+v", cmdErr)
	}

	// the link stays usable after a rejected command
	if err = b.Land(context.Background(), 0, 2); err != nil {
		t.Errorf("Land after rejected GoTo: %v", err)
	}
}

func TestBridge_CommandTimeout(t *testing.T) {
	b, err := connectHelper(t, "slow", WithCommandTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Close()

	if err = b.Takeoff(context.Background(), 0.5, 3); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestBridge_ConnectErrors(t *testing.T) {
	testCases := []struct {
		name    string
		mode    string
		options []func(*Bridge)
	}{
		{"process exits", "exit", nil},
		{"never ready", "silent", []func(*Bridge){WithConnectTimeout(100 * time.Millisecond)}},
		{"missing runtime", "normal", []func(*Bridge){WithRuntime("no-such-bridge-binary")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := connectHelper(t, tc.mode, tc.options...)
			if err == nil {
				b.Close()
				t.Fatal("expected connect error")
			}

			var connErr *vehicle.ConnectError
			if !errors.As(err, &connErr) {
				t.Fatalf("expected ConnectError, got %T: %v", err, err)
			}
			if connErr.URI != "radio://0/80/2M/E7E7E7E7E9" {
				t.Errorf("unexpected URI %q", connErr.URI)
			}
		})
	}
}

func TestFormatCommand(t *testing.T) {
	testCases := []struct {
		name string
		got  string
		want string
	}{
		{"goto", formatCommand(cmdGoTo, 0.131, -1.032, 0.5, 0.0, 0.6, true), "goto 0.131 -1.032 0.5 0 0.6 abs\n"},
		{"relative", formatCommand(cmdGoTo, 1.0, 0.0, 0.0, 0.0, 1.0, false), "goto 1 0 0 0 1 rel\n"},
		{"param", formatCommand(cmdParam, "kalman.resetEstimation", "1"), "param kalman.resetEstimation 1\n"},
		{"stop", formatCommand(cmdStop), "stop\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, tc.got)
			}
		})
	}
}

func TestParseReply(t *testing.T) {
	testCases := []struct {
		line   string
		isRep  bool
		ok     bool
		reason string
	}{
		{"ok", true, true, ""},
		{"err", true, false, "unknown error"},
		{"err  link lost ", true, false, "link lost"},
		{"ready", false, false, ""},
		{"battery 3.9V", false, false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			r, isRep := parseReply(strings.TrimSpace(tc.line))
			if isRep != tc.isRep || r.ok != tc.ok || r.reason != tc.reason {
				t.Errorf("unexpected reply %+v (%v)", r, isRep)
			}
		})
	}
}
