// Package bridge implements vehicle.Vehicle on top of an external radio bridge
// process. The bridge owns the radio link; this package drives it through a
// newline-delimited text protocol on the process' stdin and stdout.
//
// After start-up the bridge prints "ready" once the link to the vehicle is up.
// Motion commands are answered with "ok" or "err <reason>", in order. External
// position and parameter commands are not answered. Anything written on stderr
// is logged as a warning.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/vehicle"
)

const (
	// DefaultRuntime is the bridge binary looked up on PATH
	DefaultRuntime = "cfbridge"

	DefaultCommandTimeout = 10 * time.Second
	DefaultConnectTimeout = 10 * time.Second

	shutdownGrace = 2 * time.Second
	replyBuffer   = 16
)

// WithLogger sets the logger for the bridge
func WithLogger(logger *slog.Logger) func(*Bridge) {
	return func(b *Bridge) {
		b.logger = logger.With(slog.String("vehicle", b.uri))
	}
}

// WithRuntime sets the bridge binary name or path
func WithRuntime(runtime string) func(*Bridge) {
	return func(b *Bridge) {
		if runtime != "" {
			b.runtime = runtime
		}
	}
}

// WithArgs sets extra arguments passed to the bridge before the vehicle URI
func WithArgs(args ...string) func(*Bridge) {
	return func(b *Bridge) {
		b.args = args
	}
}

// WithCommandTimeout bounds how long a motion command waits for its reply
func WithCommandTimeout(d time.Duration) func(*Bridge) {
	return func(b *Bridge) {
		if d > 0 {
			b.commandTimeout = d
		}
	}
}

// WithConnectTimeout bounds how long Connect waits for the bridge to report ready
func WithConnectTimeout(d time.Duration) func(*Bridge) {
	return func(b *Bridge) {
		if d > 0 {
			b.connectTimeout = d
		}
	}
}

// Bridge is a vehicle connected through a bridge process.
type Bridge struct {
	uri     string
	runtime string
	args    []string

	commandTimeout time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
	replies   chan reply
	done      chan struct{}
	exitErr   error

	writeMu sync.Mutex
	cmdMu   sync.Mutex
	stale   int // replies owed to commands that gave up waiting, guarded by cmdMu

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ vehicle.Vehicle = (*Bridge)(nil)

// Connect starts the bridge for the vehicle at uri and waits until it reports
// the link is up. Any failure is returned as a *vehicle.ConnectError.
func Connect(ctx context.Context, uri string, options ...func(*Bridge)) (*Bridge, error) {
	b := Bridge{
		uri:            uri,
		runtime:        DefaultRuntime,
		commandTimeout: DefaultCommandTimeout,
		connectTimeout: DefaultConnectTimeout,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		ready:          make(chan struct{}),
		replies:        make(chan reply, replyBuffer),
		done:           make(chan struct{}),
	}

	for _, option := range options {
		option(&b)
	}

	if err := b.start(); err != nil {
		return nil, vehicle.NewConnectError(uri, err)
	}

	timer := time.NewTimer(b.connectTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-b.ready:
		b.logger.Info("bridge is ready")
		return &b, nil
	case <-b.done:
		err = fmt.Errorf("bridge exited before the link was up: %w", b.exitError())
	case <-timer.C:
		err = fmt.Errorf("bridge not ready after %s", b.connectTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}

	_ = b.Close()
	return nil, vehicle.NewConnectError(uri, err)
}

func (b *Bridge) start() error {
	binPath, err := FindRuntime(b.runtime)
	if err != nil {
		return err
	}

	var ctx context.Context
	ctx, b.cancel = context.WithCancel(context.Background())

	args := append(append([]string{}, b.args...), b.uri)
	b.cmd = exec.CommandContext(ctx, binPath, args...)

	if b.stdin, err = b.cmd.StdinPipe(); err != nil {
		b.cancel()
		return fmt.Errorf("error creating stdin pipe: %w", err)
	}

	stdout, err := b.cmd.StdoutPipe()
	if err != nil {
		b.cancel()
		return fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := b.cmd.StderrPipe()
	if err != nil {
		b.cancel()
		return fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = b.cmd.Start(); err != nil {
		b.cancel()
		return fmt.Errorf("error starting command: %w", err)
	}

	b.logger.Info("bridge started", slog.String("runtime", binPath), slog.Int("pid", b.cmd.Process.Pid))

	go func() {
		defer close(b.done)

		pipes := make(chan error, 2) // expects two results from two goroutines

		go b.handleStdout(stdout, pipes)
		go b.handleStderr(stderr, pipes)

		var errs []error
		for i := 0; i < cap(pipes); i++ {
			if err := <-pipes; err != nil {
				errs = append(errs, err)
			}
		}

		// Wait must only be called after all reads from the pipes have completed
		if err := b.cmd.Wait(); err != nil && ctx.Err() == nil {
			errs = append(errs, fmt.Errorf("command exited with error: %w", err))
		}

		b.exitErr = errors.Join(errs...)
		if b.exitErr != nil && !b.closed.Load() {
			b.logger.Error(b.exitErr.Error())
		}
		b.logger.Info("bridge stopped")
	}()

	return nil
}

func (b *Bridge) exitError() error {
	if b.exitErr == nil {
		return io.EOF
	}
	return b.exitErr
}

// handleStdout dispatches replies to waiting commands and detects readiness.
func (b *Bridge) handleStdout(stdout io.Reader, done chan<- error) {
	defer close(b.replies)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		if line == lineReady {
			b.readyOnce.Do(func() { close(b.ready) })
			continue
		}

		if r, ok := parseReply(line); ok {
			select {
			case b.replies <- r:
			default:
				b.logger.Warn("dropping unclaimed bridge reply", slog.String("line", line))
			}
			continue
		}

		b.logger.Debug(fmt.Sprintf("bridge >> %s", line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stdout: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleStderr reads from stderr and logs every line as a warning.
func (b *Bridge) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		b.logger.Warn(fmt.Sprintf("bridge >> %s", line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

func (b *Bridge) write(line string) error {
	if b.closed.Load() {
		return vehicle.ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if _, err := io.WriteString(b.stdin, line); err != nil {
		return fmt.Errorf("%w: writing command: %w", ErrBrokenPipe, err)
	}
	return nil
}

// send writes a command that is not answered.
func (b *Bridge) send(line string) error {
	return b.write(line)
}

// call writes a command and waits for its reply.
func (b *Bridge) call(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.cmdMu.Lock()
	defer b.cmdMu.Unlock()

	if err := b.write(line); err != nil {
		return err
	}

	name := strings.Fields(line)[0]

	timer := time.NewTimer(b.commandTimeout)
	defer timer.Stop()

	for {
		select {
		case r, ok := <-b.replies:
			if !ok {
				return fmt.Errorf("%s: %w", name, vehicle.ErrClosed)
			}
			if b.stale > 0 {
				b.stale--
				continue
			}
			if !r.ok {
				return NewCommandError(name, r.reason)
			}
			return nil

		case <-timer.C:
			b.stale++
			return fmt.Errorf("%s: %w after %s", name, ErrTimeout, b.commandTimeout)

		case <-ctx.Done():
			b.stale++
			return ctx.Err()
		}
	}
}

func (b *Bridge) SetExternalPosition(x, y, z float64) error {
	return b.send(formatCommand(cmdExtPos, x, y, z))
}

func (b *Bridge) SetParameter(name, value string) error {
	return b.send(formatCommand(cmdParam, name, value))
}

func (b *Bridge) Takeoff(ctx context.Context, height, duration float64) error {
	return b.call(ctx, formatCommand(cmdTakeoff, height, duration))
}

func (b *Bridge) GoTo(ctx context.Context, x, y, z, yaw, speed float64, absolute bool) error {
	return b.call(ctx, formatCommand(cmdGoTo, x, y, z, yaw, speed, absolute))
}

func (b *Bridge) Land(ctx context.Context, height, duration float64) error {
	return b.call(ctx, formatCommand(cmdLand, height, duration))
}

func (b *Bridge) Stop(ctx context.Context) error {
	return b.call(ctx, formatCommand(cmdStop))
}

// Close asks the bridge to quit, closes its stdin and waits for it to exit. The
// process is killed if it does not exit within a short grace period.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)

		// A write blocked on a full pipe holds writeMu until the process dies,
		// so the quit command is sent without holding up the shutdown.
		quit := make(chan error, 1)
		go func() {
			b.writeMu.Lock()
			defer b.writeMu.Unlock()
			_, _ = io.WriteString(b.stdin, formatCommand(cmdQuit))
			quit <- b.stdin.Close()
		}()

		grace := time.NewTimer(shutdownGrace)
		defer grace.Stop()

		var stdinErr error
		select {
		case stdinErr = <-quit:
			select {
			case <-b.done:
			case <-grace.C:
				b.logger.Warn("bridge did not exit in time, killing it")
			}
		case <-grace.C:
			b.logger.Warn("bridge is not reading commands, killing it")
		}

		b.cancel()
		<-b.done

		var errs []error
		if stdinErr != nil && !errors.Is(stdinErr, fs.ErrClosed) {
			errs = append(errs, fmt.Errorf("closing stdin: %w", stdinErr))
		}
		if b.exitErr != nil {
			errs = append(errs, b.exitErr)
		}
		b.closeErr = errors.Join(errs...)
	})

	return b.closeErr
}
