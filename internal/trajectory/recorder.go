package trajectory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/storage"
)

const (
	maxBatchSize  = 100
	flushInterval = 500 * time.Millisecond
	queueSize     = 4096
	storeTimeout  = 5 * time.Second
)

// PointWriter persists batches of trajectory points.
type PointWriter interface {
	StorePoints(ctx context.Context, sessionID int64, points []storage.Point) error
}

// WithMaxBatchSize sets the maximum number of points stored within a single
// database transaction.
func WithMaxBatchSize(size int) func(*Recorder) {
	return func(r *Recorder) {
		if size > 0 {
			r.maxBatchSize = size
		}
	}
}

// WithFlushInterval sets how often pending points are written even if the batch
// is not full.
func WithFlushInterval(d time.Duration) func(*Recorder) {
	return func(r *Recorder) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// WithLogger sets the logger for the recorder
func WithLogger(logger *slog.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("component", "recorder"), slog.Int64("session", r.sessionID))
	}
}

// Recorder persists the trajectory of a flight session in the background. It is
// attached to a Log as an Observer. Persistence is best-effort: Observe never
// blocks, points that do not fit in the queue are dropped and counted, and store
// failures are logged.
type Recorder struct {
	store     PointWriter
	sessionID int64

	maxBatchSize  int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	queue  chan storage.Point
	seq    int64
	closed bool

	stored  atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	wg sync.WaitGroup
}

// NewRecorder creates a new Recorder writing into the given session and starts
// its background writer. Close must be called to flush pending points.
func NewRecorder(store PointWriter, sessionID int64, options ...func(*Recorder)) *Recorder {
	r := Recorder{
		store:         store,
		sessionID:     sessionID,
		maxBatchSize:  maxBatchSize,
		flushInterval: flushInterval,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		queue:         make(chan storage.Point, queueSize),
	}

	for _, option := range options {
		option(&r)
	}

	r.wg.Add(1)
	go r.run()

	return &r
}

// Observe queues p for persistence. It satisfies the Observer signature.
func (r *Recorder) Observe(p pose.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}

	point := storage.Point{
		Seq:        r.seq,
		RecordedAt: time.Now().UTC(),
		Pose:       p,
	}
	r.seq++

	select {
	case r.queue <- point:
	default:
		r.dropped.Add(1)
	}
}

// Close stops accepting points, flushes everything queued and waits for the
// background writer to finish.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()

	if n := r.failed.Load(); n > 0 {
		return fmt.Errorf("%d trajectory points could not be stored", n)
	}
	return nil
}

// Stats returns the number of stored, dropped and failed points.
func (r *Recorder) Stats() (stored, dropped, failed uint64) {
	return r.stored.Load(), r.dropped.Load(), r.failed.Load()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]storage.Point, 0, r.maxBatchSize)
	for {
		select {
		case point, ok := <-r.queue:
			if !ok {
				r.flush(batch)
				return
			}

			batch = append(batch, point)
			if len(batch) >= r.maxBatchSize {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			r.flush(batch)
			batch = batch[:0]
		}
	}
}

func (r *Recorder) flush(batch []storage.Point) {
	if len(batch) == 0 {
		return
	}

	for chunk := range slices.Chunk(batch, r.maxBatchSize) {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := r.store.StorePoints(ctx, r.sessionID, chunk)
		cancel()

		if err != nil {
			r.failed.Add(uint64(len(chunk)))
			r.logger.Error(fmt.Sprintf("storing trajectory points: %s", err.Error()), slog.Int("points", len(chunk)))
			continue
		}
		r.stored.Add(uint64(len(chunk)))
	}
}
