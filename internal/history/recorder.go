package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/spoke-tension/measure/session"
)

const recorderQueueSize = 64

// Recorder stores the first reliable reading of each stable stretch: a row is
// written when an update turns reliable and not again until the run goes
// unreliable or a new run begins. Inserts happen on a background goroutine so
// Observe never blocks the capture loop.
type Recorder struct {
	store  *Store
	config func() session.Config
	logger *slog.Logger
	now    func() time.Time

	queue chan Reading
	done  chan struct{}

	mu       sync.Mutex
	closed   bool
	runID    string
	reliable bool

	dropped atomic.Uint64
}

// NewRecorder starts a recorder writing to store. config supplies the spoke
// parameters attached to each row.
func NewRecorder(store *Store, config func() session.Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Recorder{
		store:  store,
		config: config,
		logger: logger.With("component", "history"),
		now:    time.Now,
		queue:  make(chan Reading, recorderQueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Observe is a session subscriber.
func (r *Recorder) Observe(ev session.Event) {
	switch {
	case ev.Status != nil:
		r.mu.Lock()
		r.runID = ev.Status.RunID
		r.reliable = false
		r.mu.Unlock()
	case ev.Update != nil:
		r.update(ev.Update)
	}
}

func (r *Recorder) update(u *session.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.RunID != r.runID {
		r.runID = u.RunID
		r.reliable = false
	}
	rising := u.IsReliable && !r.reliable
	r.reliable = u.IsReliable
	if !rising || r.closed {
		return
	}

	reading := Reading{
		RunID:            u.RunID,
		RecordedAt:       r.now(),
		TensionNewton:    u.TensionNewton,
		TensionKgf:       u.TensionKgf,
		PeakFrequencyHz:  u.PeakFrequencyHz,
		PeakAmplitudeDB:  u.PeakAmplitudeDB,
		ReliabilityScore: u.ReliabilityScore,
	}
	if r.config != nil {
		cfg := r.config()
		reading.SpokeLengthM = cfg.SpokeLengthM
		reading.SpokeMassKg = cfg.SpokeMassKg
	}

	select {
	case r.queue <- reading:
	default:
		r.dropped.Add(1)
		r.logger.Warn("history queue full, reading dropped", "run_id", u.RunID)
	}
}

// Dropped returns the number of readings discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close flushes queued readings and stops the writer. It does not close the
// store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for reading := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		id, err := r.store.Insert(ctx, reading)
		cancel()
		if err != nil {
			r.logger.Error("record reading failed", "run_id", reading.RunID, "error", err)
			continue
		}
		r.logger.Debug("reading recorded",
			"id", id,
			"run_id", reading.RunID,
			"tension_kgf", reading.TensionKgf,
		)
	}
}
