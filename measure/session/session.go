package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/cwbudde/spoke-tension/dsp/average"
	"github.com/cwbudde/spoke-tension/dsp/spectrum"
	"github.com/cwbudde/spoke-tension/internal/broadcast"
	"github.com/cwbudde/spoke-tension/measure/sampler"
	"github.com/cwbudde/spoke-tension/measure/tension"
	"github.com/cwbudde/spoke-tension/stats/peak"
)

// Sampler is the capture loop a Session drives. [*sampler.Sampler]
// implements it.
type Sampler interface {
	Start(ctx context.Context, bounds spectrum.Bounds) error
	Stop() error
	Subscribe(fn func(sampler.Event)) (unsubscribe func())
}

// state is idle or *capturing. Only Start creates a capturing value and
// only Stop or a device loss replaces it.
type state interface{ state() State }

type idle struct{}

func (idle) state() State { return StateIdle }

type capturing struct {
	id     string
	cfg    Config
	bounds spectrum.Bounds
	avg    *average.Averager
}

func (*capturing) state() State { return StateCapturing }

// Session runs measurements. Methods are safe for concurrent use, except
// that Start, Stop and Configure must not be called from a subscriber.
type Session struct {
	sampler Sampler
	logger  *slog.Logger
	newID   func() string
	hub     broadcast.Hub[Event]

	// op serialises lifecycle calls; mu guards cfg and st and is the only
	// lock taken on the capture goroutine.
	op  sync.Mutex
	mu  sync.Mutex
	cfg Config
	st  state

	unsubscribe func()
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l.With("component", "session")
		}
	}
}

// WithRunIDs replaces the run identifier generator.
func WithRunIDs(fn func() string) Option {
	return func(s *Session) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New returns an idle session driving smp.
func New(smp Sampler, cfg Config, opts ...Option) (*Session, error) {
	if smp == nil {
		return nil, errors.New("session: sampler must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		sampler: smp,
		logger:  slog.New(slog.DiscardHandler),
		newID:   uuid.NewString,
		cfg:     cfg,
		st:      idle{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.unsubscribe = smp.Subscribe(s.handle)
	return s, nil
}

// Close stops any capture and detaches from the sampler.
func (s *Session) Close() error {
	err := s.Stop()
	s.unsubscribe()
	return err
}

// Subscribe registers fn for updates, errors and status changes. Events are
// delivered in order on the goroutine that produced them.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.hub.Subscribe(fn)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.state()
}

// RunID returns the identifier of the active run, or "" when idle.
func (s *Session) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.st.(*capturing); ok {
		return c.id
	}
	return ""
}

// Config returns the current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Window returns the frequency window of the active run, or the one the
// current configuration would use.
func (s *Session) Window() (spectrum.Bounds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.st.(*capturing); ok {
		return c.bounds, nil
	}
	return s.cfg.Bounds()
}

// Configure replaces the configuration. It fails with [ErrCapturing] while a
// run is active.
func (s *Session) Configure(cfg Config) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.(*capturing); ok {
		return ErrCapturing
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// Start begins a run with the current configuration. An active run is
// stopped first. Capture failures leave the session idle, are returned, and
// are published as an [Error] event.
func (s *Session) Start(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	if err := s.stopLocked(); err != nil {
		s.logger.Warn("stop previous run failed", "error", err)
	}

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	bounds, err := cfg.Bounds()
	if err != nil {
		return err
	}

	run := &capturing{
		id:     s.newID(),
		cfg:    cfg,
		bounds: bounds,
		avg:    average.New(cfg.AveragingWindow),
	}

	// The run must be visible before the first frame can arrive.
	s.mu.Lock()
	s.st = run
	s.mu.Unlock()

	if err := s.sampler.Start(ctx, bounds); err != nil {
		s.mu.Lock()
		if s.st == state(run) {
			s.st = idle{}
		}
		s.mu.Unlock()

		if errors.Is(err, sampler.ErrCaptureUnavailable) {
			s.hub.Publish(Event{Err: &Error{
				Kind:    KindCaptureUnavailable,
				RunID:   run.id,
				Message: err.Error(),
				Err:     err,
			}})
		}
		return fmt.Errorf("start capture: %w", err)
	}

	s.logger.Info("run started",
		"run_id", run.id,
		"low_hz", bounds.LowHz,
		"high_hz", bounds.HighHz,
		"window", cfg.AveragingWindow,
	)
	s.hub.Publish(Event{Status: &Status{State: StateCapturing, RunID: run.id, Window: bounds}})
	return nil
}

// Stop ends the active run. It is a no-op when idle. No update is published
// after Stop returns.
func (s *Session) Stop() error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	s.mu.Lock()
	run, ok := s.st.(*capturing)
	s.st = idle{}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	// Called without mu: the capture goroutine may be waiting on it.
	err := s.sampler.Stop()
	run.avg.Reset()

	s.logger.Info("run stopped", "run_id", run.id)
	s.hub.Publish(Event{Status: &Status{State: StateIdle, RunID: run.id, Window: run.bounds}})
	if err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	return nil
}

// handle runs on the sampler's capture goroutine.
func (s *Session) handle(ev sampler.Event) {
	switch {
	case ev.Frame != nil:
		if u, ok := s.process(*ev.Frame); ok {
			s.hub.Publish(Event{Update: u})
		}
	case ev.Err != nil:
		s.fail(ev.Err)
	}
}

func (s *Session) process(frame spectrum.Frame) (*Update, bool) {
	s.mu.Lock()
	run, ok := s.st.(*capturing)
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	run.avg.Add(frame)
	avg := run.avg.Output()
	frames := run.avg.Len()
	mismatches := run.avg.Mismatches()
	s.mu.Unlock()

	reading := peak.Analyze(avg)
	cfg := run.cfg
	t := tension.FromFrequency(reading.FrequencyHz, cfg.SpokeMassKg, cfg.SpokeLengthM)

	return &Update{
		RunID:            run.id,
		TimestampMs:      frame.TimestampMs,
		TensionNewton:    t.Newton(),
		TensionKgf:       t.Kgf(),
		PeakFrequencyHz:  reading.FrequencyHz,
		PeakAmplitudeDB:  reading.AmplitudeDB,
		ReliabilityScore: reading.Score,
		IsReliable:       reading.Reliable(cfg.ReliabilityThreshold),
		Frames:           frames,
		ShapeMismatches:  mismatches,
		Spectrum:         avg,
		TensionSpectrum:  tension.ProjectSpectrum(avg, cfg.SpokeMassKg, cfg.SpokeLengthM),
	}, true
}

// fail handles asynchronous sampler errors. Acquisition failures are
// reported by Start itself.
func (s *Session) fail(cerr *sampler.CaptureError) {
	if cerr.Kind != sampler.KindDeviceLost {
		return
	}

	s.mu.Lock()
	run, ok := s.st.(*capturing)
	if ok {
		s.st = idle{}
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	run.avg.Reset()
	s.logger.Error("run aborted", "run_id", run.id, "error", cerr)
	s.hub.Publish(Event{Err: &Error{
		Kind:    KindDeviceLost,
		RunID:   run.id,
		Message: cerr.Error(),
		Err:     cerr,
	}})
	s.hub.Publish(Event{Status: &Status{State: StateIdle, RunID: run.id, Window: run.bounds}})
}
