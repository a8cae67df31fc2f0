package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
	"github.com/cwbudde/spoke-tension/internal/broadcast"
)

// Frame is an alias kept so callers only import this package for events.
type Frame = spectrum.Frame

// Sampler drives one capture loop at a time.
type Sampler struct {
	open Opener
	cfg  config
	hub  broadcast.Hub[Event]

	// mu serialises Start and Stop; the capture goroutine never takes it.
	mu  sync.Mutex
	cur atomic.Pointer[run]
}

type run struct {
	src    Source
	bounds spectrum.Bounds
	cancel context.CancelFunc
	done   chan struct{}

	releaseOnce sync.Once
	releaseErr  error
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *run) release() error {
	r.releaseOnce.Do(func() {
		r.releaseErr = r.src.Close()
	})
	return r.releaseErr
}

// New returns a stopped Sampler that acquires sources through open.
func New(open Opener, opts ...Option) *Sampler {
	return &Sampler{
		open: open,
		cfg:  applyOptions(opts),
	}
}

// Subscribe registers fn for frames and errors.
func (s *Sampler) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.hub.Subscribe(fn)
}

// Running reports whether a capture loop is active.
func (s *Sampler) Running() bool {
	r := s.cur.Load()
	return r != nil && !r.finished()
}

// Bounds returns the window of the active capture.
func (s *Sampler) Bounds() (spectrum.Bounds, bool) {
	r := s.cur.Load()
	if r == nil || r.finished() {
		return spectrum.Bounds{}, false
	}
	return r.bounds, true
}

// Start acquires a source and begins emitting frames restricted to bounds.
// A running capture is stopped, and its source closed, before the new
// source is acquired.
func (s *Sampler) Start(ctx context.Context, bounds spectrum.Bounds) error {
	if err := bounds.Validate(); err != nil {
		return err
	}
	if s.open == nil {
		return s.unavailable(errors.New("no source opener configured"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stopLocked(); err != nil {
		s.cfg.logger.Warn("release previous capture failed", "error", err)
	}

	src, err := s.open(ctx)
	if err != nil {
		return s.unavailable(err)
	}
	if src.TransformSize() <= 0 || src.SampleRate() <= 0 {
		_ = src.Close()
		return s.unavailable(fmt.Errorf("invalid source geometry: rate=%d bins=%d", src.SampleRate(), src.TransformSize()))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		src:    src,
		bounds: bounds,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.cur.Store(r)

	s.cfg.logger.Info("capture started",
		"low_hz", bounds.LowHz,
		"high_hz", bounds.HighHz,
		"sample_rate", src.SampleRate(),
		"bins", src.TransformSize(),
		"resolution_hz", spectrum.Resolution(src.SampleRate(), src.TransformSize()),
		"interval", s.cfg.interval,
	)

	go s.loop(runCtx, r)
	return nil
}

// Stop halts the capture loop and releases the source. It is a no-op when
// stopped. No frame is delivered after Stop returns.
func (s *Sampler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Sampler) stopLocked() error {
	r := s.cur.Swap(nil)
	if r == nil {
		return nil
	}

	r.cancel()
	<-r.done
	err := r.release()

	s.cfg.logger.Info("capture stopped")
	if err != nil {
		return fmt.Errorf("release capture source: %w", err)
	}
	return nil
}

func (s *Sampler) loop(ctx context.Context, r *run) {
	defer close(r.done)

	ticker := s.cfg.newTicker(s.cfg.interval)
	defer ticker.Stop()

	full := make([]float64, r.src.TransformSize())
	rate := r.src.SampleRate()
	expected := 0

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			if ctx.Err() != nil {
				return
			}

			if err := r.src.ReadSpectrum(full); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.deviceLost(r, err)
				return
			}

			// A tick that raced Stop is discarded.
			if ctx.Err() != nil {
				return
			}

			bins := spectrum.Bounded(make([]spectrum.Bin, 0, expected), full, rate, r.bounds)
			expected = len(bins)

			s.hub.Publish(Event{Frame: &Frame{
				Bins:        bins,
				TimestampMs: now.Sub(s.cfg.origin).Milliseconds(),
			}})
		}
	}
}

// unavailable publishes and returns a failed acquisition.
func (s *Sampler) unavailable(cause error) error {
	cerr := &CaptureError{Kind: KindCaptureUnavailable, Err: cause}
	s.cfg.logger.Error("capture unavailable", "error", cause)
	s.hub.Publish(Event{Err: cerr})
	return cerr
}

func (s *Sampler) deviceLost(r *run, cause error) {
	if err := r.release(); err != nil {
		s.cfg.logger.Warn("release lost capture failed", "error", err)
	}
	s.cfg.logger.Error("capture device lost", "error", cause)
	s.hub.Publish(Event{Err: &CaptureError{Kind: KindDeviceLost, Err: cause}})
}
