package sampler

import (
	"log/slog"
	"time"
)

// DefaultInterval approximates a 60 Hz display refresh.
const DefaultInterval = time.Second / 60

// Ticker delivers scheduler ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTicker returns a Ticker backed by [time.Ticker].
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Option configures a Sampler.
type Option func(*config)

type config struct {
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	origin    time.Time
	logger    *slog.Logger
}

func applyOptions(opts []Option) config {
	cfg := config{
		interval:  DefaultInterval,
		newTicker: NewTicker,
		origin:    time.Now(),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithRate sets the polling rate in ticks per second.
func WithRate(hz float64) Option {
	return func(c *config) {
		if hz > 0 {
			c.interval = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithTicker replaces the tick source.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(c *config) {
		if fn != nil {
			c.newTicker = fn
		}
	}
}

// WithOrigin sets the instant frame timestamps are measured from.
func WithOrigin(t time.Time) Option {
	return func(c *config) {
		c.origin = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l.With("component", "sampler")
		}
	}
}
