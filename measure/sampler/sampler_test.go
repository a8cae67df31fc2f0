package sampler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

type fakeSource struct {
	id      int
	rate    int
	values  []float64
	journal *journal

	mu      sync.Mutex
	readErr error
	closes  int
}

func (f *fakeSource) SampleRate() int    { return f.rate }
func (f *fakeSource) TransformSize() int { return len(f.values) }

func (f *fakeSource) ReadSpectrum(dst []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return f.readErr
	}
	copy(dst, f.values)
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.journal.add("close %d", f.id)
	return nil
}

func (f *fakeSource) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

type fakeTicker struct {
	c chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               {}

// harness wires a Sampler to fake sources and manually driven tickers.
type harness struct {
	t       *testing.T
	origin  time.Time
	journal *journal
	sources []*fakeSource
	tickers chan *fakeTicker
	events  chan Event
	sampler *Sampler
	mu      sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		origin:  time.Now(),
		journal: &journal{},
		tickers: make(chan *fakeTicker, 8),
		events:  make(chan Event, 64),
	}

	open := func(context.Context) (Source, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		src := &fakeSource{
			id:      len(h.sources) + 1,
			rate:    8000,
			values:  []float64{-90, -80, -70, -10, -60, -50, -40, -30},
			journal: h.journal,
		}
		h.sources = append(h.sources, src)
		h.journal.add("open %d", src.id)
		return src, nil
	}

	newTicker := func(time.Duration) Ticker {
		ft := &fakeTicker{c: make(chan time.Time)}
		h.tickers <- ft
		return ft
	}

	h.sampler = New(open, WithTicker(newTicker), WithOrigin(h.origin))
	h.sampler.Subscribe(func(ev Event) { h.events <- ev })
	t.Cleanup(func() { _ = h.sampler.Stop() })
	return h
}

func (h *harness) source(i int) *fakeSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sources[i]
}

func (h *harness) ticker() *fakeTicker {
	h.t.Helper()
	select {
	case ft := <-h.tickers:
		return ft
	case <-time.After(time.Second):
		h.t.Fatal("capture loop did not create a ticker")
		return nil
	}
}

func (h *harness) tick(ft *fakeTicker, atMs int64) {
	h.t.Helper()
	select {
	case ft.c <- h.origin.Add(time.Duration(atMs) * time.Millisecond):
	case <-time.After(time.Second):
		h.t.Fatal("capture loop did not consume tick")
	}
}

func (h *harness) next() Event {
	h.t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(time.Second):
		h.t.Fatal("no event delivered")
		return Event{}
	}
}

func (h *harness) expectQuiet() {
	h.t.Helper()
	select {
	case ev := <-h.events:
		h.t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSamplerEmitsBoundedFrames(t *testing.T) {
	h := newHarness(t)

	// 8 bins at 8 kHz: 500 Hz per bin.
	if err := h.sampler.Start(context.Background(), spectrum.Bounds{LowHz: 1000, HighHz: 2000}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ft := h.ticker()

	h.tick(ft, 16)
	ev := h.next()
	if ev.Err != nil || ev.Frame == nil {
		t.Fatalf("event = %+v, want frame", ev)
	}

	want := []spectrum.Bin{
		{FrequencyHz: 1000, AmplitudeDB: -70},
		{FrequencyHz: 1500, AmplitudeDB: -10},
		{FrequencyHz: 2000, AmplitudeDB: -60},
	}
	if !slices.Equal(ev.Frame.Bins, want) {
		t.Fatalf("bins = %v, want %v", ev.Frame.Bins, want)
	}
	if ev.Frame.TimestampMs != 16 {
		t.Fatalf("timestamp = %d, want 16", ev.Frame.TimestampMs)
	}

	h.tick(ft, 33)
	if ev := h.next(); ev.Frame == nil || ev.Frame.TimestampMs != 33 {
		t.Fatalf("second event = %+v, want frame at 33 ms", ev)
	}

	if got, ok := h.sampler.Bounds(); !ok || got.LowHz != 1000 || got.HighHz != 2000 {
		t.Fatalf("Bounds() = %v, %v", got, ok)
	}
}

func TestSamplerFramesDoNotShareStorage(t *testing.T) {
	h := newHarness(t)
	if err := h.sampler.Start(context.Background(), spectrum.Unbounded); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ft := h.ticker()

	h.tick(ft, 0)
	first := h.next().Frame
	h.tick(ft, 16)
	second := h.next().Frame

	first.Bins[0].AmplitudeDB = 123
	if second.Bins[0].AmplitudeDB == 123 {
		t.Fatal("frames alias the same bin storage")
	}
}

func TestSamplerStartTwiceReleasesBeforeReacquire(t *testing.T) {
	h := newHarness(t)
	bounds := spectrum.Bounds{LowHz: 0, HighHz: 4000}

	if err := h.sampler.Start(context.Background(), bounds); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	h.ticker()

	if err := h.sampler.Start(context.Background(), bounds); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	h.ticker()

	want := []string{"open 1", "close 1", "open 2"}
	if got := h.journal.snapshot(); !slices.Equal(got, want) {
		t.Fatalf("journal = %v, want %v", got, want)
	}
	if !h.sampler.Running() {
		t.Fatal("sampler should be running")
	}

	if err := h.sampler.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.source(0).closeCount() != 1 || h.source(1).closeCount() != 1 {
		t.Fatalf("close counts = %d, %d, want 1, 1", h.source(0).closeCount(), h.source(1).closeCount())
	}
}

func TestSamplerNoFrameAfterStop(t *testing.T) {
	h := newHarness(t)
	if err := h.sampler.Start(context.Background(), spectrum.Unbounded); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ft := h.ticker()

	h.tick(ft, 16)
	h.next()

	if err := h.sampler.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.sampler.Running() {
		t.Fatal("Running() = true after Stop")
	}

	select {
	case ft.c <- h.origin.Add(time.Second):
		t.Fatal("tick consumed after Stop")
	case <-time.After(20 * time.Millisecond):
	}
	h.expectQuiet()
}

// gatedSource blocks in ReadSpectrum until release is closed.
type gatedSource struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	closes int
}

func (g *gatedSource) SampleRate() int    { return 8000 }
func (g *gatedSource) TransformSize() int { return 4 }

func (g *gatedSource) ReadSpectrum(dst []float64) error {
	g.entered <- struct{}{}
	<-g.release
	for i := range dst {
		dst[i] = -20
	}
	return nil
}

func (g *gatedSource) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes++
	return nil
}

func TestSamplerDiscardsTickPendingDuringStop(t *testing.T) {
	src := &gatedSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	ft := &fakeTicker{c: make(chan time.Time)}
	origin := time.Now()

	s := New(
		func(context.Context) (Source, error) { return src, nil },
		WithTicker(func(time.Duration) Ticker { return ft }),
		WithOrigin(origin),
	)
	events := make(chan Event, 8)
	s.Subscribe(func(ev Event) { events <- ev })

	if err := s.Start(context.Background(), spectrum.Unbounded); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case ft.c <- origin.Add(16 * time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("capture loop did not consume tick")
	}
	select {
	case <-src.entered:
	case <-time.After(time.Second):
		t.Fatal("read did not start")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()

	deadline := time.Now().Add(time.Second)
	for s.Running() {
		if time.Now().After(deadline) {
			t.Fatal("Stop did not detach the run")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	select {
	case err := <-stopped:
		t.Fatalf("Stop returned %v before the pending read finished", err)
	default:
	}

	close(src.release)
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	select {
	case ev := <-events:
		t.Fatalf("event after Stop: %+v", ev)
	default:
	}

	src.mu.Lock()
	closes := src.closes
	src.mu.Unlock()
	if closes != 1 {
		t.Fatalf("close count = %d, want 1", closes)
	}
}

func TestSamplerStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	if err := h.sampler.Stop(); err != nil {
		t.Fatalf("Stop on idle sampler: %v", err)
	}
	if err := h.sampler.Start(context.Background(), spectrum.Unbounded); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.ticker()
	for range 3 {
		if err := h.sampler.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}
	if got := h.source(0).closeCount(); got != 1 {
		t.Fatalf("close count = %d, want 1", got)
	}
}

func TestSamplerDeviceLost(t *testing.T) {
	h := newHarness(t)
	if err := h.sampler.Start(context.Background(), spectrum.Unbounded); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ft := h.ticker()

	cause := errors.New("read: no such device")
	h.source(0).fail(cause)
	h.tick(ft, 16)

	ev := h.next()
	if ev.Frame != nil || ev.Err == nil {
		t.Fatalf("event = %+v, want error", ev)
	}
	if ev.Err.Kind != KindDeviceLost {
		t.Fatalf("kind = %v, want %v", ev.Err.Kind, KindDeviceLost)
	}
	if !errors.Is(ev.Err, ErrDeviceLost) || !errors.Is(ev.Err, cause) {
		t.Fatalf("error %v does not wrap sentinel and cause", ev.Err)
	}

	deadline := time.Now().Add(time.Second)
	for h.sampler.Running() {
		if time.Now().After(deadline) {
			t.Fatal("sampler still running after device loss")
		}
		time.Sleep(time.Millisecond)
	}
	if got := h.source(0).closeCount(); got != 1 {
		t.Fatalf("close count = %d, want 1", got)
	}

	// A later Stop must not close the lost source again.
	if err := h.sampler.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := h.source(0).closeCount(); got != 1 {
		t.Fatalf("close count after Stop = %d, want 1", got)
	}
	h.expectQuiet()
}

func TestSamplerCaptureUnavailable(t *testing.T) {
	denied := errors.New("permission denied")
	s := New(func(context.Context) (Source, error) { return nil, denied })

	var got []Event
	s.Subscribe(func(ev Event) { got = append(got, ev) })

	err := s.Start(context.Background(), spectrum.Unbounded)
	if !errors.Is(err, ErrCaptureUnavailable) || !errors.Is(err, denied) {
		t.Fatalf("Start error = %v, want capture unavailable wrapping cause", err)
	}

	var cerr *CaptureError
	if !errors.As(err, &cerr) || cerr.Kind != KindCaptureUnavailable {
		t.Fatalf("errors.As(%v) = %v", err, cerr)
	}
	if s.Running() {
		t.Fatal("Running() = true after failed Start")
	}
	if len(got) != 1 || got[0].Err == nil || got[0].Err.Kind != KindCaptureUnavailable {
		t.Fatalf("published events = %+v, want one capture_unavailable", got)
	}
}

func TestSamplerRejectsInvalidBounds(t *testing.T) {
	opened := false
	s := New(func(context.Context) (Source, error) {
		opened = true
		return nil, errors.New("unreachable")
	})

	err := s.Start(context.Background(), spectrum.Bounds{LowHz: 200, HighHz: 100})
	if err == nil {
		t.Fatal("expected error for inverted bounds")
	}
	if errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("bounds error classified as capture failure: %v", err)
	}
	if opened {
		t.Fatal("source opened for invalid bounds")
	}
}

func TestSamplerRejectsEmptySource(t *testing.T) {
	src := &fakeSource{rate: 8000, journal: &journal{}}
	s := New(func(context.Context) (Source, error) { return src, nil })

	err := s.Start(context.Background(), spectrum.Unbounded)
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("Start error = %v, want capture unavailable", err)
	}
	if src.closeCount() != 1 {
		t.Fatalf("close count = %d, want 1", src.closeCount())
	}
}

func TestCaptureErrorMessage(t *testing.T) {
	tests := []struct {
		err  *CaptureError
		want string
	}{
		{&CaptureError{Kind: KindCaptureUnavailable}, "capture unavailable"},
		{&CaptureError{Kind: KindDeviceLost, Err: errors.New("eof")}, "capture device lost: eof"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}

	if KindDeviceLost.String() != "device_lost" || Kind(9).String() != "kind(9)" {
		t.Fatal("unexpected Kind strings")
	}
}

func TestWithRate(t *testing.T) {
	cfg := applyOptions([]Option{WithRate(50)})
	if cfg.interval != 20*time.Millisecond {
		t.Fatalf("interval = %v, want 20ms", cfg.interval)
	}
	cfg = applyOptions([]Option{WithRate(0), WithInterval(-1)})
	if cfg.interval != DefaultInterval {
		t.Fatalf("interval = %v, want default", cfg.interval)
	}
}
