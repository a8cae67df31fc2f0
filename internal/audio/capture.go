package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/cwbudde/spoke-tension/dsp/window"
	"github.com/cwbudde/spoke-tension/measure/sampler"
)

var (
	// ErrDeviceBusy reports that another process holds the device lock.
	ErrDeviceBusy = errors.New("audio: device busy")
	// ErrDeviceRemoved reports a sound card removal during capture.
	ErrDeviceRemoved = errors.New("audio: device removed")
)

const (
	DefaultDevice     = "default"
	DefaultSampleRate = 8000

	stopGrace  = 2 * time.Second
	readChunk  = 4096
	stderrTail = 512
)

// Config describes an arecord capture.
type Config struct {
	Device     string
	SampleRate int
	FFTSize    int
	Smoothing  float64
	// Window names the analysis window; blackman when empty.
	Window string
	// LockDir holds per-device lock files. Empty uses os.TempDir.
	LockDir string
	// Command is the capture argv prefix; arecord when empty.
	Command []string
	// Hotplug watches udev for removal of the capture card.
	Hotplug bool
	Logger  *slog.Logger
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Device) == "" {
		c.Device = DefaultDevice
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FFTSize <= 0 {
		c.FFTSize = DefaultFFTSize
	}
	if strings.TrimSpace(c.Window) == "" {
		c.Window = DefaultWindow.String()
	}
	if c.LockDir == "" {
		c.LockDir = os.TempDir()
	}
	if len(c.Command) == 0 {
		c.Command = []string{"arecord"}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

func (c Config) args() []string {
	args := append([]string(nil), c.Command[1:]...)
	return append(args,
		"-D", c.Device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(c.SampleRate),
		"-c", "1",
		"-t", "raw",
		"-q",
		"-",
	)
}

func lockName(device string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, device)
	return "spoketension-" + clean + ".lock"
}

// Opener returns a sampler.Opener that starts a new Capture for cfg.
func Opener(cfg Config) sampler.Opener {
	return func(ctx context.Context) (sampler.Source, error) {
		return Open(ctx, cfg)
	}
}

// Capture is a running arecord process feeding an Analyser.
type Capture struct {
	cfg      Config
	logger   *slog.Logger
	analyser *Analyser
	lock     *flock.Flock
	cmd      *exec.Cmd
	stderr   *tailWriter
	hotplug  *hotplugWatch

	ready chan struct{}
	done  chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error
}

// Open locks the device, starts arecord and waits for the first PCM data.
// ctx bounds only the acquisition.
func Open(ctx context.Context, cfg Config) (*Capture, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("component", "audio", "device", cfg.Device)

	wt, err := window.ParseType(cfg.Window)
	if err != nil {
		return nil, err
	}
	analyser, err := NewAnalyser(cfg.FFTSize, cfg.Smoothing, WithWindow(wt))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.LockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.LockDir, lockName(cfg.Device)))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire device lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, cfg.Device)
	}

	cmd := exec.Command(cfg.Command[0], cfg.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	stderr := &tailWriter{limit: stderrTail}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("start %s: %w", cfg.Command[0], err)
	}

	c := &Capture{
		cfg:      cfg,
		logger:   logger,
		analyser: analyser,
		lock:     lock,
		cmd:      cmd,
		stderr:   stderr,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.pump(stdout)

	select {
	case <-c.ready:
	case <-c.done:
		select {
		case <-c.ready:
		default:
			err := c.failure()
			_ = c.Close()
			// stderr is complete once the process was reaped.
			if tail := c.stderr.String(); tail != "" {
				err = fmt.Errorf("%w: %s", err, tail)
			}
			return nil, err
		}
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}

	if cfg.Hotplug {
		c.hotplug = watchHotplug(cfg.Device, c.fail, logger)
	}

	logger.Info("audio capture opened",
		"sample_rate", cfg.SampleRate,
		"fft_size", cfg.FFTSize,
		"pid", cmd.Process.Pid,
	)
	return c, nil
}

// SampleRate implements sampler.Source.
func (c *Capture) SampleRate() int { return c.cfg.SampleRate }

// TransformSize implements sampler.Source.
func (c *Capture) TransformSize() int { return c.analyser.Bins() }

// ReadSpectrum implements sampler.Source. It fails once the capture process
// ended or the card was removed.
func (c *Capture) ReadSpectrum(dst []float64) error {
	if err := c.failure(); err != nil {
		return err
	}
	return c.analyser.Spectrum(dst)
}

// Close stops arecord, waits for it to exit and releases the device lock.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.hotplug.Stop()

		if c.cmd.Process != nil {
			_ = c.cmd.Process.Signal(os.Interrupt)
			select {
			case <-c.done:
			case <-time.After(stopGrace):
				_ = c.cmd.Process.Kill()
				<-c.done
			}
		}
		_ = c.cmd.Wait()

		if err := c.lock.Unlock(); err != nil {
			c.closeErr = fmt.Errorf("release device lock: %w", err)
		}
		c.logger.Info("audio capture closed")
	})
	return c.closeErr
}

func (c *Capture) pump(r io.Reader) {
	defer close(c.done)

	buf := make([]byte, readChunk)
	samples := make([]float64, readChunk/2)
	started := false
	off := 0

	for {
		n, err := r.Read(buf[off:])
		n += off

		if even := n &^ 1; even > 0 {
			k := DecodeS16LE(samples, buf[:even])
			c.analyser.Write(samples[:k])
			if !started {
				started = true
				close(c.ready)
			}
			off = copy(buf, buf[even:n])
		} else {
			off = n
		}

		if err != nil {
			c.fail(fmt.Errorf("%s exited: %w", c.cfg.Command[0], err))
			return
		}
	}
}

func (c *Capture) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Capture) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// tailWriter keeps the last limit bytes written to it.
type tailWriter struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.limit {
		w.buf = w.buf[len(w.buf)-w.limit:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(string(w.buf))
}
