package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/cwbudde/spoke-tension/internal/testutil"
)

const (
	helperEnv     = "SPOKETENSION_ARECORD_HELPER"
	helperModeEnv = "SPOKETENSION_ARECORD_MODE"
	helperRate    = 8000
	helperFFT     = 1024
	helperBin     = 40
)

// TestHelperArecord stands in for arecord when the capture tests re-exec the
// test binary.
func TestHelperArecord(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process")
	}

	switch os.Getenv(helperModeEnv) {
	case "fail":
		fmt.Fprintln(os.Stderr, "arecord: main:850: audio open error: Device or resource busy")
		os.Exit(1)
	case "tone", "short":
		freq := float64(helperBin) * helperRate / helperFFT
		samples := testutil.DeterministicSine(freq, helperRate, 0.5, 8*helperFFT)
		_, _ = os.Stdout.Write(testutil.EncodeS16LE(samples))
		if os.Getenv(helperModeEnv) == "short" {
			os.Exit(0)
		}
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(3)
}

func helperConfig(t *testing.T, mode string) Config {
	t.Helper()
	t.Setenv(helperEnv, "1")
	t.Setenv(helperModeEnv, mode)
	return Config{
		Device:     "hw:7,0",
		SampleRate: helperRate,
		FFTSize:    helperFFT,
		LockDir:    t.TempDir(),
		Command:    []string{os.Args[0], "-test.run=^TestHelperArecord$", "--"},
	}
}

func requireUnlocked(t *testing.T, cfg Config) {
	t.Helper()
	lock := flock.New(filepath.Join(cfg.LockDir, lockName(cfg.Device)))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("device lock still held: ok=%v err=%v", ok, err)
	}
	_ = lock.Unlock()
}

func TestCaptureReadsTone(t *testing.T) {
	cfg := helperConfig(t, "tone")

	c, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.SampleRate() != helperRate || c.TransformSize() != helperFFT/2 {
		t.Fatalf("geometry = %d Hz, %d bins", c.SampleRate(), c.TransformSize())
	}

	dst := make([]float64, c.TransformSize())
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := c.ReadSpectrum(dst); err != nil {
			t.Fatalf("ReadSpectrum: %v", err)
		}
		if peakBin(dst) == helperBin {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tone never reached the analyser")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	requireUnlocked(t, cfg)
}

func TestCaptureOpenFailure(t *testing.T) {
	cfg := helperConfig(t, "fail")

	_, err := Open(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected Open to fail")
	}
	if !strings.Contains(err.Error(), "Device or resource busy") {
		t.Fatalf("error %q does not carry arecord stderr", err)
	}
	requireUnlocked(t, cfg)
}

func TestCaptureDeviceBusy(t *testing.T) {
	cfg := helperConfig(t, "tone")

	held := flock.New(filepath.Join(cfg.LockDir, lockName(cfg.Device)))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("pre-lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	_, err := Open(context.Background(), cfg)
	if !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("Open = %v, want ErrDeviceBusy", err)
	}
}

func TestCaptureProcessExitFailsReads(t *testing.T) {
	cfg := helperConfig(t, "short")

	c, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	dst := make([]float64, c.TransformSize())
	deadline := time.Now().Add(5 * time.Second)
	for c.ReadSpectrum(dst) == nil {
		if time.Now().After(deadline) {
			t.Fatal("reads kept succeeding after arecord exited")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCaptureRemovalFailsReads(t *testing.T) {
	cfg := helperConfig(t, "tone")

	c, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	c.fail(fmt.Errorf("%w: /devices/sound/card7", ErrDeviceRemoved))
	if err := c.ReadSpectrum(make([]float64, c.TransformSize())); !errors.Is(err, ErrDeviceRemoved) {
		t.Fatalf("ReadSpectrum = %v, want ErrDeviceRemoved", err)
	}
}

func TestCaptureArgs(t *testing.T) {
	cfg := Config{Device: "plughw:1,0", SampleRate: 44100}.withDefaults()
	got := strings.Join(cfg.args(), " ")
	want := "-D plughw:1,0 -f S16_LE -r 44100 -c 1 -t raw -q -"
	if got != want {
		t.Fatalf("args = %q, want %q", got, want)
	}
	if cfg.Command[0] != "arecord" || cfg.FFTSize != DefaultFFTSize {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if name := lockName("plughw:CARD=USB,DEV=0"); name != "spoketension-plughw_CARD_USB_DEV_0.lock" {
		t.Fatalf("lockName = %q", name)
	}
}
