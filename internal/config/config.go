package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cwbudde/spoke-tension/measure/session"
	"github.com/cwbudde/spoke-tension/measure/tension"
)

//go:embed sample_config.toml
var sampleConfig string

// Config is the application configuration.
type Config struct {
	Spoke       Spoke       `toml:"spoke" json:"spoke"`
	Measurement Measurement `toml:"measurement" json:"measurement"`
	Audio       Audio       `toml:"audio" json:"audio"`
	Log         Log         `toml:"log" json:"log"`
	Server      Server      `toml:"server" json:"server"`
	History     History     `toml:"history" json:"history"`
}

// Spoke describes the spoke under test. The linear density is derived from
// Material and DiameterMM; LinearDensityKgM is only read for material other.
type Spoke struct {
	LengthMM         float64 `toml:"length_mm" json:"length_mm" validate:"gt=0,lte=1000"`
	Material         string  `toml:"material" json:"material" validate:"oneof=steel aluminium aluminum other"`
	DiameterMM       float64 `toml:"diameter_mm" json:"diameter_mm" validate:"gt=0,lte=10"`
	LinearDensityKgM float64 `toml:"linear_density_kg_m" json:"linear_density_kg_m" validate:"gte=0,lte=1"`
}

// Measurement holds the tension window and analysis settings.
type Measurement struct {
	LowerTensionKgf      float64 `toml:"lower_tension_kgf" json:"lower_tension_kgf" validate:"gte=0"`
	UpperTensionKgf      float64 `toml:"upper_tension_kgf" json:"upper_tension_kgf" validate:"gtfield=LowerTensionKgf,lte=1000"`
	AveragingMS          int     `toml:"averaging_ms" json:"averaging_ms" validate:"gt=0,lte=60000"`
	ReliabilityThreshold float64 `toml:"reliability_threshold" json:"reliability_threshold" validate:"gte=0,lte=100"`
}

// Audio configures microphone capture.
type Audio struct {
	Device     string  `toml:"device" json:"device" validate:"required"`
	SampleRate int     `toml:"sample_rate" json:"sample_rate" validate:"oneof=8000 11025 16000 22050 44100 48000"`
	FFTSize    int     `toml:"fft_size" json:"fft_size" validate:"oneof=256 512 1024 2048 4096 8192 16384 32768"`
	Smoothing  float64 `toml:"smoothing" json:"smoothing" validate:"gte=0,lte=1"`
	Window     string  `toml:"window" json:"window" validate:"oneof=rectangular hann hamming blackman blackmanharris"`
	TickHz     float64 `toml:"tick_hz" json:"tick_hz" validate:"gt=0,lte=240"`
	LockDir    string  `toml:"lock_dir" json:"lock_dir"`
	Hotplug    bool    `toml:"hotplug" json:"hotplug"`
}

// Log configures the logger.
type Log struct {
	Level  string `toml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" json:"format" validate:"oneof=auto console json"`
}

// Server configures the HTTP/websocket listener.
type Server struct {
	Addr string `toml:"addr" json:"addr" validate:"required,hostname_port"`
}

// History configures the reading log.
type History struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path" validate:"required_if=Enabled true"`
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/spoketension/config.toml")
}

// Load locates, parses and validates a configuration file. It returns the
// config, the resolved path and whether that file exists.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("spoketension.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	c.Spoke.Material = strings.ToLower(strings.TrimSpace(c.Spoke.Material))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Audio.Device = strings.TrimSpace(c.Audio.Device)
	c.Audio.Window = strings.ToLower(strings.TrimSpace(c.Audio.Window))

	var err error
	if c.Audio.LockDir, err = expandPath(c.Audio.LockDir); err != nil {
		return fmt.Errorf("audio.lock_dir: %w", err)
	}
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

// LinearDensity returns the spoke mass per metre in kg/m.
func (s Spoke) LinearDensity() (float64, error) {
	m, err := tension.ParseMaterial(s.Material)
	if err != nil {
		return 0, err
	}
	if m == tension.Other {
		if s.LinearDensityKgM <= 0 {
			return 0, errors.New("spoke.linear_density_kg_m must be > 0 when material is other")
		}
		return s.LinearDensityKgM, nil
	}
	lin := tension.LinearDensity(m.Density(), s.DiameterMM/1000)
	return math.Round(lin*1e4) / 1e4, nil
}

// Session derives the measurement session configuration.
func (c *Config) Session() (session.Config, error) {
	lin, err := c.Spoke.LinearDensity()
	if err != nil {
		return session.Config{}, err
	}

	lengthM := c.Spoke.LengthMM / 1000
	cfg := session.Config{
		SpokeLengthM:         lengthM,
		SpokeMassKg:          lengthM * lin,
		LowerTensionN:        tension.NewtonFromKgf(c.Measurement.LowerTensionKgf),
		UpperTensionN:        tension.NewtonFromKgf(c.Measurement.UpperTensionKgf),
		AveragingWindow:      time.Duration(c.Measurement.AveragingMS) * time.Millisecond,
		ReliabilityThreshold: c.Measurement.ReliabilityThreshold,
	}
	if err := cfg.Validate(); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}

// TickInterval returns the sampler polling interval.
func (a Audio) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / a.TickHz)
}

// Marshal renders the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath resolves ~ and makes pathValue absolute. Empty stays empty.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
