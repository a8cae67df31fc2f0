package config

import (
	"os"
	"path/filepath"

	"github.com/cwbudde/spoke-tension/stats/peak"
)

// Default returns the factory configuration.
func Default() Config {
	return Config{
		Spoke: Spoke{
			LengthMM:         191,
			Material:         "steel",
			DiameterMM:       2,
			LinearDensityKgM: 0.0245,
		},
		Measurement: Measurement{
			LowerTensionKgf:      50,
			UpperTensionKgf:      150,
			AveragingMS:          1000,
			ReliabilityThreshold: peak.DefaultThreshold,
		},
		Audio: Audio{
			Device:     "default",
			SampleRate: 8000,
			FFTSize:    8192,
			Smoothing:  0.8,
			Window:     "blackman",
			TickHz:     60,
			LockDir:    os.TempDir(),
			Hotplug:    true,
		},
		Log: Log{
			Level:  "info",
			Format: "auto",
		},
		Server: Server{
			Addr: "127.0.0.1:8940",
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath(),
		},
	}
}

func defaultHistoryPath() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && base != "" {
		return filepath.Join(base, "spoketension", "history.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "spoketension", "history.db")
	}
	return filepath.Join(home, ".local", "share", "spoketension", "history.db")
}
