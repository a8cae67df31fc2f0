package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/cwbudde/spoke-tension/internal/audio"
	"github.com/cwbudde/spoke-tension/internal/config"
	"github.com/cwbudde/spoke-tension/internal/logging"
	"github.com/cwbudde/spoke-tension/measure/sampler"
	"github.com/cwbudde/spoke-tension/measure/session"
)

type commandContext struct {
	configFlag *string
	logLevel   *string
	logFormat  *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevel, logFormat *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logLevel:   logLevel,
		logFormat:  logFormat,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevel != nil && strings.TrimSpace(*c.logLevel) != "" {
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(*c.logLevel))
		}
		if c.logFormat != nil && strings.TrimSpace(*c.logFormat) != "" {
			cfg.Log.Format = strings.ToLower(strings.TrimSpace(*c.logFormat))
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cmd *cobra.Command) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// newSession wires microphone capture, the sampler and a session from cfg.
func newSession(cfg *config.Config, logger *slog.Logger) (*session.Session, error) {
	sc, err := cfg.Session()
	if err != nil {
		return nil, err
	}

	open := audio.Opener(audio.Config{
		Device:     cfg.Audio.Device,
		SampleRate: cfg.Audio.SampleRate,
		FFTSize:    cfg.Audio.FFTSize,
		Smoothing:  cfg.Audio.Smoothing,
		Window:     cfg.Audio.Window,
		LockDir:    cfg.Audio.LockDir,
		Hotplug:    cfg.Audio.Hotplug,
		Logger:     logger,
	})
	smp := sampler.New(open,
		sampler.WithInterval(cfg.Audio.TickInterval()),
		sampler.WithLogger(logger),
	)
	return session.New(smp, sc, session.WithLogger(logger))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
