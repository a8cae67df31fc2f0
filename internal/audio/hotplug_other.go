//go:build !linux

package audio

import "log/slog"

type hotplugWatch struct{}

func watchHotplug(string, func(error), *slog.Logger) *hotplugWatch { return nil }

func (*hotplugWatch) Stop() {}
