//go:build linux

package audio

import (
	"fmt"
	"log/slog"

	"github.com/pilebones/go-udev/netlink"
)

// hotplugWatch reports sound card removals from the kernel uevent socket.
type hotplugWatch struct {
	conn *netlink.UEventConn
	quit chan struct{}
	done chan struct{}
}

// watchHotplug calls onRemove when the card behind device is removed. It
// returns nil when the netlink socket is unavailable; capture then relies
// on arecord exiting.
func watchHotplug(device string, onRemove func(error), logger *slog.Logger) *hotplugWatch {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logger.Warn("netlink unavailable, hotplug detection disabled", "error", err)
		return nil
	}

	sel := parseCard(device)
	action := "remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, rules)

	w := &hotplugWatch{
		conn: conn,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.quit:
				close(monitorQuit)
				return
			case ev := <-queue:
				if !sel.matches(ev.Env) {
					continue
				}
				logger.Warn("sound card removed", "kobj", ev.KObj)
				onRemove(fmt.Errorf("%w: %s", ErrDeviceRemoved, ev.KObj))
			case err := <-errs:
				logger.Warn("netlink monitor error", "error", err)
			}
		}
	}()

	return w
}

func (w *hotplugWatch) Stop() {
	if w == nil {
		return
	}
	close(w.quit)
	<-w.done
	_ = w.conn.Close()
}
