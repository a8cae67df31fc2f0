package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cwbudde/spoke-tension/measure/session"
)

func newMeasureCommand(ctx *commandContext) *cobra.Command {
	var duration time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Capture from the microphone and print live tension readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			sess, err := newSession(cfg, logger)
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			r := newRenderer(out, jsonOutput)
			failed := make(chan *session.Error, 1)
			unsubscribe := sess.Subscribe(func(ev session.Event) {
				r.Render(ev)
				if ev.Err != nil {
					select {
					case failed <- ev.Err:
					default:
					}
				}
			})
			defer unsubscribe()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, duration)
				defer cancel()
			}

			if err := sess.Start(runCtx); err != nil {
				return err
			}
			if w, err := sess.Window(); err == nil && !jsonOutput {
				fmt.Fprintf(out, "Listening between %.1f Hz and %.1f Hz (Ctrl-C to stop)\n", w.LowHz, w.HighHz)
			}

			select {
			case <-runCtx.Done():
			case e := <-failed:
				r.Finish()
				return e
			}
			if err := sess.Stop(); err != nil {
				return err
			}
			r.Finish()
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit one JSON object per event")
	return cmd
}

// renderer prints session events. On a terminal the current reading is
// redrawn in place; otherwise only reliable readings are printed, once per
// stable stretch.
type renderer struct {
	out      io.Writer
	tty      bool
	json     bool
	enc      *json.Encoder
	reliable bool
	drawn    bool
}

func newRenderer(out io.Writer, jsonOutput bool) *renderer {
	r := &renderer{out: out, json: jsonOutput, tty: isTerminal(out)}
	if jsonOutput {
		r.enc = json.NewEncoder(out)
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type jsonEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Render runs on the capture goroutine.
func (r *renderer) Render(ev session.Event) {
	if r.json {
		r.renderJSON(ev)
		return
	}
	switch {
	case ev.Update != nil:
		r.renderUpdate(ev.Update)
	case ev.Err != nil:
		r.Finish()
		fmt.Fprintf(r.out, "capture stopped: %s\n", ev.Err.Message)
	case ev.Status != nil:
		r.reliable = false
	}
}

func (r *renderer) renderJSON(ev session.Event) {
	var je jsonEvent
	switch {
	case ev.Update != nil:
		u := *ev.Update
		u.Spectrum = nil
		u.TensionSpectrum = nil
		je = jsonEvent{Type: "update", Data: u}
	case ev.Err != nil:
		je = jsonEvent{Type: "error", Data: ev.Err}
	case ev.Status != nil:
		je = jsonEvent{Type: "status", Data: ev.Status}
	default:
		return
	}
	_ = r.enc.Encode(je)
}

func (r *renderer) renderUpdate(u *session.Update) {
	rising := u.IsReliable && !r.reliable
	r.reliable = u.IsReliable

	if r.tty {
		mark := " "
		if u.IsReliable {
			mark = "*"
		}
		fmt.Fprintf(r.out, "\r%s %7.1f kgf %8.1f N %7.1f Hz  score %5.2f", mark,
			u.TensionKgf, u.TensionNewton, u.PeakFrequencyHz, u.ReliabilityScore)
		r.drawn = true
		return
	}
	if rising {
		fmt.Fprintf(r.out, "%.1f kgf (%.1f N) at %.1f Hz, score %.2f\n",
			u.TensionKgf, u.TensionNewton, u.PeakFrequencyHz, u.ReliabilityScore)
	}
}

// Finish ends an in-place line.
func (r *renderer) Finish() {
	if r.drawn {
		fmt.Fprintln(r.out)
		r.drawn = false
	}
}
