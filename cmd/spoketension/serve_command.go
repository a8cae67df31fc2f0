package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/spoke-tension/internal/history"
	"github.com/cwbudde/spoke-tension/internal/metrics"
	"github.com/cwbudde/spoke-tension/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var startNow bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live readings over WebSocket with /status and /metrics",
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

			m := metrics.New()
			defer sess.Subscribe(m.Observe)()

			opts := []server.Option{
				server.WithLogger(logger),
				server.WithMetrics(m.Handler()),
			}

			if cfg.History.Enabled {
				store, err := history.Open(cfg.History.Path)
				if err != nil {
					return err
				}
				defer store.Close()
				rec := history.NewRecorder(store, sess.Config, logger)
				defer rec.Close()
				defer sess.Subscribe(rec.Observe)()
				opts = append(opts, server.WithHistory(store))
			}

			srv, err := server.New(sess, *cfg, opts...)
			if err != nil {
				return err
			}
			defer srv.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if startNow {
				if err := sess.Start(runCtx); err != nil {
					logger.Warn("initial capture failed", "error", err)
				}
			}

			listen := strings.TrimSpace(addr)
			if listen == "" {
				listen = cfg.Server.Addr
			}
			return srv.ListenAndServe(runCtx, listen)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&startNow, "start", false, "Start capturing immediately")
	return cmd
}
