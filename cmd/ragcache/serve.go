package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/ragcache/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		listen         string
		requestTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.close(shutdownCtx)
			}()

			deps := server.Deps{
				Answerer:       a.orch,
				Cache:          a.cache,
				Health:         a.health,
				Authenticator:  a.authn,
				Logger:         a.logger,
				RequestTimeout: requestTimeout,
			}
			if a.history != nil {
				deps.History = a.history
			}
			if cfg.Observe.Metrics.Enabled && cfg.Observe.Metrics.Exporter == "prometheus" {
				deps.Metrics = promhttp.Handler()
			}

			srv, err := server.New(deps)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx, cfg.Listen, 10*time.Second)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().DurationVar(&requestTimeout, "request-timeout", 60*time.Second, "bound on each API request")
	return cmd
}
