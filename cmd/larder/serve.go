package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/larder/pkg/server"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recipes and the message endpoint over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, cfg, logger, err := opts.openWorker()
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			if listen != "" {
				cfg.Listen = listen
			}
			w.Start()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Str("upstream", cfg.APIURLPrefix).
				Str("backend", cfg.Cache.Backend).
				Dur("ttl", cfg.TTL()).
				Msg("starting larder")
			return server.New(cfg.Listen, w, w, logger).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	return cmd
}
