package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/larder/pkg/channel"
)

func newWorkerCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Answer line-delimited JSON messages on stdin/stdout",
		Long: `Reads one JSON message per line from stdin and writes one reply per line
to stdout. Replies may be out of order; include an "id" to correlate them.

  {"id":1,"type":"FETCH_RECIPES_LIST"}
  {"id":2,"type":"FETCH_RECIPE_DETAILS","recipeId":"7"}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, logger, err := opts.openWorker()
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()
			w.Start()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = channel.New(w, logger).Run(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
