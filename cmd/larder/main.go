package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pario-ai/larder/pkg/config"
	"github.com/pario-ai/larder/pkg/logging"
	"github.com/pario-ai/larder/pkg/worker"
)

var version = "dev"

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "larder",
		Short:         "Larder: a caching worker for the recipe catalog API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default: user config dir larder.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newFetchCmd(opts),
		newCacheCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *globalOptions) load() (*config.Config, zerolog.Logger, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func (o *globalOptions) openWorker() (*worker.Worker, *config.Config, zerolog.Logger, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, nil, logger, err
	}
	w, err := worker.New(cfg, logger)
	if err != nil {
		return nil, nil, logger, fmt.Errorf("init worker: %w", err)
	}
	return w, cfg, logger, nil
}
