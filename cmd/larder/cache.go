package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, cfg, _, err := opts.openWorker()
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			stats, err := w.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Cache:   %s (%s)\n", cfg.Cache.Name, cfg.Cache.Backend)
			fmt.Printf("TTL:     %s\n", cfg.TTL())
			fmt.Printf("Entries: %s\n", humanize.Comma(stats.Entries))
			fmt.Printf("Size:    %s\n", humanize.Bytes(uint64(stats.Bytes)))
			if stats.Entries > 0 {
				fmt.Printf("Oldest:  %s\n", humanize.Time(stats.Oldest))
				fmt.Printf("Newest:  %s\n", humanize.Time(stats.Newest))
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, _, err := opts.openWorker()
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			infos, err := w.List(context.Background())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("Cache is empty.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "URL\tSIZE\tSTORED\tSTATUS")
			for _, info := range infos {
				status := "fresh"
				if w.Policy.Expired(info.StoredAt) {
					status = "expired"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					info.Key, humanize.Bytes(uint64(info.Bytes)), humanize.Time(info.StoredAt), status)
			}
			return tw.Flush()
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evict expired entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, _, err := opts.openWorker()
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			res, err := w.Sweep(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Scanned %d, evicted %d", res.Scanned, res.Evicted)
			if res.Failed > 0 {
				fmt.Printf(", %d failed", res.Failed)
			}
			fmt.Println(".")
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, _, err := opts.openWorker()
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			n, err := w.Clear(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %s cache entries.\n", humanize.Comma(n))
			return nil
		},
	}

	cmd.AddCommand(statsCmd, listCmd, sweepCmd, clearCmd)
	return cmd
}
