package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/larder/pkg/models"
)

func newFetchCmd(opts *globalOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch recipes through the cache",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recipe names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, models.Request{Kind: models.RequestList}, raw)
		},
	}

	detailCmd := &cobra.Command{
		Use:   "detail <recipe-id>",
		Short: "Show one recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, models.Request{Kind: models.RequestDetail, RecipeID: args[0]}, raw)
		},
	}

	cmd.PersistentFlags().BoolVar(&raw, "json", false, "print the raw JSON payload")
	cmd.AddCommand(listCmd, detailCmd)
	return cmd
}

func runFetch(opts *globalOptions, req models.Request, raw bool) error {
	w, _, _, err := opts.openWorker()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	w.Start()

	resp := w.Handle(context.Background(), req)
	if resp == nil {
		return errors.New("no reply")
	}
	if resp.IsError() {
		return errors.New(resp.Message)
	}
	if raw {
		_, err := fmt.Fprintln(os.Stdout, string(resp.Data))
		return err
	}

	source := "network"
	if resp.Cached {
		source = "cache"
	}
	switch resp.Kind {
	case models.ResponseList:
		var list models.RecipeList
		if err := json.Unmarshal(resp.Data, &list); err != nil {
			return fmt.Errorf("decode recipe list: %w", err)
		}
		if err := printList(os.Stdout, list); err != nil {
			return err
		}
	default:
		var detail models.RecipeDetail
		if err := json.Unmarshal(resp.Data, &detail); err != nil {
			return fmt.Errorf("decode recipe: %w", err)
		}
		printDetail(os.Stdout, detail)
	}
	fmt.Fprintf(os.Stderr, "(from %s)\n", source)
	return nil
}

func printList(out io.Writer, list models.RecipeList) error {
	if len(list.Recipes) == 0 {
		fmt.Fprintln(out, "No recipes found.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, r := range list.Recipes {
		fmt.Fprintf(tw, "%d\t%s\n", r.ID, r.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if list.Total > len(list.Recipes) {
		fmt.Fprintf(out, "\nShowing %d of %s recipes.\n", len(list.Recipes), humanize.Comma(int64(list.Total)))
	}
	return nil
}

func printDetail(out io.Writer, r models.RecipeDetail) {
	fmt.Fprintf(out, "%s (#%d)\n", r.Name, r.ID)
	if r.Cuisine != "" || r.Difficulty != "" {
		fmt.Fprintf(out, "%s, %s\n", r.Cuisine, r.Difficulty)
	}
	if r.Image != "" {
		fmt.Fprintf(out, "Image:    %s\n", r.Image)
	}
	fmt.Fprintf(out, "Prep:     %d min\n", r.PrepTimeMinutes)
	fmt.Fprintf(out, "Cook:     %d min\n", r.CookTimeMinutes)
	fmt.Fprintf(out, "Serves:   %d\n", r.Servings)
	fmt.Fprintf(out, "Calories: %s per serving\n", humanize.Comma(int64(r.CaloriesPerServing)))

	if len(r.Ingredients) > 0 {
		fmt.Fprintln(out, "\nIngredients:")
		for _, ing := range r.Ingredients {
			fmt.Fprintf(out, "  - %s\n", ing)
		}
	}
	if len(r.Instructions) > 0 {
		fmt.Fprintln(out, "\nInstructions:")
		for i, step := range r.Instructions {
			fmt.Fprintf(out, "  %d. %s\n", i+1, strings.TrimSpace(step))
		}
	}
}
