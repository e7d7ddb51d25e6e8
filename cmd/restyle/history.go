package main

import (
	"fmt"
	"time"

	"github.com/amp-labs/restyle/cli"
	"github.com/amp-labs/restyle/dataurl"
	"github.com/amp-labs/restyle/history"
	"github.com/amp-labs/restyle/should"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage recent generations",
	}

	cmd.AddCommand(
		newHistoryListCmd(a),
		newHistoryShowCmd(a),
		newHistoryRemoveCmd(a),
		newHistoryResetCmd(a),
	)

	return cmd
}

func newHistoryListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent generations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := a.openHistory(ctx)
			if err != nil {
				return err
			}

			defer should.Close(ctx, store, "error closing history")

			items, err := store.List(ctx)
			if err != nil {
				return err
			}

			rows := make([][]string, len(items))
			for i, item := range items {
				rows[i] = []string{item.ID, string(item.Style), truncate(item.Prompt, 40), item.CreatedAt.Format(time.DateTime)} //nolint:mnd
			}

			return a.out.Print([]string{"ID", "STYLE", "PROMPT", "CREATED"}, rows, items)
		},
	}
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one generation and optionally write its image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.openHistory(ctx)
			if err != nil {
				return err
			}

			defer should.Close(ctx, store, "error closing history")

			item, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}

			sel, err := history.Details(*item)
			if err != nil {
				return err
			}

			file := ""

			if out != "" {
				file, err = dataurl.WriteFile(out, item.ID, item.DataURL)
				if err != nil {
					return fmt.Errorf("error writing image: %w", err)
				}
			}

			return a.out.Print(
				[]string{"ID", "STYLE", "PROMPT", "TYPE", "SIZE", "CREATED", "FILE"},
				[][]string{{
					sel.ID,
					string(sel.Style),
					sel.Prompt,
					sel.MimeType,
					dimensions(sel.Width, sel.Height, sel.SizeMB),
					sel.CreatedAt.Format(time.DateTime),
					file,
				}},
				generated{Response: sel.Response, Width: sel.Width, Height: sel.Height, SizeMB: sel.SizeMB, File: file},
			)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Directory to write the image to")

	return cmd
}

func newHistoryRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove one generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.openHistory(ctx)
			if err != nil {
				return err
			}

			defer should.Close(ctx, store, "error closing history")

			if err := store.Remove(ctx, args[0]); err != nil {
				return err
			}

			a.out.Success("Removed " + args[0])

			return nil
		},
	}
}

func newHistoryResetCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if !yes {
				if !a.out.Interactive() {
					return fmt.Errorf("%w: pass --yes to confirm", errNotInteractive)
				}

				ok, err := cli.PromptConfirm("Remove the whole history")
				if err != nil {
					return err
				}

				if !ok {
					return nil
				}
			}

			store, err := a.openHistory(ctx)
			if err != nil {
				return err
			}

			defer should.Close(ctx, store, "error closing history")

			if err := store.Reset(ctx); err != nil {
				return err
			}

			a.out.Success("History cleared")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n-1]) + "…"
}
