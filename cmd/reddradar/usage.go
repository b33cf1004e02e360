package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show drafted replies and tokens used this month and overall",
	RunE:  runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := requireStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	month, err := store.Usage(ctx, monthStart)
	if err != nil {
		return err
	}
	total, err := store.Usage(ctx, time.Time{})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d replies, %d tokens\n", monthStart.Format("January 2006"), month.Replies, month.TokensUsed)
	fmt.Fprintf(out, "All time: %d replies, %d tokens\n", total.Replies, total.TokensUsed)
	return nil
}
