package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/FranksOps/reddradar/internal/storage"
	"github.com/spf13/cobra"
)

var historyFlags struct {
	limit     int
	subreddit string
	remove    string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or delete drafted replies",
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.IntVarP(&historyFlags.limit, "limit", "l", 20, "Replies to list")
	f.StringVarP(&historyFlags.subreddit, "subreddit", "s", "", "Only replies for this subreddit")
	f.StringVar(&historyFlags.remove, "delete", "", "Delete the reply with this id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := requireStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if historyFlags.remove != "" {
		if err := store.DeleteReply(ctx, historyFlags.remove); err != nil {
			return fmt.Errorf("delete reply %s: %w", historyFlags.remove, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", historyFlags.remove)
		return nil
	}

	replies, err := store.QueryReplies(ctx, storage.ReplyFilter{
		Subreddit: historyFlags.subreddit,
		Limit:     historyFlags.limit,
	})
	if err != nil {
		return err
	}
	if len(replies) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No replies recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSUBREDDIT\tTONE\tPROVIDER\tTOKENS\tPOST")
	for _, r := range replies {
		fmt.Fprintf(tw, "%s\t%s\tr/%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Subreddit, r.Tone, r.Provider, r.TokensUsed, truncate(r.PostTitle, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
