package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FranksOps/reddradar/internal/reddit"
	"github.com/spf13/cobra"
)

var listingFlags struct {
	sort       string
	limit      int
	format     string
	output     string
	subreddits []string
}

var listingCmd = &cobra.Command{
	Use:   "listing",
	Short: "List the hot, new, top or rising posts of the watchlist subreddits",
	Long: `Fetches each subreddit's feed without a query. Posts keep feed order and are
annotated with the watchlist keywords they mention.`,
	RunE: runListing,
}

func init() {
	f := listingCmd.Flags()
	f.StringVar(&listingFlags.sort, "sort", "hot", "Feed: "+strings.Join(reddit.ListingSorts, ", "))
	f.IntVarP(&listingFlags.limit, "limit", "l", 25, "Posts per subreddit")
	f.StringVarP(&listingFlags.format, "format", "f", "text", "Report format: text, json, csv, html")
	f.StringVarP(&listingFlags.output, "output", "o", "", "Write the report to a file instead of stdout")
	f.StringSliceVarP(&listingFlags.subreddits, "subreddit", "s", nil, "Override watchlist subreddits")
}

func runListing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !reddit.ValidSort(listingFlags.sort) {
		return fmt.Errorf("unknown sort %q", listingFlags.sort)
	}
	w := cfg.Watchlist
	if len(listingFlags.subreddits) > 0 {
		w.Subreddits = listingFlags.subreddits
	}
	if len(w.Subreddits) == 0 {
		return errors.New("no subreddits configured (watchlist.subreddits or --subreddit)")
	}

	p, closeStore, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	d, err := p.Browse(ctx, w, reddit.ListingOptions{Sort: listingFlags.sort, Limit: listingFlags.limit})
	if d == nil {
		return err
	}
	if err != nil {
		logger.Warn("listing interrupted, reporting partial results", "err", err)
	}
	return writeReport(d, listingFlags.format, listingFlags.output, cmd.OutOrStdout())
}
