package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/FranksOps/reddradar/internal/pipeline"
	"github.com/FranksOps/reddradar/internal/reddit"
	"github.com/FranksOps/reddradar/internal/report"
	"github.com/spf13/cobra"
)

var leadsFlags struct {
	format     string
	output     string
	limit      int
	window     string
	subreddits []string
	keywords   []string
}

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Search the watchlist once and print the ranked leads",
	Long: `Searches every watchlist subreddit for every problem keyword and competitor,
merges the results, drops duplicate posts and ranks them by score.

Example:
  reddradar leads --time month --format csv -o leads.csv
  reddradar leads -s SaaS -s startups -k "churn" -k "ChartMogul"`,
	RunE: runLeads,
}

func init() {
	f := leadsCmd.Flags()
	f.StringVarP(&leadsFlags.format, "format", "f", "text", "Report format: text, json, csv, html")
	f.StringVarP(&leadsFlags.output, "output", "o", "", "Write the report to a file instead of stdout")
	f.IntVarP(&leadsFlags.limit, "limit", "l", 0, "Results per subreddit and keyword (default reddit.limit)")
	f.StringVarP(&leadsFlags.window, "time", "t", "", "Time window: hour, day, week, month, year, all")
	f.StringSliceVarP(&leadsFlags.subreddits, "subreddit", "s", nil, "Override watchlist subreddits")
	f.StringSliceVarP(&leadsFlags.keywords, "keyword", "k", nil, "Override watchlist keywords and competitors")
}

func runLeads(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	w := cfg.Watchlist
	if len(leadsFlags.subreddits) > 0 {
		w.Subreddits = leadsFlags.subreddits
	}
	if len(leadsFlags.keywords) > 0 {
		w.ProblemKeywords, w.Competitors = leadsFlags.keywords, nil
	}
	if len(w.Subreddits) == 0 || len(w.Keywords()) == 0 {
		return errors.New("watchlist needs at least one subreddit and one keyword (watchlist.* or --subreddit/--keyword)")
	}

	opts := cfg.Reddit.SearchOptions()
	if leadsFlags.limit > 0 {
		opts.Limit = leadsFlags.limit
	}
	if leadsFlags.window != "" {
		if !reddit.ValidTime(leadsFlags.window) {
			return fmt.Errorf("unknown time window %q", leadsFlags.window)
		}
		opts.Time = leadsFlags.window
	}

	p, closeStore, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	d, err := p.Discover(ctx, w, opts)
	if d == nil {
		return err
	}
	if err != nil {
		logger.Warn("discovery interrupted, reporting partial results", "err", err)
	}
	return writeReport(d, leadsFlags.format, leadsFlags.output, cmd.OutOrStdout())
}

func writeReport(d *pipeline.Discovery, format, output string, stdout io.Writer) error {
	summary := report.GenerateSummary(d.Leads)
	summary.NewLeads = d.New

	if output == "" {
		return report.Write(stdout, format, summary)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := report.Write(f, format, summary); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	logger.Info("report written", "path", output, "leads", summary.TotalLeads)
	return nil
}
