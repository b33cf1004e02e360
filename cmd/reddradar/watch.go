package main

import (
	"context"
	"errors"
	"time"

	"github.com/FranksOps/reddradar/internal/metrics"
	"github.com/FranksOps/reddradar/internal/scheduler"
	"github.com/spf13/cobra"
)

var watchFlags struct {
	runNow  bool
	timeout time.Duration
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run discovery on a schedule and expose Prometheus metrics",
	Long: `Runs the watchlist discovery on watch.schedule (a cron expression or an
@every interval) until interrupted. New leads are recorded in storage, so each
run only reports posts it has not seen before. Metrics are served on
watch.metrics_port at /metrics; set it to 0 to disable.`,
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.BoolVar(&watchFlags.runNow, "run-now", false, "Run discovery once before waiting for the schedule")
	f.DurationVar(&watchFlags.timeout, "timeout", 10*time.Minute, "Maximum duration of one discovery run")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(cfg.Watchlist.Subreddits) == 0 || len(cfg.Watchlist.Keywords()) == 0 {
		return errors.New("watchlist needs at least one subreddit and one keyword")
	}

	p, closeStore, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if p.Store == nil {
		logger.Warn("storage is not configured, every run reports all leads as new")
	}

	var ms *metrics.Server
	if cfg.Watch.MetricsPort > 0 {
		ms = metrics.Start(cfg.Watch.MetricsPort, logger)
		logger.Info("metrics listening", "port", cfg.Watch.MetricsPort)
	}

	opts := cfg.Reddit.SearchOptions()
	discover := func(ctx context.Context) error {
		_, err := p.Discover(ctx, cfg.Watchlist, opts)
		return err
	}

	sched := scheduler.New(ctx, watchFlags.timeout, logger)
	if err := sched.AddJob("discover", cfg.Watch.Schedule, discover); err != nil {
		return err
	}
	if watchFlags.runNow {
		if err := sched.RunNow("discover", discover); err != nil {
			logger.Error("discovery failed", "err", err)
		}
	}

	sched.Start()
	if next, ok := sched.Next("discover"); ok {
		logger.Info("watching", "schedule", cfg.Watch.Schedule, "next", next)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	<-sched.Stop().Done()
	return ms.Stop(context.Background())
}
