package reddit

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/FranksOps/reddradar/internal/metrics"
	"github.com/FranksOps/reddradar/pkg/ratelimit"
)

// Default spacing between successive requests of one aggregation run.
const (
	DefaultDelay          = 100 * time.Millisecond
	DefaultAnonymousDelay = time.Second
)

// Fetcher performs single-subreddit requests. *Searcher implements it.
type Fetcher interface {
	Search(ctx context.Context, subreddit, query string, opts SearchOptions) ([]Post, error)
	Listing(ctx context.Context, subreddit string, opts ListingOptions) ([]Post, error)
	// Authenticated reports whether credentials are configured.
	Authenticated() bool
	// Session settles the access mode of the next request. The returned
	// context carries that decision into Search or Listing; the bool reports
	// whether the request will use the OAuth API.
	Session(ctx context.Context) (context.Context, bool)
}

// AggregatorConfig configures an Aggregator. Zero delays disable pacing.
type AggregatorConfig struct {
	Delay          time.Duration
	AnonymousDelay time.Duration
	Jitter         float64
	// RequireAuth makes runs fail with ErrAuthRequired instead of falling
	// back to anonymous access.
	RequireAuth bool
	Logger      *slog.Logger
}

// Aggregator fans a keyword set out across subreddits, one request at a time.
type Aggregator struct {
	fetcher        Fetcher
	delay          time.Duration
	anonymousDelay time.Duration
	jitter         float64
	requireAuth    bool
	logger         *slog.Logger
}

// NewAggregator creates an Aggregator on top of f.
func NewAggregator(f Fetcher, cfg AggregatorConfig) *Aggregator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{
		fetcher:        f,
		delay:          cfg.Delay,
		anonymousDelay: cfg.AnonymousDelay,
		jitter:         cfg.Jitter,
		requireAuth:    cfg.RequireAuth,
		logger:         cfg.Logger,
	}
}

// SearchMany searches every subreddit for every keyword and returns the unique
// leads ordered by score, highest first. The first occurrence of a post id
// wins. A failing subreddit/keyword pair is logged and contributes nothing.
//
// The returned error is non-nil only for ErrAuthRequired, detected before any
// request, or when ctx ends; in the latter case the leads gathered so far are
// returned as well.
func (a *Aggregator) SearchMany(ctx context.Context, subreddits, keywords []string, opts SearchOptions) ([]Lead, error) {
	subreddits, keywords = cleanSubreddits(subreddits), clean(keywords)
	if len(subreddits) == 0 || len(keywords) == 0 {
		return []Lead{}, nil
	}
	if err := a.checkAuth(); err != nil {
		return nil, err
	}

	pacer := ratelimit.Every(a.delay, a.jitter)
	seen := make(map[string]struct{})
	leads := []Lead{}
	failed := 0

	var runErr error
loop:
	for _, sub := range subreddits {
		for _, kw := range keywords {
			reqCtx, authed := a.fetcher.Session(ctx)
			if err := pacer.WaitFor(ctx, a.delayFor(authed)); err != nil {
				runErr = err
				break loop
			}
			posts, err := a.fetcher.Search(reqCtx, sub, kw, opts)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					runErr = ctxErr
					break loop
				}
				failed++
				a.logger.Warn("search failed", "subreddit", sub, "keyword", kw, "err", err)
				continue
			}
			leads = merge(leads, seen, posts)
		}
	}

	sort.SliceStable(leads, func(i, j int) bool { return leads[i].Score > leads[j].Score })
	metrics.LeadsFoundTotal.Add(float64(len(leads)))
	a.logger.Info("search complete",
		"subreddits", len(subreddits),
		"keywords", len(keywords),
		"failed", failed,
		"leads", len(leads),
	)
	return leads, runErr
}

// Listing fetches each subreddit's listing without a query. Leads keep fetch
// order; duplicates and failures are handled as in SearchMany.
func (a *Aggregator) Listing(ctx context.Context, subreddits []string, opts ListingOptions) ([]Lead, error) {
	subreddits = cleanSubreddits(subreddits)
	if len(subreddits) == 0 {
		return []Lead{}, nil
	}
	if err := a.checkAuth(); err != nil {
		return nil, err
	}

	pacer := ratelimit.Every(a.delay, a.jitter)
	seen := make(map[string]struct{})
	leads := []Lead{}

	for _, sub := range subreddits {
		reqCtx, authed := a.fetcher.Session(ctx)
		if err := pacer.WaitFor(ctx, a.delayFor(authed)); err != nil {
			return leads, err
		}
		posts, err := a.fetcher.Listing(reqCtx, sub, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return leads, ctxErr
			}
			a.logger.Warn("listing failed", "subreddit", sub, "sort", opts.Sort, "err", err)
			continue
		}
		leads = merge(leads, seen, posts)
	}
	return leads, nil
}

func (a *Aggregator) checkAuth() error {
	if a.requireAuth && !a.fetcher.Authenticated() {
		return ErrAuthRequired
	}
	if !a.fetcher.Authenticated() {
		a.logger.Info("reddit credentials not configured, using anonymous access")
	}
	return nil
}

// delayFor picks the spacing before a request from the mode that request
// will use, so a failed token exchange is paced like anonymous access.
func (a *Aggregator) delayFor(authed bool) time.Duration {
	if authed {
		return a.delay
	}
	return a.anonymousDelay
}

func merge(leads []Lead, seen map[string]struct{}, posts []Post) []Lead {
	for _, p := range posts {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		leads = append(leads, p.Lead())
	}
	return leads
}

// clean trims entries and drops blanks; duplicates are left to id dedup.
func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cleanSubreddits(in []string) []string {
	out := clean(in)
	for i, s := range out {
		s = strings.TrimPrefix(s, "/")
		out[i] = strings.TrimPrefix(strings.TrimPrefix(s, "r/"), "R/")
	}
	return clean(out)
}
