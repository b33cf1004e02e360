// Package pipeline is the calling layer: it runs the watchlist through the
// aggregator, annotates leads with the keywords they mention, and records
// leads and generated replies in storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/reddradar/internal/analyzer"
	"github.com/FranksOps/reddradar/internal/reddit"
	"github.com/FranksOps/reddradar/internal/reply"
	"github.com/FranksOps/reddradar/internal/storage"
	"github.com/google/uuid"
)

// LeadSource gathers leads across subreddits. *reddit.Aggregator implements it.
type LeadSource interface {
	SearchMany(ctx context.Context, subreddits, keywords []string, opts reddit.SearchOptions) ([]reddit.Lead, error)
	Listing(ctx context.Context, subreddits []string, opts reddit.ListingOptions) ([]reddit.Lead, error)
}

// ReplyGenerator drafts replies. *reply.Generator implements it.
type ReplyGenerator interface {
	Generate(ctx context.Context, c reply.Context) reply.GeneratedReply
}

var (
	_ LeadSource     = (*reddit.Aggregator)(nil)
	_ ReplyGenerator = (*reply.Generator)(nil)
)

// ErrNoLeadSource is returned by Discover and Browse when Leads is nil.
var ErrNoLeadSource = errors.New("pipeline has no lead source")

// Watchlist is what a user monitors: the forums plus the problem keywords and
// competitor names to search them for.
type Watchlist struct {
	Subreddits      []string `mapstructure:"subreddits" json:"subreddits"`
	ProblemKeywords []string `mapstructure:"problem_keywords" json:"problemKeywords"`
	Competitors     []string `mapstructure:"competitors" json:"competitors"`
}

// Keywords returns problem keywords followed by competitor names, trimmed,
// with empties dropped.
func (w Watchlist) Keywords() []string {
	out := make([]string, 0, len(w.ProblemKeywords)+len(w.Competitors))
	for _, group := range [][]string{w.ProblemKeywords, w.Competitors} {
		for _, k := range group {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
	}
	return out
}

// Discovery is the outcome of one run over a watchlist.
type Discovery struct {
	RunID     string                `json:"runId"`
	StartedAt time.Time             `json:"startedAt"`
	Duration  time.Duration         `json:"duration"`
	Leads     []*storage.LeadRecord `json:"leads"`
	New       int                   `json:"new"`
}

// Pipeline wires a lead source, a reply generator and optional storage.
// Store may be nil, in which case nothing is recorded and every lead counts
// as new.
type Pipeline struct {
	Leads   LeadSource
	Replies ReplyGenerator
	Store   storage.Backend
	Logger  *slog.Logger

	now func() time.Time
}

// Discover searches every watchlist subreddit for every keyword. Leads keep
// the aggregator's ranking. When the context is canceled mid-run the leads
// gathered so far are returned together with the context error and are not
// stored.
func (p *Pipeline) Discover(ctx context.Context, w Watchlist, opts reddit.SearchOptions) (*Discovery, error) {
	if p.Leads == nil {
		return nil, ErrNoLeadSource
	}
	d := p.start()

	keywords := w.Keywords()
	leads, err := p.Leads.SearchMany(ctx, w.Subreddits, keywords, opts)
	if err != nil && leads == nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	p.finish(ctx, d, leads, keywords, err == nil)
	p.logger().Info("discovery finished",
		"run", d.RunID, "subreddits", len(w.Subreddits), "keywords", len(keywords),
		"leads", len(d.Leads), "new", d.New, "duration", d.Duration)

	if err != nil {
		return d, fmt.Errorf("discover: %w", err)
	}
	return d, nil
}

// Browse lists subreddit feeds without a query. Leads are annotated with the
// watchlist keywords they mention and stored like discovered leads.
func (p *Pipeline) Browse(ctx context.Context, w Watchlist, opts reddit.ListingOptions) (*Discovery, error) {
	if p.Leads == nil {
		return nil, ErrNoLeadSource
	}
	d := p.start()

	leads, err := p.Leads.Listing(ctx, w.Subreddits, opts)
	if err != nil && leads == nil {
		return nil, fmt.Errorf("browse: %w", err)
	}

	p.finish(ctx, d, leads, w.Keywords(), err == nil)
	if err != nil {
		return d, fmt.Errorf("browse: %w", err)
	}
	return d, nil
}

// Reply drafts a reply with the generator and records it. postURL is kept
// with the history record when known.
func (p *Pipeline) Reply(ctx context.Context, c reply.Context, postURL string) (reply.GeneratedReply, error) {
	if p.Replies == nil {
		return reply.GeneratedReply{}, errors.New("pipeline has no reply generator")
	}
	res := p.Replies.Generate(ctx, c)

	if p.Store != nil {
		rec := &storage.ReplyRecord{
			ID:         uuid.NewString(),
			PostTitle:  c.PostTitle,
			PostBody:   c.PostBody,
			PostURL:    postURL,
			Subreddit:  c.Subreddit,
			Reply:      res.Text,
			Tone:       string(res.Tone),
			Provider:   res.Provider,
			TokensUsed: res.TokensUsed,
			CreatedAt:  p.clock(),
		}
		if err := p.Store.SaveReply(ctx, rec); err != nil {
			p.logger().Warn("failed to save reply history", "subreddit", c.Subreddit, "err", err)
		}
	}
	return res, nil
}

func (p *Pipeline) start() *Discovery {
	return &Discovery{RunID: uuid.NewString(), StartedAt: p.clock()}
}

func (p *Pipeline) finish(ctx context.Context, d *Discovery, leads []reddit.Lead, keywords []string, persist bool) {
	d.Leads = make([]*storage.LeadRecord, 0, len(leads))
	for _, l := range leads {
		rec := &storage.LeadRecord{
			Lead:            l,
			RunID:           d.RunID,
			MatchedKeywords: analyzer.MatchedKeywords(l, keywords),
			FirstSeen:       d.StartedAt,
		}
		d.Leads = append(d.Leads, rec)

		if p.Store == nil {
			d.New++
			continue
		}
		if !persist {
			continue
		}
		inserted, err := p.Store.SaveLead(ctx, rec)
		if err != nil {
			p.logger().Warn("failed to save lead", "id", l.ID, "subreddit", l.Subreddit, "err", err)
			continue
		}
		if inserted {
			d.New++
		}
	}
	d.Duration = p.clock().Sub(d.StartedAt)
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now().UTC()
}
