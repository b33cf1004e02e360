package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/FranksOps/reddradar/internal/reddit"
	"github.com/FranksOps/reddradar/internal/reply"
	"github.com/FranksOps/reddradar/internal/storage"
	"github.com/FranksOps/reddradar/internal/storage/jsonbackend"
)

// fakeSource implements LeadSource for testing.
type fakeSource struct {
	leads    []reddit.Lead
	err      error
	keywords []string
	subs     []string
	sort     string
}

func (f *fakeSource) SearchMany(ctx context.Context, subreddits, keywords []string, opts reddit.SearchOptions) ([]reddit.Lead, error) {
	f.subs, f.keywords = subreddits, keywords
	return f.leads, f.err
}

func (f *fakeSource) Listing(ctx context.Context, subreddits []string, opts reddit.ListingOptions) ([]reddit.Lead, error) {
	f.subs, f.sort = subreddits, opts.Sort
	return f.leads, f.err
}

// failingStore refuses every write.
type failingStore struct{ storage.Backend }

func (failingStore) SaveLead(ctx context.Context, lead *storage.LeadRecord) (bool, error) {
	return false, errors.New("disk full")
}

func (failingStore) SaveReply(ctx context.Context, r *storage.ReplyRecord) error {
	return errors.New("disk full")
}

type fakeGenerator struct{ res reply.GeneratedReply }

func (f fakeGenerator) Generate(ctx context.Context, c reply.Context) reply.GeneratedReply {
	return f.res
}

func watchlist() Watchlist {
	return Watchlist{
		Subreddits:      []string{"SaaS", "startups"},
		ProblemKeywords: []string{" churn ", ""},
		Competitors:     []string{"ChartMogul"},
	}
}

func leads() []reddit.Lead {
	return []reddit.Lead{
		{ID: "p1", Title: "Churn is brutal", Subreddit: "SaaS", Score: 10},
		{ID: "p2", Title: "Leaving ChartMogul", Body: "churn tooling", Subreddit: "startups", Score: 4},
	}
}

func newStore(t *testing.T) storage.Backend {
	t.Helper()
	b, err := jsonbackend.New(t.TempDir())
	if err != nil {
		t.Fatalf("jsonbackend.New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestWatchlist_Keywords(t *testing.T) {
	got := watchlist().Keywords()
	if !reflect.DeepEqual(got, []string{"churn", "ChartMogul"}) {
		t.Errorf("Keywords() = %v", got)
	}
	if got := (Watchlist{}).Keywords(); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil keywords, got %v", got)
	}
}

func TestDiscover(t *testing.T) {
	src := &fakeSource{leads: leads()}
	store := newStore(t)
	p := &Pipeline{Leads: src, Store: store}

	d, err := p.Discover(context.Background(), watchlist(), reddit.SearchOptions{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !reflect.DeepEqual(src.keywords, []string{"churn", "ChartMogul"}) {
		t.Errorf("unexpected keywords passed to source: %v", src.keywords)
	}
	if d.RunID == "" || d.New != 2 || len(d.Leads) != 2 {
		t.Fatalf("unexpected discovery %+v", d)
	}
	if d.Leads[0].ID != "p1" || d.Leads[1].ID != "p2" {
		t.Errorf("expected source order kept")
	}
	if !reflect.DeepEqual(d.Leads[1].MatchedKeywords, []string{"churn", "ChartMogul"}) {
		t.Errorf("unexpected matched keywords %v", d.Leads[1].MatchedKeywords)
	}

	stored, err := store.QueryLeads(context.Background(), storage.LeadFilter{RunID: d.RunID})
	if err != nil {
		t.Fatalf("QueryLeads: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("expected 2 stored leads, got %d", len(stored))
	}

	src.leads = append(leads(), reddit.Lead{ID: "p3", Title: "new post", Subreddit: "SaaS"})
	again, err := p.Discover(context.Background(), watchlist(), reddit.SearchOptions{})
	if err != nil {
		t.Fatalf("Discover again: %v", err)
	}
	if again.New != 1 || len(again.Leads) != 3 {
		t.Errorf("expected 1 new lead on second run, got %d of %d", again.New, len(again.Leads))
	}
	if again.RunID == d.RunID {
		t.Error("expected a fresh run id")
	}
}

func TestDiscover_NoStoreCountsAllNew(t *testing.T) {
	p := &Pipeline{Leads: &fakeSource{leads: leads()}}
	d, err := p.Discover(context.Background(), watchlist(), reddit.SearchOptions{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if d.New != 2 {
		t.Errorf("expected every lead new without storage, got %d", d.New)
	}
}

func TestDiscover_StorageFailureIsNotFatal(t *testing.T) {
	p := &Pipeline{Leads: &fakeSource{leads: leads()}, Store: failingStore{}}
	d, err := p.Discover(context.Background(), watchlist(), reddit.SearchOptions{})
	if err != nil {
		t.Fatalf("storage failure must not fail discovery: %v", err)
	}
	if len(d.Leads) != 2 || d.New != 0 {
		t.Errorf("unexpected discovery %+v", d)
	}
}

func TestDiscover_Errors(t *testing.T) {
	p := &Pipeline{Leads: &fakeSource{err: reddit.ErrAuthRequired}}
	if _, err := p.Discover(context.Background(), watchlist(), reddit.SearchOptions{}); !errors.Is(err, reddit.ErrAuthRequired) {
		t.Errorf("expected ErrAuthRequired, got %v", err)
	}

	partial := &Pipeline{Leads: &fakeSource{leads: leads()[:1], err: context.Canceled}, Store: newStore(t)}
	d, err := partial.Discover(context.Background(), watchlist(), reddit.SearchOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if d == nil || len(d.Leads) != 1 || d.New != 0 {
		t.Errorf("expected partial unstored discovery, got %+v", d)
	}

	if _, err := (&Pipeline{}).Discover(context.Background(), watchlist(), reddit.SearchOptions{}); !errors.Is(err, ErrNoLeadSource) {
		t.Errorf("expected ErrNoLeadSource, got %v", err)
	}
}

func TestBrowse(t *testing.T) {
	src := &fakeSource{leads: leads()}
	p := &Pipeline{Leads: src}
	d, err := p.Browse(context.Background(), watchlist(), reddit.ListingOptions{Sort: "new"})
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if src.sort != "new" || len(d.Leads) != 2 {
		t.Errorf("unexpected browse %+v (sort %q)", d, src.sort)
	}
	if !reflect.DeepEqual(d.Leads[0].MatchedKeywords, []string{"churn"}) {
		t.Errorf("expected annotation on browsed leads, got %v", d.Leads[0].MatchedKeywords)
	}
}

func TestReply_RecordsHistory(t *testing.T) {
	store := newStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Pipeline{
		Replies: fakeGenerator{res: reply.GeneratedReply{Text: "Try cohorts.", Tone: reply.StyleCasual, Provider: "openai", TokensUsed: 88, AIConfigured: true}},
		Store:   store,
		now:     func() time.Time { return fixed },
	}

	c := reply.Context{PostTitle: "Churn?", Subreddit: "SaaS"}
	res, err := p.Reply(context.Background(), c, "https://www.reddit.com/r/SaaS/comments/p1/")
	if err != nil || res.Text != "Try cohorts." {
		t.Fatalf("Reply() = %+v, %v", res, err)
	}

	history, err := store.QueryReplies(context.Background(), storage.ReplyFilter{})
	if err != nil {
		t.Fatalf("QueryReplies: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history))
	}
	h := history[0]
	if h.ID == "" || h.Tone != "casual" || h.TokensUsed != 88 || h.PostURL == "" || !h.CreatedAt.Equal(fixed) {
		t.Errorf("unexpected history record %+v", h)
	}

	usage, err := store.Usage(context.Background(), fixed.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.Replies != 1 || usage.TokensUsed != 88 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestReply_StorageFailureIsNotFatal(t *testing.T) {
	p := &Pipeline{Replies: fakeGenerator{res: reply.GeneratedReply{Text: "ok"}}, Store: failingStore{}}
	if res, err := p.Reply(context.Background(), reply.Context{}, ""); err != nil || res.Text != "ok" {
		t.Errorf("Reply() = %+v, %v", res, err)
	}
	if _, err := (&Pipeline{}).Reply(context.Background(), reply.Context{}, ""); err == nil {
		t.Error("expected error without a generator")
	}
}
