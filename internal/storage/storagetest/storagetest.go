// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FranksOps/reddradar/internal/reddit"
	"github.com/FranksOps/reddradar/internal/storage"
)

// Run exercises b against the storage.Backend contract. Record ids are
// prefixed with prefix so shared databases can be reused between runs.
func Run(t *testing.T, b storage.Backend, prefix string) {
	t.Helper()
	ctx := context.Background()
	// Millisecond precision is the common denominator of the backends.
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Leads", func(t *testing.T) {
		first := &storage.LeadRecord{
			Lead: reddit.Lead{
				ID: prefix + "p1", Title: "How do you track churn?", Body: "Spreadsheets.",
				Subreddit: "SaaS", URL: "https://www.reddit.com/r/SaaS/comments/p1/", Score: 42,
				Author: "founder", Created: 1700000000500, NumComments: 7,
			},
			RunID:           prefix + "run-1",
			MatchedKeywords: []string{"churn"},
			FirstSeen:       now.Add(-time.Hour),
		}
		second := &storage.LeadRecord{
			Lead:            reddit.Lead{ID: prefix + "p2", Title: "ChartMogul alternatives", Subreddit: "startups", Score: 3},
			RunID:           prefix + "run-2",
			MatchedKeywords: []string{"ChartMogul", "churn", "Ärger"},
			FirstSeen:       now,
		}

		for _, rec := range []*storage.LeadRecord{first, second} {
			inserted, err := b.SaveLead(ctx, rec)
			if err != nil {
				t.Fatalf("SaveLead(%s): %v", rec.ID, err)
			}
			if !inserted {
				t.Fatalf("expected %s to be new", rec.ID)
			}
		}

		dup := *first
		dup.Score = 999
		dup.RunID = prefix + "run-3"
		inserted, err := b.SaveLead(ctx, &dup)
		if err != nil {
			t.Fatalf("SaveLead duplicate: %v", err)
		}
		if inserted {
			t.Error("expected duplicate lead not to be inserted")
		}

		got, err := b.QueryLeads(ctx, storage.LeadFilter{Subreddit: "saas", RunID: prefix + "run-1"})
		if err != nil {
			t.Fatalf("QueryLeads: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 lead, got %d", len(got))
		}
		r := got[0]
		if r.Score != 42 || r.Created != 1700000000500 || r.NumComments != 7 || r.Author != "founder" {
			t.Errorf("first save must win, got %+v", r)
		}
		if !r.FirstSeen.Equal(first.FirstSeen) {
			t.Errorf("FirstSeen = %v, want %v", r.FirstSeen, first.FirstSeen)
		}
		if len(r.MatchedKeywords) != 1 || r.MatchedKeywords[0] != "churn" {
			t.Errorf("unexpected keywords %v", r.MatchedKeywords)
		}

		byKeyword, err := b.QueryLeads(ctx, storage.LeadFilter{Keyword: "chartmogul", RunID: prefix + "run-2"})
		if err != nil {
			t.Fatalf("QueryLeads keyword: %v", err)
		}
		if len(byKeyword) != 1 || byKeyword[0].ID != prefix+"p2" {
			t.Errorf("expected p2 for keyword filter, got %v", byKeyword)
		}

		folded, err := b.QueryLeads(ctx, storage.LeadFilter{Keyword: "ÄRGER", RunID: prefix + "run-2"})
		if err != nil {
			t.Fatalf("QueryLeads non-ascii keyword: %v", err)
		}
		if len(folded) != 1 || folded[0].MatchedKeywords[2] != "Ärger" {
			t.Errorf("expected p2 with its keyword case kept, got %v", folded)
		}

		since := now.Add(-time.Minute)
		recent, err := b.QueryLeads(ctx, storage.LeadFilter{Since: &since, Keyword: "churn"})
		if err != nil {
			t.Fatalf("QueryLeads since: %v", err)
		}
		for _, l := range recent {
			if l.ID == prefix+"p1" {
				t.Error("since filter must exclude older leads")
			}
		}
	})

	t.Run("Replies", func(t *testing.T) {
		older := &storage.ReplyRecord{
			ID: prefix + "r1", PostTitle: "Churn?", PostURL: "https://www.reddit.com/r/SaaS/comments/p1/",
			Subreddit: "SaaS", Reply: "Try cohorts.", Tone: "helpful", Provider: "openai",
			TokensUsed: 120, CreatedAt: now.Add(-48 * time.Hour),
		}
		newer := &storage.ReplyRecord{
			ID: prefix + "r2", PostTitle: "Dunning?", Subreddit: "SaaS", Reply: "Stripe has retries.",
			Tone: "casual", Provider: "mock", CreatedAt: now,
		}
		for _, rec := range []*storage.ReplyRecord{older, newer} {
			if err := b.SaveReply(ctx, rec); err != nil {
				t.Fatalf("SaveReply(%s): %v", rec.ID, err)
			}
		}

		since := now.Add(-72 * time.Hour)
		got, err := b.QueryReplies(ctx, storage.ReplyFilter{Since: &since, Subreddit: "saas"})
		if err != nil {
			t.Fatalf("QueryReplies: %v", err)
		}
		var ours []*storage.ReplyRecord
		for _, r := range got {
			if r.ID == older.ID || r.ID == newer.ID {
				ours = append(ours, r)
			}
		}
		if len(ours) != 2 || ours[0].ID != newer.ID {
			t.Fatalf("expected newest first, got %v", ours)
		}
		if ours[1].TokensUsed != 120 || ours[1].Provider != "openai" || !ours[1].CreatedAt.Equal(older.CreatedAt) {
			t.Errorf("unexpected round trip %+v", ours[1])
		}

		limited, err := b.QueryReplies(ctx, storage.ReplyFilter{Limit: 1})
		if err != nil {
			t.Fatalf("QueryReplies limit: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 reply with limit, got %d", len(limited))
		}

		usageSince := now.Add(-24 * time.Hour)
		before, err := b.Usage(ctx, usageSince)
		if err != nil {
			t.Fatalf("Usage: %v", err)
		}
		if before.Replies < 1 {
			t.Errorf("expected at least the newer reply in usage, got %+v", before)
		}

		all, err := b.Usage(ctx, time.Time{})
		if err != nil {
			t.Fatalf("Usage all time: %v", err)
		}
		if all.Replies < 2 || all.TokensUsed < 120 || all.TokensUsed-before.TokensUsed < 120 {
			t.Errorf("expected all-time usage to include the older reply, got %+v vs %+v", all, before)
		}

		if err := b.DeleteReply(ctx, older.ID); err != nil {
			t.Fatalf("DeleteReply: %v", err)
		}
		if err := b.DeleteReply(ctx, older.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}
