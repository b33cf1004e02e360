package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/FranksOps/reddradar/internal/reddit"
	"github.com/FranksOps/reddradar/internal/storage"
	"github.com/FranksOps/reddradar/internal/storage/storagetest"
)

func TestSQLiteBackend(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "reddradar.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	storagetest.Run(t, b, "")
}

func TestSQLiteBackend_Memory(t *testing.T) {
	b, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if _, err := b.SaveLead(ctx, &storage.LeadRecord{Lead: reddit.Lead{ID: "m1", Subreddit: "SaaS"}}); err != nil {
		t.Fatalf("SaveLead: %v", err)
	}
	got, err := b.QueryLeads(ctx, storage.LeadFilter{})
	if err != nil {
		t.Fatalf("QueryLeads: %v", err)
	}
	if len(got) != 1 || got[0].MatchedKeywords == nil {
		t.Errorf("expected one lead with empty keyword list, got %+v", got)
	}
}

func TestSQLiteBackend_Offset(t *testing.T) {
	b, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := b.SaveReply(ctx, &storage.ReplyRecord{ID: id}); err != nil {
			t.Fatalf("SaveReply: %v", err)
		}
	}
	got, err := b.QueryReplies(ctx, storage.ReplyFilter{Offset: 1})
	if err != nil {
		t.Fatalf("QueryReplies: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" {
		t.Errorf("expected [b a] after offset, got %v", got)
	}
}

func TestSQLiteBackend_MigratesFoldedKeywords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE leads (
		id TEXT PRIMARY KEY, title TEXT NOT NULL, body TEXT NOT NULL, subreddit TEXT NOT NULL,
		url TEXT NOT NULL, score INTEGER NOT NULL, author TEXT NOT NULL, created_ms INTEGER NOT NULL,
		num_comments INTEGER NOT NULL, run_id TEXT NOT NULL, matched_keywords TEXT NOT NULL,
		first_seen_ms INTEGER NOT NULL);
	INSERT INTO leads VALUES ('old', 't', '', 'SaaS', 'u', 1, 'a', 0, 0, 'run', '["Churn"]', 0);`)
	if err != nil {
		t.Fatalf("seed old schema: %v", err)
	}
	db.Close()

	b, err := New(path)
	if err != nil {
		t.Fatalf("New on old schema: %v", err)
	}
	defer b.Close()

	got, err := b.QueryLeads(context.Background(), storage.LeadFilter{Keyword: "churn"})
	if err != nil {
		t.Fatalf("QueryLeads: %v", err)
	}
	if len(got) != 1 || got[0].MatchedKeywords[0] != "Churn" {
		t.Errorf("expected backfilled lead, got %+v", got)
	}

	// Reopening must not fail on the existing column.
	b2, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	b2.Close()
}
