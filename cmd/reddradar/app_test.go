package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/reddradar/internal/config"
	"github.com/FranksOps/reddradar/internal/reddit"
)

func TestNewAggregator_FromConfig(t *testing.T) {
	t.Setenv("REDDIT_CLIENT_ID", "")
	t.Setenv("REDDIT_CLIENT_SECRET", "")
	t.Setenv("POSTGRES_URL", "")

	var (
		mu   sync.Mutex
		hits []time.Time
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		io.WriteString(w, `{"data":{"children":[{"kind":"t3","data":{"id":"`+r.URL.Query().Get("q")+`","title":"t","subreddit":"SaaS","permalink":"/r/SaaS/comments/x/","score":1}}]}}`)
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "reddradar.yaml")
	body := "reddit:\n" +
		"  public_url: " + ts.URL + "\n" +
		"  anonymous_delay: 40ms\n" +
		"  jitter: 0.2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	agg, err := newAggregator(c.Reddit, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newAggregator: %v", err)
	}
	leads, err := agg.SearchMany(context.Background(), []string{"SaaS"}, []string{"churn", "retention"}, reddit.SearchOptions{})
	if err != nil {
		t.Fatalf("SearchMany: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("expected one lead per keyword, got %+v", leads)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 2 {
		t.Fatalf("expected 2 public requests, got %d", len(hits))
	}
	if gap := hits[1].Sub(hits[0]); gap < 35*time.Millisecond || gap > time.Second {
		t.Errorf("expected the anonymous delay plus at most 20%% jitter between requests, got %v", gap)
	}
}
