package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/reddradar/internal/storage"
	"github.com/FranksOps/reddradar/internal/storage/jsonbackend"
)

// execute runs the root command with args against a config file in dir and
// returns stdout.
func execute(t *testing.T, configFile string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--config", configFile, "--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupConfig(t *testing.T) (string, string) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "POSTGRES_URL"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	body := "product:\n  name: ChurnBuster\n  target_audience: SaaS founders\n" +
		"storage:\n  driver: json\n  dsn: " + dataDir + "\n"
	path := filepath.Join(dir, "reddradar.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dataDir
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"leads", "listing", "reply", "history", "usage", "watch"}
	for _, name := range want {
		c, _, err := rootCmd.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Errorf("command %s not registered", name)
		}
	}
	if f := leadsCmd.Flags().Lookup("format"); f == nil || f.DefValue != "text" {
		t.Errorf("leads --format missing or wrong default")
	}
	if f := listingCmd.Flags().Lookup("sort"); f == nil || f.DefValue != "hot" {
		t.Errorf("listing --sort missing or wrong default")
	}
}

func TestReplyHistoryUsage(t *testing.T) {
	path, _ := setupConfig(t)

	out, err := execute(t, path, "reply", "--title", "How do you handle churn?", "--subreddit", "r/SaaS", "--style", "casual", "--url", "https://www.reddit.com/r/SaaS/comments/p1/")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	var res struct {
		Reply        string   `json:"reply"`
		Tone         string   `json:"tone"`
		Tips         []string `json:"tips"`
		AIConfigured bool     `json:"aiConfigured"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode reply output %q: %v", out, err)
	}
	if res.AIConfigured || res.Tone != "casual" || !strings.Contains(res.Reply, "ChurnBuster") || len(res.Tips) == 0 {
		t.Errorf("unexpected reply %+v", res)
	}

	out, err = execute(t, path, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "r/SaaS") || !strings.Contains(out, "How do you handle churn?") {
		t.Errorf("unexpected history output:\n%s", out)
	}

	out, err = execute(t, path, "usage")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if !strings.Contains(out, "All time: 1 replies, 0 tokens") {
		t.Errorf("unexpected usage output:\n%s", out)
	}
}

func TestHistoryDelete(t *testing.T) {
	path, dataDir := setupConfig(t)

	store, err := jsonbackend.New(dataDir)
	if err != nil {
		t.Fatalf("jsonbackend.New: %v", err)
	}
	rec := &storage.ReplyRecord{ID: "r-1", Subreddit: "startups", PostTitle: "Pricing", Reply: "hi", CreatedAt: time.Now().UTC()}
	if err := store.SaveReply(context.Background(), rec); err != nil {
		t.Fatalf("SaveReply: %v", err)
	}
	store.Close()

	out, err := execute(t, path, "history", "--delete", "r-1")
	if err != nil || !strings.Contains(out, "deleted r-1") {
		t.Fatalf("history --delete = %q, %v", out, err)
	}
	if _, err := execute(t, path, "history", "--delete", "r-1"); err == nil {
		t.Error("expected error deleting a missing reply")
	}
	historyFlags.remove = ""
}

func TestReply_RequiresProduct(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	path := filepath.Join(t.TempDir(), "reddradar.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := execute(t, path, "reply", "--title", "x", "--subreddit", "SaaS"); err == nil || !strings.Contains(err.Error(), "product.name") {
		t.Errorf("expected product.name error, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate long = %q", got)
	}
}
