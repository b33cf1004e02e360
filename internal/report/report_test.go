package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/reddradar/internal/reddit"
	"github.com/FranksOps/reddradar/internal/storage"
)

func sampleLeads() []*storage.LeadRecord {
	return []*storage.LeadRecord{
		{
			Lead: reddit.Lead{
				ID: "p1", Title: "How do you track churn?", Subreddit: "SaaS", Score: 42,
				URL: "https://www.reddit.com/r/SaaS/comments/p1/", Author: "founder",
				Created: 1700000000000, NumComments: 7,
			},
			MatchedKeywords: []string{"churn"},
			RunID:           "run-1",
		},
		{
			Lead: reddit.Lead{
				ID: "p2", Title: "ChartMogul <alternatives>", Subreddit: "startups", Score: 5,
				URL: "https://www.reddit.com/r/startups/comments/p2/", Created: 1700003600000,
			},
			MatchedKeywords: []string{"ChartMogul", "Churn"},
		},
		{
			Lead: reddit.Lead{ID: "p3", Title: "Pricing", Subreddit: "SaaS", Score: -2, Created: 1699996400000},
		},
	}
}

func TestGenerateSummary(t *testing.T) {
	summary := GenerateSummary(sampleLeads())

	if summary.TotalLeads != 3 {
		t.Errorf("expected 3 leads, got %d", summary.TotalLeads)
	}
	if summary.BySubreddit["SaaS"] != 2 || summary.BySubreddit["startups"] != 1 {
		t.Errorf("unexpected subreddit counts %v", summary.BySubreddit)
	}
	if summary.KeywordHits["churn"] != 2 || summary.KeywordHits["chartmogul"] != 1 {
		t.Errorf("unexpected keyword hits %v", summary.KeywordHits)
	}
	if summary.TopScore != 42 {
		t.Errorf("expected top score 42, got %d", summary.TopScore)
	}
	if !summary.Oldest.Equal(time.UnixMilli(1699996400000)) || !summary.Newest.Equal(time.UnixMilli(1700003600000)) {
		t.Errorf("unexpected range %v - %v", summary.Oldest, summary.Newest)
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	summary := GenerateSummary(nil)
	if summary.TotalLeads != 0 || summary.Leads == nil || !summary.Newest.IsZero() {
		t.Errorf("unexpected empty summary %+v", summary)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, GenerateSummary(sampleLeads())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"totalLeads": 3`, `"id": "p1"`, `"matchedKeywords": [`, `"numComments": 7`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected JSON to contain %s", want)
		}
	}
}

func TestWriteText(t *testing.T) {
	summary := GenerateSummary(sampleLeads())
	summary.NewLeads = 2

	var buf bytes.Buffer
	if err := WriteText(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Leads:         3 (2 new)",
		"r/SaaS: 2",
		"[42] r/SaaS How do you track churn?",
		"2023-11-14 22:13 by u/founder, 7 comments, matched: churn",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected text to contain %q:\n%s", want, out)
		}
	}
}

func TestWriteText_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, GenerateSummary(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), "Posted:") || !strings.Contains(buf.String(), "None") {
		t.Errorf("unexpected empty report:\n%s", buf.String())
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, GenerateSummary(sampleLeads())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Reddit Radar Leads</title>") {
		t.Errorf("expected HTML title")
	}
	if !strings.Contains(out, "ChartMogul &lt;alternatives&gt;") {
		t.Errorf("expected escaped post title")
	}
	if !strings.Contains(out, `href="https://www.reddit.com/r/SaaS/comments/p1/"`) {
		t.Errorf("expected post link")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, GenerateSummary(sampleLeads())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[1][0] != "p1" || rows[2][8] != "ChartMogul;Churn" {
		t.Errorf("unexpected rows %v", rows)
	}
	if rows[1][6] != "2023-11-14T22:13:20Z" {
		t.Errorf("unexpected created column %q", rows[1][6])
	}
}

func TestWrite_Formats(t *testing.T) {
	summary := GenerateSummary(sampleLeads())
	for _, f := range Formats {
		var buf bytes.Buffer
		if err := Write(&buf, f, summary); err != nil {
			t.Errorf("Write(%s): %v", f, err)
		}
		if buf.Len() == 0 {
			t.Errorf("Write(%s) produced no output", f)
		}
	}
	if err := Write(&bytes.Buffer{}, "xml", summary); err == nil {
		t.Error("expected error for unknown format")
	}
}
