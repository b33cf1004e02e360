package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/reddradar/internal/storage"
)

// Summary contains aggregated figures about a set of leads.
type Summary struct {
	TotalLeads  int                   `json:"totalLeads"`
	NewLeads    int                   `json:"newLeads"`
	BySubreddit map[string]int        `json:"bySubreddit"`
	KeywordHits map[string]int        `json:"keywordHits"`
	TopScore    int                   `json:"topScore"`
	Newest      time.Time             `json:"newest"`
	Oldest      time.Time             `json:"oldest"`
	Leads       []*storage.LeadRecord `json:"leads"`
}

// GenerateSummary processes leads, assumed already ranked, into summary
// figures. Post times come from the lead's creation instant.
func GenerateSummary(leads []*storage.LeadRecord) Summary {
	s := Summary{
		BySubreddit: make(map[string]int),
		KeywordHits: make(map[string]int),
		Leads:       leads,
	}
	if s.Leads == nil {
		s.Leads = []*storage.LeadRecord{}
	}

	if len(leads) == 0 {
		return s
	}

	s.TopScore = leads[0].Score
	for _, l := range leads {
		s.TotalLeads++
		s.BySubreddit[l.Subreddit]++
		for _, k := range l.MatchedKeywords {
			s.KeywordHits[strings.ToLower(k)]++
		}
		if l.Score > s.TopScore {
			s.TopScore = l.Score
		}

		created := time.UnixMilli(l.Created).UTC()
		if s.Newest.IsZero() || created.After(s.Newest) {
			s.Newest = created
		}
		if s.Oldest.IsZero() || created.Before(s.Oldest) {
			s.Oldest = created
		}
	}

	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

var funcs = map[string]any{
	"keywords": func(l *storage.LeadRecord) string { return strings.Join(l.MatchedKeywords, ", ") },
	"posted": func(millis int64) string {
		return time.UnixMilli(millis).UTC().Format("2006-01-02 15:04")
	},
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Reddit Radar Leads
------------------
Leads:         {{.TotalLeads}}{{if .NewLeads}} ({{.NewLeads}} new){{end}}
Top Score:     {{.TopScore}}
{{- if .TotalLeads}}
Posted:        {{.Oldest.Format "2006-01-02 15:04"}} - {{.Newest.Format "2006-01-02 15:04"}}
{{- end}}

Subreddits:
{{- range $sub, $count := .BySubreddit}}
  r/{{$sub}}: {{$count}}
{{- else}}
  None
{{- end}}

Keywords:
{{- range $kw, $count := .KeywordHits}}
  {{$kw}}: {{$count}}
{{- else}}
  None
{{- end}}
{{range .Leads}}
[{{.Score}}] r/{{.Subreddit}} {{.Title}}
    {{.URL}}
    {{posted .Created}} by u/{{.Author}}, {{.NumComments}} comments{{with keywords .}}, matched: {{.}}{{end}}
{{- end}}
`

	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer. Post content is
// escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Reddit Radar Leads</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Reddit Radar Leads</h1>

  <div class="stat-card">
    <div>Leads</div>
    <div class="stat-val">{{.TotalLeads}}</div>
  </div>
  <div class="stat-card">
    <div>New</div>
    <div class="stat-val" style="color: {{if gt .NewLeads 0}}green{{else}}#333{{end}};">{{.NewLeads}}</div>
  </div>
  <div class="stat-card">
    <div>Top Score</div>
    <div class="stat-val">{{.TopScore}}</div>
  </div>

  <h3>Subreddits</h3>
  <table>
    <tr><th>Subreddit</th><th>Leads</th></tr>
    {{- range $sub, $count := .BySubreddit}}
    <tr><td>r/{{$sub}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Leads</h3>
  <table>
    <tr><th>Score</th><th>Subreddit</th><th>Post</th><th>Comments</th><th>Matched</th></tr>
    {{- range .Leads}}
    <tr><td>{{.Score}}</td><td>r/{{.Subreddit}}</td><td><a href="{{.URL}}">{{.Title}}</a></td><td>{{.NumComments}}</td><td>{{keywords .}}</td></tr>
    {{- else}}
    <tr><td colspan="5">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Funcs(funcs).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}

var csvHeaders = []string{
	"id",
	"subreddit",
	"title",
	"url",
	"score",
	"author",
	"created",
	"num_comments",
	"matched_keywords",
	"run_id",
	"first_seen",
}

// WriteCSV writes one row per lead, in summary order.
func WriteCSV(w io.Writer, summary Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, l := range summary.Leads {
		firstSeen := ""
		if !l.FirstSeen.IsZero() {
			firstSeen = l.FirstSeen.UTC().Format(time.RFC3339)
		}
		row := []string{
			l.ID,
			l.Subreddit,
			l.Title,
			l.URL,
			strconv.Itoa(l.Score),
			l.Author,
			time.UnixMilli(l.Created).UTC().Format(time.RFC3339),
			strconv.Itoa(l.NumComments),
			strings.Join(l.MatchedKeywords, ";"),
			l.RunID,
			firstSeen,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", l.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Formats lists the names accepted by Write.
var Formats = []string{"text", "json", "csv", "html"}

// Write renders summary in the named format.
func Write(w io.Writer, format string, summary Summary) error {
	switch strings.ToLower(format) {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "csv":
		return WriteCSV(w, summary)
	case "html":
		return WriteHTML(w, summary)
	}
	return fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(Formats, ", "))
}
