// Package analyzer finds which watch keywords a Reddit post actually mentions.
package analyzer

import (
	"strings"
	"unicode"

	"github.com/FranksOps/reddradar/internal/reddit"
)

// TermMatch represents occurrences of a keyword within a post.
type TermMatch struct {
	Term      string   `json:"term"`
	PostID    string   `json:"postId"`
	Subreddit string   `json:"subreddit"`
	Count     int      `json:"count"`
	Sentences []string `json:"sentences"`
}

// FindTermMatches scans the post title and body for each term
// (case-insensitive). Terms that do not occur are omitted. For each match the
// sentences containing the term are kept in post order.
func FindTermMatches(lead reddit.Lead, terms []string) []TermMatch {
	content := postText(lead)
	if content == "" || len(terms) == 0 {
		return nil
	}

	results := make([]TermMatch, 0, len(terms))
	lowerContent := strings.ToLower(content)
	sentences := splitIntoSentences(content)

	for _, term := range terms {
		lowerTerm := strings.ToLower(strings.TrimSpace(term))
		if lowerTerm == "" {
			continue
		}
		count := strings.Count(lowerContent, lowerTerm)
		if count == 0 {
			continue
		}

		var matched []string
		for _, s := range sentences {
			if strings.Contains(s.lower, lowerTerm) {
				matched = append(matched, s.original)
			}
		}
		results = append(results, TermMatch{
			Term:      term,
			PostID:    lead.ID,
			Subreddit: lead.Subreddit,
			Count:     count,
			Sentences: matched,
		})
	}
	return results
}

// MatchedKeywords returns the distinct keywords present in the post, in the
// order given.
func MatchedKeywords(lead reddit.Lead, keywords []string) []string {
	matches := FindTermMatches(lead, keywords)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		key := strings.ToLower(strings.TrimSpace(m.Term))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(m.Term))
	}
	return out
}

func postText(lead reddit.Lead) string {
	title := strings.TrimSpace(lead.Title)
	body := strings.TrimSpace(lead.Body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	}
	if !strings.ContainsAny(title[len(title)-1:], ".!?") {
		title += "."
	}
	return title + " " + body
}

type sentence struct {
	original string
	lower    string
}

// splitIntoSentences splits text on '.', '!' or '?' while keeping the
// delimiter at the end of each sentence.
func splitIntoSentences(text string) []sentence {
	if len(text) == 0 {
		return nil
	}

	estimated := len(text) / 50
	if estimated < 1 {
		estimated = 1
	}

	sentences := make([]sentence, 0, estimated)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		sentences = append(sentences, sentence{original: s, lower: strings.ToLower(s)})
	}

	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			end := i + 1
			for end < len(text) && unicode.IsSpace(rune(text[end])) {
				end++
			}
			add(text[start:end])
			start = end
		}
	}
	if start < len(text) {
		add(text[start:])
	}
	return sentences
}
