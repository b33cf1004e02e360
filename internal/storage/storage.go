package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/FranksOps/reddradar/internal/reddit"
)

// ErrNotFound is returned when a record addressed by id does not exist.
var ErrNotFound = errors.New("record not found")

// LeadRecord is a lead as persisted by a discovery run.
type LeadRecord struct {
	reddit.Lead
	RunID           string    `json:"runId"`
	MatchedKeywords []string  `json:"matchedKeywords"`
	FirstSeen       time.Time `json:"firstSeen"`
}

// LeadFilter allows querying for specific leads. Since applies to FirstSeen.
type LeadFilter struct {
	Subreddit string
	Keyword   string
	RunID     string
	Since     *time.Time
	Limit     int
	Offset    int
}

// ReplyRecord is one generated reply kept for history and usage accounting.
type ReplyRecord struct {
	ID         string    `json:"id"`
	PostTitle  string    `json:"postTitle"`
	PostBody   string    `json:"postBody"`
	PostURL    string    `json:"postUrl"`
	Subreddit  string    `json:"subreddit"`
	Reply      string    `json:"reply"`
	Tone       string    `json:"tone"`
	Provider   string    `json:"provider"`
	TokensUsed int       `json:"tokensUsed"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ReplyFilter allows querying reply history.
type ReplyFilter struct {
	Subreddit string
	Since     *time.Time
	Limit     int
	Offset    int
}

// Usage aggregates generated replies over a period.
type Usage struct {
	Replies    int `json:"replies"`
	TokensUsed int `json:"tokensUsed"`
}

// Backend defines the interface for storing and querying leads and replies.
//
// SaveLead keys leads by post id and keeps the first record saved; inserted
// is false when the lead was already known. Replies are returned newest first.
type Backend interface {
	SaveLead(ctx context.Context, lead *LeadRecord) (inserted bool, err error)
	QueryLeads(ctx context.Context, filter LeadFilter) ([]*LeadRecord, error)
	SaveReply(ctx context.Context, reply *ReplyRecord) error
	QueryReplies(ctx context.Context, filter ReplyFilter) ([]*ReplyRecord, error)
	DeleteReply(ctx context.Context, id string) error
	Usage(ctx context.Context, since time.Time) (Usage, error)
	Close() error
}

// HasKeyword reports whether the lead matched keyword, ignoring case.
func (r *LeadRecord) HasKeyword(keyword string) bool {
	for _, k := range r.MatchedKeywords {
		if strings.EqualFold(strings.TrimSpace(k), strings.TrimSpace(keyword)) {
			return true
		}
	}
	return false
}

// Match reports whether r satisfies every field set on f.
func (f LeadFilter) Match(r *LeadRecord) bool {
	if f.Subreddit != "" && !strings.EqualFold(r.Subreddit, f.Subreddit) {
		return false
	}
	if f.Keyword != "" && !r.HasKeyword(f.Keyword) {
		return false
	}
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	if f.Since != nil && r.FirstSeen.Before(*f.Since) {
		return false
	}
	return true
}

// Match reports whether r satisfies every field set on f.
func (f ReplyFilter) Match(r *ReplyRecord) bool {
	if f.Subreddit != "" && !strings.EqualFold(r.Subreddit, f.Subreddit) {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies offset and limit to an already ordered slice. A zero limit
// means no limit.
func Page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
