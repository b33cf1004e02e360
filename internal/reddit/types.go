// Package reddit discovers leads on Reddit: it manages the OAuth app token,
// searches individual subreddits and aggregates the results of a watchlist.
package reddit

import (
	"errors"
	"slices"
	"strings"
)

const (
	DefaultUserAgent = "RedditRadar/1.0.0"
	DefaultAuthURL   = "https://www.reddit.com/api/v1/access_token"
	DefaultAPIURL    = "https://oauth.reddit.com"
	DefaultPublicURL = "https://www.reddit.com"

	// permalinkBase prefixes post permalinks regardless of the endpoint used.
	permalinkBase = "https://www.reddit.com"

	DefaultLimit = 10
	DefaultTime  = "week"
	// MaxLimit is the largest page Reddit returns for one request.
	MaxLimit = 100
)

// ErrAuthRequired is returned when OAuth is mandatory but no credentials are
// configured.
var ErrAuthRequired = errors.New("reddit: credentials required but not configured")

// TimeWindows lists the values Reddit accepts for the t parameter.
var TimeWindows = []string{"hour", "day", "week", "month", "year", "all"}

// ListingSorts lists the subreddit listings supported by Listing.
var ListingSorts = []string{"hot", "new", "top", "rising"}

// ValidTime reports whether t is a search time window Reddit understands.
func ValidTime(t string) bool { return slices.Contains(TimeWindows, t) }

// ValidSort reports whether s names a supported listing.
func ValidSort(s string) bool { return slices.Contains(ListingSorts, s) }

// Credentials identify a Reddit "script" app. The zero value means anonymous
// access.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both halves of the pair are present.
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// Lead is a post that matched the watchlist.
type Lead struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Subreddit   string `json:"subreddit"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Author      string `json:"author"`
	Created     int64  `json:"created"` // epoch millis
	NumComments int    `json:"numComments"`
}

// Post is a raw link record as Reddit returns it.
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Subreddit   string  `json:"subreddit"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	NumComments int     `json:"num_comments"`
}

// Lead converts the raw record.
func (p Post) Lead() Lead {
	return Lead{
		ID:          p.ID,
		Title:       p.Title,
		Body:        p.Selftext,
		Subreddit:   p.Subreddit,
		URL:         permalinkBase + p.Permalink,
		Score:       p.Score,
		Author:      p.Author,
		Created:     int64(p.CreatedUTC * 1000),
		NumComments: p.NumComments,
	}
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data Post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (l listing) posts() []Post {
	out := make([]Post, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		if c.Data.ID == "" {
			continue
		}
		out = append(out, c.Data)
	}
	return out
}

// SearchOptions bound a single subreddit search.
type SearchOptions struct {
	Limit int
	Time  string
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Time == "" {
		o.Time = DefaultTime
	}
	return o
}

// ListingOptions bound a subreddit listing.
type ListingOptions struct {
	Sort  string
	Limit int
}

func (o ListingOptions) withDefaults() ListingOptions {
	if o.Sort == "" {
		o.Sort = "hot"
	}
	if o.Limit <= 0 {
		o.Limit = 25
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	return o
}
