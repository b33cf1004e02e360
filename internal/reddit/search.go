package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/reddradar/internal/bypass"
	"github.com/FranksOps/reddradar/internal/metrics"
)

const maxBodySize = 4 << 20

// SearchError describes a request Reddit refused or answered unusably.
type SearchError struct {
	Subreddit  string
	StatusCode int
	// Reason is the bypass detector that matched, "status" for any other
	// non-2xx answer and "decode" for a malformed payload.
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *SearchError) Error() string {
	msg := fmt.Sprintf("r/%s: %s", e.Subreddit, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SearchError) Unwrap() error { return e.Err }

// SearcherConfig configures a Searcher.
type SearcherConfig struct {
	Client    Doer
	Tokens    *TokenManager
	APIURL    string
	PublicURL string
	UserAgent string
	Detectors []bypass.Detector
	Logger    *slog.Logger
}

// Searcher issues single-subreddit queries. With a token it uses the OAuth
// API; otherwise the public JSON endpoints, which have a smaller budget.
type Searcher struct {
	client    Doer
	tokens    *TokenManager
	apiURL    string
	publicURL string
	userAgent string
	detectors []bypass.Detector
	logger    *slog.Logger
}

// NewSearcher creates a Searcher. A nil Tokens keeps it anonymous.
func NewSearcher(cfg SearcherConfig) *Searcher {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = DefaultPublicURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Searcher{
		client:    cfg.Client,
		tokens:    cfg.Tokens,
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		userAgent: cfg.UserAgent,
		detectors: cfg.Detectors,
		logger:    cfg.Logger,
	}
}

// Authenticated reports whether the searcher will attempt the OAuth API.
func (s *Searcher) Authenticated() bool {
	return s.tokens.Configured()
}

type sessionKey struct{}

type session struct {
	token  string
	authed bool
}

// Session resolves a token once for the next request. Search and Listing
// called with the returned context reuse that decision instead of asking the
// TokenManager again, so a failing exchange is attempted once per request.
func (s *Searcher) Session(ctx context.Context) (context.Context, bool) {
	token, ok := s.tokens.Token(ctx)
	return context.WithValue(ctx, sessionKey{}, session{token: token, authed: ok}), ok
}

func (s *Searcher) access(ctx context.Context) (string, bool) {
	if sess, ok := ctx.Value(sessionKey{}).(session); ok {
		return sess.token, sess.authed
	}
	return s.tokens.Token(ctx)
}

// Search queries one subreddit, restricted to that subreddit.
func (s *Searcher) Search(ctx context.Context, subreddit, query string, opts SearchOptions) ([]Post, error) {
	opts = opts.withDefaults()
	params := url.Values{}
	params.Set("q", query)
	params.Set("restrict_sr", "true")
	params.Set("sort", "relevance")
	params.Set("t", opts.Time)
	params.Set("limit", strconv.Itoa(opts.Limit))
	return s.fetch(ctx, subreddit, "search", params)
}

// Listing returns a subreddit's hot, new, top or rising posts.
func (s *Searcher) Listing(ctx context.Context, subreddit string, opts ListingOptions) ([]Post, error) {
	opts = opts.withDefaults()
	if !ValidSort(opts.Sort) {
		return nil, fmt.Errorf("unknown listing sort %q", opts.Sort)
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(opts.Limit))
	return s.fetch(ctx, subreddit, opts.Sort, params)
}

func (s *Searcher) fetch(ctx context.Context, subreddit, endpoint string, params url.Values) ([]Post, error) {
	if s.client == nil {
		return nil, fmt.Errorf("r/%s: no http client configured", subreddit)
	}
	params.Set("raw_json", "1")

	token, authed := s.access(ctx)
	mode := metrics.ModeAnonymous
	target := fmt.Sprintf("%s/r/%s/%s.json?%s", s.publicURL, url.PathEscape(subreddit), endpoint, params.Encode())
	if authed {
		mode = metrics.ModeOAuth
		target = fmt.Sprintf("%s/r/%s/%s?%s", s.apiURL, url.PathEscape(subreddit), endpoint, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	s.logger.Debug("reddit request", "subreddit", subreddit, "endpoint", endpoint, "mode", mode)

	start := time.Now()
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		metrics.RecordSearch(mode, "error", time.Since(start))
		metrics.RecordSearchFailure("transport")
		return nil, &SearchError{Subreddit: subreddit, Reason: "transport", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	metrics.RecordSearch(mode, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		metrics.RecordSearchFailure("transport")
		return nil, &SearchError{Subreddit: subreddit, StatusCode: resp.StatusCode, Reason: "transport", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized && authed {
			s.tokens.Invalidate()
		}
		serr := &SearchError{Subreddit: subreddit, StatusCode: resp.StatusCode, Reason: "status"}
		det, blocked := bypass.Analyze(&bypass.Response{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			Body:       body,
		}, s.detectors)
		if blocked {
			serr.Reason = det.Source
			serr.RetryAfter = det.RetryAfter
		}
		metrics.RecordSearchFailure(serr.Reason)
		return nil, serr
	}

	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		metrics.RecordSearchFailure("decode")
		return nil, &SearchError{Subreddit: subreddit, StatusCode: resp.StatusCode, Reason: "decode", Err: err}
	}
	return l.posts(), nil
}
