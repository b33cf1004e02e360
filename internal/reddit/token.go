package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FranksOps/reddradar/internal/metrics"
)

// tokenSafetyMargin is how close to expiry a cached token stops being handed out.
const tokenSafetyMargin = 60 * time.Second

// DefaultTokenTimeout bounds one shared client-credentials exchange.
const DefaultTokenTimeout = 30 * time.Second

// Doer executes HTTP requests; *httpclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// TokenConfig configures a TokenManager.
type TokenConfig struct {
	Credentials Credentials
	AuthURL     string
	UserAgent   string
	Client      Doer
	// Timeout bounds the exchange, which runs detached from any single
	// caller's cancellation. Default DefaultTokenTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenManager acquires and caches an application-only OAuth token using the
// client-credentials grant. It is safe for concurrent use; concurrent callers
// share a single exchange.
type TokenManager struct {
	creds     Credentials
	authURL   string
	userAgent string
	client    Doer
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cached *cachedToken
	group  singleflight.Group
}

// NewTokenManager creates a TokenManager. Missing credentials are valid and
// put every caller on the anonymous path.
func NewTokenManager(cfg TokenConfig) *TokenManager {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTokenTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TokenManager{
		creds:     cfg.Credentials,
		authURL:   cfg.AuthURL,
		userAgent: cfg.UserAgent,
		client:    cfg.Client,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Configured reports whether credentials are present.
func (m *TokenManager) Configured() bool {
	return m != nil && m.creds.Configured() && m.client != nil
}

// Token returns a bearer token, or false when the caller must use anonymous
// access: either no credentials are configured or the exchange failed. It
// never returns an error; failures are logged.
//
// Concurrent callers share one exchange. It is not tied to any caller's
// context: a caller whose ctx ends stops waiting and goes anonymous, while
// the others still receive the token.
func (m *TokenManager) Token(ctx context.Context) (string, bool) {
	if !m.Configured() {
		return "", false
	}
	if tok, ok := m.valid(); ok {
		return tok, true
	}

	ch := m.group.DoChan("token", func() (any, error) {
		// Another caller may have refreshed the slot while we queued.
		if tok, ok := m.valid(); ok {
			return tok, nil
		}
		exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		tok, ttl, err := m.exchange(exCtx)
		if err != nil {
			metrics.TokenExchangesTotal.WithLabelValues("failure").Inc()
			return "", err
		}
		metrics.TokenExchangesTotal.WithLabelValues("success").Inc()

		m.mu.Lock()
		m.cached = &cachedToken{token: tok, expiresAt: m.now().Add(ttl)}
		m.mu.Unlock()
		m.logger.Debug("reddit token acquired", "expires_in", ttl)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", false
	case res := <-ch:
		if res.Err != nil {
			m.logger.Warn("reddit token exchange failed, using anonymous access", "err", res.Err)
			return "", false
		}
		return res.Val.(string), true
	}
}

// Invalidate drops the cached token so the next Token call re-exchanges.
func (m *TokenManager) Invalidate() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

func (m *TokenManager) valid() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return "", false
	}
	if m.cached.expiresAt.Sub(m.now()) <= tokenSafetyMargin {
		return "", false
	}
	return m.cached.token, true
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (m *TokenManager) exchange(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL, strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(m.creds.ClientID, m.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", 0, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, snippet(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tr.Error != "" {
		return "", 0, fmt.Errorf("token endpoint error: %s", tr.Error)
	}
	if tr.AccessToken == "" {
		return "", 0, errors.New("token endpoint returned no access_token")
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
