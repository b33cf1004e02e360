package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/reddradar/pkg/proxy"
)

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	// UserAgent is set on every request that does not carry one already.
	UserAgent string
	// Profile selects the TLS fingerprint of the default transport.
	Profile Profile
	// Proxies, when non-nil, rotates egress per request and tracks proxy health.
	Proxies *proxy.Pool
	// Transport overrides the transport built from Profile, e.g. in tests.
	Transport http.RoundTripper
}

// Client wraps a standard http.Client with a fixed User-Agent, a redirect
// policy and optional per-request proxy rotation.
type Client struct {
	*http.Client
	userAgent string
	proxies   *proxy.Pool
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileGo
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects >= 0 {
		max := cfg.MaxRedirects
		if max == 0 {
			max = 10
		}
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= max {
				return fmt.Errorf("stopped after %d redirects", max)
			}
			return nil
		}
	} else {
		// Don't follow any redirects if max < 0
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	} else {
		transport, err := Transport(cfg.Profile, proxyFromContext)
		if err != nil {
			return nil, fmt.Errorf("setup transport: %w", err)
		}
		c.Transport = transport
	}

	return &Client{Client: c, userAgent: cfg.UserAgent, proxies: cfg.Proxies}, nil
}

// Do executes an HTTP request. The provided context.Context controls the
// overarching request cancellation independent of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("context cannot be nil")
	}

	var activeProxy *url.URL
	if c.proxies != nil {
		if activeProxy = c.proxies.Next(); activeProxy != nil {
			ctx = context.WithValue(ctx, proxyKey, activeProxy)
		}
	}

	out := req.Clone(ctx)
	if c.userAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.Client.Do(out)
	if err != nil {
		if activeProxy != nil {
			_ = c.proxies.Fail(activeProxy)
		}
		return nil, fmt.Errorf("do request: %w", err)
	}
	if activeProxy != nil {
		_ = c.proxies.Observe(activeProxy, resp.StatusCode, resp.Header)
	}
	return resp, nil
}
