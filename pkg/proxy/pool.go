// Package proxy spreads anonymous search traffic over several egress
// endpoints. Reddit budgets public requests per source address, so each
// endpoint tracks the budget the server reports and is parked once it is
// spent or the endpoint stops answering.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when a report names a URL the pool does not hold.
var ErrUnknownProxy = errors.New("proxy not found in pool")

// Endpoint is one egress proxy and what the pool knows about it.
type Endpoint struct {
	URL      *url.URL
	Requests int
	Failures int
	LastUsed time.Time
	// Remaining is the request budget reported by the last response, or -1
	// when the server has not reported one.
	Remaining float64
	// ParkedUntil is zero while the endpoint is usable.
	ParkedUntil time.Time
}

// Parked reports whether e is unusable at now.
func (e Endpoint) Parked(now time.Time) bool {
	return now.Before(e.ParkedUntil)
}

// Config tunes a Pool. Zero values select the defaults.
type Config struct {
	// MaxFailures is the number of consecutive transport failures that parks
	// an endpoint. Default 3.
	MaxFailures int
	// Cooldown is how long a failing or throttled endpoint stays parked when
	// the server gives no reset time. Default 5m.
	Cooldown time.Duration
}

// Pool hands out endpoints round-robin, skipping parked ones.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*Endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// New creates an empty pool.
func New(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown, now: time.Now}
}

// LoadFile adds one proxy per line of path. Blank lines and lines starting
// with # are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close()

	var raw []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			raw = append(raw, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read proxy file %s: %w", path, err)
	}
	return p.Add(raw...)
}

// Add parses and adds proxies. A bare host:port is taken as http. Duplicates
// are ignored.
func (p *Pool) Add(raw ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range raw {
		s = strings.TrimSpace(s)
		if !strings.Contains(s, "://") {
			s = "http://" + s
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid proxy %q", s)
		}
		if p.lookup(u) == nil {
			p.endpoints = append(p.endpoints, &Endpoint{URL: u, Remaining: -1})
		}
	}
	return nil
}

// Len reports how many endpoints the pool holds, parked or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next usable endpoint, or nil when the pool is empty or
// every endpoint is parked. In the latter case callers go out directly.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.endpoints {
		e := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)
		if e.Parked(now) {
			continue
		}
		e.Requests++
		e.LastUsed = now
		return e.URL
	}
	return nil
}

// Observe records a response received through u. Throttled responses (429,
// or a budget reported as spent) park the endpoint until the server's reset
// time. Any response clears the failure streak.
func (p *Pool) Observe(u *url.URL, status int, h http.Header) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.lookup(u)
	if e == nil {
		return fmt.Errorf("observe %s: %w", redacted(u), ErrUnknownProxy)
	}
	e.Failures = 0

	now := p.now()
	if v, err := strconv.ParseFloat(h.Get("X-Ratelimit-Remaining"), 64); err == nil {
		e.Remaining = v
	}
	reset := headerSeconds(h, "Retry-After")
	if reset == 0 {
		reset = headerSeconds(h, "X-Ratelimit-Reset")
	}

	if status == http.StatusTooManyRequests || (e.Remaining >= 0 && e.Remaining < 1) {
		if reset == 0 {
			reset = p.cooldown
		}
		e.ParkedUntil = now.Add(reset)
		e.Remaining = -1
	}
	return nil
}

// Fail records a transport failure through u. MaxFailures failures in a row
// park the endpoint for the cooldown.
func (p *Pool) Fail(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.lookup(u)
	if e == nil {
		return fmt.Errorf("fail %s: %w", redacted(u), ErrUnknownProxy)
	}
	e.Failures++
	if e.Failures >= p.maxFailures {
		e.ParkedUntil = p.now().Add(p.cooldown)
		e.Failures = 0
	}
	return nil
}

// Snapshot returns copies of every endpoint.
func (p *Pool) Snapshot() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Endpoint, len(p.endpoints))
	for i, e := range p.endpoints {
		out[i] = *e
		u := *e.URL
		out[i].URL = &u
	}
	return out
}

// lookup must be called with p.mu held.
func (p *Pool) lookup(u *url.URL) *Endpoint {
	if u == nil {
		return nil
	}
	key := u.String()
	for _, e := range p.endpoints {
		if e.URL.String() == key {
			return e
		}
	}
	return nil
}

func headerSeconds(h http.Header, key string) time.Duration {
	v, err := strconv.ParseFloat(strings.TrimSpace(h.Get(key)), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func redacted(u *url.URL) string {
	if u == nil {
		return "<nil>"
	}
	return u.Redacted()
}
