// Package bypass classifies search responses that were refused by rate
// limiting or bot protection rather than answered by the API.
package bypass

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response is the subset of an HTTP exchange the detectors inspect.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detection describes why a response was refused.
type Detection struct {
	Source string
	// RetryAfter is the server's suggested delay, zero when it gave none.
	RetryAfter time.Duration
}

// Detector examines a response and reports whether it was refused.
type Detector func(res *Response) (Detection, bool)

// DefaultDetectors returns the detectors applied to every search response.
func DefaultDetectors() []Detector {
	return []Detector{
		detectRateLimit,
		detectRedditBlock,
		detectCloudflare,
		detectAkamai,
	}
}

// Analyze runs the response through the detectors in order and returns the
// first detection.
func Analyze(res *Response, detectors []Detector) (Detection, bool) {
	if res == nil {
		return Detection{}, false
	}
	for _, d := range detectors {
		if det, ok := d(res); ok {
			return det, true
		}
	}
	return Detection{}, false
}

func getHeader(headers http.Header, key string) string {
	if headers == nil {
		return ""
	}
	if v := headers.Get(key); v != "" {
		return v
	}
	// Case-insensitive fallback for maps built without canonical keys
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

// detectRateLimit recognizes 429 responses and an exhausted request budget.
// Reddit reports the budget in X-Ratelimit-Remaining and the seconds until it
// refills in X-Ratelimit-Reset.
func detectRateLimit(res *Response) (Detection, bool) {
	remaining := getHeader(res.Headers, "X-Ratelimit-Remaining")
	exhausted := false
	if remaining != "" {
		if f, err := strconv.ParseFloat(remaining, 64); err == nil && f < 1 {
			exhausted = true
		}
	}
	if res.StatusCode != http.StatusTooManyRequests && !(exhausted && res.StatusCode >= 400) {
		return Detection{}, false
	}

	det := Detection{Source: "RateLimit"}
	if v := getHeader(res.Headers, "Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			det.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if det.RetryAfter == 0 {
		if v := getHeader(res.Headers, "X-Ratelimit-Reset"); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				det.RetryAfter = time.Duration(secs * float64(time.Second))
			}
		}
	}
	return det, true
}

// detectRedditBlock looks for the block pages Reddit serves to anonymous
// clients it considers automated.
func detectRedditBlock(res *Response) (Detection, bool) {
	if res.StatusCode != http.StatusForbidden && res.StatusCode != http.StatusTooManyRequests {
		return Detection{}, false
	}
	lower := bytes.ToLower(res.Body)
	if bytes.Contains(lower, []byte("blocked by network security")) ||
		bytes.Contains(lower, []byte("whoa there, pardner")) {
		return Detection{Source: "Reddit"}, true
	}
	return Detection{}, false
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(res *Response) (Detection, bool) {
	if res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusServiceUnavailable {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "cloudflare") {
			return Detection{Source: "Cloudflare"}, true
		}

		if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
			bytes.Contains(res.Body, []byte("cf-turnstile")) ||
			bytes.Contains(res.Body, []byte("Attention Required! | Cloudflare")) {
			return Detection{Source: "Cloudflare"}, true
		}
	}
	return Detection{}, false
}

// detectAkamai looks for Akamai edge block pages.
func detectAkamai(res *Response) (Detection, bool) {
	if res.StatusCode == http.StatusForbidden {
		server := strings.ToLower(getHeader(res.Headers, "Server"))
		if strings.Contains(server, "akamai") {
			return Detection{Source: "Akamai"}, true
		}
		if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
			return Detection{Source: "Akamai"}, true
		}
	}
	return Detection{}, false
}
