package bypass

import (
	"net/http"
	"testing"
	"time"
)

func TestDetectRateLimit(t *testing.T) {
	res := &Response{StatusCode: 200, Headers: http.Header{"X-Ratelimit-Remaining": {"0"}}}
	if _, ok := detectRateLimit(res); ok {
		t.Errorf("a successful response with an empty budget is not refused")
	}

	res = &Response{StatusCode: 429, Headers: http.Header{"Retry-After": {"7"}}}
	det, ok := detectRateLimit(res)
	if !ok || det.Source != "RateLimit" || det.RetryAfter != 7*time.Second {
		t.Errorf("expected 429 with Retry-After 7s, got %+v ok=%v", det, ok)
	}

	res = &Response{StatusCode: 403, Headers: http.Header{
		"X-Ratelimit-Remaining": {"0.0"},
		"X-Ratelimit-Reset":     {"42"},
	}}
	det, ok = detectRateLimit(res)
	if !ok || det.RetryAfter != 42*time.Second {
		t.Errorf("expected exhausted budget detection with reset 42s, got %+v ok=%v", det, ok)
	}
}

func TestDetectRedditBlock(t *testing.T) {
	res := &Response{StatusCode: 403, Body: []byte("<html>You've been blocked by network security.</html>")}
	if det, ok := detectRedditBlock(res); !ok || det.Source != "Reddit" {
		t.Errorf("expected Reddit block detection")
	}

	res = &Response{StatusCode: 403, Body: []byte(`{"message": "Forbidden", "error": 403}`)}
	if _, ok := detectRedditBlock(res); ok {
		t.Errorf("plain JSON 403 is a private subreddit, not a block page")
	}
}

func TestDetectCloudflare(t *testing.T) {
	res := &Response{
		StatusCode: 200,
		Headers:    http.Header{"Server": {"nginx"}},
		Body:       []byte("OK"),
	}
	if _, ok := detectCloudflare(res); ok {
		t.Errorf("expected not detected")
	}

	res = &Response{
		StatusCode: 403,
		Headers:    http.Header{"Server": {"cloudflare"}},
		Body:       []byte("Access Denied"),
	}
	if det, ok := detectCloudflare(res); !ok || det.Source != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by header")
	}

	res = &Response{
		StatusCode: 503,
		Body:       []byte("<html>... cf-turnstile ...</html>"),
	}
	if det, ok := detectCloudflare(res); !ok || det.Source != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by body")
	}
}

func TestDetectAkamai(t *testing.T) {
	res := &Response{StatusCode: 403, Headers: map[string][]string{"server": {"AkamaiGHost"}}}
	if det, ok := detectAkamai(res); !ok || det.Source != "Akamai" {
		t.Errorf("expected Akamai detection by non-canonical header")
	}
}

func TestAnalyze(t *testing.T) {
	if _, ok := Analyze(nil, DefaultDetectors()); ok {
		t.Errorf("nil response must not be detected")
	}

	res := &Response{StatusCode: 429, Body: []byte("whoa there, pardner!")}
	det, ok := Analyze(res, DefaultDetectors())
	if !ok || det.Source != "RateLimit" {
		t.Errorf("expected the rate limit detector to win, got %+v", det)
	}

	res = &Response{StatusCode: 200, Body: []byte(`{"data":{"children":[]}}`)}
	if _, ok := Analyze(res, DefaultDetectors()); ok {
		t.Errorf("expected a normal listing to pass")
	}
}
