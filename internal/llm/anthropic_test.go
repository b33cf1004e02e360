package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropic_Complete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "ak-test" {
			t.Errorf("unexpected api key header %q", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != DefaultAnthropicModel || req["max_tokens"] != float64(400) {
			t.Errorf("unexpected request %v", req)
		}
		if _, ok := req["system"]; !ok {
			t.Errorf("expected system prompt in request")
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_01", "type": "message", "role": "assistant", "model": "claude-3-haiku-20240307",
			"content": [{"type": "text", "text": "Happy to help with that."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 90, "output_tokens": 12}
		}`)
	}))
	defer ts.Close()

	p, err := NewAnthropic(Options{APIKey: "ak-test", BaseURL: ts.URL}, ts.Client(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := p.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Text != "Happy to help with that." || c.TokensUsed != 102 {
		t.Errorf("unexpected completion %+v", c)
	}
	if p.Name() != ProviderAnthropic {
		t.Errorf("unexpected name %s", p.Name())
	}
}

func TestAnthropic_ServerError(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"Internal server error"}}`)
	}))
	defer ts.Close()

	p, _ := NewAnthropic(Options{APIKey: "ak-test", BaseURL: ts.URL}, ts.Client(), nil)
	_, err := p.Complete(context.Background(), "s", "u")

	var perr *ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 ProviderError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retries, got %d calls", calls)
	}
}

func TestAnthropic_EmptyContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_02","type":"message","role":"assistant","model":"m","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`)
	}))
	defer ts.Close()

	p, _ := NewAnthropic(Options{APIKey: "ak-test", BaseURL: ts.URL}, ts.Client(), nil)
	if _, err := p.Complete(context.Background(), "s", "u"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}
