// Package llm contains the text-generation backends tried when drafting a
// reply. Each backend turns a system and user prompt into plain text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Sampling defaults shared by every provider.
const (
	DefaultMaxTokens        = 400
	DefaultTemperature      = 0.7
	DefaultPresencePenalty  = 0.1
	DefaultFrequencyPenalty = 0.1
	DefaultTimeout          = 60 * time.Second
)

// ErrNotConfigured is returned by constructors when the API key is missing.
var ErrNotConfigured = errors.New("llm: provider not configured")

// ErrEmptyCompletion is wrapped when a provider answers without any text.
var ErrEmptyCompletion = errors.New("empty completion")

// Provider is one generation backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// Completion is the text a provider returned plus what it reported about the call.
type Completion struct {
	Text       string
	Model      string
	TokensUsed int
}

// Options configure a provider. Zero values take the package defaults; the
// sampling fields are pointers so an explicit 0 is kept.
type Options struct {
	APIKey           string
	Model            string
	BaseURL          string
	MaxTokens        int
	Temperature      *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Timeout          time.Duration
}

// Float returns a pointer to v, for the sampling fields of Options.
func Float(v float64) *float64 { return &v }

func (o Options) withDefaults(model string) Options {
	if o.Model == "" {
		o.Model = model
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == nil {
		o.Temperature = Float(DefaultTemperature)
	}
	if o.PresencePenalty == nil {
		o.PresencePenalty = Float(DefaultPresencePenalty)
	}
	if o.FrequencyPenalty == nil {
		o.FrequencyPenalty = Float(DefaultFrequencyPenalty)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// ProviderError is the failure of a single provider call. StatusCode is zero
// when no HTTP response was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// withTimeout bounds ctx by d unless it already carries a deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// New builds the named provider.
func New(ctx context.Context, name string, opts Options, client *http.Client, logger *slog.Logger) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch name {
	case ProviderOpenAI:
		p, err = NewOpenAI(opts, client, logger)
	case ProviderAnthropic:
		p, err = NewAnthropic(opts, client, logger)
	case ProviderGemini:
		p, err = NewGemini(ctx, opts, client, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Known reports whether name is a supported provider.
func Known(name string) bool {
	switch name {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}
