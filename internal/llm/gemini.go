package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini calls GenerateContent on the Gemini Developer API.
type Gemini struct {
	client *genai.Client
	opts   Options
	logger *slog.Logger
}

var _ Provider = (*Gemini)(nil)

// NewGemini creates the provider.
func NewGemini(ctx context.Context, opts Options, client *http.Client, logger *slog.Logger) (*Gemini, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}
	opts = opts.withDefaults(DefaultGeminiModel)
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: client,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: c, opts: opts, logger: logger}, nil
}

func (p *Gemini) Name() string { return ProviderGemini }

func (p *Gemini) Complete(ctx context.Context, system, user string) (Completion, error) {
	ctx, cancel := withTimeout(ctx, p.opts.Timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(float32(*p.opts.Temperature)),
		MaxOutputTokens:   int32(p.opts.MaxTokens),
		PresencePenalty:   genai.Ptr(float32(*p.opts.PresencePenalty)),
		FrequencyPenalty:  genai.Ptr(float32(*p.opts.FrequencyPenalty)),
	}

	result, err := p.client.Models.GenerateContent(ctx, p.opts.Model, genai.Text(user), config)
	if err != nil {
		return Completion{}, &ProviderError{Provider: ProviderGemini, Err: err}
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return Completion{}, &ProviderError{Provider: ProviderGemini, Err: ErrEmptyCompletion}
	}

	tokens := 0
	if result.UsageMetadata != nil {
		tokens = int(result.UsageMetadata.TotalTokenCount)
	}
	p.logger.Debug("gemini completion", "model", p.opts.Model, "tokens", tokens, "len", len(text))
	return Completion{Text: text, Model: p.opts.Model, TokensUsed: tokens}, nil
}
