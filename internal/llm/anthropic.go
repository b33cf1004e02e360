package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicModel = "claude-3-haiku-20240307"

// Anthropic calls the Messages API through the official SDK.
type Anthropic struct {
	client anthropic.Client
	opts   Options
	logger *slog.Logger
}

var _ Provider = (*Anthropic)(nil)

// NewAnthropic creates the provider. SDK retries are disabled; a failed call
// falls through to the next provider instead.
func NewAnthropic(opts Options, client *http.Client, logger *slog.Logger) (*Anthropic, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNotConfigured)
	}
	opts = opts.withDefaults(DefaultAnthropicModel)
	if logger == nil {
		logger = slog.Default()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(opts.Timeout),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if client != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(client))
	}

	return &Anthropic{
		client: anthropic.NewClient(reqOpts...),
		opts:   opts,
		logger: logger,
	}, nil
}

func (p *Anthropic) Name() string { return ProviderAnthropic }

// Complete sends the system prompt and one user message. The Messages API has
// no repetition penalties, so those options are not sent.
func (p *Anthropic) Complete(ctx context.Context, system, user string) (Completion, error) {
	ctx, cancel := withTimeout(ctx, p.opts.Timeout)
	defer cancel()

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.opts.Model),
		MaxTokens:   int64(p.opts.MaxTokens),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Temperature: anthropic.Float(*p.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return Completion{}, &ProviderError{Provider: ProviderAnthropic, StatusCode: status, Err: err}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = strings.TrimSpace(block.Text)
			break
		}
	}
	if text == "" {
		return Completion{}, &ProviderError{Provider: ProviderAnthropic, Err: ErrEmptyCompletion}
	}

	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	p.logger.Debug("anthropic completion", "model", msg.Model, "tokens", tokens, "len", len(text))
	return Completion{Text: text, Model: string(msg.Model), TokensUsed: tokens}, nil
}
