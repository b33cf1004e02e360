package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// OpenAI calls the Chat Completions endpoint directly.
type OpenAI struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates the provider. A nil client uses one bounded by opts.Timeout.
func NewOpenAI(opts Options, client *http.Client, logger *slog.Logger) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("openai: %w", ErrNotConfigured)
	}
	opts = opts.withDefaults(DefaultOpenAIModel)
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpenAIBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{opts: opts, client: client, logger: logger}, nil
}

func (p *OpenAI) Name() string { return ProviderOpenAI }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model            string          `json:"model"`
	Messages         []openAIMessage `json:"messages"`
	Temperature      float64         `json:"temperature"`
	MaxTokens        int             `json:"max_tokens"`
	PresencePenalty  float64         `json:"presence_penalty"`
	FrequencyPenalty float64         `json:"frequency_penalty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the prompts as a system and a user message. No retries are
// attempted; any failure is a *ProviderError.
func (p *OpenAI) Complete(ctx context.Context, system, user string) (Completion, error) {
	ctx, cancel := withTimeout(ctx, p.opts.Timeout)
	defer cancel()

	payload, err := json.Marshal(openAIRequest{
		Model: p.opts.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:      *p.opts.Temperature,
		MaxTokens:        p.opts.MaxTokens,
		PresencePenalty:  *p.opts.PresencePenalty,
		FrequencyPenalty: *p.opts.FrequencyPenalty,
	})
	if err != nil {
		return Completion{}, p.fail(0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Completion{}, p.fail(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return Completion{}, p.fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Completion{}, p.fail(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	var out openAIResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && out.Error != nil {
			msg = out.Error.Message
		}
		return Completion{}, p.fail(resp.StatusCode, fmt.Errorf("api error: %s", msg))
	}
	if decodeErr != nil {
		return Completion{}, p.fail(resp.StatusCode, fmt.Errorf("parse response: %w", decodeErr))
	}
	if len(out.Choices) == 0 {
		return Completion{}, p.fail(resp.StatusCode, ErrEmptyCompletion)
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return Completion{}, p.fail(resp.StatusCode, ErrEmptyCompletion)
	}

	model := out.Model
	if model == "" {
		model = p.opts.Model
	}
	p.logger.Debug("openai completion", "model", model, "tokens", out.Usage.TotalTokens, "len", len(text))
	return Completion{Text: text, Model: model, TokensUsed: out.Usage.TotalTokens}, nil
}

func (p *OpenAI) fail(status int, err error) error {
	return &ProviderError{Provider: ProviderOpenAI, StatusCode: status, Err: err}
}
