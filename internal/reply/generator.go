package reply

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/FranksOps/reddradar/internal/llm"
	"github.com/FranksOps/reddradar/internal/metrics"
)

// ProviderMock names the deterministic fallback in GeneratedReply.Provider.
const ProviderMock = "mock"

// GeneratedReply is a drafted reply. AIConfigured is true only when a real
// provider produced Text.
type GeneratedReply struct {
	Text         string   `json:"reply"`
	Tone         Style    `json:"tone"`
	Tips         []string `json:"tips"`
	AIConfigured bool     `json:"aiConfigured"`
	Provider     string   `json:"provider"`
	TokensUsed   int      `json:"tokensUsed"`
}

// Generator tries its providers in order and falls back to a canned draft.
type Generator struct {
	providers []llm.Provider
	logger    *slog.Logger
}

// NewGenerator creates a Generator. Nil providers are skipped, so an empty
// chain is valid and always yields mock drafts.
func NewGenerator(providers []llm.Provider, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{logger: logger}
	for _, p := range providers {
		if p != nil {
			g.providers = append(g.providers, p)
		}
	}
	return g
}

// Configured reports whether at least one real provider is in the chain.
func (g *Generator) Configured() bool { return len(g.providers) > 0 }

// Providers returns the provider names in the order they are tried.
func (g *Generator) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		names = append(names, p.Name())
	}
	return names
}

// Generate drafts a reply for c. It never fails: provider errors are logged
// and the next provider is tried, ending with the mock draft.
func (g *Generator) Generate(ctx context.Context, c Context) GeneratedReply {
	c.Style = ParseStyle(string(c.Style))
	c.Product = c.Product.withFallbacks()
	req := BuildRequest(c)

	for _, p := range g.providers {
		if ctx.Err() != nil {
			g.logger.Warn("reply generation interrupted, using mock reply", "err", ctx.Err())
			break
		}

		comp, err := p.Complete(ctx, req.System, req.User)
		if err == nil && strings.TrimSpace(comp.Text) == "" {
			err = &llm.ProviderError{Provider: p.Name(), Err: llm.ErrEmptyCompletion}
		}
		metrics.RecordGeneration(p.Name(), err, comp.TokensUsed)
		if err != nil {
			var perr *llm.ProviderError
			if errors.As(err, &perr) && perr.StatusCode != 0 {
				g.logger.Warn("provider failed", "provider", p.Name(), "status", perr.StatusCode, "err", err)
			} else {
				g.logger.Warn("provider failed", "provider", p.Name(), "err", err)
			}
			continue
		}

		text := strings.TrimSpace(comp.Text)
		return GeneratedReply{
			Text:         text,
			Tone:         c.Style,
			Tips:         Tips(c, text),
			AIConfigured: true,
			Provider:     p.Name(),
			TokensUsed:   comp.TokensUsed,
		}
	}

	if len(g.providers) == 0 {
		g.logger.Info("no AI provider configured, using mock reply")
	}
	text := mockReply(c)
	metrics.RecordGeneration(ProviderMock, nil, 0)
	return GeneratedReply{
		Text:         text,
		Tone:         c.Style,
		Tips:         append([]string{DemoTip}, Tips(c, text)...),
		AIConfigured: false,
		Provider:     ProviderMock,
	}
}

// withFallbacks fills a missing description from the audience.
func (p Product) withFallbacks() Product {
	if strings.TrimSpace(p.Description) == "" && strings.TrimSpace(p.TargetAudience) != "" {
		p.Description = "A solution for " + p.TargetAudience
	}
	return p
}
