package reply

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/FranksOps/reddradar/internal/llm"
)

type stubProvider struct {
	name  string
	comp  llm.Completion
	err   error
	calls int
	got   [2]string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, system, user string) (llm.Completion, error) {
	s.calls++
	s.got = [2]string{system, user}
	return s.comp, s.err
}

func TestGenerate_Primary(t *testing.T) {
	primary := &stubProvider{name: "openai", comp: llm.Completion{Text: "ChurnBuster handles this for me.", TokensUsed: 210}}
	secondary := &stubProvider{name: "anthropic"}
	g := NewGenerator([]llm.Provider{primary, secondary}, nil)

	c := sampleContext()
	res := g.Generate(context.Background(), c)

	if !res.AIConfigured || res.Provider != "openai" || res.TokensUsed != 210 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Tone != StyleTechnical {
		t.Errorf("expected resolved tone technical, got %s", res.Tone)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary must not be called after primary success")
	}
	want := BuildRequest(c)
	if primary.got[0] != want.System || primary.got[1] != want.User {
		t.Errorf("provider did not receive the composed prompts")
	}
	if !reflect.DeepEqual(res.Tips, Tips(c, res.Text)) {
		t.Errorf("expected tips from Tips, got %v", res.Tips)
	}
}

func TestGenerate_FallsThroughToSecondary(t *testing.T) {
	primary := &stubProvider{name: "openai", err: &llm.ProviderError{Provider: "openai", StatusCode: 500, Err: errors.New("boom")}}
	secondary := &stubProvider{name: "anthropic", comp: llm.Completion{Text: "Have you tried cohort charts?", TokensUsed: 40}}
	g := NewGenerator([]llm.Provider{primary, secondary}, nil)

	res := g.Generate(context.Background(), sampleContext())
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("expected both providers tried once, got %d/%d", primary.calls, secondary.calls)
	}
	if !res.AIConfigured || res.Provider != "anthropic" || res.Text != "Have you tried cohort charts?" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestGenerate_EmptyTextFallsThrough(t *testing.T) {
	primary := &stubProvider{name: "openai", comp: llm.Completion{Text: "  "}}
	g := NewGenerator([]llm.Provider{primary}, nil)

	res := g.Generate(context.Background(), sampleContext())
	if res.AIConfigured || res.Provider != ProviderMock {
		t.Errorf("expected mock after empty completion, got %+v", res)
	}
}

func TestGenerate_AllFail(t *testing.T) {
	fail := errors.New("unavailable")
	g := NewGenerator([]llm.Provider{
		&stubProvider{name: "openai", err: fail},
		&stubProvider{name: "anthropic", err: fail},
	}, nil)

	c := sampleContext()
	c.Style = "unknown"
	res := g.Generate(context.Background(), c)

	if res.AIConfigured {
		t.Error("aiConfigured must be false for mock replies")
	}
	if strings.TrimSpace(res.Text) == "" {
		t.Error("mock reply must not be empty")
	}
	if res.Tone != StyleHelpful || res.TokensUsed != 0 {
		t.Errorf("unexpected mock metadata %+v", res)
	}
	if len(res.Tips) == 0 || res.Tips[0] != DemoTip {
		t.Errorf("expected demo tip first, got %v", res.Tips)
	}
}

func TestGenerate_NoProviders(t *testing.T) {
	g := NewGenerator([]llm.Provider{nil}, nil)
	if g.Configured() {
		t.Fatal("nil providers must be skipped")
	}

	res := g.Generate(context.Background(), sampleContext())
	if res.AIConfigured || res.Provider != ProviderMock {
		t.Errorf("expected mock result, got %+v", res)
	}
	if !strings.Contains(res.Text, "ChurnBuster") {
		t.Errorf("mock reply should name the product: %q", res.Text)
	}
}

func TestGenerate_CanceledContextUsesMock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &stubProvider{name: "openai", comp: llm.Completion{Text: "unused"}}
	res := NewGenerator([]llm.Provider{p}, nil).Generate(ctx, sampleContext())
	if p.calls != 0 || res.Provider != ProviderMock {
		t.Errorf("expected mock without provider call, got %+v (calls %d)", res, p.calls)
	}
}

func TestGenerate_DescriptionFallback(t *testing.T) {
	p := &stubProvider{name: "openai", comp: llm.Completion{Text: "ok"}}
	c := sampleContext()
	c.Product.Description = ""

	NewGenerator([]llm.Provider{p}, nil).Generate(context.Background(), c)
	if !strings.Contains(p.got[0], "- What it does: A solution for SaaS founders") {
		t.Errorf("expected description fallback in prompt:\n%s", p.got[0])
	}
}

func TestMockReply_Deterministic(t *testing.T) {
	c := sampleContext()
	first := mockReply(c)
	for i := 0; i < 10; i++ {
		if got := mockReply(c); got != first {
			t.Fatalf("mock reply changed between calls")
		}
	}

	seen := map[string]bool{}
	for _, title := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		c.PostTitle = title
		seen[mockReply(c)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected titles to spread over templates, got %d distinct", len(seen))
	}
}

func TestGenerator_Providers(t *testing.T) {
	g := NewGenerator([]llm.Provider{&stubProvider{name: "gemini"}, &stubProvider{name: "openai"}}, nil)
	if got := g.Providers(); !reflect.DeepEqual(got, []string{"gemini", "openai"}) {
		t.Errorf("unexpected order %v", got)
	}
}
