// Package reply drafts Reddit replies: it composes fact-bounded prompts, runs
// them through a chain of generation providers and derives posting tips.
package reply

import (
	"fmt"
	"strings"
)

// Style is the tone a reply is written in.
type Style string

const (
	StyleHelpful    Style = "helpful"
	StyleCasual     Style = "casual"
	StyleTechnical  Style = "technical"
	StyleEmpathetic Style = "empathetic"
)

var styleInstructions = map[Style]string{
	StyleHelpful:    "- Be friendly and genuinely helpful, focus on solving their problem",
	StyleCasual:     "- Use casual language, abbreviations, maybe an emoji or two",
	StyleTechnical:  "- Be precise and detailed, use technical terms appropriately",
	StyleEmpathetic: "- Acknowledge their frustration/situation, be supportive first",
}

// ParseStyle resolves s case-insensitively. Empty and unknown values resolve
// to StyleHelpful.
func ParseStyle(s string) Style {
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := styleInstructions[st]; ok {
		return st
	}
	return StyleHelpful
}

// Product holds the only facts a reply may state about the product.
type Product struct {
	Name           string   `json:"name" mapstructure:"name"`
	Description    string   `json:"description" mapstructure:"description"`
	Website        string   `json:"website" mapstructure:"website"`
	TargetAudience string   `json:"targetAudience" mapstructure:"target_audience"`
	Features       []string `json:"features,omitempty" mapstructure:"features"`
}

// Context is everything needed to draft one reply.
type Context struct {
	PostTitle string
	PostBody  string
	Subreddit string
	Product   Product
	Style     Style
	// Instructions is an optional extra style line, usually from a Template.
	Instructions string
}

// Request is a composed generation request.
type Request struct {
	System string
	User   string
}

// features returns the non-blank feature entries.
func (p Product) features() []string {
	var out []string
	for _, f := range p.Features {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// BuildRequest composes the system and user prompts for c. It is pure.
func BuildRequest(c Context) Request {
	return Request{System: systemPrompt(c), User: userPrompt(c)}
}

func systemPrompt(c Context) string {
	p := c.Product
	style := ParseStyle(string(c.Style))

	var b strings.Builder
	b.WriteString("You are a helpful Reddit user who genuinely wants to help people. You work at/use a product and may recommend it when GENUINELY relevant.\n\n")

	b.WriteString("## STRICT RULES (MUST FOLLOW):\n")
	b.WriteString("1. ONLY use information explicitly provided below - NEVER make up features, prices, or claims\n")
	b.WriteString("2. If the post is NOT relevant to the product, write a helpful reply WITHOUT mentioning it\n")
	b.WriteString("3. NEVER fabricate user reviews, statistics, or testimonials\n")
	b.WriteString("4. NEVER claim the product does something not listed in the features\n")
	b.WriteString("5. Sound like a real person, not a marketer or bot\n")
	b.WriteString("6. Keep replies under 150 words unless the question needs more detail\n")
	b.WriteString("7. Match the subreddit's casual tone - use lowercase, contractions, occasional typos are OK\n")
	b.WriteString("8. If you mention the product, be transparent: \"I use X\" or \"I work on X\"\n\n")

	b.WriteString("## YOUR PRODUCT (only mention these facts):\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- What it does: %s\n", p.Description)
	fmt.Fprintf(&b, "- Website: %s\n", p.Website)
	fmt.Fprintf(&b, "- Who it's for: %s\n", p.TargetAudience)
	if feats := p.features(); len(feats) > 0 {
		fmt.Fprintf(&b, "- Key Features: %s\n", strings.Join(feats, ", "))
	}

	fmt.Fprintf(&b, "\n## REPLY STYLE: %s\n", style)
	b.WriteString(styleInstructions[style])
	b.WriteString("\n")
	if extra := strings.TrimSpace(c.Instructions); extra != "" {
		fmt.Fprintf(&b, "- %s\n", extra)
	}

	b.WriteString("\n## DECISION TREE:\n")
	fmt.Fprintf(&b, "1. Is this post asking about something %s actually solves? → Mention it naturally\n", p.Name)
	b.WriteString("2. Is this post tangentially related? → Help first, maybe mention as an aside\n")
	fmt.Fprintf(&b, "3. Is this post unrelated to what %s does? → Just be helpful, NO product mention", p.Name)
	return b.String()
}

func userPrompt(c Context) string {
	var b strings.Builder
	b.WriteString("Write a Reddit reply for this post. Remember: be authentic, helpful, and only mention the product if it GENUINELY fits.\n\n")
	b.WriteString("---\n")
	fmt.Fprintf(&b, "SUBREDDIT: r/%s\n", c.Subreddit)
	fmt.Fprintf(&b, "POST TITLE: %s\n", c.PostTitle)
	if body := strings.TrimSpace(c.PostBody); body != "" {
		fmt.Fprintf(&b, "POST BODY: %s\n", body)
	} else {
		b.WriteString("(no body text)\n")
	}
	b.WriteString("---\n\n")
	b.WriteString("Write your reply now. Start directly with the reply text (no \"Here's a reply:\" prefix):")
	return b.String()
}

// Template is a saved reply style.
type Template struct {
	Name         string `json:"name" mapstructure:"name"`
	Tone         string `json:"tone" mapstructure:"tone"`
	Instructions string `json:"instructions" mapstructure:"instructions"`
	Default      bool   `json:"isDefault" mapstructure:"default"`
}

// DefaultTemplates are offered when none are configured.
func DefaultTemplates() []Template {
	return []Template{
		{Name: "Helpful", Tone: "helpful", Instructions: "Be genuinely helpful and focus on solving the problem.", Default: true},
		{Name: "Casual", Tone: "casual", Instructions: "Use a friendly, conversational tone."},
		{Name: "Professional", Tone: "professional", Instructions: "Maintain a professional, business-like tone."},
	}
}

// FindTemplate looks a template up by case-insensitive name. An empty name
// selects the default template, or the first one if none is marked.
func FindTemplate(templates []Template, name string) (Template, bool) {
	if len(templates) == 0 {
		return Template{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		for _, t := range templates {
			if t.Default {
				return t, true
			}
		}
		return templates[0], true
	}
	for _, t := range templates {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Template{}, false
}

// Apply sets the style and extra instructions of c from t.
func (t Template) Apply(c Context) Context {
	c.Style = ParseStyle(t.Tone)
	c.Instructions = t.Instructions
	return c
}
