package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/FranksOps/reddradar/internal/reply"
	"github.com/spf13/cobra"
)

var replyFlags struct {
	title     string
	body      string
	subreddit string
	style     string
	template  string
	url       string
}

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Draft a reply to a post that mentions the configured product",
	Long: `Drafts a reply through the configured AI providers, falling back to a
demo draft when none answers. The reply only states the product facts from the
product section of the config.

Pass --body - to read the post body from stdin.`,
	RunE: runReply,
}

func init() {
	f := replyCmd.Flags()
	f.StringVar(&replyFlags.title, "title", "", "Post title")
	f.StringVar(&replyFlags.body, "body", "", "Post body, or - for stdin")
	f.StringVarP(&replyFlags.subreddit, "subreddit", "s", "", "Subreddit the post is in")
	f.StringVar(&replyFlags.style, "style", "", "Tone: helpful, casual, technical, empathetic")
	f.StringVar(&replyFlags.template, "template", "", "Reply template name (overrides --style)")
	f.StringVar(&replyFlags.url, "url", "", "Post URL, kept with the reply history")
	_ = replyCmd.MarkFlagRequired("title")
	_ = replyCmd.MarkFlagRequired("subreddit")
}

func runReply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if strings.TrimSpace(cfg.Product.Name) == "" {
		return errors.New("product.name is required to draft replies")
	}

	body := replyFlags.body
	if body == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		body = string(b)
	}

	c := reply.Context{
		PostTitle: replyFlags.title,
		PostBody:  body,
		Subreddit: strings.TrimPrefix(replyFlags.subreddit, "r/"),
		Product:   cfg.Product,
		Style:     reply.ParseStyle(replyFlags.style),
	}
	if replyFlags.template != "" {
		t, ok := reply.FindTemplate(cfg.Templates, replyFlags.template)
		if !ok {
			return fmt.Errorf("unknown template %q", replyFlags.template)
		}
		c = t.Apply(c)
	}

	p, closeStore, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := p.Reply(ctx, c, replyFlags.url)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
