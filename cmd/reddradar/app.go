package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/FranksOps/reddradar/internal/config"
	"github.com/FranksOps/reddradar/internal/llm"
	"github.com/FranksOps/reddradar/internal/pipeline"
	"github.com/FranksOps/reddradar/internal/reddit"
	"github.com/FranksOps/reddradar/internal/reply"
	"github.com/FranksOps/reddradar/internal/storage"
	"github.com/FranksOps/reddradar/internal/storage/jsonbackend"
	"github.com/FranksOps/reddradar/internal/storage/postgres"
	"github.com/FranksOps/reddradar/internal/storage/sqlite"
	"github.com/FranksOps/reddradar/pkg/httpclient"
	"github.com/FranksOps/reddradar/pkg/proxy"
)

// buildPipeline wires every component from c. The returned close function
// releases storage.
func buildPipeline(ctx context.Context, c *config.Config, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	agg, err := newAggregator(c.Reddit, logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(ctx, c.Storage)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close storage", "err", err)
			}
		}
	}

	p := &pipeline.Pipeline{
		Leads:   agg,
		Replies: newGenerator(ctx, c.AI, logger),
		Store:   store,
		Logger:  logger,
	}
	return p, closeStore, nil
}

func newAggregator(rc config.RedditConfig, logger *slog.Logger) (*reddit.Aggregator, error) {
	profile, err := httpclient.ParseProfile(rc.TLSProfile)
	if err != nil {
		return nil, err
	}

	var pool *proxy.Pool
	if len(rc.Proxies) > 0 || rc.ProxyFile != "" {
		pool = proxy.New(proxy.Config{})
		if err := pool.Add(rc.Proxies...); err != nil {
			return nil, fmt.Errorf("reddit.proxies: %w", err)
		}
		if rc.ProxyFile != "" {
			if err := pool.LoadFile(rc.ProxyFile); err != nil {
				return nil, fmt.Errorf("reddit.proxy_file: %w", err)
			}
		}
		logger.Info("search traffic routed through proxies", "proxies", pool.Len())
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:   rc.Timeout,
		UserAgent: rc.UserAgent,
		Profile:   profile,
		Proxies:   pool,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	tokens := reddit.NewTokenManager(reddit.TokenConfig{
		Credentials: rc.Credentials(),
		AuthURL:     rc.AuthURL,
		UserAgent:   rc.UserAgent,
		Client:      client,
		Logger:      logger,
	})
	if !tokens.Configured() {
		logger.Info("reddit credentials not configured, using public endpoints")
	}

	searcher := reddit.NewSearcher(reddit.SearcherConfig{
		Client:    client,
		Tokens:    tokens,
		APIURL:    rc.APIURL,
		PublicURL: rc.PublicURL,
		UserAgent: rc.UserAgent,
		Logger:    logger,
	})

	return reddit.NewAggregator(searcher, reddit.AggregatorConfig{
		Delay:          rc.Delay,
		AnonymousDelay: rc.AnonymousDelay,
		Jitter:         rc.Jitter,
		RequireAuth:    rc.RequireAuth,
		Logger:         logger,
	}), nil
}

// newGenerator builds the provider chain in the configured order, skipping
// providers without an API key.
func newGenerator(ctx context.Context, ac config.AIConfig, logger *slog.Logger) *reply.Generator {
	client := &http.Client{}

	var providers []llm.Provider
	for _, name := range ac.Order {
		p, err := llm.New(ctx, name, ac.Options(name), client, logger)
		if errors.Is(err, llm.ErrNotConfigured) {
			logger.Debug("provider not configured", "provider", name)
			continue
		}
		if err != nil {
			logger.Warn("provider unavailable", "provider", name, "err", err)
			continue
		}
		providers = append(providers, p)
	}

	g := reply.NewGenerator(providers, logger)
	if !g.Configured() {
		logger.Info("no AI provider configured, replies will be demo drafts")
	}
	return g
}

// openStore returns nil when storage is disabled.
func openStore(ctx context.Context, sc config.StorageConfig) (storage.Backend, error) {
	var (
		b   storage.Backend
		err error
	)
	switch sc.Driver {
	case config.DriverNone, "":
		return nil, nil
	case config.DriverSQLite:
		b, err = sqlite.New(sc.DSN)
	case config.DriverPostgres:
		b, err = postgres.New(ctx, sc.DSN)
	case config.DriverJSON:
		b, err = jsonbackend.New(sc.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", sc.Driver, err)
	}
	return b, nil
}

// requireStore opens storage for commands that only read history.
func requireStore(ctx context.Context, c *config.Config) (storage.Backend, error) {
	store, err := openStore(ctx, c.Storage)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("storage is not configured (set storage.driver and storage.dsn)")
	}
	return store, nil
}
