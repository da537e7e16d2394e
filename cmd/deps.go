package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/site-analyzer/internal/analyzer"
	"github.com/sells-group/site-analyzer/internal/config"
	"github.com/sells-group/site-analyzer/internal/fetch"
	"github.com/sells-group/site-analyzer/internal/netguard"
	"github.com/sells-group/site-analyzer/internal/store"
	"github.com/sells-group/site-analyzer/internal/synth"
	"github.com/sells-group/site-analyzer/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "siteanalyzer.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// crawlLimits maps the crawl config block onto the orchestrator's fetch
// budgets. Zero or missing values fall back to the stock defaults.
func crawlLimits(c config.CrawlConfig) analyzer.Limits {
	limits := analyzer.DefaultLimits()
	if c.ScrapeTimeoutSecs > 0 {
		limits.ScrapeOptions.Timeout = time.Duration(c.ScrapeTimeoutSecs) * time.Second
	}
	if c.ScrapeMaxBytes > 0 {
		limits.ScrapeOptions.MaxBytes = int64(c.ScrapeMaxBytes)
	}
	if c.DiscoveryTimeoutSecs > 0 {
		limits.DiscoveryOptions.Timeout = time.Duration(c.DiscoveryTimeoutSecs) * time.Second
	}
	if c.DiscoveryMaxBytes > 0 {
		limits.DiscoveryOptions.MaxBytes = int64(c.DiscoveryMaxBytes)
	}
	if c.MaxPages > 0 {
		limits.MaxPages = c.MaxPages
	}
	return limits
}

// initOrchestrator wires the full pipeline. The synthesizer is built per
// API key so callers can bring a per-tenant credential; an empty key falls
// back to the configured one.
func initOrchestrator(st store.Store) *analyzer.Orchestrator {
	guard := netguard.NewURLGuard()
	fetcher := fetch.NewFetcher(guard)

	synthFor := func(apiKey string) synth.Synthesizer {
		if apiKey == "" {
			apiKey = cfg.Anthropic.Key
		}
		return synth.NewClaude(anthropic.NewClient(apiKey), cfg.Anthropic.Model)
	}

	return analyzer.NewWithLimits(st, synthFor, guard, fetcher, crawlLimits(cfg.Crawl))
}
