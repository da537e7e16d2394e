package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/site-analyzer/internal/analyzer"
	"github.com/sells-group/site-analyzer/internal/config"
)

func TestCrawlLimits_MapsConfig(t *testing.T) {
	limits := crawlLimits(config.CrawlConfig{
		ScrapeTimeoutSecs:    30,
		ScrapeMaxBytes:       1 << 20,
		DiscoveryTimeoutSecs: 5,
		DiscoveryMaxBytes:    64 << 10,
		MaxPages:             3,
	})

	assert.Equal(t, 30*time.Second, limits.ScrapeOptions.Timeout)
	assert.Equal(t, int64(1<<20), limits.ScrapeOptions.MaxBytes)
	assert.True(t, limits.ScrapeOptions.FollowRedirects)
	assert.Equal(t, 5*time.Second, limits.DiscoveryOptions.Timeout)
	assert.Equal(t, int64(64<<10), limits.DiscoveryOptions.MaxBytes)
	assert.False(t, limits.DiscoveryOptions.FollowRedirects)
	assert.Equal(t, 3, limits.MaxPages)
}

func TestCrawlLimits_ZeroValuesKeepDefaults(t *testing.T) {
	assert.Equal(t, analyzer.DefaultLimits(), crawlLimits(config.CrawlConfig{}))
}
