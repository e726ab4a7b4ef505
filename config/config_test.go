package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, []string{"http", "rod", "chromedp"}, cfg.Fetch.Engines)
	assert.Equal(t, 60*time.Second, cfg.Fetch.HTTPTimeout)
	assert.Equal(t, 5*time.Second, cfg.Fetch.ImplicitWait)
	assert.Equal(t, 5*time.Second, cfg.Extract.PollInterval)
	assert.Equal(t, 3, cfg.Extract.MaxAttempts)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrent)
	assert.Equal(t, 5, cfg.Analytics.Concurrency)
	assert.Equal(t, DefaultUserAgent, cfg.Fetch.UserAgent)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HARVEST_ENGINES", "http, chromedp ,")
	t.Setenv("HARVEST_MAX_CONCURRENT", "7")
	t.Setenv("HARVEST_POLL_INTERVAL", "250ms")
	t.Setenv("HARVEST_HEADLESS", "false")

	cfg := Load()

	assert.Equal(t, []string{"http", "chromedp"}, cfg.Fetch.Engines)
	assert.Equal(t, 7, cfg.Batch.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.Extract.PollInterval)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HARVEST_MAX_CONCURRENT", "lots")
	t.Setenv("HARVEST_HTTP_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 3, cfg.Batch.MaxConcurrent)
	assert.Equal(t, 60*time.Second, cfg.Fetch.HTTPTimeout)
}
