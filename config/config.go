package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetch     FetchConfig
	Extract   ExtractConfig
	Batch     BatchConfig
	Council   CouncilConfig
	Analytics AnalyticsConfig
	Storage   StorageConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// FetchConfig controls the page fetcher fallback chain.
type FetchConfig struct {
	// Engines is the fallback order. Unknown names are ignored.
	Engines []string // default: ["http", "rod", "chromedp"]

	// HTTPTimeout is the deadline for the plain HTTP strategy.
	HTTPTimeout time.Duration // default: 60s

	// BrowserTimeout bounds one browser strategy attempt.
	BrowserTimeout time.Duration // default: 60s

	// ImplicitWait is how long the native-driver strategy waits for the
	// document body to appear.
	ImplicitWait time.Duration // default: 5s

	// UserAgent is sent by every strategy.
	UserAgent string
}

// ExtractConfig controls the dynamic content extractor.
type ExtractConfig struct {
	// PollInterval is the upper bound of one poll sleep.
	PollInterval time.Duration // default: 5s

	// DefaultTimeout is used when a request carries no timeout.
	DefaultTimeout time.Duration // default: 600s

	// NavigationTimeout bounds the initial page.Navigate call.
	NavigationTimeout time.Duration // default: 60s

	// MaxAttempts is the total number of tries for a navigation timeout.
	MaxAttempts int // default: 3

	// RetryInitialInterval is the first exponential backoff delay.
	RetryInitialInterval time.Duration // default: 1s
}

// BatchConfig controls the batch orchestrator.
type BatchConfig struct {
	// MaxConcurrent bounds simultaneously in-flight lookups.
	MaxConcurrent int // default: 3
}

// CouncilConfig points at the council lookup sites.
type CouncilConfig struct {
	// LookupURL is the ArcGIS instant lookup app.
	LookupURL string

	// AppID is the lookup app identifier.
	AppID string

	// SACommunityURL is the SA Community site root.
	SACommunityURL string

	// Timeout bounds one council lookup poll loop.
	Timeout time.Duration // default: 600s
}

// AnalyticsConfig controls the reporting API client.
type AnalyticsConfig struct {
	// PropertyID is the GA4 property, e.g. "123456789".
	PropertyID string

	// CredentialsFile is a service-account or authorized-user JSON file.
	CredentialsFile string

	// BaseURL is the Data API root.
	BaseURL string // default: "https://analyticsdata.googleapis.com/v1beta"

	// Concurrency bounds parallel per-organisation queries.
	Concurrency int // default: 5

	// Timeout bounds one report request.
	Timeout time.Duration // default: 60s
}

// StorageConfig controls where output files go.
type StorageConfig struct {
	// Root is the directory that holds data/ and logs.
	Root string // default: "."
}

// CacheConfig controls the fetch response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000

	// TTL is how long a cached response stays valid.
	TTL time.Duration // default: 1h
}

// WebhookConfig controls batch completion notifications.
type WebhookConfig struct {
	// URL receives batch.completed events. Empty disables delivery.
	URL string

	// Secret signs event bodies with HMAC-SHA256.
	Secret string
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls browser launches.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects anti-bot-detection evasions into rod pages.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block in rod pages.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds blocks well-known ad and tracking domains.
	BlockAds bool // default: true
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// DefaultUserAgent is the desktop Chrome user agent sent by every strategy.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVEST_HOST", "0.0.0.0"),
			Port: envIntOr("HARVEST_PORT", 8080),
			Mode: envOr("HARVEST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("HARVEST_HEADLESS", true),
			DefaultProxy: os.Getenv("HARVEST_PROXY"),
			NoSandbox:    envBoolOr("HARVEST_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("HARVEST_BROWSER_BIN"),
			Stealth:      envBoolOr("HARVEST_STEALTH", true),
			BlockedResourceTypes: envSliceOr("HARVEST_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("HARVEST_BLOCK_ADS", true),
		},
		Fetch: FetchConfig{
			Engines:        envSliceOr("HARVEST_ENGINES", []string{"http", "rod", "chromedp"}),
			HTTPTimeout:    envDurationOr("HARVEST_HTTP_TIMEOUT", 60*time.Second),
			BrowserTimeout: envDurationOr("HARVEST_BROWSER_TIMEOUT", 60*time.Second),
			ImplicitWait:   envDurationOr("HARVEST_IMPLICIT_WAIT", 5*time.Second),
			UserAgent:      envOr("HARVEST_USER_AGENT", DefaultUserAgent),
		},
		Extract: ExtractConfig{
			PollInterval:         envDurationOr("HARVEST_POLL_INTERVAL", 5*time.Second),
			DefaultTimeout:       envDurationOr("HARVEST_EXTRACT_TIMEOUT", 600*time.Second),
			NavigationTimeout:    envDurationOr("HARVEST_NAV_TIMEOUT", 60*time.Second),
			MaxAttempts:          envIntOr("HARVEST_EXTRACT_ATTEMPTS", 3),
			RetryInitialInterval: envDurationOr("HARVEST_RETRY_INTERVAL", time.Second),
		},
		Batch: BatchConfig{
			MaxConcurrent: envIntOr("HARVEST_MAX_CONCURRENT", 3),
		},
		Council: CouncilConfig{
			LookupURL:      envOr("HARVEST_COUNCIL_LOOKUP_URL", "https://lga-sa.maps.arcgis.com/apps/instant/lookup/index.html"),
			AppID:          envOr("HARVEST_COUNCIL_APP_ID", "db6cce7b773746b4a1d4ce544435f9da"),
			SACommunityURL: envOr("HARVEST_SACOMMUNITY_URL", "https://sacommunity.org"),
			Timeout:        envDurationOr("HARVEST_COUNCIL_TIMEOUT", 600*time.Second),
		},
		Analytics: AnalyticsConfig{
			PropertyID:      os.Getenv("HARVEST_GA_PROPERTY_ID"),
			CredentialsFile: os.Getenv("HARVEST_GA_CREDENTIALS"),
			BaseURL:         envOr("HARVEST_GA_BASE_URL", "https://analyticsdata.googleapis.com/v1beta"),
			Concurrency:     envIntOr("HARVEST_GA_CONCURRENCY", 5),
			Timeout:         envDurationOr("HARVEST_GA_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			Root: envOr("HARVEST_DATA_ROOT", "."),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 2.0),
			Burst:             envIntOr("HARVEST_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("HARVEST_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("HARVEST_CACHE_TTL", time.Hour),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("HARVEST_WEBHOOK_URL"),
			Secret: os.Getenv("HARVEST_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("HARVEST_LOG_LEVEL", "info"),
			Format: envOr("HARVEST_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
