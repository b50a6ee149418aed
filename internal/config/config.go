package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	CORSOrigin    string
	LogLevel      string
	// Events resolver
	TierTimeout   time.Duration
	OverallBudget time.Duration
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// Provenance counters; disabled when empty
	RedisURL string
	// Vehicle images; disabled when MediaEndpoint is empty
	MediaEndpoint      string
	MediaAccessKey     string
	MediaSecretKey     string
	MediaBucket        string
	MediaPublicBaseURL string
	MediaUseSSL        bool
	MediaCacheTTL      time.Duration
	PollRegistryPath   string
}

// Load reads configuration from the environment.
func Load() Config {
	v := viper.New()

	v.SetDefault("api_addr", ":8787")
	v.SetDefault("database_url", "")
	v.SetDefault("migrations_dir", "./db/migrations")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("log_level", "info")
	v.SetDefault("events_tier_timeout_ms", 700)
	v.SetDefault("events_overall_budget_ms", 800)
	v.SetDefault("meili_url", "")
	v.SetDefault("meili_master_key", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("media_endpoint", "")
	v.SetDefault("media_access_key", "")
	v.SetDefault("media_secret_key", "")
	v.SetDefault("media_bucket", "vehicles1")
	v.SetDefault("media_public_base_url", "")
	v.SetDefault("media_use_ssl", true)
	v.SetDefault("media_cache_ttl_seconds", 0)
	v.SetDefault("poll_registry_path", "./data/pollsRegistry.json")

	v.AutomaticEnv()

	cfg := Config{
		Addr:               v.GetString("api_addr"),
		DatabaseURL:        strings.TrimSpace(v.GetString("database_url")),
		MigrationsDir:      v.GetString("migrations_dir"),
		CORSOrigin:         v.GetString("cors_origin"),
		LogLevel:           v.GetString("log_level"),
		TierTimeout:        time.Duration(v.GetInt("events_tier_timeout_ms")) * time.Millisecond,
		OverallBudget:      time.Duration(v.GetInt("events_overall_budget_ms")) * time.Millisecond,
		MeiliURL:           v.GetString("meili_url"),
		MeiliMasterKey:     v.GetString("meili_master_key"),
		RedisURL:           v.GetString("redis_url"),
		MediaEndpoint:      v.GetString("media_endpoint"),
		MediaAccessKey:     v.GetString("media_access_key"),
		MediaSecretKey:     v.GetString("media_secret_key"),
		MediaBucket:        v.GetString("media_bucket"),
		MediaPublicBaseURL: v.GetString("media_public_base_url"),
		MediaUseSSL:        v.GetBool("media_use_ssl"),
		MediaCacheTTL:      time.Duration(v.GetInt("media_cache_ttl_seconds")) * time.Second,
		PollRegistryPath:   v.GetString("poll_registry_path"),
	}
	if cfg.MediaPublicBaseURL == "" && cfg.MediaEndpoint != "" {
		scheme := "http"
		if cfg.MediaUseSSL {
			scheme = "https"
		}
		cfg.MediaPublicBaseURL = scheme + "://" + cfg.MediaEndpoint
	}
	return cfg
}

// Validate reports every problem at once. A missing DATABASE_URL is not an
// error here; the events endpoint reports it per request.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Addr == "" {
		result = multierror.Append(result, errors.New("API_ADDR must not be empty"))
	}
	if c.TierTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("EVENTS_TIER_TIMEOUT_MS must be positive, got %s", c.TierTimeout))
	}
	if c.OverallBudget <= 0 {
		result = multierror.Append(result, fmt.Errorf("EVENTS_OVERALL_BUDGET_MS must be positive, got %s", c.OverallBudget))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.MediaEndpoint != "" && c.MediaBucket == "" {
		result = multierror.Append(result, errors.New("MEDIA_BUCKET is required when MEDIA_ENDPOINT is set"))
	}
	if c.MediaCacheTTL < 0 {
		result = multierror.Append(result, errors.New("MEDIA_CACHE_TTL_SECONDS must not be negative"))
	}

	return result.ErrorOrNil()
}
