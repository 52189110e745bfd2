package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
)

// Profile store drivers.
const (
	DriverREST      = "rest"
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type ProfileStoreConfig struct {
	Driver string
	// URL is the PostgREST base URL or the Postgres DSN, depending on Driver.
	URL   string
	Key   string
	Table string
}

// Config defines the *single*, authoritative configuration.
// It is built once at startup and shared read-only.
type Config struct {
	ProjectID  string
	ListenAddr string

	// ServiceAccountJSON is the raw service-account blob; never log it.
	ServiceAccountJSON string
	FCMBaseURL         string
	WebhookSecret      string

	HTTPTimeout     time.Duration
	DispatchTimeout time.Duration

	ProfileStore ProfileStoreConfig
	Redis        RedisConfig

	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig
}

// PubsubEnabled reports whether the Pub/Sub trigger should run.
func (c *Config) PubsubEnabled() bool {
	return c.SubscriptionID != ""
}

func firstEnv(keys ...string) (string, string) {
	for _, k := range keys {
		if val := os.Getenv(k); val != "" {
			return k, val
		}
	}
	return "", ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if key, val := firstEnv("FIREBASE_PROJECT_ID", "PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", key, "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("FIREBASE_SERVICE_ACCOUNT"); val != "" {
		logger.Debug("Overriding config value", "key", "FIREBASE_SERVICE_ACCOUNT", "source", "env")
		cfg.ServiceAccountJSON = val
	}
	if val := os.Getenv("FCM_BASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_BASE_URL", "source", "env")
		cfg.FCMBaseURL = val
	}
	if val := os.Getenv("WEBHOOK_SECRET"); val != "" {
		logger.Debug("Overriding config value", "key", "WEBHOOK_SECRET", "source", "env")
		cfg.WebhookSecret = val
	}
	if val := os.Getenv("HTTP_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT %q: %w", val, err)
		}
		cfg.HTTPTimeout = d
	}
	if val := os.Getenv("DISPATCH_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DISPATCH_TIMEOUT %q: %w", val, err)
		}
		cfg.DispatchTimeout = d
	}

	// Profile store overrides
	if val := os.Getenv("PROFILE_STORE_DRIVER"); val != "" {
		logger.Debug("Overriding config value", "key", "PROFILE_STORE_DRIVER", "source", "env")
		cfg.ProfileStore.Driver = val
	}
	if key, val := firstEnv("PROFILE_STORE_URL", "SUPABASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", key, "source", "env")
		cfg.ProfileStore.URL = val
	}
	if key, val := firstEnv("PROFILE_STORE_KEY", "SUPABASE_SERVICE_ROLE_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", key, "source", "env")
		cfg.ProfileStore.Key = val
	}
	if val := os.Getenv("PROFILE_STORE_TABLE"); val != "" {
		cfg.ProfileStore.Table = val
	}

	// Pub/Sub overrides
	if val := os.Getenv("TOPIC_ID"); val != "" {
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		workers, err := strconv.Atoi(val)
		if err != nil || workers <= 0 {
			return nil, fmt.Errorf("invalid NUM_PIPELINE_WORKERS %q: must be a positive integer", val)
		}
		logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
		cfg.NumPipelineWorkers = workers
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		db, err := strconv.Atoi(val)
		if err != nil || db < 0 {
			return nil, fmt.Errorf("invalid REDIS_DB %q: must be a non-negative integer", val)
		}
		cfg.Redis.DB = db
	}
	if val := os.Getenv("REDIS_TTL"); val != "" {
		ttl, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_TTL %q: %w", val, err)
		}
		cfg.Redis.TTL = ttl
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_ENABLED %q: %w", val, err)
		}
		cfg.Redis.Enabled = enabled
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or FIREBASE_PROJECT_ID env var)")
	}
	if cfg.ServiceAccountJSON == "" {
		return nil, fmt.Errorf("service account is required (set FIREBASE_SERVICE_ACCOUNT env var)")
	}
	if cfg.ProfileStore.Driver == "" {
		cfg.ProfileStore.Driver = DriverREST
	}
	switch cfg.ProfileStore.Driver {
	case DriverREST:
		if cfg.ProfileStore.URL == "" || cfg.ProfileStore.Key == "" {
			return nil, fmt.Errorf("profile store url and key are required (set SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY)")
		}
	case DriverPostgres:
		if cfg.ProfileStore.URL == "" {
			return nil, fmt.Errorf("profile store url is required for the postgres driver (set PROFILE_STORE_URL)")
		}
	case DriverFirestore:
	default:
		return nil, fmt.Errorf("unknown profile store driver %q", cfg.ProfileStore.Driver)
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis is enabled but no address is set (REDIS_ADDR)")
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 5 * time.Minute
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
