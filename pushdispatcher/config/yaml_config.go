package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
)

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	TTL      string `yaml:"ttl"`
}

type YamlProfileStoreConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
	Table  string `yaml:"table"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
// Secrets are deliberately absent; they only come from the environment.
type YamlConfig struct {
	ProjectID              string                 `yaml:"project_id"`
	ListenAddr             string                 `yaml:"listen_addr"`
	FCMBaseURL             string                 `yaml:"fcm_base_url"`
	HTTPTimeout            string                 `yaml:"http_timeout"`
	DispatchTimeout        string                 `yaml:"dispatch_timeout"`
	ProfileStore           YamlProfileStoreConfig `yaml:"profile_store"`
	RedisConfig            YamlRedisConfig        `yaml:"redis"`
	TopicID                string                 `yaml:"topic_id"`
	SubscriptionID         string                 `yaml:"subscription_id"`
	SubscriptionDLQTopicID string                 `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int                    `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	httpTimeout, err := parseOptionalDuration("http_timeout", baseCfg.HTTPTimeout)
	if err != nil {
		return nil, err
	}
	dispatchTimeout, err := parseOptionalDuration("dispatch_timeout", baseCfg.DispatchTimeout)
	if err != nil {
		return nil, err
	}
	redisTTL, err := parseOptionalDuration("redis.ttl", baseCfg.RedisConfig.TTL)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:       baseCfg.ProjectID,
		ListenAddr:      baseCfg.ListenAddr,
		FCMBaseURL:      baseCfg.FCMBaseURL,
		HTTPTimeout:     httpTimeout,
		DispatchTimeout: dispatchTimeout,
		ProfileStore: ProfileStoreConfig{
			Driver: baseCfg.ProfileStore.Driver,
			URL:    baseCfg.ProfileStore.URL,
			Table:  baseCfg.ProfileStore.Table,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      redisTTL,
		},
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"profile_store_driver", cfg.ProfileStore.Driver,
	)

	return cfg, nil
}

func parseOptionalDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return d, nil
}
