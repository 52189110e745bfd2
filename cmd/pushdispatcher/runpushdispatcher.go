package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-dispatcher/internal/auth"
	"github.com/tinywideclouds/go-push-dispatcher/internal/pipeline"
	"github.com/tinywideclouds/go-push-dispatcher/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-dispatcher/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-push-dispatcher/internal/storage/firestore"
	pgStore "github.com/tinywideclouds/go-push-dispatcher/internal/storage/postgres"
	restStore "github.com/tinywideclouds/go-push-dispatcher/internal/storage/rest"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatcher/pushdispatcher"
	"github.com/tinywideclouds/go-push-dispatcher/pushdispatcher/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-dispatcher")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Service Identity ---
	identity, err := dispatch.ParseServiceIdentity([]byte(cfg.ServiceAccountJSON))
	if err != nil {
		logger.Error("Service account invalid", "err", err)
		os.Exit(1)
	}
	if _, err := auth.ParsePrivateKey(identity.PrivateKey); err != nil {
		logger.Error("Service account private key invalid", "err", err)
		os.Exit(1)
	}
	logger.Info("Service identity loaded", "identity", identity)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Profile Store (Decorated) ---
	profiles, closeStore, err := newProfileStore(ctx, cfg, httpClient)
	if err != nil {
		logger.Error("Profile store failed", "driver", cfg.ProfileStore.Driver, "err", err)
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("ProfileStore initialized", "type", cfg.ProfileStore.Driver)

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		profiles = cache.NewCachedProfileStore(profiles, redisClient, cfg.Redis.TTL, logger)
		logger.Warn("Token cache enabled: cleared tokens keep receiving pushes until their entry expires",
			"staleness_window", cfg.Redis.TTL.String())
		logger.Info("ProfileStore upgraded", "type", "redis_cached_"+cfg.ProfileStore.Driver)
	}

	// --- Credentials & Dispatcher ---
	exchanger := auth.NewExchanger(identity.TokenURI, httpClient, logger)
	tokenSource := auth.NewServiceAccountTokenSource(identity, exchanger)
	fcmDispatcher := fcm.NewDispatcher(cfg.FCMBaseURL, cfg.ProjectID, httpClient, logger)

	handler := pipeline.NewHandler(profiles, tokenSource, fcmDispatcher, cfg.DispatchTimeout, logger)

	// --- Optional Pub/Sub trigger ---
	var consumer messagepipeline.MessageConsumer
	if cfg.PubsubEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("PubSub consumer failed", "err", err)
			os.Exit(1)
		}
	}

	service, err := pushdispatcher.New(cfg, handler, consumer, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...", "addr", cfg.ListenAddr)
		errCh <- service.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Service shutdown with error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			os.Exit(1)
		}
	}
}

func newProfileStore(ctx context.Context, cfg *config.Config, httpClient *http.Client) (dispatch.ProfileStore, func(), error) {
	switch cfg.ProfileStore.Driver {
	case config.DriverPostgres:
		pool, err := pgStore.NewPool(ctx, cfg.ProfileStore.URL)
		if err != nil {
			return nil, nil, err
		}
		return pgStore.NewProfileStore(pool), pool.Close, nil

	case config.DriverFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		return fsStore.NewProfileStore(fsClient, cfg.ProfileStore.Table), func() { _ = fsClient.Close() }, nil

	default:
		store := restStore.NewProfileStore(cfg.ProfileStore.URL, cfg.ProfileStore.Key, cfg.ProfileStore.Table, httpClient)
		return store, func() {}, nil
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.SubscriptionID, "subscriptions")

	subConfig := &pubsubpb.Subscription{
		Name:                     sub,
		Topic:                    convertPubsub(cfg.ProjectID, cfg.TopicID, "topics"),
		AckDeadlineSeconds:       30,
		MessageRetentionDuration: durationpb.New(24 * time.Hour),
		EnableMessageOrdering:    false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}

	if cfg.TopicID != "" {
		logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
		_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
		if err != nil {
			if status.Code(err) == codes.AlreadyExists {
				logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
			} else {
				logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
				return nil, fmt.Errorf("could not create sub: %s", sub)
			}
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(cfg.PubsubConsumerConfig, psClient, logger)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
