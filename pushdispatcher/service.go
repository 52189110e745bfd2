// Package pushdispatcher assembles the HTTP trigger, the optional Pub/Sub
// trigger and the dispatch handler into one service.
package pushdispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"

	"github.com/tinywideclouds/go-push-dispatcher/internal/api"
	"github.com/tinywideclouds/go-push-dispatcher/internal/pipeline"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatcher/pushdispatcher/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[dispatch.NotificationEvent]
	logger          *slog.Logger
}

// New assembles the service. consumer may be nil, in which case only the
// HTTP trigger is served.
func New(
	cfg *config.Config,
	handler *pipeline.Handler,
	consumer messagepipeline.MessageConsumer,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline (optional Pub/Sub trigger)
	var streamingService *messagepipeline.StreamingService[dispatch.NotificationEvent]
	if consumer != nil {
		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.NewTriggerPayloadTransformer(logger),
			pipeline.NewProcessor(handler, logger),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. API (HTTP trigger)
	triggerAPI := api.NewTriggerAPI(handler, cfg.WebhookSecret, logger)

	mux := baseServer.Mux()
	mux.Handle("POST /v1/notifications/dispatch", http.HandlerFunc(triggerAPI.Dispatch))
	// database webhooks post to the function root
	mux.Handle("POST /{$}", http.HandlerFunc(triggerAPI.Dispatch))
	mux.Handle("GET /internal/metrics", promhttp.Handler())

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Pub/Sub trigger pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
