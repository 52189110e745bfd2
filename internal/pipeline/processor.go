package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

// NewProcessor adapts the Handler to the streaming pipeline.
// Every outcome is acked: delivery is at-most-once and failures are not
// redelivered.
func NewProcessor(handler *Handler, logger *slog.Logger) messagepipeline.StreamProcessor[dispatch.NotificationEvent] {
	return func(ctx context.Context, original messagepipeline.Message, event *dispatch.NotificationEvent) error {
		res := handler.Handle(ctx, *event)
		if res.Err != nil {
			logger.Warn("Dropping notification after failed dispatch",
				"pubsub_msg_id", original.ID,
				"state", res.State,
				"err", res.Err,
			)
		}
		return nil
	}
}
