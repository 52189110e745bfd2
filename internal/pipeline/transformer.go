package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

// NewTriggerPayloadTransformer returns a dataflow transformer that decodes a
// change-trigger payload carried on a Pub/Sub message.
//
// The StreamingService Acks skipped messages and only logs them at debug, so
// an undecodable payload is reported here before it is dropped.
func NewTriggerPayloadTransformer(logger *slog.Logger) messagepipeline.MessageTransformer[dispatch.NotificationEvent] {
	logger = logger.With("component", "TriggerPayloadTransformer")
	return func(_ context.Context, msg *messagepipeline.Message) (*dispatch.NotificationEvent, bool, error) {
		event, err := dispatch.DecodeTriggerPayload(msg.Payload)
		if err != nil {
			logger.Warn("Dropping undecodable trigger payload", "pubsub_msg_id", msg.ID, "err", err)
			return nil, true, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		return &event, false, nil
	}
}
