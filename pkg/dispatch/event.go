// Package dispatch contains the public domain types and ports of the push dispatcher.
package dispatch

import (
	"encoding/json"
	"fmt"
)

// NotificationEvent is the row that triggered a push.
type NotificationEvent struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	ID      string `json:"id"`
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

// TriggerPayload is the envelope sent by the database change trigger.
// Only Record is consumed.
type TriggerPayload struct {
	Record *NotificationEvent `json:"record"`
}

// DecodeTriggerPayload extracts the NotificationEvent from a raw trigger body.
func DecodeTriggerPayload(raw []byte) (NotificationEvent, error) {
	var payload TriggerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return NotificationEvent{}, fmt.Errorf("failed to decode trigger payload: %w", err)
	}
	if payload.Record == nil {
		return NotificationEvent{}, fmt.Errorf("trigger payload has no record")
	}
	return *payload.Record, nil
}
