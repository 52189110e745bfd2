// Package fcm delivers messages through the FCM HTTP v1 send endpoint.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

// DefaultBaseURL is the production FCM host.
const DefaultBaseURL = "https://fcm.googleapis.com"

// ErrNonJSONResponse is returned when the gateway answers with something
// that is not JSON.
var ErrNonJSONResponse = errors.New("fcm returned a non-JSON response")

type sendRequest struct {
	Message *messaging.Message `json:"message"`
}

// Dispatcher posts one message per call, authorized by the caller's bearer token.
type Dispatcher struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDispatcher(baseURL, projectID string, httpClient *http.Client, logger *slog.Logger) *Dispatcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Dispatcher{
		endpoint:   fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(baseURL, "/"), projectID),
		httpClient: httpClient,
		logger:     logger.With("component", "FCMDispatcher"),
	}
}

// BuildEnvelope maps an event onto an FCM message for a single device.
func BuildEnvelope(deviceToken string, event dispatch.NotificationEvent) *messaging.Message {
	return &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: event.Title,
			Body:  event.Body,
		},
		Data: map[string]string{
			"notification_id": event.ID,
			"event_id":        event.EventID,
			"type":            event.Type,
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound:            "default",
					ContentAvailable: true,
				},
			},
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}

// Send delivers the envelope and returns the gateway's JSON body untouched.
// Error codes inside a 2xx body are not interpreted.
func (d *Dispatcher) Send(ctx context.Context, deviceToken, accessToken string, event dispatch.NotificationEvent) (json.RawMessage, error) {
	body, err := json.Marshal(sendRequest{Message: BuildEnvelope(deviceToken, event)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fcm message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	d.logger.Debug("Sending FCM message", "token", truncate(deviceToken, 20), "notification_id", event.ID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read fcm response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fcm send failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !json.Valid(raw) {
		return nil, ErrNonJSONResponse
	}
	return json.RawMessage(raw), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
