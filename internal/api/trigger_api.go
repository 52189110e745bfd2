package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-push-dispatcher/internal/pipeline"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

// maxPayloadBytes bounds a single trigger body.
const maxPayloadBytes = 1 << 20

// EventHandler runs one event to completion.
type EventHandler interface {
	Handle(ctx context.Context, event dispatch.NotificationEvent) pipeline.Result
}

// TriggerAPI receives change-trigger webhooks.
type TriggerAPI struct {
	Handler       EventHandler
	WebhookSecret string
	Logger        *slog.Logger
}

func NewTriggerAPI(handler EventHandler, webhookSecret string, logger *slog.Logger) *TriggerAPI {
	return &TriggerAPI{
		Handler:       handler,
		WebhookSecret: webhookSecret,
		Logger:        logger,
	}
}

// Dispatch decodes {"record": {...}} and writes the handler's Result.
func (api *TriggerAPI) Dispatch(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(r) {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		api.writeJSON(w, http.StatusInternalServerError, pipeline.ErrorBody{Error: err.Error()})
		return
	}

	event, err := dispatch.DecodeTriggerPayload(raw)
	if err != nil {
		// a bad payload is reported through the same catch-all shape as any other failure
		api.Logger.Error("Dispatch: payload rejected", "err", err)
		api.writeJSON(w, http.StatusInternalServerError, pipeline.ErrorBody{Error: err.Error()})
		return
	}

	res := api.Handler.Handle(r.Context(), event)
	api.writeJSON(w, res.StatusCode, res.Body)
}

func (api *TriggerAPI) authorized(r *http.Request) bool {
	if api.WebhookSecret == "" {
		return true
	}
	presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(api.WebhookSecret)) == 1
}

func (api *TriggerAPI) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		api.Logger.Warn("Failed to write response", "err", err)
	}
}
