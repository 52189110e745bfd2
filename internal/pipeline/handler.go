// Package pipeline runs one notification event through resolve, authorize
// and dispatch, and turns the outcome into the caller-facing response.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

// State is a step of a single invocation.
type State string

const (
	StateReceived      State = "RECEIVED"
	StateResolving     State = "RESOLVING"
	StateNoToken       State = "NO_TOKEN"
	StateResolveFailed State = "RESOLVE_FAILED"
	StateAuthorizing   State = "AUTHORIZING"
	StateDispatching   State = "DISPATCHING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// SuccessBody is returned with 200.
type SuccessBody struct {
	Success   bool            `json:"success"`
	FCMResult json.RawMessage `json:"fcmResult"`
}

// ErrorBody is returned with 400 and 500.
type ErrorBody struct {
	Error string `json:"error"`
}

// Result is the terminal outcome of Handle.
type Result struct {
	State      State
	StatusCode int
	Body       interface{}
	// Err is nil for DONE.
	Err error
}

// Handler is stateless; one instance serves concurrent invocations.
type Handler struct {
	profiles   dispatch.ProfileStore
	tokens     dispatch.TokenSource
	dispatcher dispatch.Dispatcher
	timeout    time.Duration
	logger     *slog.Logger
}

// NewHandler wires the stages. A zero timeout leaves the caller's context alone.
func NewHandler(
	profiles dispatch.ProfileStore,
	tokens dispatch.TokenSource,
	dispatcher dispatch.Dispatcher,
	timeout time.Duration,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		profiles:   profiles,
		tokens:     tokens,
		dispatcher: dispatcher,
		timeout:    timeout,
		logger:     logger.With("component", "DispatchHandler"),
	}
}

// Handle processes one event. It never panics on stage failure and always
// returns a terminal Result.
func (h *Handler) Handle(ctx context.Context, event dispatch.NotificationEvent) Result {
	start := time.Now()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	log := h.logger.With(
		"invocation_id", uuid.NewString(),
		"user_id", event.UserID,
		"notification_id", event.ID,
		"type", event.Type,
	)

	state := StateReceived
	transition := func(next State) {
		log.Debug("State transition", "from", state, "to", next)
		state = next
	}
	finish := func(res Result) Result {
		observe(res.State, time.Since(start))
		return res
	}
	fail := func(next State, kind dispatch.FailureKind, err error) Result {
		transition(next)
		err = dispatch.NewStageError(kind, err)
		log.Error("Push dispatch failed", "stage", dispatch.KindOf(err).String(), "err", err)
		return finish(Result{
			State:      state,
			StatusCode: http.StatusInternalServerError,
			Body:       ErrorBody{Error: err.Error()},
			Err:        err,
		})
	}

	log.Info("New notification received")

	transition(StateResolving)
	deviceToken, err := h.profiles.FetchPushToken(ctx, event.UserID)
	if err == nil && deviceToken == "" {
		err = dispatch.ErrNoRecipientToken
	}
	if errors.Is(err, dispatch.ErrNoRecipientToken) {
		transition(StateNoToken)
		log.Warn("No FCM token for user")
		return finish(Result{
			State:      state,
			StatusCode: http.StatusBadRequest,
			Body:       ErrorBody{Error: dispatch.ErrNoRecipientToken.Error()},
			Err:        err,
		})
	}
	if err != nil {
		return fail(StateResolveFailed, dispatch.FailureResolution, err)
	}

	transition(StateAuthorizing)
	accessToken, err := h.tokens.AccessToken(ctx)
	if err != nil {
		return fail(StateFailed, dispatch.FailureExchange, err)
	}

	transition(StateDispatching)
	gatewayResult, err := h.dispatcher.Send(ctx, deviceToken, accessToken, event)
	if err != nil {
		return fail(StateFailed, dispatch.FailureDispatch, err)
	}

	transition(StateDone)
	log.Info("FCM dispatched", "fcm_result", string(gatewayResult))
	return finish(Result{
		State:      state,
		StatusCode: http.StatusOK,
		Body:       SuccessBody{Success: true, FCMResult: gatewayResult},
	})
}
