package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-dispatcher/internal/auth"
	"github.com/tinywideclouds/go-push-dispatcher/internal/pipeline"
	"github.com/tinywideclouds/go-push-dispatcher/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type mockProfileStore struct {
	mock.Mock
}

func (m *mockProfileStore) FetchPushToken(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

type mockTokenSource struct {
	mock.Mock
}

func (m *mockTokenSource) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Send(ctx context.Context, deviceToken, accessToken string, event dispatch.NotificationEvent) (json.RawMessage, error) {
	args := m.Called(ctx, deviceToken, accessToken, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

var testEvent = dispatch.NotificationEvent{
	UserID: "u1",
	Title:  "T",
	Body:   "B",
	ID:     "evt-1",
	Type:   "reminder",
}

func bodyJSON(t *testing.T, res pipeline.Result) string {
	t.Helper()
	raw, err := json.Marshal(res.Body)
	require.NoError(t, err)
	return string(raw)
}

func TestHandler_Handle(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("Happy Path - one exchange, one dispatch", func(t *testing.T) {
		store, tokens, dispatcher := new(mockProfileStore), new(mockTokenSource), new(mockDispatcher)

		store.On("FetchPushToken", mock.Anything, "u1").Return("tok-abc", nil)
		tokens.On("AccessToken", mock.Anything).Return("ya29.test", nil).Once()
		dispatcher.On("Send", mock.Anything, "tok-abc", "ya29.test", testEvent).
			Return(json.RawMessage(`{"name":"projects/p/messages/1"}`), nil).Once()

		res := pipeline.NewHandler(store, tokens, dispatcher, time.Second, logger).Handle(ctx, testEvent)

		assert.Equal(t, pipeline.StateDone, res.State)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.NoError(t, res.Err)
		assert.JSONEq(t, `{"success":true,"fcmResult":{"name":"projects/p/messages/1"}}`, bodyJSON(t, res))
		tokens.AssertNumberOfCalls(t, "AccessToken", 1)
		dispatcher.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("No token - never authorizes or dispatches", func(t *testing.T) {
		for _, tc := range []struct {
			name  string
			token string
			err   error
		}{
			{name: "store reports none", err: dispatch.ErrNoRecipientToken},
			{name: "store returns empty", token: ""},
		} {
			t.Run(tc.name, func(t *testing.T) {
				store, tokens, dispatcher := new(mockProfileStore), new(mockTokenSource), new(mockDispatcher)
				store.On("FetchPushToken", mock.Anything, "u1").Return(tc.token, tc.err)

				res := pipeline.NewHandler(store, tokens, dispatcher, 0, logger).Handle(ctx, testEvent)

				assert.Equal(t, pipeline.StateNoToken, res.State)
				assert.Equal(t, http.StatusBadRequest, res.StatusCode)
				assert.JSONEq(t, `{"error":"No FCM token"}`, bodyJSON(t, res))
				tokens.AssertNotCalled(t, "AccessToken", mock.Anything)
				dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("Resolution failure - server error", func(t *testing.T) {
		store, tokens, dispatcher := new(mockProfileStore), new(mockTokenSource), new(mockDispatcher)
		store.On("FetchPushToken", mock.Anything, "u1").Return("", errors.New("connection refused"))

		res := pipeline.NewHandler(store, tokens, dispatcher, 0, logger).Handle(ctx, testEvent)

		assert.Equal(t, pipeline.StateResolveFailed, res.State)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, dispatch.FailureResolution, dispatch.KindOf(res.Err))
		assert.JSONEq(t, `{"error":"connection refused"}`, bodyJSON(t, res))
		tokens.AssertNotCalled(t, "AccessToken", mock.Anything)
	})

	t.Run("Credential failure keeps its kind", func(t *testing.T) {
		store, tokens, dispatcher := new(mockProfileStore), new(mockTokenSource), new(mockDispatcher)
		store.On("FetchPushToken", mock.Anything, "u1").Return("tok-abc", nil)
		tokens.On("AccessToken", mock.Anything).
			Return("", dispatch.NewStageError(dispatch.FailureCredential, errors.New("private key is not RSA")))

		res := pipeline.NewHandler(store, tokens, dispatcher, 0, logger).Handle(ctx, testEvent)

		assert.Equal(t, pipeline.StateFailed, res.State)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, dispatch.FailureCredential, dispatch.KindOf(res.Err))
		assert.JSONEq(t, `{"error":"private key is not RSA"}`, bodyJSON(t, res))
		dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Dispatch network error - message passed through", func(t *testing.T) {
		store, tokens, dispatcher := new(mockProfileStore), new(mockTokenSource), new(mockDispatcher)
		store.On("FetchPushToken", mock.Anything, "u1").Return("tok-abc", nil)
		tokens.On("AccessToken", mock.Anything).Return("ya29.test", nil)
		dispatcher.On("Send", mock.Anything, "tok-abc", "ya29.test", testEvent).Return(nil, errors.New("network down"))

		res := pipeline.NewHandler(store, tokens, dispatcher, 0, logger).Handle(ctx, testEvent)

		assert.Equal(t, pipeline.StateFailed, res.State)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, dispatch.FailureDispatch, dispatch.KindOf(res.Err))
		assert.JSONEq(t, `{"error":"network down"}`, bodyJSON(t, res))
	})
}

type downTransport struct{}

func (downTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("network down")
}

// TestHandler_EndToEnd runs the real signer, exchanger and dispatcher
// against fake identity and gateway servers.
func TestHandler_EndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	newHandler := func(t *testing.T, tokenStatus int, gatewayCalls *atomic.Int32) *pipeline.Handler {
		t.Helper()
		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, auth.JWTBearerGrant, r.PostForm.Get("grant_type"))
			w.WriteHeader(tokenStatus)
			_, _ = w.Write([]byte(`{"access_token":"ya29.e2e"}`))
		}))
		t.Cleanup(tokenServer.Close)

		gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gatewayCalls.Add(1)
			assert.Equal(t, "Bearer ya29.e2e", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"name":"projects/demo/messages/42"}`))
		}))
		t.Cleanup(gateway.Close)

		identity := dispatch.ServiceIdentity{
			ClientEmail: "pusher@demo.iam.gserviceaccount.com",
			PrivateKey:  newPEMKey(t),
			TokenURI:    tokenServer.URL,
		}
		tokens := auth.NewServiceAccountTokenSource(identity, auth.NewExchanger(identity.TokenURI, tokenServer.Client(), logger))
		dispatcher := fcm.NewDispatcher(gateway.URL, "demo", gateway.Client(), logger)

		store := new(mockProfileStore)
		store.On("FetchPushToken", mock.Anything, "u1").Return("tok-abc", nil)

		return pipeline.NewHandler(store, tokens, dispatcher, 5*time.Second, logger)
	}

	t.Run("Delivers", func(t *testing.T) {
		var gatewayCalls atomic.Int32
		res := newHandler(t, http.StatusOK, &gatewayCalls).Handle(ctx, testEvent)

		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, int32(1), gatewayCalls.Load())
		assert.JSONEq(t, `{"success":true,"fcmResult":{"name":"projects/demo/messages/42"}}`, bodyJSON(t, res))
	})

	t.Run("Gateway unreachable - transport error is the message", func(t *testing.T) {
		store, tokens := new(mockProfileStore), new(mockTokenSource)
		store.On("FetchPushToken", mock.Anything, "u1").Return("tok-abc", nil)
		tokens.On("AccessToken", mock.Anything).Return("ya29.e2e", nil)

		client := &http.Client{Transport: downTransport{}}
		dispatcher := fcm.NewDispatcher("https://fcm.invalid", "demo", client, logger)

		res := pipeline.NewHandler(store, tokens, dispatcher, 5*time.Second, logger).Handle(ctx, testEvent)

		assert.Equal(t, pipeline.StateFailed, res.State)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, dispatch.FailureDispatch, dispatch.KindOf(res.Err))
		var urlErr *url.Error
		assert.ErrorAs(t, res.Err, &urlErr)
		assert.Equal(t,
			pipeline.ErrorBody{Error: `Post "https://fcm.invalid/v1/projects/demo/messages:send": network down`},
			res.Body)
	})

	t.Run("Token endpoint 500 - no dispatch", func(t *testing.T) {
		var gatewayCalls atomic.Int32
		res := newHandler(t, http.StatusInternalServerError, &gatewayCalls).Handle(ctx, testEvent)

		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, dispatch.FailureExchange, dispatch.KindOf(res.Err))
		assert.Zero(t, gatewayCalls.Load())
	})
}
