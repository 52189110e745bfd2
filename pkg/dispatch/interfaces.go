package dispatch

import (
	"context"
	"encoding/json"
)

// ProfileStore resolves a recipient to the device push token on its profile.
type ProfileStore interface {
	// FetchPushToken returns the device token for userID.
	// A missing profile or an empty token yields ErrNoRecipientToken.
	FetchPushToken(ctx context.Context, userID string) (string, error)
}

// TokenSource produces a bearer access token for the messaging gateway.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Dispatcher delivers a single event to a single device through the messaging gateway.
type Dispatcher interface {
	// Send returns the gateway's JSON response verbatim.
	Send(ctx context.Context, deviceToken, accessToken string, event NotificationEvent) (json.RawMessage, error)
}
