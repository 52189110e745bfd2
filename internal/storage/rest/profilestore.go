// Package rest resolves push tokens through a PostgREST endpoint such as
// the one Supabase exposes in front of its Postgres database.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

type profileRow struct {
	FCMToken *string `json:"fcm_token"`
}

// ProfileStore queries {baseURL}/rest/v1/{table} with the service key.
type ProfileStore struct {
	baseURL    string
	serviceKey string
	table      string
	httpClient *http.Client
}

func NewProfileStore(baseURL, serviceKey, table string, httpClient *http.Client) *ProfileStore {
	if table == "" {
		table = "profiles"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ProfileStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		table:      table,
		httpClient: httpClient,
	}
}

func (s *ProfileStore) FetchPushToken(ctx context.Context, userID string) (string, error) {
	q := url.Values{}
	q.Set("select", "fcm_token")
	q.Set("user_id", "eq."+userID)
	// two rows are enough to tell a duplicate apart
	q.Set("limit", "2")
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", s.baseURL, s.table, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("profile query failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []profileRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return "", fmt.Errorf("decode profile rows: %w", err)
	}

	switch {
	case len(rows) == 0:
		return "", dispatch.ErrNoRecipientToken
	case len(rows) > 1:
		return "", fmt.Errorf("multiple profiles found for user %s", userID)
	}
	if rows[0].FCMToken == nil || *rows[0].FCMToken == "" {
		return "", dispatch.ErrNoRecipientToken
	}
	return *rows[0].FCMToken, nil
}
