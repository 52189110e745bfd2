package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// JWTBearerGrant is the OAuth2 grant type for assertion exchange.
const JWTBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Exchanger trades signed assertions for access tokens at a token endpoint.
type Exchanger struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewExchanger(endpoint string, httpClient *http.Client, logger *slog.Logger) *Exchanger {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Exchanger{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger.With("component", "TokenExchanger"),
	}
}

// Exchange posts the assertion and returns the access_token field.
// An absent access_token is returned as "" without error; the gateway
// rejects it on use.
func (e *Exchanger) Exchange(ctx context.Context, assertion string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", JWTBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token exchange failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		e.logger.Warn("Token response carried no access_token", "status", resp.StatusCode)
	}
	return tr.AccessToken, nil
}
