package dispatch

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// DefaultTokenURI is the Google OAuth2 token endpoint.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// ServiceIdentity is the service-account credential used to mint assertions.
// It is loaded once and never mutated.
type ServiceIdentity struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
	ProjectID   string `json:"project_id"`
}

// ParseServiceIdentity decodes a service-account JSON blob.
func ParseServiceIdentity(blob []byte) (ServiceIdentity, error) {
	var id ServiceIdentity
	if err := json.Unmarshal(blob, &id); err != nil {
		return ServiceIdentity{}, fmt.Errorf("failed to decode service account: %w", err)
	}
	if id.ClientEmail == "" {
		return ServiceIdentity{}, fmt.Errorf("service account is missing client_email")
	}
	if id.PrivateKey == "" {
		return ServiceIdentity{}, fmt.Errorf("service account is missing private_key")
	}
	if id.TokenURI == "" {
		id.TokenURI = DefaultTokenURI
	}
	return id, nil
}

// LogValue keeps the key material out of logs.
func (id ServiceIdentity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_email", id.ClientEmail),
		slog.String("private_key", "[REDACTED]"),
	)
}

// String keeps the key material out of fmt output.
func (id ServiceIdentity) String() string {
	return fmt.Sprintf("ServiceIdentity{%s}", id.ClientEmail)
}
