package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return key, string(pemBytes)
}

func newTestIdentity(t *testing.T, tokenURI string) (*rsa.PrivateKey, dispatch.ServiceIdentity) {
	t.Helper()
	key, pemKey := newTestKey(t)
	return key, dispatch.ServiceIdentity{
		ClientEmail: "pusher@test-project.iam.gserviceaccount.com",
		PrivateKey:  pemKey,
		TokenURI:    tokenURI,
		ProjectID:   "test-project",
	}
}
