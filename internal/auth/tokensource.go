package auth

import (
	"context"
	"time"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

// ServiceAccountTokenSource mints a fresh assertion and performs one
// exchange on every call. Nothing is cached between calls.
type ServiceAccountTokenSource struct {
	identity  dispatch.ServiceIdentity
	exchanger *Exchanger
	now       func() time.Time
}

func NewServiceAccountTokenSource(identity dispatch.ServiceIdentity, exchanger *Exchanger) *ServiceAccountTokenSource {
	return &ServiceAccountTokenSource{
		identity:  identity,
		exchanger: exchanger,
		now:       time.Now,
	}
}

func (s *ServiceAccountTokenSource) AccessToken(ctx context.Context) (string, error) {
	assertion, err := SignAssertion(s.identity, s.now())
	if err != nil {
		return "", dispatch.NewStageError(dispatch.FailureCredential, err)
	}
	token, err := s.exchanger.Exchange(ctx, assertion)
	if err != nil {
		return "", dispatch.NewStageError(dispatch.FailureExchange, err)
	}
	return token, nil
}
