// Package postgres resolves push tokens straight from the profiles table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

// RowQuerier is the part of *pgxpool.Pool the store uses.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// The window count exposes duplicates without fetching them.
const fetchTokenSQL = `
	SELECT fcm_token, count(*) OVER ()
	FROM profiles
	WHERE user_id = $1
	LIMIT 1`

type ProfileStore struct {
	db RowQuerier
}

func NewProfileStore(db RowQuerier) *ProfileStore {
	return &ProfileStore{db: db}
}

// NewPool opens and pings a pgx pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

func (s *ProfileStore) FetchPushToken(ctx context.Context, userID string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("db not configured")
	}

	var token *string
	var matches int64
	err := s.db.QueryRow(ctx, fetchTokenSQL, userID).Scan(&token, &matches)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", dispatch.ErrNoRecipientToken
	}
	if err != nil {
		return "", fmt.Errorf("profile query failed: %w", err)
	}
	if matches > 1 {
		return "", fmt.Errorf("multiple profiles found for user %s", userID)
	}
	if token == nil || *token == "" {
		return "", dispatch.ErrNoRecipientToken
	}
	return *token, nil
}
