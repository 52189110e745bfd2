package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

// ProfileStore resolves push tokens from a Firestore "profiles" collection.
type ProfileStore struct {
	client     *firestore.Client
	collection string
}

func NewProfileStore(client *firestore.Client, collection string) *ProfileStore {
	if collection == "" {
		collection = "profiles"
	}
	return &ProfileStore{client: client, collection: collection}
}

// profileRecord is the subset of the profile document we read.
type profileRecord struct {
	UserID   string  `firestore:"user_id"`
	FCMToken *string `firestore:"fcm_token"`
}

// FetchPushToken queries by user_id equality. Two matching documents are
// reported as an error rather than picking one.
func (s *ProfileStore) FetchPushToken(ctx context.Context, userID string) (string, error) {
	iter := s.client.Collection(s.collection).
		Where("user_id", "==", userID).
		Select("user_id", "fcm_token").
		Limit(2).
		Documents(ctx)
	defer iter.Stop()

	var records []profileRecord
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record profileRecord
		if err := doc.DataTo(&record); err != nil {
			return "", fmt.Errorf("failed to decode profile %s: %w", doc.Ref.ID, err)
		}
		records = append(records, record)
	}

	switch {
	case len(records) == 0:
		return "", dispatch.ErrNoRecipientToken
	case len(records) > 1:
		return "", fmt.Errorf("multiple profiles found for user %s", userID)
	}

	token := records[0].FCMToken
	if token == nil || *token == "" {
		return "", dispatch.ErrNoRecipientToken
	}
	return *token, nil
}
