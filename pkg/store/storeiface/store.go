package storeiface

import (
	"context"
	"time"
)

// StoredSubscription is the persisted form of one user's push subscription.
// Keys is the raw JSON blob as written by the subscribe endpoint.
type StoredSubscription struct {
	UserID    string
	Endpoint  string
	Keys      []byte
	UpdatedAt time.Time
}

// SubscriptionStore is the slice of the data layer the push dispatcher needs.
type SubscriptionStore interface {
	// GetSubscription returns push.ErrNoSubscription when the user has none.
	GetSubscription(ctx context.Context, userID string) (StoredSubscription, error)
	// RemoveStale deletes the subscription only if it still points at endpoint,
	// so a re-subscribe racing a failed delivery survives.
	RemoveStale(ctx context.Context, userID, endpoint string) error
}
