package domain

import (
	"context"
	"errors"
	"time"

	"tillsync/internal/models"
)

// ErrNotFound is returned by DocumentStore implementations when a key
// does not exist in the collection.
var ErrNotFound = errors.New("document not found")

// DocumentStore is the contract the sync engine needs from the local
// entity store: per-collection key/value documents with predicate scans.
// Implementations must tolerate concurrent readers; write coordination
// is the overlay policy's job, not the store's.
type DocumentStore interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, content []byte) error
	Delete(ctx context.Context, collection, key string) error
	// Keys returns all keys in the collection with the given suffix;
	// an empty suffix returns every key.
	Keys(ctx context.Context, collection, suffix string) ([]string, error)
}

// QueueStore is the durable queue persistence used by the offline queue
// service. FIFO is by insertion sequence.
type QueueStore interface {
	InsertItem(ctx context.Context, item *models.QueuedItem) error
	NextPending(ctx context.Context) (*models.QueuedItem, error)
	MarkDone(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, lastError string) error
	MarkAbandoned(ctx context.Context, id string, lastError string) error
	PendingCount(ctx context.Context) (int, error)
	AbandonedItems(ctx context.Context) ([]models.AbandonedItem, error)
}

// BackendClient is the device-side view of the backend sync surface.
type BackendClient interface {
	Heartbeat(ctx context.Context) (int, error)
	ListUpdates(ctx context.Context) ([]models.ChangeNotification, error)
	ReportSuccess(ctx context.Context, updateID int64) error
	ReportFailure(ctx context.Context, updateID int64, reason models.FailureReason, diagnostic string) error
	FetchEntityAt(ctx context.Context, entityType string, entityID int64, asOf time.Time) ([]byte, error)
}

// TokenSource supplies a valid access token for authenticated calls.
type TokenSource interface {
	EnsureValid(ctx context.Context) (models.TokenState, error)
	// Invalidate marks the current token stale after a 401 so the next
	// EnsureValid performs a refresh.
	Invalidate()
}

// ActivityFlag is the single signal from the checkout subsystem gating
// the pending overlay: true while a sale is open on the terminal.
type ActivityFlag interface {
	Active() bool
}

// Loader applies one remote change to the local store.
type Loader interface {
	Load(ctx context.Context, entityType, collection string, entityID int64, asOf time.Time) models.FailureReason
}

// EventPublisher fans engine events out to the device health surface.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
