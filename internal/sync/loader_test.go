package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"tillsync/internal/auth"
	"tillsync/internal/backend"
	"tillsync/internal/domain"
	"tillsync/internal/models"
	"tillsync/internal/session"
	"tillsync/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves canned temporal fetch responses and records calls.
type fakeBackend struct {
	content  []byte
	fetchErr error
	fetched  []time.Time
}

func (f *fakeBackend) Heartbeat(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeBackend) ListUpdates(ctx context.Context) ([]models.ChangeNotification, error) {
	return nil, nil
}
func (f *fakeBackend) ReportSuccess(ctx context.Context, remoteID int64) error { return nil }
func (f *fakeBackend) ReportFailure(ctx context.Context, remoteID int64, reason models.FailureReason, diagnostic string) error {
	return nil
}
func (f *fakeBackend) FetchEntityAt(ctx context.Context, entityType string, entityID int64, asOf time.Time) ([]byte, error) {
	f.fetched = append(f.fetched, asOf)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.content, nil
}

// dropWriteStore silently swallows writes so read-back verification fails.
type dropWriteStore struct {
	*store.MemoryStore
}

func (d *dropWriteStore) Put(ctx context.Context, collection, key string, content []byte) error {
	return nil
}

func newTestLoader(client domain.BackendClient, docs domain.DocumentStore) *EntityLoader {
	logger := zerolog.Nop()
	overlay := NewOverlay(docs, session.NewActivity(), []string{"product"}, &logger)
	return NewEntityLoader(client, overlay, &logger)
}

func TestLoaderSuccess(t *testing.T) {
	client := &fakeBackend{content: []byte(`{"price":100}`)}
	docs := store.NewMemoryStore()
	loader := newTestLoader(client, docs)
	ctx := context.Background()

	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reason := loader.Load(ctx, "product", "product", 42, asOf)
	assert.Equal(t, models.FailureNone, reason)

	// The fetch carried the notification timestamp, not "now".
	require.Len(t, client.fetched, 1)
	assert.Equal(t, asOf, client.fetched[0])

	content, err := docs.Get(ctx, "product", "42")
	require.NoError(t, err)
	assert.Equal(t, `{"price":100}`, string(content))
}

func TestLoaderEntityGone(t *testing.T) {
	client := &fakeBackend{fetchErr: backend.ErrGone}
	docs := store.NewMemoryStore()
	loader := newTestLoader(client, docs)
	ctx := context.Background()

	require.NoError(t, docs.Put(ctx, "product", "42", []byte(`{}`)))
	require.NoError(t, docs.Put(ctx, "product", "42-pending", []byte(`{}`)))

	reason := loader.Load(ctx, "product", "product", 42, time.Now())
	assert.Equal(t, models.FailureEntityGone, reason)
	assert.True(t, reason.OK(), "gone entity counts as handled")

	_, err := docs.Get(ctx, "product", "42")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = docs.Get(ctx, "product", "42-pending")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLoaderNetworkFailure(t *testing.T) {
	client := &fakeBackend{fetchErr: errors.New("connection refused")}
	loader := newTestLoader(client, store.NewMemoryStore())

	reason := loader.Load(context.Background(), "product", "product", 42, time.Now())
	assert.Equal(t, models.FailureNetwork, reason)
	assert.True(t, reason.Transient())
}

func TestLoaderAuthUnrecoverable(t *testing.T) {
	client := &fakeBackend{fetchErr: auth.ErrUnrecoverable}
	loader := newTestLoader(client, store.NewMemoryStore())

	reason := loader.Load(context.Background(), "product", "product", 42, time.Now())
	assert.Equal(t, models.FailureAuthUnrecoverable, reason)
}

func TestLoaderVerificationFailure(t *testing.T) {
	client := &fakeBackend{content: []byte(`{"price":100}`)}
	docs := &dropWriteStore{MemoryStore: store.NewMemoryStore()}
	loader := newTestLoader(client, docs)

	reason := loader.Load(context.Background(), "product", "product", 42, time.Now())
	assert.Equal(t, models.FailureDatabase, reason)
}
