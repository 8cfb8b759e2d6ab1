package sync

import (
	"context"
	"errors"
	"testing"

	"tillsync/internal/domain"
	"tillsync/internal/session"
	"tillsync/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOverlay(collections ...string) (*Overlay, *store.MemoryStore, *session.Activity) {
	docs := store.NewMemoryStore()
	activity := session.NewActivity()
	logger := zerolog.Nop()
	return NewOverlay(docs, activity, collections, &logger), docs, activity
}

func TestOverlayWriteIdle(t *testing.T) {
	overlay, docs, _ := newTestOverlay("product")
	ctx := context.Background()

	require.NoError(t, overlay.Write(ctx, "product", 42, []byte(`{"price":100}`)))

	content, err := docs.Get(ctx, "product", "42")
	require.NoError(t, err)
	assert.Equal(t, `{"price":100}`, string(content))

	// No shadow was created.
	_, err = docs.Get(ctx, "product", "42-pending")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestOverlayWriteDuringTransaction(t *testing.T) {
	overlay, docs, activity := newTestOverlay("product")
	ctx := context.Background()

	require.NoError(t, docs.Put(ctx, "product", "42", []byte(`{"price":100}`)))

	activity.SetActive(true)
	require.NoError(t, overlay.Write(ctx, "product", 42, []byte(`{"price":120}`)))

	// The live document is untouched while the sale is open.
	content, err := docs.Get(ctx, "product", "42")
	require.NoError(t, err)
	assert.Equal(t, `{"price":100}`, string(content))

	content, err = docs.Get(ctx, "product", "42-pending")
	require.NoError(t, err)
	assert.Equal(t, `{"price":120}`, string(content))
}

func TestOverlayClearPending(t *testing.T) {
	overlay, docs, activity := newTestOverlay("product", "category")
	ctx := context.Background()

	require.NoError(t, docs.Put(ctx, "product", "42", []byte(`{"price":100}`)))

	activity.SetActive(true)
	require.NoError(t, overlay.Write(ctx, "product", 42, []byte(`{"price":120}`)))
	require.NoError(t, overlay.Write(ctx, "category", 7, []byte(`{"name":"drinks"}`)))
	activity.SetActive(false)

	require.NoError(t, overlay.ClearPending(ctx))

	content, err := docs.Get(ctx, "product", "42")
	require.NoError(t, err)
	assert.Equal(t, `{"price":120}`, string(content))

	content, err = docs.Get(ctx, "category", "7")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"drinks"}`, string(content))

	_, err = docs.Get(ctx, "product", "42-pending")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = docs.Get(ctx, "category", "7-pending")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// A second reconcile is a no-op.
	require.NoError(t, overlay.ClearPending(ctx))
}

func TestOverlayWriteReconcilesFirst(t *testing.T) {
	overlay, docs, activity := newTestOverlay("product")
	ctx := context.Background()

	// A shadow left over from a previous sale.
	activity.SetActive(true)
	require.NoError(t, overlay.Write(ctx, "product", 1, []byte(`{"price":50}`)))
	activity.SetActive(false)

	// The next idle write flushes outstanding shadows before applying.
	require.NoError(t, overlay.Write(ctx, "product", 2, []byte(`{"price":75}`)))

	content, err := docs.Get(ctx, "product", "1")
	require.NoError(t, err)
	assert.Equal(t, `{"price":50}`, string(content))

	_, err = docs.Get(ctx, "product", "1-pending")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestOverlayRemove(t *testing.T) {
	overlay, docs, _ := newTestOverlay("product")
	ctx := context.Background()

	require.NoError(t, docs.Put(ctx, "product", "42", []byte(`{}`)))
	require.NoError(t, docs.Put(ctx, "product", "42-pending", []byte(`{}`)))

	require.NoError(t, overlay.Remove(ctx, "product", 42))

	_, err := docs.Get(ctx, "product", "42")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = docs.Get(ctx, "product", "42-pending")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestOverlayReadBack(t *testing.T) {
	overlay, _, activity := newTestOverlay("product")
	ctx := context.Background()

	require.NoError(t, overlay.Write(ctx, "product", 42, []byte(`{"v":1}`)))

	content, err := overlay.ReadBack(ctx, "product", 42)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(content))

	activity.SetActive(true)
	require.NoError(t, overlay.Write(ctx, "product", 42, []byte(`{"v":2}`)))

	content, err = overlay.ReadBack(ctx, "product", 42)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(content))
}
