package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tillsync/internal/domain"

	"github.com/rs/zerolog"
)

const pendingSuffix = "-pending"

// Overlay is the pending overlay policy: the single owner of the
// live-key/shadow-key convention. While a sale is open on the terminal,
// entity updates land on the "{id}-pending" shadow key so in-progress
// checkout math keeps seeing consistent prices; once the sale closes,
// shadows are reconciled over the live documents. Callers never build
// the suffixed key themselves.
type Overlay struct {
	store       domain.DocumentStore
	activity    domain.ActivityFlag
	collections []string
	logger      zerolog.Logger
}

func NewOverlay(store domain.DocumentStore, activity domain.ActivityFlag, collections []string, logger *zerolog.Logger) *Overlay {
	return &Overlay{
		store:       store,
		activity:    activity,
		collections: collections,
		logger:      logger.With().Str("component", "overlay").Logger(),
	}
}

func liveKey(entityID int64) string {
	return strconv.FormatInt(entityID, 10)
}

// Write applies entity content under the policy. With no active
// transaction, any outstanding shadows are reconciled first and the
// content goes to the live key; with an active transaction, only the
// shadow key is touched.
func (o *Overlay) Write(ctx context.Context, collection string, entityID int64, content []byte) error {
	key := liveKey(entityID)

	if o.activity.Active() {
		return o.store.Put(ctx, collection, key+pendingSuffix, content)
	}

	if err := o.ClearPending(ctx); err != nil {
		return fmt.Errorf("reconcile pending before write: %w", err)
	}
	return o.store.Put(ctx, collection, key, content)
}

// ClearPending reconciles every outstanding shadow document across all
// collections: shadow content replaces the live document, then the
// shadow is deleted. Idempotent; a merge error leaves both documents
// unchanged.
func (o *Overlay) ClearPending(ctx context.Context) error {
	for _, collection := range o.collections {
		keys, err := o.store.Keys(ctx, collection, pendingSuffix)
		if err != nil {
			return fmt.Errorf("list pending documents in %s: %w", collection, err)
		}

		for _, key := range keys {
			content, err := o.store.Get(ctx, collection, key)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("read pending document %s/%s: %w", collection, key, err)
			}

			live := strings.TrimSuffix(key, pendingSuffix)
			if err := o.store.Put(ctx, collection, live, content); err != nil {
				// Shadow stays put; reconcile retries on the next call.
				return fmt.Errorf("apply pending document %s/%s: %w", collection, key, err)
			}
			if err := o.store.Delete(ctx, collection, key); err != nil {
				return fmt.Errorf("drop pending document %s/%s: %w", collection, key, err)
			}

			o.logger.Debug().Str("collection", collection).Str("key", live).Msg("pending document reconciled")
		}
	}
	return nil
}

// Remove deletes both the live document and its shadow. Used when the
// backend reports the entity gone.
func (o *Overlay) Remove(ctx context.Context, collection string, entityID int64) error {
	key := liveKey(entityID)
	if err := o.store.Delete(ctx, collection, key); err != nil {
		return err
	}
	return o.store.Delete(ctx, collection, key+pendingSuffix)
}

// ReadBack returns the content at whichever key Write would have
// targeted right now, for post-write verification.
func (o *Overlay) ReadBack(ctx context.Context, collection string, entityID int64) ([]byte, error) {
	key := liveKey(entityID)
	if o.activity.Active() {
		return o.store.Get(ctx, collection, key+pendingSuffix)
	}
	return o.store.Get(ctx, collection, key)
}
