package sync

import (
	"bytes"
	"context"
	"errors"
	"time"

	"tillsync/internal/auth"
	"tillsync/internal/backend"
	"tillsync/internal/domain"
	"tillsync/internal/models"

	"github.com/rs/zerolog"
)

// EntityLoader fetches an entity as of a notification's timestamp and
// applies it through the overlay policy. Fetching as-of rather than
// latest keeps delayed or out-of-order notifications from applying a
// newer version than the one they announce.
type EntityLoader struct {
	backend domain.BackendClient
	overlay *Overlay
	logger  zerolog.Logger
}

func NewEntityLoader(client domain.BackendClient, overlay *Overlay, logger *zerolog.Logger) *EntityLoader {
	return &EntityLoader{
		backend: client,
		overlay: overlay,
		logger:  logger.With().Str("component", "loader").Logger(),
	}
}

func (l *EntityLoader) Load(ctx context.Context, entityType, collection string, entityID int64, asOf time.Time) models.FailureReason {
	content, err := l.backend.FetchEntityAt(ctx, entityType, entityID, asOf)
	if errors.Is(err, backend.ErrGone) {
		// Deletion is a terminal success, not a failure.
		if err := l.overlay.Remove(ctx, collection, entityID); err != nil {
			l.logger.Error().Err(err).Str("collection", collection).Int64("entity_id", entityID).Msg("failed to delete gone entity")
			return models.FailureDatabase
		}
		l.logger.Info().Str("collection", collection).Int64("entity_id", entityID).Msg("entity gone, deleted locally")
		return models.FailureEntityGone
	}
	if errors.Is(err, auth.ErrUnrecoverable) {
		return models.FailureAuthUnrecoverable
	}
	if err != nil {
		l.logger.Warn().Err(err).Str("entity_type", entityType).Int64("entity_id", entityID).Msg("temporal fetch failed")
		return models.FailureNetwork
	}

	if err := l.overlay.Write(ctx, collection, entityID, content); err != nil {
		l.logger.Error().Err(err).Str("collection", collection).Int64("entity_id", entityID).Msg("entity write failed")
		return models.FailureDatabase
	}

	stored, err := l.overlay.ReadBack(ctx, collection, entityID)
	if err != nil || !bytes.Equal(stored, content) {
		l.logger.Error().Err(err).Str("collection", collection).Int64("entity_id", entityID).Msg("entity write verification failed")
		return models.FailureDatabase
	}

	return models.FailureNone
}
