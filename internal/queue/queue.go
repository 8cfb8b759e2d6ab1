package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"tillsync/internal/domain"
	"tillsync/internal/events"
	"tillsync/internal/metrics"
	"tillsync/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterKey = "sync:deadletter"

// Outcome of recording a processing attempt.
const (
	OutcomeDone      = "done"
	OutcomeRetry     = "retry"
	OutcomeAbandoned = "abandoned"
)

// Service is the durable, ordered, at-least-once offline work queue.
// Items survive process restart in SQLite; FIFO is by insertion
// sequence, with failed items re-enqueued at the tail. Enqueue is safe
// from concurrent producers; a single consumer drains.
type Service struct {
	store   domain.QueueStore
	redis   *redis.Client
	events  domain.EventPublisher
	ceiling int
	notify  chan struct{}
	logger  zerolog.Logger
}

func NewService(store domain.QueueStore, redisClient *redis.Client, events domain.EventPublisher, retryCeiling int, logger *zerolog.Logger) *Service {
	if retryCeiling <= 0 {
		retryCeiling = 8
	}
	return &Service{
		store:   store,
		redis:   redisClient,
		events:  events,
		ceiling: retryCeiling,
		notify:  make(chan struct{}, 1),
		logger:  logger.With().Str("component", "offline-queue").Logger(),
	}
}

// EnqueueChange queues an inbound change notification.
func (s *Service) EnqueueChange(ctx context.Context, change models.ChangeNotification) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change notification: %w", err)
	}
	return s.enqueue(ctx, models.KindInboundChange, string(payload))
}

// EnqueueSubmission queues an outbound payload (e.g. a transaction the
// checkout subsystem could not post) for background retry.
func (s *Service) EnqueueSubmission(ctx context.Context, payload []byte) error {
	return s.enqueue(ctx, models.KindOutboundSubmission, string(payload))
}

func (s *Service) enqueue(ctx context.Context, kind, payload string) error {
	item := &models.QueuedItem{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: payload,
		Status:  models.ItemStatusPending,
	}

	if err := s.store.InsertItem(ctx, item); err != nil {
		return fmt.Errorf("persist queue item: %w", err)
	}

	s.updateDepth(ctx)
	s.wake()
	return nil
}

// Next returns the oldest pending item, or nil when the queue is empty.
func (s *Service) Next(ctx context.Context) (*models.QueuedItem, error) {
	return s.store.NextPending(ctx)
}

// RecordOutcome applies the result of one processing attempt: success
// removes the item, a transient failure re-enqueues it at the tail, and
// an item past the retry ceiling moves to the abandoned list.
func (s *Service) RecordOutcome(ctx context.Context, item *models.QueuedItem, reason models.FailureReason, errMsg string) (string, error) {
	defer s.updateDepth(ctx)

	if reason.OK() {
		if err := s.store.MarkDone(ctx, item.ID); err != nil {
			return "", err
		}
		return OutcomeDone, nil
	}

	if item.AttemptCount+1 > s.ceiling {
		if err := s.store.MarkAbandoned(ctx, item.ID, errMsg); err != nil {
			return "", err
		}
		metrics.IncAbandoned()
		s.pushDeadLetter(ctx, item, errMsg)
		if s.events != nil {
			_ = s.events.PublishJSON(events.EventItemAbandoned, map[string]interface{}{
				"id":         item.ID,
				"kind":       item.Kind,
				"attempts":   item.AttemptCount + 1,
				"last_error": errMsg,
			})
		}
		s.logger.Error().Str("id", item.ID).Str("kind", item.Kind).Int("attempts", item.AttemptCount+1).Str("last_error", errMsg).Msg("queue item abandoned")
		return OutcomeAbandoned, nil
	}

	if err := s.store.MarkRetry(ctx, item.ID, errMsg); err != nil {
		return "", err
	}
	return OutcomeRetry, nil
}

// Abandoned returns the items that exceeded the retry ceiling.
func (s *Service) Abandoned(ctx context.Context) ([]models.AbandonedItem, error) {
	return s.store.AbandonedItems(ctx)
}

// Depth returns the number of pending items.
func (s *Service) Depth(ctx context.Context) (int, error) {
	return s.store.PendingCount(ctx)
}

// WaitChan signals the drain consumer that new work arrived.
func (s *Service) WaitChan() <-chan struct{} {
	return s.notify
}

func (s *Service) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Service) updateDepth(ctx context.Context) {
	depth, err := s.store.PendingCount(ctx)
	if err != nil {
		return
	}
	metrics.SetQueueDepth(depth)
}

// pushDeadLetter mirrors an abandoned item to redis for quick operator
// inspection; the SQLite abandoned list stays authoritative.
func (s *Service) pushDeadLetter(ctx context.Context, item *models.QueuedItem, errMsg string) {
	if s.redis == nil {
		return
	}

	copied := *item
	copied.AttemptCount++
	copied.LastError = &errMsg

	data, err := json.Marshal(copied)
	if err != nil {
		s.logger.Error().Err(err).Str("id", item.ID).Msg("encode deadletter item")
		return
	}
	if err := s.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		s.logger.Error().Err(err).Str("id", item.ID).Msg("deadletter push failed")
	}
}
