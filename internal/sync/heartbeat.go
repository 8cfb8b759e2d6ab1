package sync

import (
	"context"
	"sync"
	"time"

	"tillsync/internal/domain"
	"tillsync/internal/metrics"
	"tillsync/internal/queue"

	"github.com/rs/zerolog"
)

// Heartbeat polls the backend for pending changes on a fixed interval
// and feeds them into the offline queue. Errors are logged and
// swallowed; the next tick re-polls. Stop is cooperative: after Stop
// returns, no further enqueues happen.
type Heartbeat struct {
	backend  domain.BackendClient
	queue    *queue.Service
	interval time.Duration
	logger   zerolog.Logger

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewHeartbeat(client domain.BackendClient, q *queue.Service, interval time.Duration, logger *zerolog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Heartbeat{
		backend:  client,
		queue:    q,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Start launches the polling loop.
func (h *Heartbeat) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		h.logger.Info().Dur("interval", h.interval).Msg("heartbeat started")
		for {
			select {
			case <-ctx.Done():
				h.logger.Info().Msg("heartbeat stopped")
				return
			case <-ticker.C:
				h.tick(ctx)
			case <-h.trigger:
				h.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for any in-flight tick to finish, so
// no enqueue happens after Stop returns.
func (h *Heartbeat) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

// TriggerNow requests an immediate poll without waiting for the ticker.
func (h *Heartbeat) TriggerNow() {
	select {
	case h.trigger <- struct{}{}:
	default:
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	count, err := h.backend.Heartbeat(ctx)
	if err != nil {
		metrics.IncHeartbeat("error")
		h.logger.Warn().Err(err).Msg("heartbeat poll failed")
		return
	}

	if count == 0 {
		metrics.IncHeartbeat("empty")
		return
	}

	changes, err := h.backend.ListUpdates(ctx)
	if err != nil {
		metrics.IncHeartbeat("error")
		h.logger.Warn().Err(err).Int("message_count", count).Msg("update list fetch failed")
		return
	}

	// Enqueue in the order received; the queue preserves it.
	enqueued := 0
	for _, change := range changes {
		if ctx.Err() != nil {
			return
		}
		if err := h.queue.EnqueueChange(ctx, change); err != nil {
			h.logger.Error().Err(err).Str("entity_type", change.EntityType).Int64("entity_id", change.EntityID).Msg("failed to enqueue change")
			continue
		}
		enqueued++
	}

	metrics.IncHeartbeat("updates")
	h.logger.Info().Int("message_count", count).Int("enqueued", enqueued).Msg("changes enqueued")
}
