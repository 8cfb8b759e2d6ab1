package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tillsync/internal/auth"
	"tillsync/internal/domain"
	"tillsync/internal/metrics"
	"tillsync/internal/models"
	"tillsync/internal/queue"

	"github.com/rs/zerolog"
)

// Router dispatches one inbound change notification.
type Router interface {
	Route(ctx context.Context, change models.ChangeNotification) models.FailureReason
}

// SubmitFunc retries an outbound submission against the backend. The
// checkout subsystem supplies it at composition time.
type SubmitFunc func(ctx context.Context, payload []byte) error

// SyncWorker drains the offline queue one item at a time, backing off
// exponentially with jitter between consecutive failures. Successes are
// acknowledged to the backend; abandoned items are reported with a
// diagnostic so the backend can flag the device.
type SyncWorker struct {
	queue   *queue.Service
	router  Router
	backend domain.BackendClient
	submit  SubmitFunc
	policy  RetryPolicy

	idleSleep time.Duration
	logger    zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSyncWorker(q *queue.Service, router Router, backend domain.BackendClient, submit SubmitFunc, policy RetryPolicy, idleSleep time.Duration, logger *zerolog.Logger) *SyncWorker {
	if idleSleep <= 0 {
		idleSleep = 2 * time.Second
	}
	return &SyncWorker{
		queue:     q,
		router:    router,
		backend:   backend,
		submit:    submit,
		policy:    policy,
		idleSleep: idleSleep,
		logger:    logger.With().Str("component", "sync-worker").Logger(),
	}
}

// Start launches the drain loop.
func (w *SyncWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		w.logger.Info().Msg("sync worker started")
		defer w.logger.Info().Msg("sync worker stopped")
		w.run(ctx)
	}()
}

// Stop cancels the loop; the item in flight completes first, so the
// overlay policy is never left half-written.
func (w *SyncWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *SyncWorker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		item, err := w.queue.Next(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch next queue item failed")
			if !w.sleep(ctx, w.idleSleep) {
				return
			}
			continue
		}
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-w.queue.WaitChan():
			case <-time.After(w.idleSleep):
			}
			continue
		}

		reason, errMsg := w.process(ctx, item)
		if reason == models.FailureAuthUnrecoverable {
			// The item stays queued; draining resumes after re-login.
			w.logger.Error().Str("id", item.ID).Msg("authentication unrecoverable, suspending drain")
			return
		}
		if ctx.Err() != nil && reason.Transient() {
			// Shutdown raced the network call; leave the attempt count alone.
			return
		}

		outcome, err := w.queue.RecordOutcome(ctx, item, reason, errMsg)
		if err != nil {
			w.logger.Error().Err(err).Str("id", item.ID).Msg("record queue outcome failed")
			if !w.sleep(ctx, w.idleSleep) {
				return
			}
			continue
		}

		metrics.IncProcessed(item.Kind, outcome)
		w.report(ctx, item, reason, outcome, errMsg)

		if outcome == queue.OutcomeRetry {
			if !w.sleep(ctx, w.policy.NextDelay(item.AttemptCount+1)) {
				return
			}
		}
	}
}

// process runs one attempt and classifies the outcome.
func (w *SyncWorker) process(ctx context.Context, item *models.QueuedItem) (models.FailureReason, string) {
	switch item.Kind {
	case models.KindInboundChange:
		var change models.ChangeNotification
		if err := json.Unmarshal([]byte(item.Payload), &change); err != nil {
			return models.FailureInconsistentData, fmt.Sprintf("malformed change payload: %v", err)
		}
		reason := w.router.Route(ctx, change)
		if reason.OK() {
			return reason, ""
		}
		return reason, fmt.Sprintf("%s %s/%d failed: %s", item.Kind, change.EntityType, change.EntityID, reason)

	case models.KindOutboundSubmission:
		if w.submit == nil {
			return models.FailureInconsistentData, "no submission handler configured"
		}
		if err := w.submit(ctx, []byte(item.Payload)); err != nil {
			if errors.Is(err, auth.ErrUnrecoverable) {
				return models.FailureAuthUnrecoverable, err.Error()
			}
			return models.FailureNetwork, err.Error()
		}
		return models.FailureNone, ""

	default:
		return models.FailureInconsistentData, fmt.Sprintf("unknown queue item kind %q", item.Kind)
	}
}

// report acknowledges inbound outcomes to the backend: success for
// applied (or gone) entities, a failure record when the item was
// abandoned. Transient failures are not reported; the retry will.
func (w *SyncWorker) report(ctx context.Context, item *models.QueuedItem, reason models.FailureReason, outcome, errMsg string) {
	if item.Kind != models.KindInboundChange {
		return
	}

	var change models.ChangeNotification
	if err := json.Unmarshal([]byte(item.Payload), &change); err != nil || change.RemoteID == 0 {
		return
	}

	switch outcome {
	case queue.OutcomeDone:
		if err := w.backend.ReportSuccess(ctx, change.RemoteID); err != nil {
			w.logger.Warn().Err(err).Int64("update_id", change.RemoteID).Msg("success report failed")
		}
	case queue.OutcomeAbandoned:
		diagnostic := fmt.Sprintf("abandoned after %d attempts: %s", item.AttemptCount+1, errMsg)
		if err := w.backend.ReportFailure(ctx, change.RemoteID, reason, diagnostic); err != nil {
			w.logger.Warn().Err(err).Int64("update_id", change.RemoteID).Msg("failure report failed")
		}
	}
}

func (w *SyncWorker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
