package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/domain"
	"tillsync/internal/events"
	"tillsync/internal/metrics"
	"tillsync/internal/models"

	"github.com/rs/zerolog"
)

// ErrUnrecoverable means refresh retries are exhausted; callers must stop
// authenticated traffic and surface a re-login prompt.
var ErrUnrecoverable = errors.New("token refresh unrecoverable, re-authentication required")

// ErrNoToken means no credential is loaded (device not logged in).
var ErrNoToken = errors.New("no token available")

// RefreshFunc performs the network refresh call and returns the new
// access token and its expiry.
type RefreshFunc func(ctx context.Context) (string, time.Time, error)

// Manager owns the device credential. All transitions happen under a
// single mutex; concurrent EnsureValid callers share one in-flight
// refresh instead of racing their own.
type Manager struct {
	mu            sync.Mutex
	state         models.TokenState
	refreshing    chan struct{}
	unrecoverable bool

	refresh   RefreshFunc
	threshold time.Duration
	interval  time.Duration
	attempts  int
	delay     time.Duration

	events domain.EventPublisher
	logger zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(cfg config.AuthConfig, refresh RefreshFunc, events domain.EventPublisher, logger *zerolog.Logger) *Manager {
	return &Manager{
		refresh:   refresh,
		threshold: cfg.RefreshThreshold.Std(),
		interval:  cfg.CheckInterval.Std(),
		attempts:  cfg.MaxAttempts,
		delay:     cfg.RetryDelay.Std(),
		events:    events,
		logger:    logger.With().Str("component", "token-manager").Logger(),
	}
}

// SetToken installs the credential obtained at login and clears any
// previous unrecoverable condition.
func (m *Manager) SetToken(accessToken string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = models.TokenState{AccessToken: accessToken, ExpiresAt: expiresAt, Status: models.TokenValid}
	m.unrecoverable = false
}

// Clear drops the credential on logout.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = models.TokenState{}
	m.unrecoverable = false
}

// State returns a snapshot of the current token state.
func (m *Manager) State() models.TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Invalidate marks the token expired after an authenticated call got a
// 401, forcing the next EnsureValid to refresh.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != models.TokenRefreshing {
		m.state.Status = models.TokenExpired
	}
}

// EnsureValid returns a token good for at least the refresh threshold,
// refreshing it first when needed. Exactly one refresh is in flight at a
// time; other callers wait for its result.
func (m *Manager) EnsureValid(ctx context.Context) (models.TokenState, error) {
	for {
		m.mu.Lock()
		if m.unrecoverable {
			m.mu.Unlock()
			return models.TokenState{}, ErrUnrecoverable
		}
		if m.state.AccessToken == "" && m.state.Status != models.TokenRefreshing {
			m.mu.Unlock()
			return models.TokenState{}, ErrNoToken
		}

		if m.state.Status != models.TokenRefreshing && !m.state.ExpiresWithin(m.threshold) && m.state.Status != models.TokenExpired {
			state := m.state
			m.mu.Unlock()
			return state, nil
		}

		if m.state.Status == models.TokenRefreshing {
			done := m.refreshing
			m.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return models.TokenState{}, ctx.Err()
			}
		}

		// This caller performs the refresh.
		m.state.Status = models.TokenRefreshing
		done := make(chan struct{})
		m.refreshing = done
		m.mu.Unlock()

		err := m.doRefresh(ctx)

		m.mu.Lock()
		m.refreshing = nil
		close(done)
		m.mu.Unlock()

		if err != nil {
			return models.TokenState{}, err
		}
	}
}

// doRefresh runs the network refresh with bounded retries. The mutex is
// not held across network calls; transitions are applied afterwards.
func (m *Manager) doRefresh(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		token, expiresAt, err := m.refresh(ctx)
		if err == nil {
			m.mu.Lock()
			m.state = models.TokenState{AccessToken: token, ExpiresAt: expiresAt, Status: models.TokenValid}
			m.mu.Unlock()
			metrics.IncTokenRefresh("success")
			m.logger.Info().Time("expires_at", expiresAt).Msg("token refreshed")
			return nil
		}

		lastErr = err
		metrics.IncTokenRefresh("failure")
		m.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", m.attempts).Msg("token refresh attempt failed")

		if attempt < m.attempts {
			select {
			case <-ctx.Done():
				m.markExpired()
				return ctx.Err()
			case <-time.After(m.delay * time.Duration(1<<(attempt-1))):
			}
		}
	}

	m.mu.Lock()
	m.unrecoverable = true
	m.state.Status = models.TokenExpired
	m.mu.Unlock()

	if m.events != nil {
		_ = m.events.PublishJSON(events.EventAuthUnrecoverable, map[string]string{"error": lastErr.Error()})
	}
	m.logger.Error().Err(lastErr).Msg("token refresh exhausted retries")
	return fmt.Errorf("%w: %v", ErrUnrecoverable, lastErr)
}

func (m *Manager) markExpired() {
	m.mu.Lock()
	m.state.Status = models.TokenExpired
	m.mu.Unlock()
}

// Start launches the proactive expiry check loop.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkExpiry(ctx)
			}
		}
	}()
}

// Stop cancels the check loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) checkExpiry(ctx context.Context) {
	m.mu.Lock()
	needsRefresh := m.state.AccessToken != "" && !m.unrecoverable && m.state.ExpiresWithin(m.threshold)
	if needsRefresh && m.state.Status == models.TokenValid {
		m.state.Status = models.TokenExpiringSoon
	}
	m.mu.Unlock()

	if !needsRefresh {
		return
	}

	if _, err := m.EnsureValid(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error().Err(err).Msg("proactive token refresh failed")
	}
}
