package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/domain"
	"tillsync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrGone is returned by FetchEntityAt when the backend answers 410: the
// entity was deleted remotely and must be deleted locally too.
var ErrGone = errors.New("entity gone")

const (
	headerAPIKey    = "X-Api-Key"
	headerDeviceID  = "X-Device-Id"
	headerRequestID = "X-Request-Id"
)

// Client talks to the backend sync surface. Every authenticated call
// carries the device API key and a bearer token; a 401 triggers exactly
// one refresh-and-retry.
type Client struct {
	baseURL  string
	apiKey   string
	deviceID string

	httpClient *http.Client
	tokens     domain.TokenSource
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

func NewClient(cfg config.BackendConfig, device config.DeviceConfig, tokens domain.TokenSource, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     device.APIKey,
		deviceID:   device.ID,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout.Std()},
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		logger:     logger.With().Str("component", "backend-client").Logger(),
	}
}

type heartbeatResponse struct {
	MessageCount int `json:"messageCount"`
}

// Heartbeat asks the backend how many pending change messages exist for
// this device.
func (c *Client) Heartbeat(ctx context.Context) (int, error) {
	var resp heartbeatResponse
	if err := c.doJSON(ctx, http.MethodGet, "/heartbeat", nil, &resp); err != nil {
		return 0, err
	}
	return resp.MessageCount, nil
}

type updateEntry struct {
	ID          int64 `json:"id"`
	ChangeEvent struct {
		Entity   string    `json:"entity"`
		EntityID int64     `json:"entityId"`
		Date     time.Time `json:"date"`
	} `json:"changeEvent"`
}

// ListUpdates fetches the pending change list in backend order.
func (c *Client) ListUpdates(ctx context.Context) ([]models.ChangeNotification, error) {
	var entries []updateEntry
	if err := c.doJSON(ctx, http.MethodGet, "/updates", nil, &entries); err != nil {
		return nil, err
	}

	changes := make([]models.ChangeNotification, 0, len(entries))
	for _, e := range entries {
		changes = append(changes, models.ChangeNotification{
			RemoteID:   e.ID,
			EntityType: e.ChangeEvent.Entity,
			EntityID:   e.ChangeEvent.EntityID,
			OccurredAt: e.ChangeEvent.Date,
		})
	}
	return changes, nil
}

// ReportSuccess acknowledges a processed update.
func (c *Client) ReportSuccess(ctx context.Context, updateID int64) error {
	path := fmt.Sprintf("/updates/%d/success", updateID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

type failureReport struct {
	FailureReasonID int    `json:"failureReasonId"`
	FailureLog      string `json:"failureLog"`
}

// ReportFailure flags a permanently failed update so the backend can
// track broken device state.
func (c *Client) ReportFailure(ctx context.Context, updateID int64, reason models.FailureReason, diagnostic string) error {
	path := fmt.Sprintf("/updates/%d/failure", updateID)
	body := failureReport{FailureReasonID: int(reason), FailureLog: diagnostic}
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// FetchEntityAt retrieves the entity as it existed at asOf, not its
// latest version. A 410 response maps to ErrGone.
func (c *Client) FetchEntityAt(ctx context.Context, entityType string, entityID int64, asOf time.Time) ([]byte, error) {
	q := url.Values{}
	q.Set("id", fmt.Sprintf("%d", entityID))
	q.Set("date", asOf.UTC().Format(time.RFC3339))
	path := fmt.Sprintf("/%s/at-time?%s", url.PathEscape(entityType), q.Encode())

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return nil, ErrGone
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s/%d: unexpected status %d", entityType, entityID, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%d: read body: %w", entityType, entityID, err)
	}
	return content, nil
}

type refreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RefreshToken exchanges the current credential for a fresh one. It is
// called by the token manager only and deliberately bypasses the
// 401-retry path.
func (c *Client) RefreshToken(ctx context.Context) (string, time.Time, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", time.Time{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/refresh", nil)
	if err != nil {
		return "", time.Time{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("refresh token: unexpected status %d", resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("refresh token: decode response: %w", err)
	}
	return parsed.AccessToken, parsed.ExpiresAt, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerRequestID, uuid.NewString())
	if c.deviceID != "" {
		req.Header.Set(headerDeviceID, c.deviceID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes an authenticated request. On 401 the token is invalidated
// and the request retried once with a freshly ensured token.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.tokens.Invalidate()
		c.logger.Debug().Str("path", path).Msg("got 401, refreshing token and retrying once")
		return c.send(ctx, method, path, body)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// doJSON runs an authenticated request with optional JSON body and
// decodes the response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
	}

	resp, err := c.do(ctx, method, path, raw)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
