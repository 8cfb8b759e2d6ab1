package sync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tillsync/internal/database"
	"tillsync/internal/models"
	"tillsync/internal/queue"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollBackend serves a scripted heartbeat count and update list.
type pollBackend struct {
	mu      sync.Mutex
	count   int
	pollErr error
	updates []models.ChangeNotification
	listErr error
}

func (p *pollBackend) Heartbeat(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count, p.pollErr
}

func (p *pollBackend) ListUpdates(ctx context.Context) ([]models.ChangeNotification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updates, p.listErr
}

func (p *pollBackend) ReportSuccess(ctx context.Context, remoteID int64) error { return nil }
func (p *pollBackend) ReportFailure(ctx context.Context, remoteID int64, reason models.FailureReason, diagnostic string) error {
	return nil
}
func (p *pollBackend) FetchEntityAt(ctx context.Context, entityType string, entityID int64, asOf time.Time) ([]byte, error) {
	return nil, nil
}

func newTestQueue(t *testing.T) *queue.Service {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zerolog.Nop()
	return queue.NewService(db, nil, nil, 8, &logger)
}

func waitForDepth(t *testing.T, q *queue.Service, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		depth, err := q.Depth(context.Background())
		require.NoError(t, err)
		if depth == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queue never reached depth %d", want)
}

func TestHeartbeatEnqueuesUpdates(t *testing.T) {
	client := &pollBackend{
		count: 2,
		updates: []models.ChangeNotification{
			{RemoteID: 10, EntityType: "product", EntityID: 1, OccurredAt: time.Now()},
			{RemoteID: 11, EntityType: "category", EntityID: 2, OccurredAt: time.Now()},
		},
	}
	q := newTestQueue(t)
	logger := zerolog.Nop()

	h := NewHeartbeat(client, q, time.Hour, &logger)
	h.Start(context.Background())
	defer h.Stop()

	h.TriggerNow()
	waitForDepth(t, q, 2)

	// Order of arrival is preserved.
	item, err := q.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Contains(t, item.Payload, `"remote_id":10`)
}

func TestHeartbeatEmptyPoll(t *testing.T) {
	client := &pollBackend{count: 0}
	q := newTestQueue(t)
	logger := zerolog.Nop()

	h := NewHeartbeat(client, q, time.Hour, &logger)
	h.Start(context.Background())
	h.TriggerNow()
	time.Sleep(50 * time.Millisecond)
	h.Stop()

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestHeartbeatPollErrorIsSwallowed(t *testing.T) {
	client := &pollBackend{pollErr: errors.New("connection refused")}
	q := newTestQueue(t)
	logger := zerolog.Nop()

	h := NewHeartbeat(client, q, time.Hour, &logger)
	h.Start(context.Background())
	h.TriggerNow()
	time.Sleep(50 * time.Millisecond)

	// A failed poll leaves the queue untouched and the loop alive.
	client.mu.Lock()
	client.pollErr = nil
	client.count = 1
	client.updates = []models.ChangeNotification{
		{RemoteID: 12, EntityType: "product", EntityID: 3, OccurredAt: time.Now()},
	}
	client.mu.Unlock()

	h.TriggerNow()
	waitForDepth(t, q, 1)
	h.Stop()
}

func TestHeartbeatStopIsCooperative(t *testing.T) {
	client := &pollBackend{count: 0}
	q := newTestQueue(t)
	logger := zerolog.Nop()

	h := NewHeartbeat(client, q, 5*time.Millisecond, &logger)
	h.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	h.Stop()

	// After Stop returns the loop is gone; nothing is enqueued even if
	// the backend starts reporting changes.
	client.mu.Lock()
	client.count = 1
	client.updates = []models.ChangeNotification{{RemoteID: 13, EntityType: "product", EntityID: 4}}
	client.mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}
