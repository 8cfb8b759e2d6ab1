package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tillsync/internal/models"
)

func (d *DB) InsertItem(ctx context.Context, item *models.QueuedItem) error {
	query := `INSERT INTO sync_queue (id, kind, payload, status, attempt_count, last_error, enqueued_at, last_attempt_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	if item.Status == "" {
		item.Status = models.ItemStatusPending
	}

	result, err := d.db.ExecContext(ctx, query,
		item.ID,
		item.Kind,
		item.Payload,
		item.Status,
		item.AttemptCount,
		item.LastError,
		item.EnqueuedAt,
		item.LastAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get queue sequence: %w", err)
	}
	item.Seq = seq

	return nil
}

// NextPending returns the oldest pending or retry item, or nil when the
// queue is empty.
func (d *DB) NextPending(ctx context.Context) (*models.QueuedItem, error) {
	query := `SELECT seq, id, kind, payload, status, attempt_count, last_error, enqueued_at, last_attempt_at
              FROM sync_queue
              WHERE status IN ('pending', 'retry')
              ORDER BY seq ASC LIMIT 1`

	var item models.QueuedItem
	err := d.db.QueryRowContext(ctx, query).Scan(
		&item.Seq, &item.ID, &item.Kind, &item.Payload, &item.Status,
		&item.AttemptCount, &item.LastError, &item.EnqueuedAt, &item.LastAttemptAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next queue item: %w", err)
	}
	return &item, nil
}

// MarkDone removes a successfully processed item from the queue.
func (d *DB) MarkDone(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove queue item %s: %w", id, err)
	}
	return nil
}

// MarkRetry records a failed attempt and moves the item to the queue
// tail so other work is not starved behind it. Reinsertion assigns a
// fresh sequence number; the item id stays stable.
func (d *DB) MarkRetry(ctx context.Context, id string, lastError string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin retry tx: %w", err)
	}
	defer tx.Rollback()

	var item models.QueuedItem
	row := tx.QueryRowContext(ctx,
		`SELECT id, kind, payload, attempt_count, enqueued_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&item.ID, &item.Kind, &item.Payload, &item.AttemptCount, &item.EnqueuedAt); err != nil {
		return fmt.Errorf("failed to load queue item %s for retry: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to dequeue item %s for retry: %w", id, err)
	}

	insert := `INSERT INTO sync_queue (id, kind, payload, status, attempt_count, last_error, enqueued_at, last_attempt_at)
               VALUES (?, ?, ?, 'retry', ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insert,
		item.ID, item.Kind, item.Payload, item.AttemptCount+1, lastError, item.EnqueuedAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to requeue item %s: %w", id, err)
	}

	return tx.Commit()
}

// MarkAbandoned moves an item past the retry ceiling from the queue to
// the abandoned list in one transaction.
func (d *DB) MarkAbandoned(ctx context.Context, id string, lastError string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin abandon tx: %w", err)
	}
	defer tx.Rollback()

	move := `INSERT INTO sync_abandoned (id, kind, payload, attempt_count, last_error, enqueued_at, abandoned_at)
             SELECT id, kind, payload, attempt_count + 1, ?, enqueued_at, ?
             FROM sync_queue WHERE id = ?`
	if _, err := tx.ExecContext(ctx, move, lastError, time.Now(), id); err != nil {
		return fmt.Errorf("failed to copy item %s to abandoned list: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove abandoned item %s: %w", id, err)
	}

	return tx.Commit()
}

func (d *DB) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE status IN ('pending', 'retry')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending items: %w", err)
	}
	return count, nil
}

func (d *DB) AbandonedItems(ctx context.Context) ([]models.AbandonedItem, error) {
	query := `SELECT id, kind, payload, attempt_count, last_error, enqueued_at, abandoned_at
              FROM sync_abandoned ORDER BY abandoned_at DESC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get abandoned items: %w", err)
	}
	defer rows.Close()

	var items []models.AbandonedItem
	for rows.Next() {
		var it models.AbandonedItem
		err := rows.Scan(&it.ID, &it.Kind, &it.Payload, &it.AttemptCount, &it.LastError, &it.EnqueuedAt, &it.AbandonedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan abandoned item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
