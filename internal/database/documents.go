package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document key does not exist.
var ErrNotFound = errors.New("document not found")

func (d *DB) GetDocument(ctx context.Context, collection, key string) ([]byte, error) {
	query := `SELECT content FROM documents WHERE collection = ? AND key = ?`

	var content []byte
	err := d.db.QueryRowContext(ctx, query, collection, key).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, key, err)
	}
	return content, nil
}

func (d *DB) PutDocument(ctx context.Context, collection, key string, content []byte) error {
	query := `INSERT INTO documents (collection, key, content, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
              ON CONFLICT(collection, key) DO UPDATE SET content = excluded.content, updated_at = CURRENT_TIMESTAMP`

	if _, err := d.db.ExecContext(ctx, query, collection, key, content); err != nil {
		return fmt.Errorf("failed to put document %s/%s: %w", collection, key, err)
	}
	return nil
}

func (d *DB) DeleteDocument(ctx context.Context, collection, key string) error {
	query := `DELETE FROM documents WHERE collection = ? AND key = ?`

	if _, err := d.db.ExecContext(ctx, query, collection, key); err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, key, err)
	}
	return nil
}

// DocumentKeys returns keys in a collection ending with suffix; an empty
// suffix matches every key.
func (d *DB) DocumentKeys(ctx context.Context, collection, suffix string) ([]string, error) {
	query := `SELECT key FROM documents WHERE collection = ? AND key LIKE ? ORDER BY key`

	rows, err := d.db.QueryContext(ctx, query, collection, "%"+suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list document keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan document key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
