package store

import (
	"context"
	"errors"

	"tillsync/internal/database"
	"tillsync/internal/domain"
)

// SQLiteStore is the authoritative local entity store backed by the
// terminal database's documents table.
type SQLiteStore struct {
	db *database.DB
}

func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	content, err := s.db.GetDocument(ctx, collection, key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return content, err
}

func (s *SQLiteStore) Put(ctx context.Context, collection, key string, content []byte) error {
	return s.db.PutDocument(ctx, collection, key, content)
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	return s.db.DeleteDocument(ctx, collection, key)
}

func (s *SQLiteStore) Keys(ctx context.Context, collection, suffix string) ([]string, error) {
	return s.db.DocumentKeys(ctx, collection, suffix)
}
