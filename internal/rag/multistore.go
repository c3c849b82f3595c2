package rag

import (
	"context"
	"fmt"
)

// MultiStore fans chunk writes out to several backends, e.g. Postgres
// for lexical search plus Qdrant for vector search. Writes are applied
// in order and stop at the first failure.
type MultiStore struct {
	stores []ChunkStore
}

// NewMultiStore combines one or more chunk stores.
func NewMultiStore(stores ...ChunkStore) (*MultiStore, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("at least one store is required")
	}
	return &MultiStore{stores: stores}, nil
}

func (m *MultiStore) UpsertChunks(ctx context.Context, chunks []IndexedChunk) error {
	for _, s := range m.stores {
		if err := s.UpsertChunks(ctx, chunks); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiStore) DeleteDocument(ctx context.Context, documentID string) error {
	for _, s := range m.stores {
		if err := s.DeleteDocument(ctx, documentID); err != nil {
			return err
		}
	}
	return nil
}
