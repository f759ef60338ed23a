// Package storage is an in-memory record store keyed by record table and
// raw key bytes.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/protocol"
)

type recordKey struct {
	id  protocol.RecordID
	key string
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[recordKey][]byte
}

var _ node.RecordStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{records: make(map[recordKey][]byte)}
}

// Put stores a copy of value.
func (s *Store) Put(id protocol.RecordID, key, value []byte) error {
	if !id.Known() {
		return fmt.Errorf("%w: record id %d", node.ErrBadRequest, uint8(id))
	}
	v := append([]byte(nil), value...)
	s.mu.Lock()
	s.records[recordKey{id: id, key: string(key)}] = v
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the stored record or node.ErrNotFound.
func (s *Store) Get(ctx context.Context, id protocol.RecordID, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	v, ok := s.records[recordKey{id: id, key: string(key)}]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%x", node.ErrNotFound, id, key)
	}
	return append([]byte(nil), v...), nil
}

// Len counts records in table id.
func (s *Store) Len(id protocol.RecordID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.records {
		if k.id == id {
			n++
		}
	}
	return n
}
