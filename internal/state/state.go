// Package state is an in-memory global state with committed roots.
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/types"
)

// State is safe for concurrent use. Reads see the working set; GetTrie only
// sees committed roots.
type State struct {
	mu    sync.RWMutex
	items map[types.Key][]byte
	tries map[types.Digest][]byte
	root  types.Digest
}

var _ node.GlobalState = (*State)(nil)

func New() *State {
	s := &State{
		items: make(map[types.Key][]byte),
		tries: make(map[types.Digest][]byte),
	}
	root, blob, err := commitBlob(s.items)
	if err == nil {
		s.root = root
		s.tries[root] = blob
	}
	return s
}

func (s *State) Put(key types.Key, value []byte) {
	v := append([]byte(nil), value...)
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

// Apply writes every entry under one lock.
func (s *State) Apply(writes []types.Write) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		s.items[w.Key] = append([]byte(nil), w.Value...)
	}
}

// Commit hashes the working set into a new root and keeps its trie blob.
func (s *State) Commit() (types.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, blob, err := commitBlob(s.items)
	if err != nil {
		return types.Digest{}, err
	}
	s.tries[root] = blob
	s.root = root
	return root, nil
}

func (s *State) StateRoot() types.Digest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

func (s *State) GetItem(ctx context.Context, key types.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: item %s", node.ErrNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

// GetAllItems returns every entry with tag, ordered by key. An empty result
// is not an error.
func (s *State) GetAllItems(ctx context.Context, tag types.KeyTag) ([]types.StoredValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]types.StoredValue, 0)
	for k, v := range s.items {
		if k.Tag == tag {
			out = append(out, types.StoredValue{Key: k, Value: append([]byte(nil), v...)})
		}
	}
	s.mu.RUnlock()
	sortValues(out)
	return out, nil
}

func (s *State) GetTrie(ctx context.Context, digest types.Digest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	blob, ok := s.tries[digest]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: trie %s", node.ErrNotFound, digest)
	}
	return append([]byte(nil), blob...), nil
}

// Snapshot copies the working set. Writes to the snapshot never reach s.
func (s *State) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make(map[types.Key][]byte, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	return &Snapshot{items: items, base: s.root}
}

// Snapshot is a private copy owned by one caller.
type Snapshot struct {
	items map[types.Key][]byte
	base  types.Digest
}

func (sn *Snapshot) Get(key types.Key) ([]byte, bool) {
	v, ok := sn.items[key]
	return v, ok
}

func (sn *Snapshot) Set(key types.Key, value []byte) {
	sn.items[key] = append([]byte(nil), value...)
}

// Base is the committed root the snapshot was taken at.
func (sn *Snapshot) Base() types.Digest {
	return sn.base
}

// Root hashes the snapshot contents without storing anything.
func (sn *Snapshot) Root() (types.Digest, error) {
	root, _, err := commitBlob(sn.items)
	return root, err
}

func commitBlob(items map[types.Key][]byte) (types.Digest, []byte, error) {
	entries := make([]types.StoredValue, 0, len(items))
	for k, v := range items {
		entries = append(entries, types.StoredValue{Key: k, Value: v})
	}
	sortValues(entries)
	blob, err := types.Marshal(entries)
	if err != nil {
		return types.Digest{}, nil, fmt.Errorf("state: encode trie: %w", err)
	}
	return types.DigestOf(blob), blob, nil
}

func sortValues(v []types.StoredValue) {
	sort.Slice(v, func(i, j int) bool {
		return v[i].Key.Compare(v[j].Key) < 0
	})
}
