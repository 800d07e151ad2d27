package thread

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	llmkit "github.com/streamloop/llmkit"
)

// Store persists Threads keyed by a caller-supplied conversation id.
//
// Load returns (nil, nil) when no thread is persisted yet. Save receives the
// turn that produced the appended messages, when there is one, so stores can
// index by turn if they want to.
//
// Concurrent invocations against the same conversation id are not
// coordinated here: the last save wins. Callers needing stronger guarantees
// must serialize on the conversation id themselves.
type Store interface {
	Load(ctx context.Context, id string) (*Thread, error)
	Save(ctx context.Context, id string, th *Thread, turn *llmkit.Turn) error
}

// MemoryStore is an in-process Store, mainly for tests and single-node use.
// It stores clones so a saved thread stays owned by its invocation.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*Thread
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*Thread)}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.threads[id]
	if !ok {
		return nil, nil
	}
	return th.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, id string, th *Thread, turn *llmkit.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[id] = th.Clone()
	return nil
}

// CachedStore is a read-through cache in front of another Store. Loads hit
// the cache first; saves write through and refresh the cached entry. Cached
// threads are cloned on the way in and out, so cache residency never shares
// a Thread between invocations.
type CachedStore struct {
	backend Store
	cache   *lru.Cache[string, *Thread]
}

func NewCachedStore(backend Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, *Thread](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{backend: backend, cache: cache}, nil
}

func (s *CachedStore) Load(ctx context.Context, id string) (*Thread, error) {
	if th, ok := s.cache.Get(id); ok {
		return th.Clone(), nil
	}
	th, err := s.backend.Load(ctx, id)
	if err != nil || th == nil {
		return th, err
	}
	s.cache.Add(id, th.Clone())
	return th, nil
}

func (s *CachedStore) Save(ctx context.Context, id string, th *Thread, turn *llmkit.Turn) error {
	if err := s.backend.Save(ctx, id, th, turn); err != nil {
		// The backend is the source of truth; drop any stale entry.
		s.cache.Remove(id)
		return err
	}
	s.cache.Add(id, th.Clone())
	return nil
}
