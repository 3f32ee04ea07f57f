package store

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/heysubinoy/pyazkv/pkg/kv"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 128

// entry is a stored value. A zero expireAt means the entry never expires.
type entry struct {
	value    string
	expireAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// shard is one independently locked slice of the key space.
type shard struct {
	mu   sync.RWMutex
	data map[string]entry
}

// MemStore is an in-memory implementation of the kv.Store interface.
// Keys are spread over FNV-1a hashed shards, each a map protected by its own
// RWMutex, so operations on one key are atomic while different shards proceed
// in parallel.
type MemStore struct {
	shards []*shard
	now    func() time.Time
}

// Compile-time check to ensure MemStore implements kv.Store.
var _ kv.Store = (*MemStore)(nil)

// Option configures a MemStore.
type Option func(s *MemStore)

// WithShards sets the number of shards. Values below one are ignored.
func WithShards(n int) Option {
	return func(s *MemStore) {
		if n > 0 {
			s.shards = make([]*shard, n)
		}
	}
}

// WithClock replaces the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *MemStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemStore creates and returns a new, empty MemStore.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		shards: make([]*shard, DefaultShards),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.shards {
		s.shards[i] = &shard{data: make(map[string]entry)}
	}
	return s
}

func (s *MemStore) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Get retrieves a value by key from the store.
// Returns the value and true if found, empty string and false otherwise.
// An expired entry is reported as absent and removed.
func (s *MemStore) Get(key string) (string, bool) {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.data[key]
	sh.mu.RUnlock()
	if !ok {
		return "", false
	}

	now := s.now()
	if !e.expired(now) {
		return e.value, true
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	// A concurrent Set may have replaced the entry since the read lock was dropped.
	if cur, ok := sh.data[key]; ok {
		if !cur.expired(now) {
			return cur.value, true
		}
		delete(sh.data, key)
	}
	return "", false
}

// Set stores a key-value pair in the store with no expiry.
func (s *MemStore) Set(key, value string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.data[key] = entry{value: value}
	return nil
}

// SetWithExpiry stores a key-value pair that becomes absent at expireAt.
// An expireAt that has already passed deletes the key.
func (s *MemStore) SetWithExpiry(key, value string, expireAt time.Time) error {
	if key == "" {
		return kv.ErrEmptyKey
	}

	e := entry{value: value, expireAt: expireAt}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e.expired(s.now()) {
		delete(sh.data, key)
		return nil
	}
	sh.data[key] = e
	return nil
}

// Delete removes a key from the store.
// Returns nil even if the key doesn't exist.
func (s *MemStore) Delete(key string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	delete(sh.data, key)
	return nil
}

// Len returns the number of stored entries, including expired entries that
// have not been swept yet.
func (s *MemStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.data)
		sh.mu.RUnlock()
	}
	return total
}

// Sweep removes every expired entry and returns how many were removed.
// Shards are locked one at a time.
func (s *MemStore) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.data {
			if e.expired(now) {
				delete(sh.data, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
