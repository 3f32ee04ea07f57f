package store

import (
	"time"

	"github.com/heysubinoy/pyazkv/pkg/kv"
	"github.com/heysubinoy/pyazkv/pkg/metrics"
)

// Operation labels recorded by InstrumentedStore.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
)

// InstrumentedStore wraps any kv.Store implementation with Prometheus metrics.
type InstrumentedStore struct {
	store   kv.Store
	metrics *metrics.Metrics
}

// Compile-time check to ensure InstrumentedStore implements kv.Store.
var _ kv.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps a store with instrumentation.
func NewInstrumentedStore(store kv.Store, m *metrics.Metrics) *InstrumentedStore {
	return &InstrumentedStore{
		store:   store,
		metrics: m,
	}
}

// Get delegates to the wrapped store and records timing with a hit or miss status.
func (s *InstrumentedStore) Get(key string) (string, bool) {
	start := time.Now()
	value, found := s.store.Get(key)

	status := "miss"
	if found {
		status = "hit"
	}
	s.metrics.RecordStorageOperation(OpGet, status, time.Since(start))

	return value, found
}

// Set delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Set(key, value string) error {
	start := time.Now()
	err := s.store.Set(key, value)
	s.record(OpSet, err, time.Since(start))
	return err
}

// SetWithExpiry delegates to the wrapped store and records timing under the set operation.
func (s *InstrumentedStore) SetWithExpiry(key, value string, expireAt time.Time) error {
	start := time.Now()
	err := s.store.SetWithExpiry(key, value, expireAt)
	s.record(OpSet, err, time.Since(start))
	return err
}

// Delete delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Delete(key string) error {
	start := time.Now()
	err := s.store.Delete(key)
	s.record(OpDelete, err, time.Since(start))
	return err
}

func (s *InstrumentedStore) record(op string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.RecordStorageError(op)
	}
	s.metrics.RecordStorageOperation(op, status, elapsed)
}
