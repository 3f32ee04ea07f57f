package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/heysubinoy/pyazkv/pkg/metrics"
)

// DefaultSweepInterval is how often the janitor sweeps when none is configured.
const DefaultSweepInterval = time.Second

// Janitor periodically removes expired entries from a MemStore.
// Reads already hide expired entries; sweeping only reclaims their memory.
type Janitor struct {
	store    *MemStore
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewJanitor creates a janitor for store. A non-positive interval uses
// DefaultSweepInterval. m may be nil.
func NewJanitor(store *MemStore, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Janitor{
		store:    store,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Debug("janitor started", zap.Duration("interval", j.interval))
	for {
		select {
		case <-ctx.Done():
			j.logger.Debug("janitor stopped")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	n := j.store.Sweep()
	if n == 0 {
		return
	}
	if j.metrics != nil {
		j.metrics.RecordExpired(n)
	}
	j.logger.Debug("swept expired keys", zap.Int("removed", n))
}
