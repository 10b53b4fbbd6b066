package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// heartbeater is satisfied by every worker type: each tracks the
// UnixNano timestamp of its last liveness signal (a completed unit of
// work, or for the demuxer and muxer also a periodic tick) in an
// atomic.Int64 and exposes it via Heartbeat().
type heartbeater interface {
	Heartbeat() int64
}

// healthCheckInterval is how often the Health Monitor polls every
// worker's heartbeat (spec.md §4.8).
const healthCheckInterval = 1 * time.Second

// HealthMonitor periodically samples every worker's heartbeat and logs
// any that has gone stale, and keeps a snapshot available for
// inspection, grounded on the teacher's dedicated-goroutine-over-a-map
// pattern (internal/webrtc/manager.go's connection bookkeeping)
// generalized from "map of live connections" to "map of live workers".
type HealthMonitor struct {
	log        *zap.SugaredLogger
	workers    map[string]heartbeater
	staleAfter time.Duration

	mu       sync.RWMutex
	snapshot []models.WorkerHealth
}

// NewHealthMonitor builds a Health Monitor over the given named
// workers.
func NewHealthMonitor(log *zap.SugaredLogger, staleAfter time.Duration, workers map[string]heartbeater) *HealthMonitor {
	return &HealthMonitor{log: log, workers: workers, staleAfter: staleAfter}
}

// Snapshot returns the most recently computed health of every worker.
func (h *HealthMonitor) Snapshot() []models.WorkerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.WorkerHealth, len(h.snapshot))
	copy(out, h.snapshot)
	return out
}

// Run polls every worker's heartbeat every healthCheckInterval until
// ctx is done.
func (h *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check()
		}
	}
}

func (h *HealthMonitor) check() {
	now := time.Now()
	snapshot := make([]models.WorkerHealth, 0, len(h.workers))

	for name, w := range h.workers {
		last := time.Unix(0, w.Heartbeat())
		stale := w.Heartbeat() != 0 && now.Sub(last) > h.staleAfter
		if w.Heartbeat() == 0 {
			// Hasn't produced its first unit of work yet; not stale,
			// just not started.
			stale = false
		}
		if stale {
			h.log.Warnw("worker heartbeat stale", "worker", name, "last_heartbeat", last, "age", now.Sub(last))
		}
		snapshot = append(snapshot, models.WorkerHealth{Name: name, LastHeartbeat: last, Stale: stale})
	}

	h.mu.Lock()
	h.snapshot = snapshot
	h.mu.Unlock()
}
