package models

import "time"

// WorkerHealth is a point-in-time snapshot of one worker's liveness,
// as reported by the Health Monitor (spec.md §4.8).
type WorkerHealth struct {
	Name          string
	LastHeartbeat time.Time
	Stale         bool
}
