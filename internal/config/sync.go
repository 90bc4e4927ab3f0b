package config

import "time"

// SyncConfig holds sync orchestration tunables
type SyncConfig struct {
	// StaleAfter is the on-demand staleness threshold applied when a
	// client asks for its active job.
	StaleAfter time.Duration
	// SweepInterval is how often the background supervisor scans for
	// stale jobs.
	SweepInterval time.Duration
	// SweepStaleAfter is the staleness threshold used by the periodic
	// sweep. Looser than StaleAfter so the on-demand path wins whenever a
	// client is actually watching.
	SweepStaleAfter time.Duration
	// HeartbeatInterval is the SSE comment-heartbeat cadence.
	HeartbeatInterval time.Duration
	// WorkerTimeout bounds a single outbound request to the scraper worker.
	WorkerTimeout time.Duration
	// WorkerMaxRetries bounds retries of outbound worker notifications.
	WorkerMaxRetries uint64
}

// DefaultSyncConfig returns the default sync configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		StaleAfter:        10 * time.Minute,
		SweepInterval:     5 * time.Minute,
		SweepStaleAfter:   15 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		WorkerTimeout:     15 * time.Second,
		WorkerMaxRetries:  3,
	}
}
