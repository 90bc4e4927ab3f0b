package api

import "time"

// SyncJobResponse represents a sync job as returned by the lifecycle API
// @Description One sync attempt with its items and derived stats
// @swagger:model SyncJobResponse
type SyncJobResponse struct {
	// Caller-supplied unique session identifier
	SessionID string `json:"sessionId" example:"a3f1c9d2"`
	// Owning user
	UserID string `json:"userId" example:"u_42"`
	// Lifecycle phase
	Phase string `json:"phase" example:"enriching"`
	// Human-readable status text
	Message string `json:"message" example:"Enriching 120 items"`
	// Aggregate item counters
	Stats SyncStatsResponse `json:"stats"`
	// Whether the worker should also sync the user's lists
	IncludeLists bool `json:"includeLists"`
	// Whether already-cached catalog entries may be skipped
	SkipCached bool `json:"skipCached"`
	// When the attempt started
	StartedAt time.Time `json:"startedAt"`
	// Set only once the job reaches a terminal phase
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	// Liveness signal, bumped on every mutation
	UpdatedAt time.Time `json:"updatedAt"`
}

// SyncStatsResponse represents aggregate item counters
// @Description Item counters derived from per-item statuses
// @swagger:model SyncStatsResponse
type SyncStatsResponse struct {
	Pending    int `json:"pending" example:"10"`
	Processing int `json:"processing" example:"2"`
	Completed  int `json:"completed" example:"100"`
	Failed     int `json:"failed" example:"3"`
	Skipped    int `json:"skipped" example:"5"`
	Total      int `json:"total" example:"120"`
}

// ErrorResponse represents an API error
// @Description Coarse error message; internal detail is never exposed
// @swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error" example:"sync job not found"`
}
