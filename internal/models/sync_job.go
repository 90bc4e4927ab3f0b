package models

import "time"

// SyncPhase is the job-level lifecycle stage of a sync operation
type SyncPhase string

const (
	PhaseValidating SyncPhase = "validating"
	PhaseQueueing   SyncPhase = "queueing"
	PhaseEnriching  SyncPhase = "enriching"
	PhaseCompleted  SyncPhase = "completed"
	PhaseFailed     SyncPhase = "failed"
	PhaseCancelled  SyncPhase = "cancelled"
)

// IsTerminal reports whether the phase ends the job. No transitions leave
// a terminal phase.
func (p SyncPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// IsValid reports whether p is a known phase
func (p SyncPhase) IsValid() bool {
	switch p {
	case PhaseValidating, PhaseQueueing, PhaseEnriching, PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// ItemStatus is the per-item processing state
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemSkipped    ItemStatus = "skipped"
)

// IsTerminal reports whether the item needs no further work
func (s ItemStatus) IsTerminal() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemSkipped
}

// IsValid reports whether s is a known item status
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemPending, ItemProcessing, ItemCompleted, ItemFailed, ItemSkipped:
		return true
	}
	return false
}

// SyncStats holds aggregate item counters derived from item states
type SyncStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Total      int `json:"total"`
}

// SyncItem is one unit of external work tracked inside a job
type SyncItem struct {
	MFCID            string     `json:"mfcId"`
	Name             string     `json:"name"`
	Status           ItemStatus `json:"status"`
	CollectionStatus string     `json:"collectionStatus,omitempty"` // owned/ordered/wished
	IsNSFW           bool       `json:"isNsfw"`
	IsOrphan         bool       `json:"isOrphan"`
	MFCActivityOrder int        `json:"mfcActivityOrder"`
	RetryCount       int        `json:"retryCount"`
	Error            string     `json:"error,omitempty"`
}

// SyncJob is one end-to-end sync attempt, keyed by a caller-supplied
// session ID. UpdatedAt is bumped on every mutation and doubles as the
// liveness signal for the staleness supervisor.
type SyncJob struct {
	SessionID    string     `json:"sessionId"`
	UserID       string     `json:"userId"`
	Phase        SyncPhase  `json:"phase"`
	Message      string     `json:"message"`
	Stats        SyncStats  `json:"stats"`
	Items        []SyncItem `json:"items,omitempty"`
	IncludeLists bool       `json:"includeLists"`
	SkipCached   bool       `json:"skipCached"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsActive reports whether the job is still in a non-terminal phase
func (j *SyncJob) IsActive() bool {
	return !j.Phase.IsTerminal()
}

// ScrapedFigure is the enrichment payload a worker attaches to a completed
// item. Only the fields the catalog upsert needs; everything else the
// scraper collected stays opaque in Raw.
type ScrapedFigure struct {
	MFCID        string         `json:"mfcId"`
	Name         string         `json:"name"`
	ImageURL     string         `json:"imageUrl,omitempty"`
	Manufacturer string         `json:"manufacturer,omitempty"`
	Scale        string         `json:"scale,omitempty"`
	ReleaseDate  string         `json:"releaseDate,omitempty"`
	Price        string         `json:"price,omitempty"`
	IsNSFW       bool           `json:"isNsfw"`
	Raw          map[string]any `json:"raw,omitempty"`
}
