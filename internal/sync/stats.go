package sync

import "github.com/collectdex/mfc-sync/internal/models"

// ComputeStats derives the aggregate counters from an item set. Pure
// function; the persisted counterpart lives in the store's SQL aggregate.
func ComputeStats(items []models.SyncItem) models.SyncStats {
	stats := models.SyncStats{Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case models.ItemPending:
			stats.Pending++
		case models.ItemProcessing:
			stats.Processing++
		case models.ItemCompleted:
			stats.Completed++
		case models.ItemFailed:
			stats.Failed++
		case models.ItemSkipped:
			stats.Skipped++
		}
	}
	return stats
}

// ShouldComplete decides terminal promotion: a job with items completes
// exactly when every item has reached a terminal item-status. Failed items
// still yield a completed job; partial success is not a distinct phase.
// A job with zero items can never complete through this path.
func ShouldComplete(stats models.SyncStats) bool {
	if stats.Total == 0 {
		return false
	}
	return stats.Pending == 0 && stats.Processing == 0
}
