package models

// SyncedList is one MFC list delivered by the worker during a lists-sync
// callback. ItemIDs, when present, is authoritative for the item count.
type SyncedList struct {
	MFCListID string   `json:"mfcListId"`
	Name      string   `json:"name"`
	URL       string   `json:"url,omitempty"`
	IsPrivate bool     `json:"isPrivate"`
	ItemIDs   []string `json:"itemIds,omitempty"`
	ItemCount int      `json:"itemCount"`
}

// EffectiveItemCount derives the item count from the item-id set when the
// worker supplied one, falling back to the reported count.
func (l *SyncedList) EffectiveItemCount() int {
	if len(l.ItemIDs) > 0 {
		return len(l.ItemIDs)
	}
	return l.ItemCount
}
