package sync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/collectdex/mfc-sync/internal/db"
	"github.com/collectdex/mfc-sync/internal/models"
)

// Enricher forwards scraped data to the collection and catalog
// collaborators. Enrichment is best-effort: a failure here is captured and
// logged but never fails the webhook or blocks subsequent items.
type Enricher struct {
	store  db.Store
	logger *logrus.Logger
	wg     sync.WaitGroup
}

// NewEnricher creates a new enricher
func NewEnricher(store db.Store, logger *logrus.Logger) *Enricher {
	return &Enricher{
		store:  store,
		logger: logger,
	}
}

// EnrichAsync runs enrichment in a tracked goroutine with its own timeout,
// detached from the webhook request context. Failures are recorded against
// the item so observability tooling can see them without promoting them to
// user-facing errors.
func (e *Enricher) EnrichAsync(sessionID, userID string, item models.SyncItem, fig *models.ScrapedFigure) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := e.enrich(ctx, userID, item, fig); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"session_id": sessionID,
				"mfc_id":     item.MFCID,
				"is_orphan":  item.IsOrphan,
			}).Error("Enrichment failed for completed item")

			if recErr := e.store.IncrementItemRetry(ctx, sessionID, item.MFCID, "enrichment failed: "+err.Error()); recErr != nil {
				e.logger.WithError(recErr).WithField("session_id", sessionID).
					Error("Failed to record enrichment failure")
			}
		}
	}()
}

// enrich upserts the shared catalog entry for every item; non-orphan items
// additionally get a user-scoped record. Orphan items belong to a list but
// not the user's collection, so they must never create a user record.
func (e *Enricher) enrich(ctx context.Context, userID string, item models.SyncItem, fig *models.ScrapedFigure) error {
	if fig.MFCID == "" {
		fig.MFCID = item.MFCID
	}

	if err := e.store.UpsertCatalogFigure(ctx, fig); err != nil {
		return err
	}

	if item.IsOrphan {
		return nil
	}

	return e.store.UpsertUserFigure(ctx, userID, fig, item.CollectionStatus)
}

// Wait blocks until all in-flight enrichments finish. Used on shutdown and
// in tests.
func (e *Enricher) Wait() {
	e.wg.Wait()
}
