package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/collectdex/mfc-sync/internal/models"
)

// UpsertUserFigure writes the user-scoped record for a non-orphan item,
// keyed by (user_id, mfc_id).
func (s *PostgresStore) UpsertUserFigure(ctx context.Context, userID string, fig *models.ScrapedFigure, collectionStatus string) error {
	if fig == nil {
		return fmt.Errorf("figure cannot be nil")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_figures (user_id, mfc_id, name, collection_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id, mfc_id) DO UPDATE SET
			name = EXCLUDED.name,
			collection_status = EXCLUDED.collection_status,
			updated_at = NOW()`,
		userID, fig.MFCID, fig.Name, collectionStatus)
	if err != nil {
		return fmt.Errorf("failed to upsert user figure: %w", err)
	}

	return nil
}

// UpsertCatalogFigure enriches the shared catalog entry, keyed by mfc_id
// alone. Used for owned and orphan items alike.
func (s *PostgresStore) UpsertCatalogFigure(ctx context.Context, fig *models.ScrapedFigure) error {
	if fig == nil {
		return fmt.Errorf("figure cannot be nil")
	}

	raw, err := json.Marshal(fig.Raw)
	if err != nil {
		return fmt.Errorf("failed to marshal scraped data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO catalog_figures (mfc_id, name, image_url, manufacturer, scale, release_date, price, is_nsfw, scraped_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (mfc_id) DO UPDATE SET
			name = EXCLUDED.name,
			image_url = EXCLUDED.image_url,
			manufacturer = EXCLUDED.manufacturer,
			scale = EXCLUDED.scale,
			release_date = EXCLUDED.release_date,
			price = EXCLUDED.price,
			is_nsfw = EXCLUDED.is_nsfw,
			scraped_json = EXCLUDED.scraped_json,
			updated_at = NOW()`,
		fig.MFCID, fig.Name, fig.ImageURL, fig.Manufacturer, fig.Scale,
		fig.ReleaseDate, fig.Price, fig.IsNSFW, raw)
	if err != nil {
		return fmt.Errorf("failed to upsert catalog figure: %w", err)
	}

	return nil
}

// UpsertUserLists bulk-upserts list records keyed by (user_id, mfc_list_id)
// and returns the number of lists written.
func (s *PostgresStore) UpsertUserLists(ctx context.Context, userID string, lists []models.SyncedList) (int, error) {
	if len(lists) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_lists (user_id, mfc_list_id, name, url, is_private, item_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id, mfc_list_id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			is_private = EXCLUDED.is_private,
			item_count = EXCLUDED.item_count,
			updated_at = NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	upserted := 0
	for _, list := range lists {
		if list.MFCListID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			userID,
			list.MFCListID,
			list.Name,
			list.URL,
			list.IsPrivate,
			list.EffectiveItemCount(),
		); err != nil {
			return 0, fmt.Errorf("failed to upsert list %s: %w", list.MFCListID, err)
		}
		upserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return upserted, nil
}
