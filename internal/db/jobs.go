package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/collectdex/mfc-sync/internal/errors"
	"github.com/collectdex/mfc-sync/internal/models"
)

const terminalPhases = "('completed', 'failed', 'cancelled')"

// CreateJob inserts a new sync job. If an active job already exists for the
// session it fails with a conflict; a terminal job for the same session is
// deleted and replaced inside the same transaction.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.SyncJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var phase string
	err = tx.QueryRowContext(ctx,
		`SELECT phase FROM sync_jobs WHERE session_id = $1 FOR UPDATE`,
		job.SessionID).Scan(&phase)
	switch {
	case err == sql.ErrNoRows:
		// first attempt for this session
	case err != nil:
		return fmt.Errorf("failed to check existing job: %w", err)
	case !models.SyncPhase(phase).IsTerminal():
		return apperrors.NewConflictError(
			fmt.Sprintf("sync already in progress for session: %s", job.SessionID), nil)
	default:
		// items cascade with the job row
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sync_jobs WHERE session_id = $1`, job.SessionID); err != nil {
			return fmt.Errorf("failed to replace terminal job: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_jobs (session_id, user_id, phase, message, include_lists, skip_cached, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		job.SessionID, job.UserID, string(job.Phase), job.Message, job.IncludeLists, job.SkipCached)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const jobColumns = `session_id, user_id, phase, message, include_lists, skip_cached, started_at, completed_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*models.SyncJob, error) {
	var job models.SyncJob
	var phase string
	var completedAt sql.NullTime
	if err := row.Scan(
		&job.SessionID,
		&job.UserID,
		&phase,
		&job.Message,
		&job.IncludeLists,
		&job.SkipCached,
		&job.StartedAt,
		&completedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Phase = models.SyncPhase(phase)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// GetJob retrieves a job with its items and derived stats. Returns nil when
// no job exists for the session.
func (s *PostgresStore) GetJob(ctx context.Context, sessionID string) (*models.SyncJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM sync_jobs WHERE session_id = $1`, sessionID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	items, err := s.getItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	job.Items = items

	stats, err := s.GetJobStats(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	job.Stats = *stats

	return job, nil
}

func (s *PostgresStore) getItems(ctx context.Context, sessionID string) ([]models.SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mfc_id, name, status, collection_status, is_nsfw, is_orphan, mfc_activity_order, retry_count, error
		FROM sync_items
		WHERE session_id = $1
		ORDER BY mfc_activity_order ASC, mfc_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.SyncItem
	for rows.Next() {
		var item models.SyncItem
		var status string
		if err := rows.Scan(
			&item.MFCID,
			&item.Name,
			&status,
			&item.CollectionStatus,
			&item.IsNSFW,
			&item.IsOrphan,
			&item.MFCActivityOrder,
			&item.RetryCount,
			&item.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.Status = models.ItemStatus(status)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

// GetActiveJobForUser returns the most recently started non-terminal job
// for the user, with derived stats but without items. Returns nil when the
// user has no active job.
func (s *PostgresStore) GetActiveJobForUser(ctx context.Context, userID string) (*models.SyncJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM sync_jobs
		WHERE user_id = $1 AND phase NOT IN `+terminalPhases+`
		ORDER BY started_at DESC
		LIMIT 1`, userID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}

	stats, err := s.GetJobStats(ctx, job.SessionID)
	if err != nil {
		return nil, err
	}
	job.Stats = *stats

	return job, nil
}

// ListStaleJobs returns all non-terminal jobs that have not been touched
// since olderThan.
func (s *PostgresStore) ListStaleJobs(ctx context.Context, olderThan time.Time) ([]*models.SyncJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM sync_jobs
		WHERE phase NOT IN `+terminalPhases+` AND updated_at < $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale jobs: %w", err)
	}

	return jobs, nil
}

// ReplaceItems swaps the job's item set for the one delivered by the worker
// during the queueing phase, bumping the job's liveness timestamp.
func (s *PostgresStore) ReplaceItems(ctx context.Context, sessionID string, items []models.SyncItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sync_items WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_items (session_id, mfc_id, name, status, collection_status, is_nsfw, is_orphan, mfc_activity_order, retry_count, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, '')`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		status := item.Status
		if status == "" {
			status = models.ItemPending
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID,
			item.MFCID,
			item.Name,
			string(status),
			item.CollectionStatus,
			item.IsNSFW,
			item.IsOrphan,
			item.MFCActivityOrder,
		); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.MFCID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sync_jobs SET updated_at = NOW() WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to touch job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateItemStatus applies a single item's status transition as a targeted
// row update. Re-delivering the same status is a no-op; the returned bool
// reports whether anything actually changed. Error text is appended, not
// overwritten, so retries keep their history.
func (s *PostgresStore) UpdateItemStatus(ctx context.Context, sessionID, mfcID string, status models.ItemStatus, itemErr string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_items
		SET status = $3,
		    error = CASE
		        WHEN $4 = '' THEN error
		        WHEN error = '' THEN $4
		        ELSE error || '; ' || $4
		    END
		WHERE session_id = $1 AND mfc_id = $2 AND status <> $3`,
		sessionID, mfcID, string(status), itemErr)
	if err != nil {
		return false, fmt.Errorf("failed to update item status: %w", err)
	}

	changed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if err := s.TouchJob(ctx, sessionID); err != nil {
		return changed > 0, err
	}

	return changed > 0, nil
}

// IncrementItemRetry records a captured enrichment failure against the item
// without touching its status.
func (s *PostgresStore) IncrementItemRetry(ctx context.Context, sessionID, mfcID, note string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_items
		SET retry_count = retry_count + 1,
		    error = CASE
		        WHEN $3 = '' THEN error
		        WHEN error = '' THEN $3
		        ELSE error || '; ' || $3
		    END
		WHERE session_id = $1 AND mfc_id = $2`,
		sessionID, mfcID, note)
	if err != nil {
		return fmt.Errorf("failed to record item failure: %w", err)
	}
	return nil
}

// UpdateJobPhase moves an active job to a new non-terminal phase. The
// returned bool reports whether the transition applied; false means the job
// was already terminal.
func (s *PostgresStore) UpdateJobPhase(ctx context.Context, sessionID string, phase models.SyncPhase, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET phase = $2, message = $3, updated_at = NOW()
		WHERE session_id = $1 AND phase NOT IN `+terminalPhases,
		sessionID, string(phase), message)
	if err != nil {
		return false, fmt.Errorf("failed to update job phase: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

// FinishJob moves an active job to a terminal phase and stamps completed_at.
// The guard makes concurrent terminal transitions race-safe: exactly one
// caller observes true.
func (s *PostgresStore) FinishJob(ctx context.Context, sessionID string, phase models.SyncPhase, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET phase = $2, message = $3, completed_at = NOW(), updated_at = NOW()
		WHERE session_id = $1 AND phase NOT IN `+terminalPhases,
		sessionID, string(phase), message)
	if err != nil {
		return false, fmt.Errorf("failed to finish job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

// TouchJob bumps the job's liveness timestamp
func (s *PostgresStore) TouchJob(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_jobs SET updated_at = NOW() WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch job: %w", err)
	}
	return nil
}

// GetJobStats derives the aggregate counters from the item rows
func (s *PostgresStore) GetJobStats(ctx context.Context, sessionID string) (*models.SyncStats, error) {
	var stats models.SyncStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'skipped'),
			COUNT(*)
		FROM sync_items
		WHERE session_id = $1`, sessionID).Scan(
		&stats.Pending,
		&stats.Processing,
		&stats.Completed,
		&stats.Failed,
		&stats.Skipped,
		&stats.Total,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate job stats: %w", err)
	}

	return &stats, nil
}
