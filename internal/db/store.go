package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/collectdex/mfc-sync/internal/models"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Store defines the interface for database operations
type Store interface {
	// Job operations
	CreateJob(ctx context.Context, job *models.SyncJob) error
	GetJob(ctx context.Context, sessionID string) (*models.SyncJob, error)
	GetActiveJobForUser(ctx context.Context, userID string) (*models.SyncJob, error)
	ListStaleJobs(ctx context.Context, olderThan time.Time) ([]*models.SyncJob, error)

	// Item operations. Item mutations are targeted single-row updates so
	// concurrent webhook deliveries for different items of the same job
	// never race on a shared document.
	ReplaceItems(ctx context.Context, sessionID string, items []models.SyncItem) error
	UpdateItemStatus(ctx context.Context, sessionID, mfcID string, status models.ItemStatus, itemErr string) (bool, error)
	IncrementItemRetry(ctx context.Context, sessionID, mfcID, note string) error

	// Phase transitions. Both are guarded: they only apply while the job
	// is in a non-terminal phase, so a late or duplicated caller can never
	// resurrect a finished job.
	UpdateJobPhase(ctx context.Context, sessionID string, phase models.SyncPhase, message string) (bool, error)
	FinishJob(ctx context.Context, sessionID string, phase models.SyncPhase, message string) (bool, error)

	TouchJob(ctx context.Context, sessionID string) error
	GetJobStats(ctx context.Context, sessionID string) (*models.SyncStats, error)

	// Collection collaborators
	UpsertUserFigure(ctx context.Context, userID string, fig *models.ScrapedFigure, collectionStatus string) error
	UpsertCatalogFigure(ctx context.Context, fig *models.ScrapedFigure) error
	UpsertUserLists(ctx context.Context, userID string, lists []models.SyncedList) (int, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "internal/db/migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
