package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	stdsync "sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/collectdex/mfc-sync/internal/config"
	apperrors "github.com/collectdex/mfc-sync/internal/errors"
	"github.com/collectdex/mfc-sync/internal/models"
	"github.com/collectdex/mfc-sync/internal/push"
	"github.com/collectdex/mfc-sync/internal/sync"
	"github.com/collectdex/mfc-sync/internal/worker"
)

const (
	testAuthSecret    = "test-auth-secret"
	testWebhookSecret = "test-webhook-secret"
	testSessionID     = "session-12345678"
	testUserID        = "user-1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// mintToken builds an HS256 JWT the way the main backend does
func mintToken(t *testing.T, secret, sub string, exp time.Time) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payloadBytes, err := json.Marshal(map[string]any{"sub": sub, "exp": exp.Unix()})
	if err != nil {
		t.Fatalf("failed to marshal claims: %v", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(header + "." + payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return header + "." + payload + "." + sig
}

// fakeStore is an in-memory db.Store with the same transition guards as the
// Postgres implementation, so router-level tests exercise real semantics.
type fakeStore struct {
	mu   stdsync.Mutex
	jobs map[string]*models.SyncJob
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*models.SyncJob)}
}

func (s *fakeStore) seed(job *models.SyncJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now()
	}
	s.jobs[job.SessionID] = job
}

func (s *fakeStore) CreateJob(ctx context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.SessionID]; ok && existing.IsActive() {
		return apperrors.NewConflictError("sync already in progress for this session", nil)
	}
	for _, other := range s.jobs {
		if other.UserID == job.UserID && other.IsActive() {
			return apperrors.NewConflictError("user already has an active sync", nil)
		}
	}

	stored := *job
	stored.StartedAt = time.Now()
	stored.UpdatedAt = stored.StartedAt
	s.jobs[job.SessionID] = &stored
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, sessionID string) (*models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *job
	copied.Items = append([]models.SyncItem(nil), job.Items...)
	copied.Stats = sync.ComputeStats(job.Items)
	return &copied, nil
}

func (s *fakeStore) GetActiveJobForUser(ctx context.Context, userID string) (*models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.UserID == userID && job.IsActive() {
			copied := *job
			copied.Stats = sync.ComputeStats(job.Items)
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListStaleJobs(ctx context.Context, olderThan time.Time) ([]*models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*models.SyncJob
	for _, job := range s.jobs {
		if job.IsActive() && job.UpdatedAt.Before(olderThan) {
			copied := *job
			stale = append(stale, &copied)
		}
	}
	return stale, nil
}

func (s *fakeStore) ReplaceItems(ctx context.Context, sessionID string, items []models.SyncItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[sessionID]; ok {
		job.Items = append([]models.SyncItem(nil), items...)
		job.UpdatedAt = time.Now()
	}
	return nil
}

func (s *fakeStore) UpdateItemStatus(ctx context.Context, sessionID, mfcID string, status models.ItemStatus, itemErr string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[sessionID]
	if !ok {
		return false, nil
	}
	for i := range job.Items {
		if job.Items[i].MFCID == mfcID {
			if job.Items[i].Status == status {
				return false, nil
			}
			job.Items[i].Status = status
			job.Items[i].Error = itemErr
			job.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) IncrementItemRetry(ctx context.Context, sessionID, mfcID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[sessionID]; ok {
		for i := range job.Items {
			if job.Items[i].MFCID == mfcID {
				job.Items[i].RetryCount++
			}
		}
	}
	return nil
}

func (s *fakeStore) UpdateJobPhase(ctx context.Context, sessionID string, phase models.SyncPhase, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[sessionID]
	if !ok || !job.IsActive() {
		return false, nil
	}
	job.Phase = phase
	job.Message = message
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *fakeStore) FinishJob(ctx context.Context, sessionID string, phase models.SyncPhase, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[sessionID]
	if !ok || !job.IsActive() {
		return false, nil
	}
	now := time.Now()
	job.Phase = phase
	job.Message = message
	job.CompletedAt = &now
	job.UpdatedAt = now
	return true, nil
}

func (s *fakeStore) TouchJob(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[sessionID]; ok {
		job.UpdatedAt = time.Now()
	}
	return nil
}

func (s *fakeStore) GetJobStats(ctx context.Context, sessionID string) (*models.SyncStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[sessionID]
	if !ok {
		return &models.SyncStats{}, nil
	}
	stats := sync.ComputeStats(job.Items)
	return &stats, nil
}

func (s *fakeStore) UpsertUserFigure(ctx context.Context, userID string, fig *models.ScrapedFigure, collectionStatus string) error {
	return nil
}

func (s *fakeStore) UpsertCatalogFigure(ctx context.Context, fig *models.ScrapedFigure) error {
	return nil
}

func (s *fakeStore) UpsertUserLists(ctx context.Context, userID string, lists []models.SyncedList) (int, error) {
	return len(lists), nil
}

// stubWorkerClient records outbound worker calls
type stubWorkerClient struct {
	mu        stdsync.Mutex
	started   []*worker.StartSyncRequest
	cancelled []string
	startErr  error
}

func (c *stubWorkerClient) StartSync(ctx context.Context, req *worker.StartSyncRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.started = append(c.started, req)
	return nil
}

func (c *stubWorkerClient) CancelSync(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, sessionID)
	return nil
}

func (c *stubWorkerClient) startedSessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.started))
	for _, req := range c.started {
		out = append(out, req.SessionID)
	}
	return out
}

type testEnv struct {
	router *gin.Engine
	store  *fakeStore
	hub    *push.LocalHub
	worker *stubWorkerClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testLogger()
	cfg := config.DefaultSyncConfig()
	store := newFakeStore()
	hub := push.NewLocalHub(logger)
	workerClient := &stubWorkerClient{}

	supervisor := sync.NewSupervisor(store, hub, cfg, logger)
	enricher := sync.NewEnricher(store, logger)
	webhooks := sync.NewWebhookService(store, hub, enricher, logger)
	service := sync.NewService(store, hub, workerClient, supervisor, cfg,
		"http://localhost:8080/api/v1/webhooks/sync", testWebhookSecret, logger)

	handler := NewHandler(service, webhooks, hub, cfg, logger)
	router := SetupRouter(handler, testAuthSecret, testWebhookSecret)

	return &testEnv{router: router, store: store, hub: hub, worker: workerClient}
}

func (e *testEnv) userToken(t *testing.T) string {
	return mintToken(t, testAuthSecret, testUserID, time.Now().Add(time.Hour))
}
