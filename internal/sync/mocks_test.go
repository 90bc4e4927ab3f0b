package sync

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/collectdex/mfc-sync/internal/models"
	"github.com/collectdex/mfc-sync/internal/push"
	"github.com/collectdex/mfc-sync/internal/worker"
)

// MockStore implements db.Store for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateJob(ctx context.Context, job *models.SyncJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockStore) GetJob(ctx context.Context, sessionID string) (*models.SyncJob, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncJob), args.Error(1)
}

func (m *MockStore) GetActiveJobForUser(ctx context.Context, userID string) (*models.SyncJob, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncJob), args.Error(1)
}

func (m *MockStore) ListStaleJobs(ctx context.Context, olderThan time.Time) ([]*models.SyncJob, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SyncJob), args.Error(1)
}

func (m *MockStore) ReplaceItems(ctx context.Context, sessionID string, items []models.SyncItem) error {
	args := m.Called(ctx, sessionID, items)
	return args.Error(0)
}

func (m *MockStore) UpdateItemStatus(ctx context.Context, sessionID, mfcID string, status models.ItemStatus, itemErr string) (bool, error) {
	args := m.Called(ctx, sessionID, mfcID, status, itemErr)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) IncrementItemRetry(ctx context.Context, sessionID, mfcID, note string) error {
	args := m.Called(ctx, sessionID, mfcID, note)
	return args.Error(0)
}

func (m *MockStore) UpdateJobPhase(ctx context.Context, sessionID string, phase models.SyncPhase, message string) (bool, error) {
	args := m.Called(ctx, sessionID, phase, message)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) FinishJob(ctx context.Context, sessionID string, phase models.SyncPhase, message string) (bool, error) {
	args := m.Called(ctx, sessionID, phase, message)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) TouchJob(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockStore) GetJobStats(ctx context.Context, sessionID string) (*models.SyncStats, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncStats), args.Error(1)
}

func (m *MockStore) UpsertUserFigure(ctx context.Context, userID string, fig *models.ScrapedFigure, collectionStatus string) error {
	args := m.Called(ctx, userID, fig, collectionStatus)
	return args.Error(0)
}

func (m *MockStore) UpsertCatalogFigure(ctx context.Context, fig *models.ScrapedFigure) error {
	args := m.Called(ctx, fig)
	return args.Error(0)
}

func (m *MockStore) UpsertUserLists(ctx context.Context, userID string, lists []models.SyncedList) (int, error) {
	args := m.Called(ctx, userID, lists)
	return args.Int(0), args.Error(1)
}

// MockHub implements push.Hub, recording broadcasts for assertions
type MockHub struct {
	mu             sync.Mutex
	events         []push.Event
	closedSessions []string
}

func (h *MockHub) Subscribe(sessionID string) *push.Subscription {
	return &push.Subscription{ID: "test", Events: make(chan push.Event, 16)}
}

func (h *MockHub) Unsubscribe(sessionID string, sub *push.Subscription) {}

func (h *MockHub) Broadcast(sessionID string, event push.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *MockHub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closedSessions = append(h.closedSessions, sessionID)
}

func (h *MockHub) Events() []push.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]push.Event, len(h.events))
	copy(out, h.events)
	return out
}

func (h *MockHub) ClosedSessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.closedSessions))
	copy(out, h.closedSessions)
	return out
}

func (h *MockHub) EventsOfType(t push.EventType) []push.Event {
	var out []push.Event
	for _, ev := range h.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// MockWorkerClient implements worker.Client
type MockWorkerClient struct {
	mock.Mock
}

func (m *MockWorkerClient) StartSync(ctx context.Context, req *worker.StartSyncRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockWorkerClient) CancelSync(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}
