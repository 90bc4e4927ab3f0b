package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectdex/mfc-sync/internal/models"
)

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSyncJob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sync", env.userToken(t), map[string]any{
		"sessionId":    testSessionID,
		"includeLists": true,
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var job models.SyncJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, testSessionID, job.SessionID)
	assert.Equal(t, models.PhaseValidating, job.Phase)

	assert.Equal(t, []string{testSessionID}, env.worker.startedSessions())
}

func TestCreateSyncJob_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sync", "", map[string]any{"sessionId": testSessionID})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.worker.startedSessions())
}

func TestCreateSyncJob_MissingSessionID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sync", env.userToken(t), map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSyncJob_ConflictOnActiveSync(t *testing.T) {
	env := newTestEnv(t)
	env.store.seed(&models.SyncJob{
		SessionID: testSessionID,
		UserID:    testUserID,
		Phase:     models.PhaseEnriching,
	})

	rec := env.do(t, http.MethodPost, "/api/v1/sync", env.userToken(t), map[string]any{
		"sessionId": testSessionID,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetSyncJob(t *testing.T) {
	env := newTestEnv(t)
	env.store.seed(&models.SyncJob{
		SessionID: testSessionID,
		UserID:    testUserID,
		Phase:     models.PhaseEnriching,
		Items: []models.SyncItem{
			{MFCID: "100", Status: models.ItemCompleted},
			{MFCID: "200", Status: models.ItemPending},
		},
	})

	rec := env.do(t, http.MethodGet, "/api/v1/sync/session/"+testSessionID, env.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var job models.SyncJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.PhaseEnriching, job.Phase)
	assert.Equal(t, 2, job.Stats.Total)
	assert.Equal(t, 1, job.Stats.Completed)
}

func TestGetSyncJob_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/sync/session/session-unknown1", env.userToken(t), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSyncJob_OtherUsersJobIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.store.seed(&models.SyncJob{
		SessionID: testSessionID,
		UserID:    "someone-else",
		Phase:     models.PhaseEnriching,
	})

	rec := env.do(t, http.MethodGet, "/api/v1/sync/session/"+testSessionID, env.userToken(t), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetActiveSyncJob_None(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/sync/active", env.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"job":null}`, rec.Body.String())
}

func TestGetActiveSyncJob(t *testing.T) {
	env := newTestEnv(t)
	env.store.seed(&models.SyncJob{
		SessionID: testSessionID,
		UserID:    testUserID,
		Phase:     models.PhaseQueueing,
		UpdatedAt: time.Now(),
	})

	rec := env.do(t, http.MethodGet, "/api/v1/sync/active", env.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Job *models.SyncJob `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Job)
	assert.Equal(t, testSessionID, result.Job.SessionID)
}

func TestGetActiveSyncJob_StaleJobReapedInline(t *testing.T) {
	env := newTestEnv(t)
	env.store.seed(&models.SyncJob{
		SessionID: testSessionID,
		UserID:    testUserID,
		Phase:     models.PhaseEnriching,
		UpdatedAt: time.Now().Add(-time.Hour),
	})

	rec := env.do(t, http.MethodGet, "/api/v1/sync/active", env.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Job   *models.SyncJob `json:"job"`
		Stale *models.SyncJob `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Nil(t, result.Job)
	require.NotNil(t, result.Stale)
	assert.Equal(t, models.PhaseFailed, result.Stale.Phase)
}

func TestCancelSyncJob(t *testing.T) {
	env := newTestEnv(t)
	env.store.seed(&models.SyncJob{
		SessionID: testSessionID,
		UserID:    testUserID,
		Phase:     models.PhaseEnriching,
		Items: []models.SyncItem{
			{MFCID: "100", Status: models.ItemCompleted},
			{MFCID: "200", Status: models.ItemPending},
		},
	})

	rec := env.do(t, http.MethodPost, "/api/v1/sync/session/"+testSessionID+"/cancel", env.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var job models.SyncJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.PhaseCancelled, job.Phase)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, 1, job.Stats.Completed)

	assert.Equal(t, []string{testSessionID}, env.worker.cancelled)
}

func TestCancelSyncJob_TerminalJobConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.store.seed(&models.SyncJob{
		SessionID: testSessionID,
		UserID:    testUserID,
		Phase:     models.PhaseCompleted,
	})

	rec := env.do(t, http.MethodPost, "/api/v1/sync/session/"+testSessionID+"/cancel", env.userToken(t), nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, env.worker.cancelled)
}

func TestStreamSyncJob_SendsConnectedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.store.seed(&models.SyncJob{
		SessionID: testSessionID,
		UserID:    testUserID,
		Phase:     models.PhaseEnriching,
		UpdatedAt: time.Now(),
	})

	token := env.userToken(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/sync/session/"+testSessionID+"/events?access_token="+token, nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event:connected")
	assert.Contains(t, rec.Body.String(), testSessionID)
}

func TestStreamSyncJob_UnknownSessionIs404(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/sync/session/session-unknown1/events", env.userToken(t), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
