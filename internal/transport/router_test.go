package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppodhajski/RenderingResourceManager/internal/adapter"
	"github.com/ppodhajski/RenderingResourceManager/internal/config"
	"github.com/ppodhajski/RenderingResourceManager/internal/engine"
	"github.com/ppodhajski/RenderingResourceManager/internal/logger"
	"github.com/ppodhajski/RenderingResourceManager/internal/policy"
	"github.com/ppodhajski/RenderingResourceManager/internal/sessionstore"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Initialize("error", false)
	os.Exit(m.Run())
}

type stubAdapter struct {
	jobID      string
	submitErr  error
	resolution adapter.HostResolution
}

func (s *stubAdapter) Submit(context.Context, adapter.SubmitRequest) (adapter.SubmitResult, error) {
	return adapter.SubmitResult{JobID: s.jobID}, s.submitErr
}
func (s *stubAdapter) ResolveHost(context.Context, string) (adapter.HostResolution, error) {
	return s.resolution, nil
}
func (s *stubAdapter) Cancel(context.Context, adapter.CancelRequest) error { return nil }
func (s *stubAdapter) Kill(context.Context, string) error                 { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, config.Store, policy.Store) {
	t.Helper()
	configs := config.NewMemoryStore()
	sessions := sessionstore.NewMemoryStore()
	policies := policy.NewMemoryStore(60)
	render := &stubAdapter{jobID: "job-1", resolution: adapter.HostResolution{State: adapter.HostScheduled}}
	eng := engine.New(configs, sessions, policies, render, engine.Options{RequestTimeout: time.Second})

	require.NoError(t, configs.Create(context.Background(), config.RendererConfig{
		ID:          "rtneuron",
		CommandLine: "rtneuron",
	}))

	return NewRouter(eng, configs, policies), configs, policies
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateSessionSchedulesAndReturns201(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/session/", map[string]string{
		"owner":            "alice",
		"configuration_id": "rtneuron",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp sessionstore.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, sessionstore.StatusScheduled, resp.Status)
}

func TestCreateSessionForbiddenWhenSuspended(t *testing.T) {
	router, _, policies := newTestRouter(t)
	_, err := policies.Suspend(context.Background())
	require.NoError(t, err)

	w := doRequest(router, http.MethodPost, "/session/", map[string]string{
		"owner":            "alice",
		"configuration_id": "rtneuron",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateSessionMissingFieldsIsBadRequest(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/session/", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryStatusUnknownSessionIs404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/session/?session_id=nope", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteThenQueryStatusIs404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	created := doRequest(router, http.MethodPost, "/session/", map[string]string{
		"owner":            "alice",
		"configuration_id": "rtneuron",
	})
	var resp sessionstore.Session
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	deleted := doRequest(router, http.MethodDelete, "/session/?session_id="+resp.ID, nil)
	assert.Equal(t, http.StatusOK, deleted.Code)

	gone := doRequest(router, http.MethodGet, "/session/?session_id="+resp.ID, nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestKeepAliveUnknownSessionIs404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPut, "/session/keep_alive?session_id=nope", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSessionsReturnsEmptyArray(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/sessions/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestAdminSuspendThenResume(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPut, "/admin/suspend", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	forbidden := doRequest(router, http.MethodPost, "/session/", map[string]string{
		"owner":            "alice",
		"configuration_id": "rtneuron",
	})
	assert.Equal(t, http.StatusForbidden, forbidden.Code)

	w = doRequest(router, http.MethodPut, "/admin/resume", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	allowed := doRequest(router, http.MethodPost, "/session/", map[string]string{
		"owner":            "alice",
		"configuration_id": "rtneuron",
	})
	assert.Equal(t, http.StatusCreated, allowed.Code)
}

func TestConfigCreateConflictThenList(t *testing.T) {
	router, _, _ := newTestRouter(t)

	dup := doRequest(router, http.MethodPost, "/config/", config.RendererConfig{ID: "rtneuron", CommandLine: "rtneuron"})
	assert.Equal(t, http.StatusConflict, dup.Code)

	created := doRequest(router, http.MethodPost, "/config/", config.RendererConfig{ID: "livre", CommandLine: "livre"})
	assert.Equal(t, http.StatusCreated, created.Code)

	listed := doRequest(router, http.MethodGet, "/config/", nil)
	assert.Equal(t, http.StatusOK, listed.Code)

	var configs []config.RendererConfig
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &configs))
	require.Len(t, configs, 2)
	assert.Equal(t, "livre", configs[0].ID)
	assert.Equal(t, "rtneuron", configs[1].ID)
}

func TestConfigDeleteUnknownIs404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodDelete, "/config/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
