package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func decode(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthAndLive(t *testing.T) {
	h := NewHandler("test")

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)

	rec = httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest("GET", "/health/live", nil))
	assert.Equal(t, "live", decode(t, rec).Status)
}

func TestReady(t *testing.T) {
	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("rules: []\n"), 0o644))

	h := NewHandler("test")
	h.RegisterChecker(NewStorageChecker(pingFunc(func(context.Context) error { return nil })))
	h.RegisterChecker(NewRulesFileChecker(rulesPath))

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, map[string]string{"sqlite": "ok", "rules_file": "ok"}, resp.Checks)

	require.NoError(t, os.Remove(rulesPath))
	h.RegisterChecker(NewStorageChecker(pingFunc(func(context.Context) error { return errors.New("locked") })))

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp = decode(t, rec)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "locked", resp.Checks["sqlite"])
	assert.NotEqual(t, "ok", resp.Checks["rules_file"])
}

func TestStorageCheckerNil(t *testing.T) {
	assert.Error(t, NewStorageChecker(nil).Check(context.Background()))
}
