package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/internal/alerting"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/notifier"
	"github.com/beaconhq/beacon/internal/storage"
)

type testServer struct {
	*Server
	store *storage.SQLiteStorage
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "beacon.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	registry := notifier.NewRegistry(notifier.Deps{
		Site:       notifier.Site{Name: "Beacon", BaseURL: "https://beacon.example.com"},
		SMSGateway: "https://sms.example.com/send",
	})
	dispatcher := alerting.NewDispatcher(store.Alerts(), registry, alerting.WithHistory(store.AlertHistory()))

	srv, err := New(&Config{Version: "test"}, Deps{
		Storage:    store,
		Dispatcher: dispatcher,
		Registry:   registry,
	})
	require.NoError(t, err)
	return &testServer{Server: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	envelope := struct {
		Error map[string]any `json:"error"`
	}{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Error
}

func (ts *testServer) createChannel(t *testing.T, name string) *models.Channel {
	t.Helper()
	rec := ts.do(t, "POST", "/api/v1/channels", map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ch models.Channel
	decodeData(t, rec, &ch)
	return &ch
}

type alertBody struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Enabled    bool            `json:"enabled"`
	Severity   []string        `json:"severity"`
	EventTypes []string        `json:"event_types"`
	Settings   models.Settings `json:"settings"`
}

func (ts *testServer) createAlert(t *testing.T, channelID string, body map[string]any) alertBody {
	t.Helper()
	rec := ts.do(t, "POST", "/api/v1/channels/"+channelID+"/alerts", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var a alertBody
	decodeData(t, rec, &a)
	return a
}

type hookRecorder struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	h.mu.Lock()
	h.bodies = append(h.bodies, body)
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (h *hookRecorder) received() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]any(nil), h.bodies...)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.Error(t, err)
	_, err = New(&Config{}, Deps{})
	assert.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)

	rec = ts.do(t, "GET", "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sqlite":"ok"`)

	rec = ts.do(t, "GET", "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChannelEndpoints(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/channels", map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/v1/channels", map[string]any{"name": "Shop", "url": "ftp://shop"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ch := ts.createChannel(t, "Shop")

	rec = ts.do(t, "GET", "/api/v1/channels/"+ch.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Channel
	decodeData(t, rec, &got)
	assert.Equal(t, "Shop", got.Name)

	rec = ts.do(t, "PUT", "/api/v1/channels/"+ch.ID, map[string]any{"name": "Store", "url": "https://store.example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/channels", nil)
	var list []models.Channel
	decodeData(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Store", list[0].Name)

	rec = ts.do(t, "DELETE", "/api/v1/channels/"+ch.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, "GET", "/api/v1/channels/"+ch.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEventDispatchesMatchingRules(t *testing.T) {
	ts := setupTestServer(t)
	hook := &hookRecorder{}
	target := httptest.NewServer(hook)
	defer target.Close()

	ch := ts.createChannel(t, "Shop")
	ts.createAlert(t, ch.ID, map[string]any{
		"name":        "Order errors",
		"type":        "webhook",
		"severity":    []string{"error", "critical"},
		"event_types": []string{"order*"},
		"settings":    map[string]any{"endpoint": target.URL},
	})
	ts.createAlert(t, ch.ID, map[string]any{
		"name":     "Notices",
		"type":     "webhook",
		"severity": []string{"notice"},
		"settings": map[string]any{"endpoint": target.URL},
	})

	rec := ts.do(t, "POST", "/api/v1/channels/"+ch.ID+"/events", map[string]any{
		"type":     "order_failed",
		"severity": "error",
		"user":     "checkout",
		"message":  "payment declined",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Event      models.Event `json:"event"`
		Dispatched int          `json:"dispatched"`
	}
	decodeData(t, rec, &created)
	assert.Equal(t, 1, created.Dispatched)
	assert.Equal(t, models.SeverityError, created.Event.Severity)

	// Without a drainer the queue is flushed before the handler chain returns.
	bodies := hook.received()
	require.Len(t, bodies, 1)
	assert.Equal(t, created.Event.ID, bodies[0]["event"])
	assert.Equal(t, "Shop", bodies[0]["channelName"])
	assert.Nil(t, bodies[0]["url"])

	rec = ts.do(t, "GET", "/api/v1/events/"+created.Event.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/events/"+created.Event.ID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.AlertHistory
	decodeData(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, models.DispatchSent, history[0].Status)

	rec = ts.do(t, "GET", "/api/v1/channels/"+ch.ID+"/events?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestCreateEventWithoutMatchesSendsNothing(t *testing.T) {
	ts := setupTestServer(t)
	hook := &hookRecorder{}
	target := httptest.NewServer(hook)
	defer target.Close()

	ch := ts.createChannel(t, "Shop")
	ts.createAlert(t, ch.ID, map[string]any{
		"name":     "Critical only",
		"type":     "webhook",
		"severity": []string{"critical"},
		"settings": map[string]any{"endpoint": target.URL},
	})

	rec := ts.do(t, "POST", "/api/v1/channels/"+ch.ID+"/events", map[string]any{"type": "x", "severity": "info"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dispatched":0`)
	assert.Empty(t, hook.received())
}

func TestCreateEventValidation(t *testing.T) {
	ts := setupTestServer(t)
	ch := ts.createChannel(t, "Shop")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown channel", "/api/v1/channels/missing/events", map[string]any{"severity": "info"}, http.StatusNotFound},
		{"bad severity", "/api/v1/channels/" + ch.ID + "/events", map[string]any{"severity": "loud"}, http.StatusBadRequest},
		{"unknown field", "/api/v1/channels/" + ch.ID + "/events", map[string]any{"severity": "info", "level": 3}, http.StatusBadRequest},
		{"expire in past", "/api/v1/channels/" + ch.ID + "/events", map[string]any{"severity": "info", "expire": "2001-01-01T00:00:00Z"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, "POST", tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAlertValidation(t *testing.T) {
	ts := setupTestServer(t)
	ch := ts.createChannel(t, "Shop")
	path := "/api/v1/channels/" + ch.ID + "/alerts"

	rec := ts.do(t, "POST", path, map[string]any{"name": "A", "type": "pager", "severity": []string{"error"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec)["message"], "unknown alert type")

	rec = ts.do(t, "POST", path, map[string]any{
		"name":     "A",
		"type":     "slack",
		"severity": []string{"error"},
		"settings": map[string]any{"endpoint": "https://example.com/hook", "channel": "general"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields, _ := decodeError(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "endpoint")
	assert.Contains(t, fields, "channel")

	rec = ts.do(t, "POST", path, map[string]any{"name": "A", "type": "webhook", "severity": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertTypeSwitchKeepsSettings(t *testing.T) {
	ts := setupTestServer(t)
	ch := ts.createChannel(t, "Shop")

	alert := ts.createAlert(t, ch.ID, map[string]any{
		"name":     "Errors",
		"type":     "webhook",
		"severity": []string{"error"},
		"settings": map[string]any{"endpoint": "https://hooks.example.com/a", "extra": "dropped"},
	})
	assert.Equal(t, models.Settings{"endpoint": "https://hooks.example.com/a"}, alert.Settings)

	rec := ts.do(t, "PUT", "/api/v1/alerts/"+alert.ID, map[string]any{
		"type": "text_message",
		"settings": map[string]any{
			"number": "+1 (555) 010-9999",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated alertBody
	decodeData(t, rec, &updated)
	assert.Equal(t, "text_message", updated.Type)
	assert.Equal(t, "+15550109999", updated.Settings["number"])
	assert.Equal(t, "https://sms.example.com/send", updated.Settings["endpoint"])

	rec = ts.do(t, "PUT", "/api/v1/alerts/"+alert.ID, map[string]any{"type": "webhook"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &updated)
	assert.Equal(t, "https://hooks.example.com/a", updated.Settings["endpoint"])

	stored, err := ts.store.Alerts().GetByID(context.Background(), alert.ID)
	require.NoError(t, err)
	sms, err := alerting.DecodeSettings([]byte(stored.Settings), "text_message")
	require.NoError(t, err)
	assert.Equal(t, "+15550109999", sms["number"])

	// Switching to a type never configured needs settings.
	rec = ts.do(t, "PUT", "/api/v1/alerts/"+alert.ID, map[string]any{"type": "slack"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	ch := ts.createChannel(t, "Shop")
	alert := ts.createAlert(t, ch.ID, map[string]any{
		"name":     "Errors",
		"type":     "email",
		"severity": []string{"error", "error", "critical"},
		"settings": map[string]any{"email": "ops@example.com"},
	})
	assert.True(t, alert.Enabled)
	assert.Len(t, alert.Severity, 2)

	rec := ts.do(t, "POST", "/api/v1/alerts/"+alert.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got alertBody
	decodeData(t, rec, &got)
	assert.False(t, got.Enabled)

	rules, err := ts.store.Alerts().FindEnabledRules(context.Background(), ch.ID, models.SeverityError)
	require.NoError(t, err)
	assert.Empty(t, rules)

	rec = ts.do(t, "POST", "/api/v1/alerts/"+alert.ID+"/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/channels/"+ch.ID+"/alerts", nil)
	var list []alertBody
	decodeData(t, rec, &list)
	require.Len(t, list, 1)
	assert.True(t, list[0].Enabled)
	assert.Equal(t, "ops@example.com", list[0].Settings["email"])

	rec = ts.do(t, "GET", "/api/v1/alerts/"+alert.ID+"/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "DELETE", "/api/v1/alerts/"+alert.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, "GET", "/api/v1/alerts/"+alert.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendersEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, "GET", "/api/v1/senders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"webhook"`)
}

func TestPurge(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	ch := ts.createChannel(t, "Shop")

	fresh := models.NewEvent(*ch, "x", models.SeverityInfo, "fresh")
	require.NoError(t, ts.store.Events().Create(ctx, fresh))
	stale := models.NewEvent(*ch, "x", models.SeverityInfo, "stale")
	stale.CreatedAt = stale.CreatedAt.Add(-20 * 24 * time.Hour)
	stale.ExpireAt = stale.CreatedAt.Add(time.Hour)
	require.NoError(t, ts.store.Events().Create(ctx, stale))

	ts.Purge(ctx, time.Now())

	got, err := ts.store.Events().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = ts.store.Events().GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestChannelNameRejectsControlCharacters(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/channels", map[string]any{"name": "Shop\r\nBcc: attacker@example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "control characters")

	ch := ts.createChannel(t, "Shop")
	rec = ts.do(t, "PUT", "/api/v1/channels/"+ch.ID, map[string]any{"name": "Shop\nX-Injected: 1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChannelStats(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	ch := ts.createChannel(t, "Shop")
	other := ts.createChannel(t, "Blog")

	now := time.Now().UTC()
	add := func(c *models.Channel, sev models.Severity, age time.Duration) {
		ev := models.NewEvent(*c, "order", sev, "m")
		ev.CreatedAt = now.Add(-age)
		ev.ExpireAt = now.Add(time.Hour)
		require.NoError(t, ts.store.Events().Create(ctx, ev))
	}
	add(ch, models.SeverityInfo, 0)
	add(ch, models.SeverityInfo, time.Minute)
	add(ch, models.SeverityError, 48*time.Hour)
	add(ch, models.SeverityWarning, 10*24*time.Hour)
	add(other, models.SeverityError, 0)

	ts.createAlert(t, ch.ID, map[string]any{
		"name":     "Errors",
		"type":     "webhook",
		"severity": []string{"error"},
		"settings": map[string]any{"endpoint": "https://hooks.example.com/in"},
	})
	disabled := ts.createAlert(t, ch.ID, map[string]any{
		"name":     "Notices",
		"type":     "webhook",
		"severity": []string{"notice"},
		"settings": map[string]any{"endpoint": "https://hooks.example.com/in"},
	})
	rec := ts.do(t, "POST", "/api/v1/alerts/"+disabled.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/channels/"+ch.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats models.ChannelStats
	decodeData(t, rec, &stats)

	assert.Equal(t, ch.ID, stats.ChannelID)
	assert.Equal(t, 7, stats.Days)
	assert.EqualValues(t, 4, stats.TotalEvents)
	assert.Equal(t, map[models.Severity]int64{
		models.SeverityInfo:    2,
		models.SeverityError:   1,
		models.SeverityWarning: 1,
	}, stats.EventsBySeverity)
	assert.Equal(t, 2, stats.Alerts)
	assert.Equal(t, 1, stats.EnabledAlerts)

	require.Len(t, stats.EventsPerDay, 7)
	today := stats.EventsPerDay[6]
	assert.Equal(t, now.Format(time.DateOnly), today.Date)
	assert.EqualValues(t, 2, today.Count)
	assert.Equal(t, now.AddDate(0, 0, -2).Format(time.DateOnly), stats.EventsPerDay[4].Date)
	assert.EqualValues(t, 1, stats.EventsPerDay[4].Count)
	var windowTotal int64
	for _, d := range stats.EventsPerDay {
		windowTotal += d.Count
	}
	assert.EqualValues(t, 3, windowTotal)

	rec = ts.do(t, "GET", "/api/v1/channels/"+ch.ID+"/stats?days=30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &stats)
	assert.Len(t, stats.EventsPerDay, 30)

	rec = ts.do(t, "GET", "/api/v1/channels/"+ch.ID+"/stats?days=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "GET", "/api/v1/channels/missing/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
