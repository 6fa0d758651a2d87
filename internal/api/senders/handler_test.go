package senders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/internal/notifier"
)

func newRouter() http.Handler {
	h := NewHandler(notifier.NewRegistry(notifier.Deps{SMSGateway: "https://sms.example.com/send"}))
	r := chi.NewRouter()
	r.Get("/senders", h.List)
	r.Get("/senders/{type}", h.Get)
	return r
}

func TestList(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest("GET", "/senders", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []SenderResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	types := make([]string, len(body.Data))
	for i, s := range body.Data {
		types[i] = s.Type
		assert.NotEmpty(t, s.Label)
	}
	assert.Equal(t, []string{"email", "slack", "text_message", "webhook"}, types)
}

func TestGet(t *testing.T) {
	router := newRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/senders/text_message", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data SenderResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "https://sms.example.com/send", body.Data.Defaults["endpoint"])
	assert.NotEmpty(t, body.Data.Schema)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/senders/pager", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
