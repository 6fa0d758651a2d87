// Package senders lists the available alert sender types.
package senders

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/beaconhq/beacon/internal/api/response"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/notifier"
)

// Handler serves sender metadata.
type Handler struct {
	registry *notifier.Registry
}

// NewHandler creates a sender handler.
func NewHandler(registry *notifier.Registry) *Handler {
	return &Handler{registry: registry}
}

// SenderResponse describes one sender type and its settings form.
type SenderResponse struct {
	Type     string           `json:"type"`
	Label    string           `json:"label"`
	Defaults models.Settings  `json:"defaults"`
	Schema   []notifier.Field `json:"schema"`
}

func toResponse(def notifier.Definition) SenderResponse {
	schema := def.Schema
	if schema == nil {
		schema = []notifier.Field{}
	}
	return SenderResponse{
		Type:     def.Type,
		Label:    def.Label,
		Defaults: def.Defaults.Clone(),
		Schema:   schema,
	}
}

// List returns every registered sender type, sorted by key.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	defs := h.registry.Definitions()
	out := make([]SenderResponse, len(defs))
	for i, def := range defs {
		out[i] = toResponse(def)
	}
	response.OK(w, out)
}

// Get returns one sender type.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	def, ok := h.registry.Definition(chi.URLParam(r, "type"))
	if !ok {
		response.JSONError(w, response.NewNotFound("sender type not found"))
		return
	}
	response.OK(w, toResponse(def))
}
