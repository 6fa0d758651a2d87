// Package channels serves the channel endpoints.
package channels

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/api/response"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/storage"
)

// Handler handles channel endpoints.
type Handler struct {
	channels storage.ChannelRepository
	events   storage.EventRepository
	alerts   storage.AlertRepository
	logger   *zap.Logger
}

// NewHandler creates a channel handler.
func NewHandler(store storage.Storage, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		channels: store.Channels(),
		events:   store.Events(),
		alerts:   store.Alerts(),
		logger:   logger,
	}
}

// CreateRequest is the body of POST /channels.
type CreateRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// List returns all channels.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.channels.List(r.Context())
	if err != nil {
		h.logger.Error("list channels", zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	if list == nil {
		list = []*models.Channel{}
	}
	response.OK(w, list)
}

// Create creates a channel.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := response.Decode(r, &req); err != nil {
		response.JSONError(w, response.ErrInvalidBody)
		return
	}
	if err := ValidateName(req.Name); err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}
	if err := ValidateURL(req.URL); err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}

	ch := models.NewChannel(strings.TrimSpace(req.Name))
	ch.URL = strings.TrimSpace(req.URL)
	ch.Description = strings.TrimSpace(req.Description)

	if err := h.channels.Create(r.Context(), ch); err != nil {
		h.logger.Error("create channel", zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}

	h.logger.Info("channel created", zap.String("channel_id", ch.ID), zap.String("name", ch.Name))
	response.Created(w, ch)
}

// GetByID returns a channel by ID.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.load(w, r)
	if !ok {
		return
	}
	response.OK(w, ch)
}

// Update replaces a channel's name, URL and description.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.load(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if err := response.Decode(r, &req); err != nil {
		response.JSONError(w, response.ErrInvalidBody)
		return
	}
	if err := ValidateName(req.Name); err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}
	if err := ValidateURL(req.URL); err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}

	ch.Name = strings.TrimSpace(req.Name)
	ch.URL = strings.TrimSpace(req.URL)
	ch.Description = strings.TrimSpace(req.Description)
	ch.UpdatedAt = time.Now()

	if err := h.channels.Update(r.Context(), ch); err != nil {
		h.logger.Error("update channel", zap.String("channel_id", ch.ID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	response.OK(w, ch)
}

// Delete removes a channel with its events and alert rules.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.channels.Delete(r.Context(), ch.ID); err != nil {
		h.logger.Error("delete channel", zap.String("channel_id", ch.ID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	h.logger.Info("channel deleted", zap.String("channel_id", ch.ID))
	response.NoContent(w)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.Channel, bool) {
	id := chi.URLParam(r, "channelID")
	ch, err := h.channels.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get channel", zap.String("channel_id", id), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return nil, false
	}
	if ch == nil {
		response.JSONError(w, response.NewNotFound("channel not found"))
		return nil, false
	}
	return ch, true
}
