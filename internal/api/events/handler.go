// Package events serves event ingestion and lookup.
//
// Creating an event stores it and dispatches it to the channel's alert rules
// exactly once. Notification requests raised during dispatch are queued on
// the request context and delivered after the response is written.
package events

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/api/response"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/storage"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Dispatcher sends a newly created event to its matching alert rules.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.Event) (int, error)
}

// Handler handles event endpoints.
type Handler struct {
	channels   storage.ChannelRepository
	events     storage.EventRepository
	history    storage.AlertHistoryRepository
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(store storage.Storage, dispatcher Dispatcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		channels:   store.Channels(),
		events:     store.Events(),
		history:    store.AlertHistory(),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// CreateRequest is the body of an event submission.
type CreateRequest struct {
	Type     string     `json:"type"`
	Severity string     `json:"severity"`
	User     string     `json:"user"`
	URL      string     `json:"url"`
	Message  string     `json:"message"`
	Expire   *time.Time `json:"expire,omitempty"`
}

// CreateResponse reports the stored event and how many senders were invoked.
type CreateResponse struct {
	Event      *models.Event `json:"event"`
	Dispatched int           `json:"dispatched"`
}

// Create stores an event and dispatches it.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "channelID")

	channel, err := h.channels.GetByID(ctx, channelID)
	if err != nil {
		h.logger.Error("create event: get channel", zap.String("channel_id", channelID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	if channel == nil {
		response.JSONError(w, response.NewNotFound("channel not found"))
		return
	}

	var req CreateRequest
	if err := response.Decode(r, &req); err != nil {
		response.JSONError(w, response.ErrInvalidBody)
		return
	}

	severity, err := models.ParseSeverity(req.Severity)
	if err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}

	event := models.NewEvent(*channel, strings.TrimSpace(req.Type), severity, req.Message)
	event.User = strings.TrimSpace(req.User)
	event.URL = strings.TrimSpace(req.URL)
	if req.Expire != nil {
		event.ExpireAt = req.Expire.UTC().Truncate(time.Second)
	}
	if err := event.Validate(); err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}

	if err := h.events.Create(ctx, event); err != nil {
		h.logger.Error("create event", zap.String("channel_id", channelID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}

	// The event is stored; a dispatch failure must not turn into a failed submission.
	dispatched, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		h.logger.Error("dispatch event",
			zap.String("event_id", event.ID),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}

	response.Created(w, CreateResponse{Event: event, Dispatched: dispatched})
}

// GetByID returns one event.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	event, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get event", zap.String("event_id", id), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	if event == nil {
		response.JSONError(w, response.NewNotFound("event not found"))
		return
	}
	response.OK(w, event)
}

// ListByChannel returns a channel's events, newest first.
func (h *Handler) ListByChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	limit, offset, err := pagination(r)
	if err != nil {
		response.JSONError(w, response.NewBadRequest(err.Error()))
		return
	}

	items, total, err := h.events.ListByChannel(r.Context(), channelID, limit, offset)
	if err != nil {
		h.logger.Error("list events", zap.String("channel_id", channelID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	if items == nil {
		items = []*models.Event{}
	}
	response.OK(w, response.PaginatedResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// History returns the dispatch records for one event.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	items, err := h.history.ListByEvent(r.Context(), id)
	if err != nil {
		h.logger.Error("list event history", zap.String("event_id", id), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	if items == nil {
		items = []*models.AlertHistory{}
	}
	response.OK(w, items)
}

func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultLimit, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, errInvalidParam("limit")
		}
		if limit > maxLimit {
			limit = maxLimit
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errInvalidParam("offset")
		}
	}
	return limit, offset, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string {
	return "invalid " + string(e) + " parameter"
}
