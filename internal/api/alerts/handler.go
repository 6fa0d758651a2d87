// Package alerts serves the alert rule endpoints.
package alerts

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/alerting"
	"github.com/beaconhq/beacon/internal/api/response"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/notifier"
	"github.com/beaconhq/beacon/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// SenderRegistry validates and normalises sender settings.
type SenderRegistry interface {
	ValidateSettings(typeKey string, values models.Settings) (notifier.ValidationErrors, error)
	SubmitSettings(typeKey string, values models.Settings) (models.Settings, error)
}

// Handler handles alert rule endpoints.
type Handler struct {
	channels storage.ChannelRepository
	alerts   storage.AlertRepository
	history  storage.AlertHistoryRepository
	registry SenderRegistry
	logger   *zap.Logger
}

// NewHandler creates an alert handler.
func NewHandler(store storage.Storage, registry SenderRegistry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		channels: store.Channels(),
		alerts:   store.Alerts(),
		history:  store.AlertHistory(),
		registry: registry,
		logger:   logger,
	}
}

// AlertResponse is a rule with the settings of its current sender type.
type AlertResponse struct {
	*models.AlertRule
	Settings models.Settings `json:"settings"`
}

// CreateRequest is the body of POST /channels/{channelID}/alerts.
type CreateRequest struct {
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Enabled    *bool           `json:"enabled,omitempty"`
	Severity   []string        `json:"severity"`
	EventTypes []string        `json:"event_types,omitempty"`
	Settings   models.Settings `json:"settings,omitempty"`
}

// UpdateRequest is the body of PUT /alerts/{id}. Omitted fields keep
// their stored values.
type UpdateRequest struct {
	Name       *string         `json:"name,omitempty"`
	Type       *string         `json:"type,omitempty"`
	Enabled    *bool           `json:"enabled,omitempty"`
	Severity   []string        `json:"severity,omitempty"`
	EventTypes *[]string       `json:"event_types,omitempty"`
	Settings   models.Settings `json:"settings,omitempty"`
}

// ListByChannel returns a channel's alert rules.
func (h *Handler) ListByChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	rules, err := h.alerts.ListByChannel(r.Context(), channelID)
	if err != nil {
		h.logger.Error("list alerts", zap.String("channel_id", channelID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}

	resp := make([]*AlertResponse, len(rules))
	for i, rule := range rules {
		resp[i] = h.toResponse(rule)
	}
	response.OK(w, resp)
}

// Create adds an alert rule to a channel.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "channelID")

	channel, err := h.channels.GetByID(ctx, channelID)
	if err != nil {
		h.logger.Error("create alert: get channel", zap.String("channel_id", channelID), zap.Error(err))
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
	if err := ValidateName(req.Name); err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}
	severities, err := ParseSeverities(req.Severity)
	if err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}

	typeKey := strings.TrimSpace(req.Type)
	blob, apiErr := h.encodeSettings(nil, typeKey, req.Settings)
	if apiErr != nil {
		response.JSONError(w, apiErr)
		return
	}

	rule := models.NewAlertRule(strings.TrimSpace(req.Name), channel.ID, typeKey, severities...)
	rule.Settings = string(blob)
	rule.EventTypes = CleanEventTypes(req.EventTypes)
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if err := rule.Validate(); err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}

	if err := h.alerts.Create(ctx, rule); err != nil {
		h.logger.Error("create alert", zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}

	h.logger.Info("alert created",
		zap.String("alert_id", rule.ID),
		zap.String("name", rule.Name),
		zap.String("type", rule.Type),
	)
	response.Created(w, h.toResponse(rule))
}

// GetByID returns an alert rule.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.load(w, r)
	if !ok {
		return
	}
	response.OK(w, h.toResponse(rule))
}

// Update changes an alert rule. When the sender type changes, settings for
// the previous type stay in the stored blob so switching back restores them.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.load(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := response.Decode(r, &req); err != nil {
		response.JSONError(w, response.ErrInvalidBody)
		return
	}

	if req.Name != nil {
		if err := ValidateName(*req.Name); err != nil {
			response.JSONError(w, response.NewValidationError(err.Error()))
			return
		}
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.Severity != nil {
		severities, err := ParseSeverities(req.Severity)
		if err != nil {
			response.JSONError(w, response.NewValidationError(err.Error()))
			return
		}
		rule.Severities = severities
	}
	if req.EventTypes != nil {
		rule.EventTypes = CleanEventTypes(*req.EventTypes)
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	typeKey := rule.Type
	if req.Type != nil {
		typeKey = strings.TrimSpace(*req.Type)
	}
	if req.Settings != nil || typeKey != rule.Type {
		values := req.Settings
		if values == nil {
			// Switching type without new settings reuses whatever the
			// rule stored for that type before.
			stored, err := alerting.DecodeSettings([]byte(rule.Settings), typeKey)
			if err != nil {
				h.logger.Warn("stored alert settings unreadable", zap.String("alert_id", rule.ID), zap.Error(err))
			}
			values = stored
		}
		blob, apiErr := h.encodeSettings([]byte(rule.Settings), typeKey, values)
		if apiErr != nil {
			response.JSONError(w, apiErr)
			return
		}
		rule.Settings = string(blob)
		rule.Type = typeKey
	}

	if err := rule.Validate(); err != nil {
		response.JSONError(w, response.NewValidationError(err.Error()))
		return
	}
	rule.UpdatedAt = time.Now()

	if err := h.alerts.Update(r.Context(), rule); err != nil {
		h.logger.Error("update alert", zap.String("alert_id", rule.ID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	response.OK(w, h.toResponse(rule))
}

// Enable turns an alert rule on.
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// Disable turns an alert rule off.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	rule, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.alerts.SetEnabled(r.Context(), rule.ID, enabled); err != nil {
		h.logger.Error("set alert enabled", zap.String("alert_id", rule.ID), zap.Bool("enabled", enabled), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	rule.Enabled = enabled
	response.OK(w, h.toResponse(rule))
}

// Delete removes an alert rule.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.alerts.Delete(r.Context(), rule.ID); err != nil {
		h.logger.Error("delete alert", zap.String("alert_id", rule.ID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	h.logger.Info("alert deleted", zap.String("alert_id", rule.ID))
	response.NoContent(w)
}

// History returns the dispatch records of an alert rule, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.load(w, r)
	if !ok {
		return
	}
	limit, offset := historyPage(r)
	items, total, err := h.history.ListByAlert(r.Context(), rule.ID, limit, offset)
	if err != nil {
		h.logger.Error("list alert history", zap.String("alert_id", rule.ID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	if items == nil {
		items = []*models.AlertHistory{}
	}
	response.OK(w, response.PaginatedResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// encodeSettings validates values for typeKey, normalises them and writes
// them into existing.
func (h *Handler) encodeSettings(existing []byte, typeKey string, values models.Settings) ([]byte, *response.Error) {
	if typeKey == "" {
		return nil, response.NewValidationError("type is required")
	}
	problems, err := h.registry.ValidateSettings(typeKey, values)
	if errors.Is(err, notifier.ErrUnknownSenderType) {
		return nil, response.NewValidationError("unknown alert type: " + typeKey)
	}
	if err != nil {
		h.logger.Error("validate alert settings", zap.String("type", typeKey), zap.Error(err))
		return nil, response.ErrInternalServer
	}
	if len(problems) > 0 {
		fields := make(map[string]string, len(problems))
		for _, p := range problems {
			fields[p.Field] = p.Message
		}
		return nil, response.NewFieldErrors("invalid settings", fields)
	}

	submitted, err := h.registry.SubmitSettings(typeKey, values)
	if err != nil {
		h.logger.Error("submit alert settings", zap.String("type", typeKey), zap.Error(err))
		return nil, response.ErrInternalServer
	}
	blob, err := alerting.EncodeSettings(existing, typeKey, submitted)
	if err != nil {
		h.logger.Error("encode alert settings", zap.String("type", typeKey), zap.Error(err))
		return nil, response.ErrInternalServer
	}
	return blob, nil
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.AlertRule, bool) {
	id := chi.URLParam(r, "id")
	rule, err := h.alerts.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get alert", zap.String("alert_id", id), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return nil, false
	}
	if rule == nil {
		response.JSONError(w, response.NewNotFound("alert not found"))
		return nil, false
	}
	return rule, true
}

func (h *Handler) toResponse(rule *models.AlertRule) *AlertResponse {
	settings, err := alerting.DecodeSettings([]byte(rule.Settings), rule.Type)
	if err != nil {
		h.logger.Warn("stored alert settings unreadable", zap.String("alert_id", rule.ID), zap.Error(err))
	}
	return &AlertResponse{AlertRule: rule, Settings: settings}
}

func historyPage(r *http.Request) (limit, offset int) {
	limit, offset = defaultHistoryLimit, 0
	q := r.URL.Query()
	if n, err := parsePositive(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, maxHistoryLimit)
	}
	if n, err := parsePositive(q.Get("offset")); err == nil {
		offset = n
	}
	return limit, offset
}

func parsePositive(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	return n, nil
}
