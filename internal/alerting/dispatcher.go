// Package alerting selects the alert rules an event triggers and hands the
// event to each rule's sender.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/metrics"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/notifier"
)

// RuleRepository loads the enabled rules of a channel whose severity set
// contains the given severity.
type RuleRepository interface {
	FindEnabledRules(ctx context.Context, channelID string, severity models.Severity) ([]*models.AlertRule, error)
}

// SenderFactory builds senders from a type key and settings.
// *notifier.Registry implements it.
type SenderFactory interface {
	Create(typeKey string, override models.Settings) (notifier.Sender, error)
}

// HistoryRecorder stores one record per rule handled during dispatch.
type HistoryRecorder interface {
	RecordDispatch(ctx context.Context, entry *models.AlertHistory) error
}

// Dispatcher routes events to the senders of matching alert rules.
type Dispatcher struct {
	rules   RuleRepository
	senders SenderFactory
	matcher *Matcher
	history HistoryRecorder
	logger  *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithHistory records the outcome of every matched rule.
func WithHistory(h HistoryRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.history = h
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(rules RuleRepository, senders SenderFactory, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		rules:   rules,
		senders: senders,
		matcher: NewMatcher(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends event to every matching rule's sender and returns the number
// of rules whose sender was invoked. Zero matches is not an error. Rules with
// an unknown type are skipped and not counted. Sender errors, including
// invalid stored settings, are logged and still counted. Only a repository
// failure is returned.
//
// Dispatch must be called once per event, when the event is created.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event) (int, error) {
	metrics.EventsDispatched.Inc()

	rules, err := d.rules.FindEnabledRules(ctx, event.Channel.ID, event.Severity)
	if err != nil {
		return 0, fmt.Errorf("find alert rules: %w", err)
	}

	matched := d.matcher.MatchingRules(event, rules)
	if len(matched) == 0 {
		return 0, nil
	}

	dispatched := 0
	for _, rule := range matched {
		if d.dispatchRule(ctx, event, rule) {
			dispatched++
		}
	}

	d.logger.Debug("event dispatched",
		zap.String("event_id", event.ID),
		zap.String("channel_id", event.Channel.ID),
		zap.Int("candidates", len(rules)),
		zap.Int("dispatched", dispatched),
	)
	return dispatched, nil
}

// dispatchRule reports whether the rule's sender was invoked.
func (d *Dispatcher) dispatchRule(ctx context.Context, event *models.Event, rule *models.AlertRule) bool {
	log := d.logger.With(
		zap.String("event_id", event.ID),
		zap.String("alert_id", rule.ID),
		zap.String("type", rule.Type),
	)

	settings, err := DecodeSettings([]byte(rule.Settings), rule.Type)
	if err != nil {
		log.Warn("alert settings unreadable, using defaults", zap.Error(err))
	}

	sender, err := d.senders.Create(rule.Type, settings)
	if err != nil {
		reason := "create"
		if errors.Is(err, notifier.ErrUnknownSenderType) {
			reason = "unknown_type"
		}
		metrics.RulesSkipped.WithLabelValues(reason).Inc()
		log.Warn("alert rule skipped", zap.String("reason", reason), zap.Error(err))
		d.record(ctx, event, rule, models.DispatchSkipped, err)
		return false
	}

	metrics.RulesMatched.WithLabelValues(rule.Type).Inc()
	if err := sender.Send(ctx, event); err != nil {
		metrics.SendErrors.WithLabelValues(rule.Type).Inc()
		log.Warn("alert send failed", zap.Error(err))
		d.record(ctx, event, rule, models.DispatchFailed, err)
		return true
	}

	d.record(ctx, event, rule, models.DispatchSent, nil)
	return true
}

func (d *Dispatcher) record(ctx context.Context, event *models.Event, rule *models.AlertRule, status models.DispatchStatus, cause error) {
	if d.history == nil {
		return
	}
	entry := &models.AlertHistory{
		ID:        uuid.New().String(),
		AlertID:   rule.ID,
		AlertName: rule.Name,
		EventID:   event.ID,
		ChannelID: event.Channel.ID,
		Type:      rule.Type,
		Severity:  event.Severity,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if cause != nil {
		entry.Detail = cause.Error()
	}
	if err := d.history.RecordDispatch(ctx, entry); err != nil {
		d.logger.Warn("failed to record alert history",
			zap.String("alert_id", rule.ID),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}
