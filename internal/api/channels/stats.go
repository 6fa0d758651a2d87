package channels

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/api/response"
	"github.com/beaconhq/beacon/internal/models"
)

const (
	defaultStatsDays = 7
	maxStatsDays     = 90
)

var errDays = fmt.Errorf("days must be between 1 and %d", maxStatsDays)

// Stats returns event counts per day and per severity plus alert rule counts
// for a channel. The optional days parameter selects the window (default 7).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.load(w, r)
	if !ok {
		return
	}

	days, err := parseDays(r.URL.Query().Get("days"))
	if err != nil {
		response.JSONError(w, response.NewBadRequest(err.Error()))
		return
	}

	stats, err := h.collectStats(r, ch, days, time.Now().UTC())
	if err != nil {
		h.logger.Error("channel stats", zap.String("channel_id", ch.ID), zap.Error(err))
		response.JSONError(w, response.ErrInternalServer)
		return
	}
	response.OK(w, stats)
}

func (h *Handler) collectStats(r *http.Request, ch *models.Channel, days int, now time.Time) (*models.ChannelStats, error) {
	ctx := r.Context()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))

	perDay, err := h.events.CountByDay(ctx, ch.ID, since)
	if err != nil {
		return nil, err
	}
	bySeverity, err := h.events.CountBySeverity(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	rules, err := h.alerts.ListByChannel(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	stats := &models.ChannelStats{
		ChannelID:        ch.ID,
		Days:             days,
		EventsPerDay:     dayCounts(since, days, perDay),
		EventsBySeverity: bySeverity,
		Alerts:           len(rules),
	}
	for _, n := range bySeverity {
		stats.TotalEvents += n
	}
	for _, rule := range rules {
		if rule.Enabled {
			stats.EnabledAlerts++
		}
	}
	return stats, nil
}

// dayCounts lists every day from since onwards, oldest first, with zero for
// days that have no events.
func dayCounts(since time.Time, days int, counts map[string]int64) []models.DayCount {
	out := make([]models.DayCount, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, models.DayCount{Date: day, Count: counts[day]})
	}
	return out
}

func parseDays(raw string) (int, error) {
	if raw == "" {
		return defaultStatsDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > maxStatsDays {
		return 0, errDays
	}
	return days, nil
}
