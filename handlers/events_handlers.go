package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"utmtracker/api/models"
	"utmtracker/api/store"
	"utmtracker/api/utils"
)

const (
	maxPageLimit = 500
	maxPage      = 1_000_000
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type EventsHandlers struct {
	Events store.EventRepository
	logger zerolog.Logger
}

func NewEventsHandlers(events store.EventRepository, logger zerolog.Logger) *EventsHandlers {
	return &EventsHandlers{
		Events: events,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

type eventsQuery struct {
	CampaignID string `form:"campaign_id"`
	UTMSource  string `form:"utm_source"`
	DateFrom   string `form:"date_from"`
	DateTo     string `form:"date_to"`
	Page       int    `form:"page,default=1" binding:"min=1,max=1000000"`
	Limit      int    `form:"limit,default=25" binding:"min=1"`
}

// ListEvents returns one page of stored events, newest first.
func (h *EventsHandlers) ListEvents(c *gin.Context) {
	var q eventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid query parameters", "details": err.Error()})
		return
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}

	filter := models.EventFilter{
		CampaignID: q.CampaignID,
		UTMSource:  q.UTMSource,
	}
	if from, ok := parseDate(q.DateFrom); ok {
		filter.From = &from
	}
	if to, ok := parseDate(q.DateTo); ok {
		// date_to names the last day included.
		to = to.Add(24 * time.Hour)
		filter.To = &to
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	total, err := h.Events.Count(ctx, filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to count events")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	events, err := h.Events.Find(ctx, filter, models.FindOptions{
		Limit: q.Limit,
		Skip:  skipFor(q.Page, q.Limit),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to find events")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"events":  events,
		"pagination": models.Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: utils.TotalPages(total, q.Limit),
		},
	})
}

// ListFilters returns the campaign ids and sources usable as ListEvents filters.
func (h *EventsHandlers) ListFilters(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	campaignIDs, err := h.Events.Distinct(ctx, "campaign_id")
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list campaign ids")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	sources, err := h.Events.Distinct(ctx, "utm_source")
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list utm sources")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"campaign_ids": campaignIDs,
		"utm_sources":  sources,
	})
}

func (h *EventsHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": h.Events.Name()})
}

// parseDate accepts RFC 3339 timestamps, zone-less timestamps and bare dates.
// Zone-less values are read as UTC. Unparseable input is ignored.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// skipFor returns the offset of page, clamping page to maxPage.
func skipFor(page, limit int) int {
	if page > maxPage {
		page = maxPage
	}
	return (page - 1) * limit
}
