package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"utmtracker/api/metrics"
	"utmtracker/api/models"
	"utmtracker/api/store"
	"utmtracker/api/tracking"
)

var (
	errInvalidJSON = errors.New("invalid JSON body")
	errInvalidForm = errors.New("invalid form body")
)

type TrackHandlers struct {
	Limiter      *tracking.RateLimiter
	Normalizer   *tracking.Normalizer
	Events       store.EventRepository
	Metrics      *metrics.Metrics
	WriteTimeout time.Duration
	logger       zerolog.Logger
}

func NewTrackHandlers(
	limiter *tracking.RateLimiter,
	normalizer *tracking.Normalizer,
	events store.EventRepository,
	m *metrics.Metrics,
	writeTimeout time.Duration,
	logger zerolog.Logger,
) *TrackHandlers {
	return &TrackHandlers{
		Limiter:      limiter,
		Normalizer:   normalizer,
		Events:       events,
		Metrics:      m,
		WriteTimeout: writeTimeout,
		logger:       logger.With().Str("component", "track").Logger(),
	}
}

// Track ingests one click-tracking hit sent as a query string, a JSON body or
// a form body.
func (h *TrackHandlers) Track(c *gin.Context) {
	clientKey := tracking.ClientIP(c.Request.Header, c.Request.RemoteAddr)

	decision := h.Limiter.Check(clientKey)
	setRateLimitHeaders(c, decision)
	if decision.Limited {
		h.Metrics.EventsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		h.logger.Warn().Str("client", clientKey).Msg("rate limit exceeded")
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(decision.ResetAt)))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"status":      "error",
			"message":     decision.Err().Error(),
			"retry_after": float64(decision.ResetAt.UnixNano()) / 1e9,
		})
		return
	}

	params, err := requestParams(c)
	if err != nil {
		h.Metrics.EventsTotal.WithLabelValues(metrics.OutcomeBadRequest).Inc()
		message := "Invalid JSON body"
		if errors.Is(err, errInvalidForm) {
			message = "Invalid form body"
		}
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": message})
		return
	}

	event, err := h.Normalizer.Build(tracking.RawRequest{
		Params:     params,
		Header:     c.Request.Header,
		RemoteAddr: c.Request.RemoteAddr,
		Host:       c.Request.Host,
		FullURL:    fullURL(c.Request),
	}, time.Now())
	if err != nil {
		var verr *tracking.ValidationError
		if errors.As(err, &verr) {
			h.Metrics.EventsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": verr.Error()})
			return
		}
		h.logger.Error().Err(err).Msg("failed to build tracking event")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Internal server error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.WriteTimeout)
	defer cancel()

	start := time.Now()
	id, err := h.Events.Insert(ctx, event)
	h.Metrics.StoreWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.Metrics.EventsTotal.WithLabelValues(metrics.OutcomeStorageError).Inc()
		h.logger.Error().
			Err(err).
			Str("backend", h.Events.Name()).
			Str("session_id", event.SessionID).
			Str("utm_campaign", event.UTMCampaign).
			Msg("failed to store tracking event")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Internal server error"})
		return
	}

	h.Metrics.EventsTotal.WithLabelValues(metrics.OutcomeAccepted).Inc()
	h.Metrics.PlatformTotal.WithLabelValues(event.PlatformDetected).Inc()
	h.logger.Debug().
		Str("id", id).
		Str("session_id", event.SessionID).
		Str("platform", event.PlatformDetected).
		Str("event_type", event.EventType).
		Msg("tracking event stored")

	c.JSON(http.StatusOK, gin.H{"status": "ok", "id": id})
}

// requestParams collects the hit parameters. GET uses the query string. POST
// prefers a JSON object body; any other POST body is read as a form merged
// with the query string, where query values win.
func requestParams(c *gin.Context) (models.Params, error) {
	params := models.Params{}
	if c.Request.Method != http.MethodPost {
		for key, values := range c.Request.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		return params, nil
	}

	if isJSON(c.ContentType()) {
		dec := json.NewDecoder(c.Request.Body)
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return nil, errInvalidJSON
		}
		if params == nil {
			return nil, errInvalidJSON
		}
		return params, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, errInvalidForm
	}
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params, nil
}

// isJSON accepts application/json and structured syntax types such as
// application/ld+json.
func isJSON(mime string) bool {
	return mime == gin.MIMEJSON ||
		(strings.HasPrefix(mime, "application/") && strings.HasSuffix(mime, "+json"))
}

func fullURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.RequestURI
}

func setRateLimitHeaders(c *gin.Context, d tracking.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func retryAfterSeconds(resetAt time.Time) int {
	secs := int(math.Ceil(time.Until(resetAt).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
