package tracking

import (
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"utmtracker/api/models"
	"utmtracker/api/utils"
)

const defaultEventType = "page_view"

// RequiredParams must be present and non-empty on every hit.
var RequiredParams = []string{"utm_source", "utm_medium", "utm_campaign"}

// RawRequest is the transport-level view of a /track hit.
type RawRequest struct {
	Params     models.Params
	Header     http.Header
	RemoteAddr string
	Host       string
	FullURL    string
}

// Normalizer turns raw hits into canonical TrackingEvents.
type Normalizer struct {
	sessions *SessionTracker
	logger   zerolog.Logger
}

func NewNormalizer(sessions *SessionTracker, logger zerolog.Logger) *Normalizer {
	return &Normalizer{sessions: sessions, logger: logger}
}

// Build validates the hit and assembles its TrackingEvent. A hit missing a
// required UTM parameter fails with *ValidationError before any session is
// touched.
func (n *Normalizer) Build(req RawRequest, now time.Time) (*models.TrackingEvent, error) {
	if missing := missingRequired(req.Params); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	p := req.Params
	if p == nil {
		p = models.Params{}
	}

	sessionID, _ := paramString(p, "session_id")
	sessionID = n.sessions.Resolve(sessionID, now)

	referrer := optional(p, "referrer_url")
	if ref := req.Header.Get("Referer"); ref != "" {
		referrer = &ref
	}

	var igshid *string
	if present(p, "igshid") {
		igshid = optional(p, "igshid")
	} else if present(p, "igsh") {
		igshid = optional(p, "igsh")
	}

	eventType := defaultEventType
	if s, ok := paramString(p, "event_type"); ok {
		eventType = s
	}

	source, _ := paramString(p, "utm_source")
	medium, _ := paramString(p, "utm_medium")
	campaign, _ := paramString(p, "utm_campaign")

	ev := &models.TrackingEvent{
		Timestamp: now.UTC(),
		CreatedAt: now.UTC(),

		UTMSource:   source,
		UTMMedium:   medium,
		UTMCampaign: campaign,
		UTMContent:  optional(p, "utm_content"),
		UTMTerm:     optional(p, "utm_term"),

		CampaignID: optional(p, "campaign_id"),
		AdsetID:    optional(p, "adset_id"),
		AdID:       optional(p, "ad_id"),
		Placement:  optional(p, "placement"),

		GCLID:   optional(p, "gclid"),
		FBCLID:  optional(p, "fbclid"),
		TTCLID:  optional(p, "ttclid"),
		MSCLKID: optional(p, "msclkid"),
		IGSHID:  igshid,

		SessionID:        sessionID,
		PlatformDetected: DetectPlatform(p),
		IPAddress:        ClientIP(req.Header, req.RemoteAddr),
		UserAgent:        req.Header.Get("User-Agent"),
		ReferrerURL:      referrer,
		FullURL:          req.FullURL,

		EventType:    eventType,
		CurrentPage:  optional(p, "current_page"),
		PreviousPage: optional(p, "previous_page"),
		SequenceStep: p["sequence_step"],
		ElementTag:   optional(p, "element_tag"),
		ElementID:    optional(p, "element_id"),
		ElementClass: optional(p, "element_class"),
		ElementText:  optional(p, "element_text"),
		TargetURL:    optional(p, "target_url"),

		ScreenResolution: optional(p, "screen_resolution"),
		Language:         optional(p, "language"),

		RawParams: p,
	}

	ev.Host = req.Host
	ev.Domain, ev.Subdomain = utils.SplitHost(req.Host)

	// Beacon scripts report the page they run on; its origin wins over ours.
	if raw, ok := paramString(p, "url"); ok && raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			n.logger.Warn().Err(err).Str("url", raw).Msg("failed to parse url parameter for host detection")
		} else if u.Host != "" {
			ev.Host = u.Host
			ev.Domain, ev.Subdomain = utils.SplitHost(u.Host)
		}
	}

	return ev, nil
}

func missingRequired(params models.Params) []string {
	var missing []string
	for _, key := range RequiredParams {
		if !present(params, key) {
			missing = append(missing, key)
		}
	}
	return missing
}
