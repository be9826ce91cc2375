package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Params holds the raw request parameters of a tracking hit. JSON bodies keep
// their original value types; query and form values are always strings.
type Params map[string]any

// UnmarshalJSON decodes numbers as json.Number so stored ids longer than a
// float64 mantissa read back unchanged.
func (p *Params) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*p = m
	return nil
}

// TrackingEvent is the canonical record of a single accepted /track hit.
// Optional fields are pointers so that an absent value is left out of the
// stored document instead of being written as null.
type TrackingEvent struct {
	ID string `json:"id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`

	// UTM parameters
	UTMSource   string  `json:"utm_source"`
	UTMMedium   string  `json:"utm_medium"`
	UTMCampaign string  `json:"utm_campaign"`
	UTMContent  *string `json:"utm_content,omitempty"`
	UTMTerm     *string `json:"utm_term,omitempty"`

	// Platform entity ids
	CampaignID *string `json:"campaign_id,omitempty"`
	AdsetID    *string `json:"adset_id,omitempty"`
	AdID       *string `json:"ad_id,omitempty"`
	Placement  *string `json:"placement,omitempty"`

	// Click identifiers
	GCLID   *string `json:"gclid,omitempty"`
	FBCLID  *string `json:"fbclid,omitempty"`
	TTCLID  *string `json:"ttclid,omitempty"`
	MSCLKID *string `json:"msclkid,omitempty"`
	IGSHID  *string `json:"igshid,omitempty"`

	SessionID        string  `json:"session_id"`
	PlatformDetected string  `json:"platform_detected"`
	IPAddress        string  `json:"ip_address"`
	UserAgent        string  `json:"user_agent"`
	ReferrerURL      *string `json:"referrer_url,omitempty"`
	FullURL          string  `json:"full_url"`
	Host             string  `json:"host"`
	Domain           string  `json:"domain"`
	Subdomain        string  `json:"subdomain"`

	// Behavioral and pathway data
	EventType    string  `json:"event_type"`
	CurrentPage  *string `json:"current_page,omitempty"`
	PreviousPage *string `json:"previous_page,omitempty"`
	SequenceStep any     `json:"sequence_step,omitempty"`
	ElementTag   *string `json:"element_tag,omitempty"`
	ElementID    *string `json:"element_id,omitempty"`
	ElementClass *string `json:"element_class,omitempty"`
	ElementText  *string `json:"element_text,omitempty"`
	TargetURL    *string `json:"target_url,omitempty"`

	ScreenResolution *string `json:"screen_resolution,omitempty"`
	Language         *string `json:"language,omitempty"`

	RawParams Params `json:"raw_params"`
}

// Field returns the string value of a top-level field by its stored name.
// The boolean is false when the field is unknown or absent from the record.
func (e *TrackingEvent) Field(name string) (string, bool) {
	switch name {
	case "utm_source":
		return e.UTMSource, true
	case "utm_medium":
		return e.UTMMedium, true
	case "utm_campaign":
		return e.UTMCampaign, true
	case "session_id":
		return e.SessionID, true
	case "platform_detected":
		return e.PlatformDetected, true
	case "event_type":
		return e.EventType, true
	case "host":
		return e.Host, true
	case "domain":
		return e.Domain, true
	case "subdomain":
		return e.Subdomain, true
	case "ip_address":
		return e.IPAddress, true
	}

	var p *string
	switch name {
	case "utm_content":
		p = e.UTMContent
	case "utm_term":
		p = e.UTMTerm
	case "campaign_id":
		p = e.CampaignID
	case "adset_id":
		p = e.AdsetID
	case "ad_id":
		p = e.AdID
	case "placement":
		p = e.Placement
	case "gclid":
		p = e.GCLID
	case "fbclid":
		p = e.FBCLID
	case "ttclid":
		p = e.TTCLID
	case "msclkid":
		p = e.MSCLKID
	case "igshid":
		p = e.IGSHID
	case "current_page":
		p = e.CurrentPage
	case "previous_page":
		p = e.PreviousPage
	case "target_url":
		p = e.TargetURL
	case "language":
		p = e.Language
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

// EventFilter narrows a repository query. Zero values mean "no constraint".
// To is an exclusive upper bound on Timestamp.
type EventFilter struct {
	CampaignID string
	UTMSource  string
	From       *time.Time
	To         *time.Time
}

// FindOptions controls paging and ordering of a repository query.
// Results are ordered by timestamp, newest first unless Ascending is set.
type FindOptions struct {
	Limit     int
	Skip      int
	Ascending bool
}

// Pagination describes one page of an event listing.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}
