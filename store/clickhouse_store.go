package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"utmtracker/api/database"
	"utmtracker/api/models"
)

const clickHouseSchema = `
	CREATE TABLE IF NOT EXISTS tracking_events (
		id                String,
		timestamp         DateTime64(3, 'UTC'),
		created_at        DateTime64(3, 'UTC'),
		session_id        String,
		utm_source        LowCardinality(String),
		utm_medium        LowCardinality(String),
		utm_campaign      String,
		campaign_id       Nullable(String),
		platform_detected LowCardinality(String),
		event_type        LowCardinality(String),
		document          String
	) ENGINE = MergeTree
	ORDER BY (timestamp, id)
`

// clickHouseColumns maps stored field names that have a dedicated column to
// the expression selecting them. Other fields are read from the document.
var clickHouseColumns = map[string]string{
	"utm_source":        "utm_source",
	"utm_medium":        "utm_medium",
	"utm_campaign":      "utm_campaign",
	"campaign_id":       "ifNull(campaign_id, '')",
	"platform_detected": "platform_detected",
	"event_type":        "event_type",
	"session_id":        "session_id",
}

// ClickHouseEventStore stores each event as one row: the filterable fields as
// typed columns and the complete sparse record as a JSON document.
type ClickHouseEventStore struct {
	DB *database.ClickHouseClient
}

func NewClickHouseEventStore(chClient *database.ClickHouseClient) *ClickHouseEventStore {
	return &ClickHouseEventStore{
		DB: chClient,
	}
}

func (s *ClickHouseEventStore) Name() string { return "clickhouse" }

// EnsureSchema creates the events table if it does not exist.
func (s *ClickHouseEventStore) EnsureSchema(ctx context.Context) error {
	if err := s.DB.Conn.Exec(ctx, clickHouseSchema); err != nil {
		return storageErr(s.Name(), "create schema", err)
	}
	return nil
}

func (s *ClickHouseEventStore) Insert(ctx context.Context, event *models.TrackingEvent) (string, error) {
	stored := *event
	stored.ID = uuid.New().String()

	document, err := json.Marshal(&stored)
	if err != nil {
		return "", storageErr(s.Name(), "encode event", err)
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO tracking_events (
			id, timestamp, created_at, session_id, utm_source, utm_medium,
			utm_campaign, campaign_id, platform_detected, event_type, document
		)
	`)
	if err != nil {
		return "", storageErr(s.Name(), "prepare batch insert", err)
	}

	err = batch.Append(
		stored.ID,
		stored.Timestamp,
		stored.CreatedAt,
		stored.SessionID,
		stored.UTMSource,
		stored.UTMMedium,
		stored.UTMCampaign,
		stored.CampaignID,
		stored.PlatformDetected,
		stored.EventType,
		string(document),
	)
	if err != nil {
		_ = batch.Abort()
		return "", storageErr(s.Name(), "append event", err)
	}

	if err := batch.Send(); err != nil {
		return "", storageErr(s.Name(), "send batch", err)
	}
	return stored.ID, nil
}

func (s *ClickHouseEventStore) Find(ctx context.Context, filter models.EventFilter, opts models.FindOptions) ([]models.TrackingEvent, error) {
	where, args := clickHouseWhere(filter)

	order := "DESC"
	if opts.Ascending {
		order = "ASC"
	}
	page := ""
	if opts.Limit > 0 {
		page = "LIMIT ? OFFSET ?"
		args = append(args, uint64(opts.Limit), uint64(opts.Skip))
	}
	query := fmt.Sprintf(`
		SELECT document
		FROM tracking_events
		%s
		ORDER BY timestamp %s
		%s
	`, where, order, page)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(s.Name(), "query events", err)
	}
	defer rows.Close()

	events := []models.TrackingEvent{}
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, storageErr(s.Name(), "scan event", err)
		}
		var e models.TrackingEvent
		if err := json.Unmarshal([]byte(document), &e); err != nil {
			return nil, storageErr(s.Name(), "decode event", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(s.Name(), "iterate events", err)
	}
	return events, nil
}

func (s *ClickHouseEventStore) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	where, args := clickHouseWhere(filter)

	var count uint64
	err := s.DB.Conn.QueryRow(ctx, "SELECT count() FROM tracking_events "+where, args...).Scan(&count)
	if err != nil {
		return 0, storageErr(s.Name(), "count events", err)
	}
	return int64(count), nil
}

func (s *ClickHouseEventStore) Distinct(ctx context.Context, field string) ([]string, error) {
	expr, args := clickHouseFieldExpr(field)
	query := fmt.Sprintf(`
		SELECT DISTINCT %s AS value
		FROM tracking_events
		WHERE value != ''
		ORDER BY value
	`, expr)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(s.Name(), "query distinct "+field, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storageErr(s.Name(), "scan distinct "+field, err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(s.Name(), "iterate distinct "+field, err)
	}
	return values, nil
}

func clickHouseFieldExpr(field string) (string, []any) {
	if col, ok := clickHouseColumns[field]; ok {
		return col, nil
	}
	return "JSONExtractString(document, ?)", []any{field}
}

func clickHouseWhere(f models.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.CampaignID != "" {
		conds = append(conds, "campaign_id = ?")
		args = append(args, f.CampaignID)
	}
	if f.UTMSource != "" {
		conds = append(conds, "utm_source = ?")
		args = append(args, f.UTMSource)
	}
	if f.From != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, "timestamp < ?")
		args = append(args, f.To.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
