package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"utmtracker/api/models"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS tracking_events (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		timestamp  TIMESTAMPTZ NOT NULL,
		document   JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tracking_events_timestamp ON tracking_events (timestamp);
	CREATE INDEX IF NOT EXISTS idx_tracking_events_campaign ON tracking_events ((document->>'campaign_id'));
	CREATE INDEX IF NOT EXISTS idx_tracking_events_source ON tracking_events ((document->>'utm_source'));
`

// PostgresEventStore keeps each event as a JSONB document next to an indexed
// timestamp column.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

func (s *PostgresEventStore) Name() string { return "postgres" }

// EnsureSchema creates the events table and its indexes if they do not exist.
func (s *PostgresEventStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return storageErr(s.Name(), "create schema", err)
	}
	return nil
}

func (s *PostgresEventStore) Insert(ctx context.Context, event *models.TrackingEvent) (string, error) {
	stored := *event
	stored.ID = ""

	document, err := json.Marshal(&stored)
	if err != nil {
		return "", storageErr(s.Name(), "encode event", err)
	}

	var id string
	query := `
		INSERT INTO tracking_events (timestamp, document)
		VALUES ($1, $2)
		RETURNING id;
	`
	if err := s.db.QueryRowContext(ctx, query, stored.Timestamp, document).Scan(&id); err != nil {
		return "", storageErr(s.Name(), "insert event", err)
	}
	return id, nil
}

func (s *PostgresEventStore) Find(ctx context.Context, filter models.EventFilter, opts models.FindOptions) ([]models.TrackingEvent, error) {
	where, args := postgresWhere(filter, 1)

	order := "DESC"
	if opts.Ascending {
		order = "ASC"
	}
	page := ""
	if opts.Limit > 0 {
		page = fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, opts.Limit, opts.Skip)
	}
	query := fmt.Sprintf(`
		SELECT id, document
		FROM tracking_events
		%s
		ORDER BY timestamp %s
		%s
	`, where, order, page)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(s.Name(), "query events", err)
	}
	defer rows.Close()

	events := []models.TrackingEvent{}
	for rows.Next() {
		var (
			id       string
			document []byte
		)
		if err := rows.Scan(&id, &document); err != nil {
			return nil, storageErr(s.Name(), "scan event", err)
		}
		var e models.TrackingEvent
		if err := json.Unmarshal(document, &e); err != nil {
			return nil, storageErr(s.Name(), "decode event", err)
		}
		e.ID = id
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(s.Name(), "iterate events", err)
	}
	return events, nil
}

func (s *PostgresEventStore) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	where, args := postgresWhere(filter, 1)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracking_events "+where, args...).Scan(&count)
	if err != nil {
		return 0, storageErr(s.Name(), "count events", err)
	}
	return count, nil
}

func (s *PostgresEventStore) Distinct(ctx context.Context, field string) ([]string, error) {
	query := `
		SELECT DISTINCT document->>($1::text) AS value
		FROM tracking_events
		WHERE COALESCE(document->>($1::text), '') <> ''
		ORDER BY value;
	`
	rows, err := s.db.QueryContext(ctx, query, field)
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

// postgresWhere numbers its placeholders from start.
func postgresWhere(f models.EventFilter, start int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(cond string, arg any) {
		conds = append(conds, fmt.Sprintf(cond, start+len(args)))
		args = append(args, arg)
	}
	if f.CampaignID != "" {
		next("document->>'campaign_id' = $%d", f.CampaignID)
	}
	if f.UTMSource != "" {
		next("document->>'utm_source' = $%d", f.UTMSource)
	}
	if f.From != nil {
		next("timestamp >= $%d", f.From.UTC())
	}
	if f.To != nil {
		next("timestamp < $%d", f.To.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
