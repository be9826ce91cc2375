package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"utmtracker/api/models"
)

func TestClickHouseWhere(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	where, args := clickHouseWhere(models.EventFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = clickHouseWhere(models.EventFilter{CampaignID: "c1", UTMSource: "google", From: &from, To: &to})
	assert.Equal(t, "WHERE campaign_id = ? AND utm_source = ? AND timestamp >= ? AND timestamp < ?", where)
	assert.Equal(t, []any{"c1", "google", from, to}, args)
}

func TestClickHouseFieldExpr(t *testing.T) {
	expr, args := clickHouseFieldExpr("utm_source")
	assert.Equal(t, "utm_source", expr)
	assert.Empty(t, args)

	expr, args = clickHouseFieldExpr("gclid")
	assert.Equal(t, "JSONExtractString(document, ?)", expr)
	assert.Equal(t, []any{"gclid"}, args)
}

func TestPostgresWhere(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	where, args := postgresWhere(models.EventFilter{}, 1)
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = postgresWhere(models.EventFilter{UTMSource: "google", To: &to}, 1)
	assert.Equal(t, "WHERE document->>'utm_source' = $1 AND timestamp < $2", where)
	assert.Equal(t, []any{"google", to}, args)

	where, args = postgresWhere(models.EventFilter{CampaignID: "c1", From: &from}, 3)
	assert.Equal(t, "WHERE document->>'campaign_id' = $3 AND timestamp >= $4", where)
	assert.Equal(t, []any{"c1", from}, args)
}
