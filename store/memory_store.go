package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"utmtracker/api/models"
)

// MemoryEventStore keeps events in process memory. When a snapshot path is
// set, the full event list is rewritten to that JSON file after every insert
// and reloaded on startup.
type MemoryEventStore struct {
	mu           sync.RWMutex
	events       []models.TrackingEvent
	snapshotPath string
	logger       zerolog.Logger
}

func NewMemoryEventStore(snapshotPath string, logger zerolog.Logger) (*MemoryEventStore, error) {
	s := &MemoryEventStore{snapshotPath: snapshotPath, logger: logger}
	if snapshotPath == "" {
		return s, nil
	}

	b, err := os.ReadFile(snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(b, &s.events); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", snapshotPath, err)
	}
	logger.Info().Int("events", len(s.events)).Str("path", snapshotPath).Msg("loaded event snapshot")
	return s, nil
}

func (s *MemoryEventStore) Name() string { return "memory" }

func (s *MemoryEventStore) Insert(ctx context.Context, event *models.TrackingEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", storageErr(s.Name(), "insert", err)
	}

	stored := *event
	stored.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, stored)
	if s.snapshotPath != "" {
		if err := s.writeSnapshot(); err != nil {
			s.logger.Warn().Err(err).Str("path", s.snapshotPath).Msg("failed to write event snapshot")
		}
	}
	return stored.ID, nil
}

func (s *MemoryEventStore) Find(ctx context.Context, filter models.EventFilter, opts models.FindOptions) ([]models.TrackingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr(s.Name(), "find", err)
	}

	s.mu.RLock()
	matched := []models.TrackingEvent{}
	for _, e := range s.events {
		if matches(&e, filter) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if opts.Ascending {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if opts.Skip >= len(matched) {
		return []models.TrackingEvent{}, nil
	}
	if opts.Skip > 0 {
		matched = matched[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

func (s *MemoryEventStore) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageErr(s.Name(), "count", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.events {
		if matches(&s.events[i], filter) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryEventStore) Distinct(ctx context.Context, field string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr(s.Name(), "distinct", err)
	}

	s.mu.RLock()
	seen := make(map[string]struct{})
	for i := range s.events {
		if v, ok := s.events[i].Field(field); ok && v != "" {
			seen[v] = struct{}{}
		}
	}
	s.mu.RUnlock()

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

// writeSnapshot must be called with s.mu held.
func (s *MemoryEventStore) writeSnapshot() error {
	b, err := json.MarshalIndent(s.events, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.snapshotPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapshotPath)
}

func matches(e *models.TrackingEvent, f models.EventFilter) bool {
	if f.CampaignID != "" && (e.CampaignID == nil || *e.CampaignID != f.CampaignID) {
		return false
	}
	if f.UTMSource != "" && e.UTMSource != f.UTMSource {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.Timestamp.Before(*f.To) {
		return false
	}
	return true
}
