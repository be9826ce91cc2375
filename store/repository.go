package store

import (
	"context"
	"errors"
	"fmt"

	"utmtracker/api/models"
)

// EventRepository persists and queries tracking events.
type EventRepository interface {
	// Insert stores the event and returns its repository-assigned id.
	Insert(ctx context.Context, event *models.TrackingEvent) (string, error)
	Find(ctx context.Context, filter models.EventFilter, opts models.FindOptions) ([]models.TrackingEvent, error)
	Count(ctx context.Context, filter models.EventFilter) (int64, error)
	// Distinct returns the sorted non-empty values stored under field.
	Distinct(ctx context.Context, field string) ([]string, error)
	// Name identifies the backend, e.g. "memory" or "clickhouse".
	Name() string
}

// ErrStorage matches every error returned by an EventRepository.
var ErrStorage = errors.New("event storage failure")

// StorageError wraps a backend failure with the operation that caused it.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(backend, op string, err error) error {
	return &StorageError{Backend: backend, Op: op, Err: err}
}
