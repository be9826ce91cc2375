package tracking

import (
	"fmt"
	"strings"
	"time"
)

// RateLimitError reports that a client exceeded its request budget.
// The client may retry at ResetAt.
type RateLimitError struct {
	Limit   int
	Window  time.Duration
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.Window == time.Second {
		return fmt.Sprintf("Rate limit exceeded. Maximum %d requests per second.", e.Limit)
	}
	return fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s.", e.Limit, e.Window)
}

// ValidationError lists the required parameters missing from a hit.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "Missing required UTM parameters: " + strings.Join(e.Missing, ", ")
}
