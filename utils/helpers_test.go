package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitHost(t *testing.T) {
	tests := []struct {
		host      string
		domain    string
		subdomain string
	}{
		{"booking.dnstrainer.com", "dnstrainer.com", "booking"},
		{"www.booking.dnstrainer.com", "dnstrainer.com", "www"},
		{"dnstrainer.com", "dnstrainer.com", "www"},
		{"localhost", "localhost", "www"},
		{"localhost:5000", "localhost:5000", "www"},
		{"", "", "www"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			domain, sub := SplitHost(tt.host)
			assert.Equal(t, tt.domain, domain)
			assert.Equal(t, tt.subdomain, sub)
		})
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, int64(0), TotalPages(0, 25))
	assert.Equal(t, int64(1), TotalPages(1, 25))
	assert.Equal(t, int64(1), TotalPages(25, 25))
	assert.Equal(t, int64(2), TotalPages(26, 25))
	assert.Equal(t, int64(0), TotalPages(10, 0))
}
