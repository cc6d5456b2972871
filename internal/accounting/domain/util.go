package domain

import (
	"time"

	"github.com/google/uuid"
)

// generateID generates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// parseTime parses a storage timestamp, returning the zero time when empty
// or malformed.
func parseTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
