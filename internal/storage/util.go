package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// computeHash computes SHA256 hash of content
func computeHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// generateAPIKey generates a new API key
func generateAPIKey() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return fmt.Sprintf("pk_key_%s", hex.EncodeToString(b))
}

// hashAPIKey hashes an API key for storage
func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// encodeRoles serializes roles for the scopes column
func encodeRoles(roles []string) []byte {
	if roles == nil {
		roles = []string{}
	}
	data, _ := json.Marshal(roles)
	return data
}

// decodeRoles parses the scopes column, tolerating empty values
func decodeRoles(data []byte) []string {
	var roles []string
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &roles); err != nil {
		return nil
	}
	return roles
}

// parseCursor decodes a sequence cursor. An empty cursor means the start.
func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return seq, nil
}

// pageLimit clamps a requested page size
func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}

// fillReportDefaults assigns an id and hash to a report before insert
func fillReportDefaults(r *Report) error {
	if len(r.Payload) == 0 {
		return ErrReportRequired
	}
	if r.ID == "" {
		r.ID = generateID()
	}
	if r.Hash == "" {
		r.Hash = computeHash(r.Payload)
	}
	return nil
}
