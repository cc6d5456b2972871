package domain

import (
	"encoding/json"
	"time"

	"github.com/holiman/uint256"
)

// BatchRequest holds the inputs of CalculateFinalizationBatches. Zero values
// are filled with defaults.
type BatchRequest struct {
	MaxShareRate *uint256.Int `json:"maxShareRate,omitempty"`
	MaxTimestamp uint64       `json:"maxTimestamp,omitempty"`
	MaxBatches   int          `json:"maxBatches,omitempty"`
	EthBudget    *uint256.Int `json:"ethBudget,omitempty"`
}

// ReportRecord is a stored oracle report with its outcome.
type ReportRecord struct {
	ID              string        `json:"id"`
	Version         uint64        `json:"version,omitempty"`
	ReportTimestamp uint64        `json:"reportTimestamp"`
	Hash            string        `json:"hash"`
	Status          string        `json:"status"`
	ErrorCode       string        `json:"errorCode,omitempty"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	SubmittedBy     string        `json:"submittedBy,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	Report          Report        `json:"report"`
	Result          *ReportResult `json:"result,omitempty"`
}

// EventRecord is a stored event.
type EventRecord struct {
	ID        string          `json:"id"`
	Version   uint64          `json:"version"`
	Index     int             `json:"index"`
	Operation string          `json:"operation"`
	ReportID  string          `json:"reportId,omitempty"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ReportFilter contains filter options for listing reports.
type ReportFilter struct {
	Status string
}

// EventFilter contains filter options for listing events.
type EventFilter struct {
	Name     string
	ReportID string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ReportList is a page of reports.
type ReportList struct {
	Reports    []ReportRecord
	HasMore    bool
	NextCursor string
}

// EventList is a page of events.
type EventList struct {
	Events     []EventRecord
	HasMore    bool
	NextCursor string
}
