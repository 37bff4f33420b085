// Package store persists call records written by the tracker when a
// connection disconnects.
//
// The repository interface allows swapping implementations; the in-memory
// implementation is the default and the one used in tests.
package store

import (
	"context"
	"time"
)

// Record is one completed call leg, written at disconnect time.
type Record struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	Address      string    `json:"address"`
	Direction    string    `json:"direction"` // "incoming" or "outgoing"
	StartTime    time.Time `json:"start_time"`
	ConnectTime  time.Time `json:"connect_time,omitempty"`
	EndTime      time.Time `json:"end_time"`
	Duration     int       `json:"duration"` // seconds, post-answer
	Cause        string    `json:"cause"`
	VideoCall    bool      `json:"video_call"`
	Emergency    bool      `json:"emergency"`
}

// Filter specifies query criteria for record lookups.
type Filter struct {
	Address   string
	Direction string
	Cause     string
	After     time.Time
	Before    time.Time
	Limit     int
	Offset    int
}

// Repository stores call records.
type Repository interface {
	// Create stores a new record.
	Create(ctx context.Context, r *Record) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// Query returns records matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]*Record, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, f Filter) (int, error)
}
