package db

import (
	"time"
)

// SearchEntry is one submitted lookup and how it ended
type SearchEntry struct {
	ID        int64     `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Kind      string    `json:"kind" db:"kind"`
	Input     string    `json:"input" db:"input"`
	Status    string    `json:"status" db:"status"`
	ErrorKind string    `json:"error_kind,omitempty" db:"error_kind"` // Empty on success
}

// Failed reports whether the lookup errored.
func (e SearchEntry) Failed() bool {
	return e.ErrorKind != ""
}

// KindCount aggregates search history per lookup kind
type KindCount struct {
	Kind   string `json:"kind"`
	Total  int64  `json:"total"`
	Failed int64  `json:"failed"`
}
