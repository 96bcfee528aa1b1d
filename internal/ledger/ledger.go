// Package ledger records the outcome of every asset a prefetch run touched so
// that runs can be compared over time.
package ledger

import (
	"context"
	"time"
)

// Status values stored with each Record.
const (
	StatusFetched = "fetched"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Record is one asset outcome within a run.
type Record struct {
	ID              string
	RunID           string
	URL             string
	File            string
	Status          string
	Bytes           int64
	CompressedBytes int64
	Hash            string
	BlobURI         string
	Error           string
	Duration        time.Duration
	RecordedAt      time.Time
}

// Recorder persists Records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Close()
}

// Noop discards records.
type Noop struct{}

// Record does nothing.
func (Noop) Record(context.Context, Record) error { return nil }

// Close does nothing.
func (Noop) Close() {}
