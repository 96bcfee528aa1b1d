package pipeline

import (
	"path/filepath"
	"time"

	"github.com/JakeFAU/sitepreview/internal/asset"
	"github.com/JakeFAU/sitepreview/internal/compress"
	"github.com/JakeFAU/sitepreview/internal/ledger"
	"github.com/JakeFAU/sitepreview/internal/manifest"
)

// Outcome is the result of processing one registry entry.
type Outcome struct {
	Source      asset.Source
	Path        string
	Success     bool
	Skipped     bool
	Bytes       int64
	Compressed  *compress.Result
	Err         error
	Duration    time.Duration
	FetchedAt   time.Time
	Hash        string
	BlobURI     string
	Placeholder string
	Fallback    bool
}

// Status returns the ledger status for o.
func (o Outcome) Status() string {
	switch {
	case o.Skipped:
		return ledger.StatusSkipped
	case o.Success:
		return ledger.StatusFetched
	default:
		return ledger.StatusFailed
	}
}

// Summary aggregates a run. Skipped entries count as successes.
type Summary struct {
	RunID      string
	Total      int
	Succeeded  int
	Failed     int
	Skipped    int
	Downloaded int
	Canceled   bool
	Outcomes   []Outcome
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	if !o.Success {
		s.Failed++
		return
	}
	s.Succeeded++
	if o.Skipped {
		s.Skipped++
	} else {
		s.Downloaded++
	}
}

// ExitCode returns 1 when more than threshold entries failed, else 0.
func (s Summary) ExitCode(threshold int) int {
	if s.Failed > threshold {
		return 1
	}
	return 0
}

// Manifest converts the run into its YAML manifest form.
func (s Summary) Manifest(now time.Time) manifest.Manifest {
	m := manifest.Manifest{
		RunID:       s.RunID,
		GeneratedAt: now,
		Entries:     make([]manifest.Entry, 0, len(s.Outcomes)),
	}
	for _, o := range s.Outcomes {
		entry := manifest.Entry{
			URL:     o.Source.URL,
			File:    filepath.Base(o.Path),
			Bytes:   o.Bytes,
			Status:  o.Status(),
			Hash:    o.Hash,
			BlobURI: o.BlobURI,
		}
		if o.Err != nil {
			entry.Error = o.Err.Error()
		}
		m.Entries = append(m.Entries, entry)
	}
	return m
}
