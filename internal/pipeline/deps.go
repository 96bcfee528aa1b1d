package pipeline

import (
	"context"
	"time"
)

// Fetcher downloads a remote resource to dest and returns the byte count.
type Fetcher interface {
	Download(ctx context.Context, remoteURL, dest string) (int64, error)
}

// URLBuilder maps a registered page onto the screenshot service URL.
type URLBuilder interface {
	URLFor(target string) (string, error)
}

// Renderer produces a screenshot locally when the remote service fails.
type Renderer interface {
	Capture(ctx context.Context, pageURL string) ([]byte, error)
}

// Hasher fingerprints finished files.
type Hasher interface {
	HashFile(path string) (string, error)
}

// IDGenerator produces run and record identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// PauseController waits between entries.
type PauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

// PlaceholderWriter writes a stand-in image for a failed entry.
type PlaceholderWriter interface {
	Write(base string) (string, bool, error)
}
