// Package storage mirrors finished preview images to a blob store so that a
// deployment can serve them without the local asset directory.
package storage

import (
	"context"
	"io"
)

// Mirror uploads an object and returns its URI.
type Mirror interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Noop is the Mirror used when mirroring is disabled. It returns an empty URI.
type Noop struct{}

// PutObject drains nothing and reports no URI.
func (Noop) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}
