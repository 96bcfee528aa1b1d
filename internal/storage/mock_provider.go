package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockMirror is a testify mock of Mirror.
type MockMirror struct {
	mock.Mock
}

// PutObject records the call and returns the configured values.
func (m *MockMirror) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	args := m.Called(ctx, path, contentType, r)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}
