package compress

import (
	"errors"
	"fmt"
)

// ErrCodecUnavailable means the image codec failed its startup probe.
var ErrCodecUnavailable = errors.New("image codec unavailable")

// CodecError wraps a decode or encode failure for a specific file.
type CodecError struct {
	Op   string
	Path string
	Err  error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}
