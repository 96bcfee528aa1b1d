package headless

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabled(t *testing.T) {
	t.Parallel()

	r, err := New(Config{}, nil)
	require.ErrorIs(t, err, ErrRendererDisabled)
	assert.Nil(t, r)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	r, err := New(Config{Enabled: true}, nil)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 45*time.Second, r.cfg.Timeout)
	assert.EqualValues(t, 1200, r.cfg.ViewportWidth)
	assert.EqualValues(t, 630, r.cfg.ViewportHeight)
}

func TestCaptureRejectsNonHTTP(t *testing.T) {
	t.Parallel()

	r, err := New(Config{Enabled: true}, nil)
	require.NoError(t, err)
	defer r.Close()

	for _, raw := range []string{"file:///etc/passwd", "javascript:alert(1)", "https://"} {
		_, err := r.Capture(context.Background(), raw)
		assert.Error(t, err, raw)
	}
}

func TestCloseNil(t *testing.T) {
	t.Parallel()

	var r *Renderer
	r.Close()
}
