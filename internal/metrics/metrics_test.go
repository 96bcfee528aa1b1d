package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := assetsTotal
	Init()
	require.NotNil(t, first)
	assert.Same(t, first, assetsTotal)
}

func TestObserveAsset(t *testing.T) {
	Init()
	beforeFailed := testutil.ToFloat64(assetsTotal.WithLabelValues(StatusFailed))
	beforeBytes := testutil.ToFloat64(assetBytesTotal)

	ObserveAsset(StatusFailed, 0)
	ObserveAsset(StatusFetched, 2048)

	assert.InDelta(t, beforeFailed+1, testutil.ToFloat64(assetsTotal.WithLabelValues(StatusFailed)), 0.001)
	assert.InDelta(t, beforeBytes+2048, testutil.ToFloat64(assetBytesTotal), 0.001)
}

func TestObserveCompressionIgnoresNonPositive(t *testing.T) {
	Init()
	before := testutil.ToFloat64(compressionSavedBytesTotal)
	ObserveCompression(0)
	ObserveCompression(-5)
	ObserveCompression(100)
	assert.InDelta(t, before+100, testutil.ToFloat64(compressionSavedBytesTotal), 0.001)
}

func TestObserveDownload(t *testing.T) {
	Init()
	ObserveDownload(true, 300*time.Millisecond)
	ObserveDownload(false, time.Second)
	assert.Positive(t, testutil.CollectAndCount(downloadDurationSeconds))
}

func TestWriteTextfile(t *testing.T) {
	Init()
	ObserveAsset(StatusSkipped, 0)

	path := filepath.Join(t.TempDir(), "sitepreview.prom")
	require.NoError(t, WriteTextfile(path))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "sitepreview_assets_total"))
}
