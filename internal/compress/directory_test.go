package compress

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryCompressesRasterFiles(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seedFile(t, fs, "/img/a.png", 1000)
	seedFile(t, fs, "/img/b.jpg", 2000)
	seedFile(t, fs, "/img/c.svg", 3000)
	seedFile(t, fs, "/img/notes.txt", 10)
	require.NoError(t, fs.MkdirAll("/img/nested.png", 0o750))

	c := NewImageCompressor(fs, &fakeCodec{outSize: 500}, Config{}, nil)
	report, err := Directory(context.Background(), fs, "/img", c, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Compressed)
	assert.EqualValues(t, 500+1500, report.SavedBytes)
}

func TestDirectoryCountsFailures(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seedFile(t, fs, "/img/a.png", 1000)
	c := NewImageCompressor(fs, &fakeCodec{decodeErr: assert.AnError}, Config{}, nil)

	report, err := Directory(context.Background(), fs, "/img", c, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 0, report.Succeeded)
}

func TestDirectoryMissing(t *testing.T) {
	t.Parallel()

	_, err := Directory(context.Background(), afero.NewMemMapFs(), "/nope", Noop{}, nil)
	require.Error(t, err)
}
