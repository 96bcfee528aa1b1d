package stage

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, body := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
	}
}

func TestCopyTree(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/a.txt":       "a",
		"/src/x/y/b.css":   "b",
		"/src/x/empty/.ok": "",
	})
	require.NoError(t, afero.WriteFile(fs, "/dst/a.txt", []byte("old"), 0o644))

	n, err := CopyTree(fs, "/src", "/dst")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := afero.ReadFile(fs, "/dst/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
	got, err = afero.ReadFile(fs, "/dst/x/y/b.css")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestRunDefaultPlan(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(".next/standalone", 0o750))
	writeFiles(t, fs, map[string]string{
		".next/static/chunks/main.js":          "js",
		"public/images/preview/github-com.png": "png",
	})

	report, err := Run(fs, DefaultPlan(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{".next/static", "public"}, report.Copied)
	assert.Equal(t, 2, report.Files)

	ok, err := afero.Exists(fs, ".next/standalone/.next/static/chunks/main.js")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = afero.Exists(fs, ".next/standalone/public/images/preview/github-com.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunSkipsMissingSource(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/build/standalone", 0o750))
	writeFiles(t, fs, map[string]string{"/build/public/robots.txt": "ok"})

	report, err := Run(fs, Plan{
		Root: "/build/standalone",
		Pairs: []Pair{
			{Src: "/build/static", Dst: ".next/static"},
			{Src: "/build/public", Dst: "public"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/build/static"}, report.Skipped)
	assert.Equal(t, []string{"/build/public"}, report.Copied)
}

func TestRunRequiresRoot(t *testing.T) {
	t.Parallel()

	_, err := Run(afero.NewMemMapFs(), DefaultPlan(), nil)
	require.ErrorIs(t, err, ErrRootMissing)
}
