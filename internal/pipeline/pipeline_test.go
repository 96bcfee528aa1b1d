package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitepreview/internal/asset"
	"github.com/JakeFAU/sitepreview/internal/compress"
	"github.com/JakeFAU/sitepreview/internal/download"
	"github.com/JakeFAU/sitepreview/internal/ledger"
	"github.com/JakeFAU/sitepreview/internal/placeholder"
	"github.com/JakeFAU/sitepreview/internal/storage"
	"github.com/JakeFAU/sitepreview/internal/storage/memory"
)

const (
	outDir   = "/public/images/preview"
	minBytes = 10_000
)

// fakeFetcher serves a canned response per page URL.
type fakeFetcher struct {
	fs    afero.Fs
	sizes map[string]int
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Download(_ context.Context, remoteURL, dest string) (int64, error) {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return 0, err
	}
	page := u.Query().Get("url")
	f.calls = append(f.calls, page)
	if err := f.errs[page]; err != nil {
		return 0, err
	}
	size, ok := f.sizes[page]
	if !ok {
		size = 20_000
	}
	return download.WriteAtomic(f.fs, dest, bytes.NewReader(bytes.Repeat([]byte{'p'}, size)))
}

type countingPauser struct {
	pauses []time.Duration
	onCall func()
}

func (p *countingPauser) Pause(_ context.Context, d time.Duration) {
	p.pauses = append(p.pauses, d)
	if p.onCall != nil {
		p.onCall()
	}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

type recordingLedger struct {
	records []ledger.Record
	err     error
}

func (l *recordingLedger) Record(_ context.Context, rec ledger.Record) error {
	l.records = append(l.records, rec)
	return l.err
}

func (l *recordingLedger) Close() {}

type stubCompressor struct {
	res   *compress.Result
	err   error
	calls int
}

func (s *stubCompressor) Compress(context.Context, string) (*compress.Result, error) {
	s.calls++
	return s.res, s.err
}

type fixture struct {
	fs      afero.Fs
	fetcher *fakeFetcher
	pauser  *countingPauser
	ledger  *recordingLedger
	deps    Dependencies
}

func newFixture() *fixture {
	fs := afero.NewMemMapFs()
	f := &fixture{
		fs:      fs,
		fetcher: &fakeFetcher{fs: fs, sizes: map[string]int{}, errs: map[string]error{}},
		pauser:  &countingPauser{},
		ledger:  &recordingLedger{},
	}
	f.deps = Dependencies{
		Fs:      fs,
		Fetcher: f.fetcher,
		Ledger:  f.ledger,
		Pauser:  f.pauser,
		Clock:   fixedClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		IDs:     &seqIDs{},
	}
	return f
}

func (f *fixture) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(Config{OutputDir: outDir, MinBytes: minBytes, PacingDelay: time.Second}, f.deps, nil)
	require.NoError(t, err)
	return r
}

func sources(t *testing.T, hosts ...string) []asset.Source {
	t.Helper()
	urls := make([]string, 0, len(hosts))
	for _, h := range hosts {
		urls = append(urls, "https://"+h)
	}
	srcs, err := asset.NewRegistry(urls)
	require.NoError(t, err)
	return srcs
}

// assertTerminalState checks that every entry either has a valid file or
// failed with nothing left at its path.
func assertTerminalState(t *testing.T, fs afero.Fs, summary Summary) {
	t.Helper()
	for _, o := range summary.Outcomes {
		if o.Success {
			assert.True(t, asset.IsValid(fs, o.Path, minBytes), o.Path)
			continue
		}
		exists, err := afero.Exists(fs, o.Path)
		require.NoError(t, err)
		assert.False(t, exists, "failed entry left %s", o.Path)
		exists, err = afero.Exists(fs, o.Path+".tmp")
		require.NoError(t, err)
		assert.False(t, exists)
	}
	entries, err := afero.ReadDir(fs, outDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".part"), "partial %s left behind", e.Name())
	}
}

func TestRunDownloadsInRegistryOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	srcs := sources(t, "github.com/undefcc", "www.yuque.com/hexc", "www.npmjs.com")
	summary := f.runner(t).Run(context.Background(), srcs)

	assert.Equal(t, []string{"https://github.com/undefcc", "https://www.yuque.com/hexc", "https://www.npmjs.com"}, f.fetcher.calls)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, "id-1", summary.RunID)
	assert.Equal(t, outDir+"/github-com.png", summary.Outcomes[0].Path)
	assertTerminalState(t, f.fs, summary)
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	srcs := sources(t, "github.com", "www.cnblogs.com")
	first := f.runner(t).Run(context.Background(), srcs)
	require.Equal(t, 2, first.Downloaded)

	f.fetcher.calls = nil
	second := f.runner(t).Run(context.Background(), srcs)
	assert.Empty(t, f.fetcher.calls, "valid cached files must not be re-fetched")
	assert.Equal(t, 2, second.Succeeded)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Downloaded)
}

func TestRunRefetchesUndersizedCache(t *testing.T) {
	t.Parallel()

	f := newFixture()
	require.NoError(t, f.fs.MkdirAll(outDir, 0o750))
	require.NoError(t, afero.WriteFile(f.fs, outDir+"/github-com.png", make([]byte, minBytes-1), 0o644))

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com"))
	assert.Equal(t, []string{"https://github.com"}, f.fetcher.calls)
	assert.Equal(t, 1, summary.Downloaded)
	assert.EqualValues(t, 20_000, summary.Outcomes[0].Bytes)
}

func TestRunLeavesUninspectableDestinationAlone(t *testing.T) {
	t.Parallel()

	f := newFixture()
	require.NoError(t, f.fs.MkdirAll(outDir+"/github-com.png", 0o750))

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com", "www.npmjs.com"))
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)
	require.Error(t, summary.Outcomes[0].Err)
	assert.Equal(t, []string{"https://www.npmjs.com"}, f.fetcher.calls)

	info, err := f.fs.Stat(outDir + "/github-com.png")
	require.NoError(t, err, "the existing directory must survive")
	assert.True(t, info.IsDir())
}

func TestRunFailuresAreIndependent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.errs["https://www.yuque.com"] = &download.HTTPError{StatusCode: 429}
	f.fetcher.errs["https://www.npmjs.com"] = download.ErrTimeout

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com", "www.yuque.com", "www.npmjs.com", "undefcc.github.io"))
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)

	var httpErr *download.HTTPError
	require.ErrorAs(t, summary.Outcomes[1].Err, &httpErr)
	assert.Equal(t, 429, httpErr.StatusCode)
	require.ErrorIs(t, summary.Outcomes[2].Err, download.ErrTimeout)
	assertTerminalState(t, f.fs, summary)

	require.Len(t, f.ledger.records, 4)
	assert.Equal(t, ledger.StatusFailed, f.ledger.records[1].Status)
	assert.Equal(t, summary.RunID, f.ledger.records[1].RunID)
}

func TestRunUndersizedDownloadIsFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.sizes["https://github.com"] = 512

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com"))
	assert.Equal(t, 1, summary.Failed)
	require.ErrorIs(t, summary.Outcomes[0].Err, ErrUndersized)
	assertTerminalState(t, f.fs, summary)
}

func TestRunPacesBetweenEntriesOnly(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.errs["https://www.yuque.com"] = errors.New("boom")
	f.runner(t).Run(context.Background(), sources(t, "github.com", "www.yuque.com", "www.npmjs.com"))
	assert.Equal(t, []time.Duration{time.Second, time.Second}, f.pauser.pauses)

	single := newFixture()
	single.runner(t).Run(context.Background(), sources(t, "github.com"))
	assert.Empty(t, single.pauser.pauses)
}

func TestRunStopsWhenCanceledDuringPause(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pauser.onCall = cancel

	summary := f.runner(t).Run(ctx, sources(t, "github.com", "www.yuque.com", "www.npmjs.com"))
	assert.True(t, summary.Canceled)
	assert.Equal(t, 1, summary.Total)
	assert.Len(t, f.fetcher.calls, 1)
}

func TestExitCodeThreshold(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		failures int
		want     int
	}{
		{0, 0},
		{5, 0},
		{6, 1},
	} {
		f := newFixture()
		hosts := make([]string, 0, 9)
		for i := 0; i < 9; i++ {
			host := fmt.Sprintf("site%d.example", i)
			hosts = append(hosts, host)
			if i < tc.failures {
				f.fetcher.errs["https://"+host] = &download.HTTPError{StatusCode: 503}
			}
		}
		summary := f.runner(t).Run(context.Background(), sources(t, hosts...))
		assert.Equal(t, tc.failures, summary.Failed)
		assert.Equal(t, tc.want, summary.ExitCode(DefaultFailureThreshold), "failures=%d", tc.failures)
	}
}

func TestRunCompressionResultIsReported(t *testing.T) {
	t.Parallel()

	f := newFixture()
	stub := &stubCompressor{res: &compress.Result{OriginalBytes: 20_000, CompressedBytes: 15_000}}
	f.deps.Compressor = stub

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com"))
	require.True(t, summary.Outcomes[0].Success)
	assert.EqualValues(t, 15_000, summary.Outcomes[0].Bytes)
	assert.EqualValues(t, 15_000, f.ledger.records[0].CompressedBytes)
}

func TestRunCodecUnavailableDegradesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	stub := &stubCompressor{err: fmt.Errorf("%w: probe failed", compress.ErrCodecUnavailable)}
	f.deps.Compressor = stub

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com", "www.npmjs.com", "www.yuque.com"))
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, stub.calls, "compressor must be swapped for a no-op after the codec disappears")
}

func TestRunCodecErrorKeepsDownload(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.deps.Compressor = &stubCompressor{err: &compress.CodecError{Op: "decode", Path: "x", Err: errors.New("bad")}}

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com"))
	assert.Equal(t, 1, summary.Succeeded)
	assert.EqualValues(t, 20_000, summary.Outcomes[0].Bytes)
}

func TestRunWritesPlaceholderOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.errs["https://www.yuque.com"] = errors.New("dns failure")
	f.deps.Placeholder = placeholder.NewWriter(f.fs, outDir, nil)

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com", "www.yuque.com"))
	assert.Empty(t, summary.Outcomes[0].Placeholder)
	assert.Equal(t, outDir+"/www-yuque-com.svg", summary.Outcomes[1].Placeholder)

	data, err := afero.ReadFile(f.fs, outDir+"/www-yuque-com.svg")
	require.NoError(t, err)
	assert.Contains(t, string(data), "www.yuque.com")
}

type stubRenderer struct {
	data []byte
	err  error
}

func (s stubRenderer) Capture(context.Context, string) ([]byte, error) {
	return s.data, s.err
}

func TestRunFallsBackToRenderer(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.errs["https://github.com"] = &download.HTTPError{StatusCode: 500}
	f.deps.Fallback = stubRenderer{data: bytes.Repeat([]byte{'r'}, 12_000)}

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com"))
	require.Equal(t, 1, summary.Succeeded)
	assert.True(t, summary.Outcomes[0].Fallback)
	assert.EqualValues(t, 12_000, summary.Outcomes[0].Bytes)
}

func TestRunRendererFailureKeepsOriginalError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.errs["https://github.com"] = download.ErrTooManyRedirects
	f.deps.Fallback = stubRenderer{err: errors.New("chrome not found")}

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com"))
	require.Equal(t, 1, summary.Failed)
	require.ErrorIs(t, summary.Outcomes[0].Err, download.ErrTooManyRedirects)
}

func TestRunMirrorsAndHashes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	store := memory.NewBlobStore()
	f.deps.Mirror = store
	f.deps.Hasher = hasherFunc(func(string) (string, error) { return "digest", nil })

	r, err := New(Config{OutputDir: outDir, MinBytes: minBytes, MirrorPrefix: "previews"}, f.deps, nil)
	require.NoError(t, err)
	summary := r.Run(context.Background(), sources(t, "github.com"))

	o := summary.Outcomes[0]
	assert.Equal(t, "memory://previews/github-com.png", o.BlobURI)
	assert.Equal(t, "digest", o.Hash)
	data, ok := store.Get("previews/github-com.png")
	require.True(t, ok)
	assert.Len(t, data, 20_000)
}

func TestRunMirrorAndLedgerErrorsAreNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	m := &storage.MockMirror{}
	m.On("PutObject", mock.Anything, "github-com.png", "image/png", mock.Anything).
		Return("", errors.New("bucket gone"))
	f.deps.Mirror = m
	f.ledger.err = errors.New("db down")

	summary := f.runner(t).Run(context.Background(), sources(t, "github.com"))
	assert.Equal(t, 1, summary.Succeeded)
	assert.Empty(t, summary.Outcomes[0].BlobURI)
	m.AssertExpectations(t)
}

func TestSummaryManifest(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.errs["https://www.yuque.com"] = &download.HTTPError{StatusCode: 404, URL: "https://api.microlink.io/"}
	summary := f.runner(t).Run(context.Background(), sources(t, "github.com", "www.yuque.com"))

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	m := summary.Manifest(now)
	require.Len(t, m.Entries, 2)
	assert.Equal(t, summary.RunID, m.RunID)
	assert.Equal(t, "github-com.png", m.Entries[0].File)
	assert.Equal(t, ledger.StatusFetched, m.Entries[0].Status)
	assert.Equal(t, ledger.StatusFailed, m.Entries[1].Status)
	assert.NotEmpty(t, m.Entries[1].Error)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MinBytes: 1}, Dependencies{}, nil)
	require.Error(t, err)
	_, err = New(Config{}, Dependencies{Fetcher: &fakeFetcher{}}, nil)
	require.ErrorIs(t, err, asset.ErrInvalidThreshold)
}

type hasherFunc func(string) (string, error)

func (h hasherFunc) HashFile(p string) (string, error) { return h(p) }
