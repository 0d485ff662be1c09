package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/shasdl/internal/shas"
	"github.com/local/shasdl/internal/storage"
)

var makkos = shas.CorpusItem{Name: "Makkos", RemoteID: "36093", TotalPages: 46}

// fakeSource writes a small PDF header, or returns the scripted error for the
// Nth call of a page.
type fakeSource struct {
	mu    sync.Mutex
	calls map[int]int
	errs  map[int][]error
	total atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: map[int]int{}, errs: map[int][]error{}}
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Download(_ context.Context, req storage.Request, dst storage.Sink) error {
	s.total.Add(1)
	s.mu.Lock()
	n := s.calls[req.Page]
	s.calls[req.Page] = n + 1
	var err error
	if script := s.errs[req.Page]; n < len(script) {
		err = script[n]
	}
	s.mu.Unlock()

	if err != nil {
		// leave something in the partial file to check that it gets removed
		_, _ = dst.Write([]byte("%PDF-partial"))
		return err
	}
	_, werr := fmt.Fprintf(dst, "%%PDF-1.4 %s", req.Filename)
	return werr
}

func (s *fakeSource) callsFor(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[page]
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return nil
}

func newTestFetcher(t *testing.T, src storage.Source, sleeps *recordedSleeps) *Fetcher {
	t.Helper()
	f, err := New(Options{
		OutputDir: t.TempDir(),
		Source:    src,
		Retry:     RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Sleep: sleeps.sleep},
	})
	require.NoError(t, err)
	return f
}

func TestFetchDownloadsThenHitsCache(t *testing.T) {
	src := newFakeSource()
	f := newTestFetcher(t, src, &recordedSleeps{})
	ctx := context.Background()

	path, outcome, err := f.Fetch(ctx, makkos, 1)
	require.NoError(t, err)
	assert.Equal(t, Downloaded, outcome)
	assert.Equal(t, filepath.Join(f.OutputDir(), "Makkos", "Makkos_Daf2_Amuda.pdf"), path)
	assert.FileExists(t, path)
	assert.NoFileExists(t, path+".part")

	path2, outcome, err := f.Fetch(ctx, makkos, 1)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, outcome)
	assert.Equal(t, path, path2)
	assert.Equal(t, int32(1), src.total.Load())
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	src := newFakeSource()
	src.errs[7] = []error{fmt.Errorf("page 7: %w", storage.ErrNotFound)}
	sleeps := &recordedSleeps{}
	f := newTestFetcher(t, src, sleeps)

	path, outcome, err := f.Fetch(context.Background(), makkos, 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, Missed, outcome)
	assert.Empty(t, path)
	assert.Equal(t, 1, src.callsFor(7))
	assert.Empty(t, sleeps.delays)
	assert.NoFileExists(t, f.Path(makkos, shas.Address{Leaf: 5, Side: shas.Front})+".part")
}

func TestFetchRetriesTransientWithLinearBackoff(t *testing.T) {
	src := newFakeSource()
	transient := &storage.HTTPError{StatusCode: 503, Source: "fake"}
	src.errs[3] = []error{transient, transient, errors.New("connection reset by peer")}
	sleeps := &recordedSleeps{}
	f := newTestFetcher(t, src, sleeps)

	path, outcome, err := f.Fetch(context.Background(), makkos, 3)
	require.NoError(t, err)
	assert.Equal(t, Downloaded, outcome)
	assert.FileExists(t, path)
	assert.Equal(t, 4, src.callsFor(3))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, sleeps.delays)
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	src := newFakeSource()
	boom := errors.New("i/o timeout")
	src.errs[2] = []error{boom, boom, boom, boom, boom, boom}
	sleeps := &recordedSleeps{}
	f := newTestFetcher(t, src, sleeps)

	path, outcome, err := f.Fetch(context.Background(), makkos, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, outcome)
	assert.Empty(t, path)
	assert.Equal(t, 5, src.callsFor(2))
	assert.Len(t, sleeps.delays, 4)

	target := f.Path(makkos, shas.Address{Leaf: 2, Side: shas.Back})
	assert.NoFileExists(t, target)
	assert.NoFileExists(t, target+".part")
}

func TestFetchPermanentErrorIsNotRetried(t *testing.T) {
	src := newFakeSource()
	src.errs[4] = []error{storage.Permanent(&storage.HTTPError{StatusCode: 403, Source: "fake"})}
	sleeps := &recordedSleeps{}
	f := newTestFetcher(t, src, sleeps)

	_, outcome, err := f.Fetch(context.Background(), makkos, 4)
	require.Error(t, err)
	assert.Equal(t, Failed, outcome)
	assert.Equal(t, 1, src.callsFor(4))
	assert.Empty(t, sleeps.delays)
}

func TestFetchEmptyBodyIsRetried(t *testing.T) {
	f := newTestFetcher(t, emptyOnceSource{n: new(atomic.Int32)}, &recordedSleeps{})
	path, outcome, err := f.Fetch(context.Background(), makkos, 5)
	require.NoError(t, err)
	assert.Equal(t, Downloaded, outcome)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}

type emptyOnceSource struct{ n *atomic.Int32 }

func (emptyOnceSource) Name() string { return "empty" }
func (s emptyOnceSource) Download(_ context.Context, _ storage.Request, dst storage.Sink) error {
	if s.n.Add(1) == 1 {
		return nil
	}
	_, err := dst.Write([]byte("%PDF-1.4"))
	return err
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	src := newFakeSource()
	src.errs[1] = []error{errors.New("network unreachable")}
	ctx, cancel := context.WithCancel(context.Background())
	f, err := New(Options{
		OutputDir: t.TempDir(),
		Source:    src,
		Retry: RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}},
	})
	require.NoError(t, err)

	_, outcome, err := f.Fetch(ctx, makkos, 1)
	assert.Equal(t, Failed, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.callsFor(1))
}

func TestFetchRejectsInvalidPage(t *testing.T) {
	src := newFakeSource()
	f := newTestFetcher(t, src, &recordedSleeps{})
	_, outcome, err := f.Fetch(context.Background(), makkos, 0)
	assert.Equal(t, Failed, outcome)
	assert.True(t, shas.IsValidation(err))
	assert.Zero(t, src.total.Load())
}

func TestFetchWholeMasechta(t *testing.T) {
	src := newFakeSource()
	f := newTestFetcher(t, src, &recordedSleeps{})
	var last string
	for p := 1; p <= makkos.TotalPages; p++ {
		path, outcome, err := f.Fetch(context.Background(), makkos, p)
		require.NoError(t, err)
		require.Equal(t, Downloaded, outcome)
		last = path
	}
	assert.Equal(t, int32(46), src.total.Load())
	assert.Equal(t, "Makkos_Daf24_Amudb.pdf", filepath.Base(last))
}

func TestConcurrentFetchesOfSamePageDownloadOnce(t *testing.T) {
	src := newFakeSource()
	f := newTestFetcher(t, src, &recordedSleeps{})

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, outcomes[i], _ = f.Fetch(context.Background(), makkos, 9)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.total.Load())
	downloaded := 0
	for _, o := range outcomes {
		assert.True(t, o.OK())
		if o == Downloaded {
			downloaded++
		}
	}
	assert.Equal(t, 1, downloaded)
	assert.Zero(t, f.locks.size())
}

type countingPacer struct {
	waits, throttled, recovered atomic.Int32
}

func (p *countingPacer) Wait(context.Context, string) error { p.waits.Add(1); return nil }
func (p *countingPacer) Throttled(context.Context, string)  { p.throttled.Add(1) }
func (p *countingPacer) Recovered(context.Context, string)  { p.recovered.Add(1) }

func TestFetchUsesPacer(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"http 429", &storage.HTTPError{StatusCode: 429, Source: "fake"}},
		{"marked throttled", fmt.Errorf("drive: download: %w", storage.Throttled(errors.New("rateLimitExceeded")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			src.errs[1] = []error{tt.err}
			pacer := &countingPacer{}
			f, err := New(Options{
				OutputDir: t.TempDir(),
				Source:    src,
				Pacer:     pacer,
				Retry:     RetryPolicy{MaxAttempts: 3, Sleep: (&recordedSleeps{}).sleep},
			})
			require.NoError(t, err)

			_, outcome, err := f.Fetch(context.Background(), makkos, 1)
			require.NoError(t, err)
			assert.Equal(t, Downloaded, outcome)
			assert.Equal(t, int32(2), pacer.waits.Load())
			assert.Equal(t, int32(1), pacer.throttled.Load())
			assert.Equal(t, int32(1), pacer.recovered.Load())
		})
	}
}

func TestNewRequiresSource(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
