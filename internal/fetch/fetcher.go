package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/shasdl/internal/metrics"
	"github.com/local/shasdl/internal/shas"
	"github.com/local/shasdl/internal/storage"
)

// Outcome is the result of fetching one amud.
type Outcome int

const (
	Downloaded Outcome = iota
	CacheHit
	Missed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Downloaded:
		return "downloaded"
	case CacheHit:
		return "cache_hit"
	case Missed:
		return "missed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// OK reports whether the amud file is on disk after the fetch.
func (o Outcome) OK() bool { return o == Downloaded || o == CacheHit }

// Pacer throttles remote calls per source.
type Pacer interface {
	Wait(ctx context.Context, source string) error
	Throttled(ctx context.Context, source string)
	Recovered(ctx context.Context, source string)
}

// Options configures a Fetcher.
type Options struct {
	OutputDir      string
	Source         storage.Source
	Retry          RetryPolicy
	RequestTimeout time.Duration
	Pacer          Pacer
}

// Fetcher ensures amud files exist under {OutputDir}/{masechta}/, downloading
// only what is not already on disk.
type Fetcher struct {
	dir     string
	src     storage.Source
	retry   RetryPolicy
	timeout time.Duration
	pacer   Pacer
	locks   *keyLock
}

func New(opts Options) (*Fetcher, error) {
	if opts.Source == nil {
		return nil, errors.New("fetch: source is required")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "downloads"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	return &Fetcher{
		dir:     opts.OutputDir,
		src:     opts.Source,
		retry:   opts.Retry,
		timeout: opts.RequestTimeout,
		pacer:   opts.Pacer,
		locks:   newKeyLock(),
	}, nil
}

// OutputDir returns the download root.
func (f *Fetcher) OutputDir() string { return f.dir }

// SourceName returns the name of the remote source.
func (f *Fetcher) SourceName() string { return f.src.Name() }

// Path returns where the amud for page is stored.
func (f *Fetcher) Path(corpus shas.CorpusItem, addr shas.Address) string {
	return filepath.Join(shas.MasechtaDir(f.dir, corpus.Name), shas.AmudFileName(corpus.Name, addr))
}

// Fetch makes sure page of corpus is on disk. A Missed or Failed outcome comes
// with the cause; the caller decides whether to continue.
func (f *Fetcher) Fetch(ctx context.Context, corpus shas.CorpusItem, page int) (string, Outcome, error) {
	addr, err := shas.ToAddress(page)
	if err != nil {
		return "", Failed, err
	}
	path := f.Path(corpus, addr)

	unlock := f.locks.Lock(path)
	defer unlock()

	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		log.Debug().Str("file", path).Msg("amud already on disk")
		metrics.IncFetch(f.src.Name(), CacheHit.String())
		return path, CacheHit, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		metrics.IncFetch(f.src.Name(), Failed.String())
		return "", Failed, fmt.Errorf("create masechta dir: %w", err)
	}

	req := storage.Request{Corpus: corpus, Page: page, Address: addr, Filename: filepath.Base(path)}
	outcome, err := f.download(ctx, req, path)
	metrics.IncFetch(f.src.Name(), outcome.String())
	if err != nil {
		return "", outcome, err
	}
	return path, outcome, nil
}

func (f *Fetcher) download(ctx context.Context, req storage.Request, path string) (Outcome, error) {
	source := f.src.Name()
	maxAttempts := f.retry.attempts()

	for attempt := 1; ; attempt++ {
		if f.pacer != nil {
			if err := f.pacer.Wait(ctx, source); err != nil {
				return Failed, fmt.Errorf("%s: %w", req.Filename, err)
			}
		}

		start := time.Now()
		err := f.attempt(ctx, req, path)
		metrics.ObserveDownload(source, time.Since(start))
		if err == nil {
			if f.pacer != nil {
				f.pacer.Recovered(ctx, source)
			}
			log.Info().Str("file", req.Filename).Int("page", req.Page).Int("attempt", attempt).Msg("downloaded amud")
			return Downloaded, nil
		}

		switch classify(err) {
		case classMissing:
			log.Warn().Str("file", req.Filename).Int("page", req.Page).Str("source", source).Msg("amud not found at source")
			return Missed, err
		case classPermanent:
			log.Error().Err(err).Str("file", req.Filename).Int("page", req.Page).Msg("amud download failed permanently")
			return Failed, err
		}
		if ctx.Err() != nil {
			return Failed, fmt.Errorf("%s: %w", req.Filename, ctx.Err())
		}
		if isThrottle(err) && f.pacer != nil {
			f.pacer.Throttled(ctx, source)
		}
		if attempt >= maxAttempts {
			log.Error().Err(err).Str("file", req.Filename).Int("attempts", attempt).Msg("giving up on amud")
			return Failed, fmt.Errorf("%s: giving up after %d attempts: %w", req.Filename, attempt, err)
		}

		delay := f.retry.Backoff(attempt)
		log.Warn().Err(err).
			Str("file", req.Filename).
			Int("attempt", attempt).
			Bool("timeout", isTimeout(err)).
			Dur("backoff", delay).
			Msg("amud download failed, retrying")
		metrics.IncRetry(source)
		if err := f.retry.sleep(ctx, delay); err != nil {
			return Failed, fmt.Errorf("%s: %w", req.Filename, err)
		}
	}
}

// attempt downloads into {path}.part and renames it into place. The partial
// file never survives a failed attempt.
func (f *Fetcher) attempt(ctx context.Context, req storage.Request, path string) (err error) {
	part := path + ".part"
	out, err := os.Create(part)
	if err != nil {
		return storage.Permanent(fmt.Errorf("create %s: %w", part, err))
	}
	defer func() {
		if err != nil {
			_ = os.Remove(part)
		}
	}()

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err = f.src.Download(reqCtx, req, out); err != nil {
		_ = out.Close()
		return err
	}
	st, err := out.Stat()
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("stat %s: %w", part, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", part, err)
	}
	if st.Size() == 0 {
		return fmt.Errorf("%s: empty response from %s", req.Filename, f.src.Name())
	}
	if err = os.Rename(part, path); err != nil {
		return fmt.Errorf("rename %s: %w", part, err)
	}
	return nil
}
