package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/local/shasdl/internal/config"
	"github.com/local/shasdl/internal/fetch"
	"github.com/local/shasdl/internal/limiter"
	"github.com/local/shasdl/internal/orchestrator"
	"github.com/local/shasdl/internal/pdfmerge"
	"github.com/local/shasdl/internal/shas"
	"github.com/local/shasdl/internal/storage"
)

// app builds the core collaborators from configuration once per command.
type app struct {
	cfg config.Config
}

func (a *app) catalog() (*shas.Catalog, error) {
	return shas.LoadCatalog(a.cfg.Fetch.CatalogFile)
}

func (a *app) source(ctx context.Context) (storage.Source, error) {
	sc := a.cfg.Source
	switch sc.Kind {
	case "", "http":
		return storage.NewHTTPSource(storage.HTTPOptions{
			BaseURL:   sc.HTTPBaseURL,
			UserAgent: sc.HTTPUserAgent,
			Timeout:   a.cfg.Fetch.RequestTimeout,
		}), nil
	case "drive":
		return storage.NewDriveSource(ctx, storage.DriveOptions{
			CredentialsFile: sc.DriveCredentialsFile,
			RootFolderID:    sc.DriveRootFolderID,
		})
	case "s3":
		return storage.NewS3Source(ctx, storage.S3Options{
			Bucket:          sc.S3Bucket,
			Prefix:          sc.S3Prefix,
			Region:          sc.S3Region,
			Endpoint:        sc.S3Endpoint,
			AccessKeyID:     sc.S3AccessKeyID,
			SecretAccessKey: sc.S3SecretAccessKey,
		})
	}
	return nil, fmt.Errorf("unknown source %q (want drive, http or s3)", sc.Kind)
}

// publisher returns nil when no result bucket is configured.
func (a *app) publisher(ctx context.Context) (orchestrator.Publisher, error) {
	rc := a.cfg.Result
	if rc.S3Bucket == "" {
		return nil, nil
	}
	p, err := storage.NewS3Publisher(ctx, storage.S3Options{
		Bucket:          rc.S3Bucket,
		Prefix:          rc.S3Prefix,
		Region:          a.cfg.Source.S3Region,
		Endpoint:        a.cfg.Source.S3Endpoint,
		AccessKeyID:     a.cfg.Source.S3AccessKeyID,
		SecretAccessKey: a.cfg.Source.S3SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// pipeline wires catalog, source, pacing, fetcher, merger and publisher.
// rdb shares source cooldowns between processes and may be nil.
func (a *app) pipeline(ctx context.Context, rdb *redis.Client) (*orchestrator.Pipeline, storage.Source, error) {
	cat, err := a.catalog()
	if err != nil {
		return nil, nil, err
	}
	src, err := a.source(ctx)
	if err != nil {
		return nil, nil, err
	}
	fc := a.cfg.Fetch
	pacer := limiter.New(limiter.Options{
		Interval:    fc.MinInterval,
		BaseBackoff: fc.CooldownBase,
		MaxBackoff:  fc.CooldownMax,
		Redis:       rdb,
	})
	fetcher, err := fetch.New(fetch.Options{
		OutputDir:      fc.OutputDir,
		Source:         src,
		Retry:          fetch.RetryPolicy{MaxAttempts: fc.MaxAttempts, BaseDelay: fc.RetryBaseDelay},
		RequestTimeout: fc.RequestTimeout,
		Pacer:          pacer,
	})
	if err != nil {
		return nil, nil, err
	}
	pub, err := a.publisher(ctx)
	if err != nil {
		return nil, nil, err
	}
	log.Debug().Str("source", src.Name()).Str("output_dir", fc.OutputDir).Int("masechtos", cat.Len()).Msg("pipeline ready")
	pipe, err := orchestrator.NewPipeline(orchestrator.Deps{
		Catalog:   cat,
		Fetcher:   fetcher,
		Merger:    pdfmerge.New(nil),
		Publisher: pub,
		OutputDir: fc.OutputDir,
	})
	return pipe, src, err
}

// barProgress draws fetch progress on w.
type barProgress struct {
	w        io.Writer
	bar      *progressbar.ProgressBar
	problems int
}

func newBarProgress(w io.Writer) *barProgress { return &barProgress{w: w} }

func (p *barProgress) Start(total int) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription("Downloading amudim"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.w) }),
	)
}

func (p *barProgress) Advance(_ int, outcome fetch.Outcome) {
	if p.bar == nil {
		return
	}
	if !outcome.OK() {
		p.problems++
		p.bar.Describe(fmt.Sprintf("Downloading amudim (%d unavailable)", p.problems))
	}
	_ = p.bar.Add(1)
}

func (p *barProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
