package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/shasdl/internal/fetch"
	"github.com/local/shasdl/internal/pdfmerge"
	"github.com/local/shasdl/internal/shas"
)

// Fetcher makes one amud available on disk.
type Fetcher interface {
	Fetch(ctx context.Context, corpus shas.CorpusItem, page int) (string, fetch.Outcome, error)
}

// Merger concatenates PDFs.
type Merger interface {
	Merge(ctx context.Context, inputs []string, output string) (pdfmerge.Result, error)
}

// Publisher copies a finished artifact somewhere else and returns its location.
type Publisher interface {
	Publish(ctx context.Context, localPath string, meta map[string]string) (string, error)
}

// Progress receives fetch progress; counts only ever grow.
type Progress interface {
	Start(total int)
	Advance(page int, outcome fetch.Outcome)
	Finish()
}

// MergePlan says what to build from the downloaded amudim.
type MergePlan struct {
	MergeAllIntoOne    bool
	MergeSidesIntoLeaf bool
	KeepIntermediates  bool
}

// Job is one download request.
type Job struct {
	ID                 string
	Selection          shas.SelectionSpec
	Plan               MergePlan
	StopOnFirstFailure bool
	Progress           Progress
}

// Deps are the collaborators of a Pipeline, built once by the front-end.
type Deps struct {
	Catalog   *shas.Catalog
	Fetcher   Fetcher
	Merger    Merger
	Publisher Publisher
	OutputDir string
}

// Pipeline resolves a selection, fetches its pages, merges and cleans up.
type Pipeline struct {
	deps     Deps
	resolver *shas.Resolver
	merges   *MergeOrchestrator
}

func NewPipeline(deps Deps) (*Pipeline, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pipeline: catalog is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if deps.Merger == nil {
		return nil, errors.New("pipeline: merger is required")
	}
	if deps.OutputDir == "" {
		deps.OutputDir = "downloads"
	}
	return &Pipeline{
		deps:     deps,
		resolver: shas.NewResolver(deps.Catalog),
		merges:   NewMergeOrchestrator(deps.Merger, deps.OutputDir),
	}, nil
}

// Catalog returns the catalog the pipeline resolves against.
func (p *Pipeline) Catalog() *shas.Catalog { return p.deps.Catalog }

// Validate resolves the selection without doing any I/O.
func (p *Pipeline) Validate(spec shas.SelectionSpec) (shas.Resolution, error) {
	return p.resolver.Resolve(spec)
}

// Run executes job. Only validation and setup problems are returned as
// errors; per-page and per-merge failures are recorded in the Report.
func (p *Pipeline) Run(ctx context.Context, job Job) (Report, error) {
	start := time.Now()
	rep := Report{JobID: job.ID, Masechta: job.Selection.Masechta, Descriptor: job.Selection.Descriptor()}

	res, err := p.resolver.Resolve(job.Selection)
	if err != nil {
		return rep, err
	}
	rep.Masechta = res.Corpus.Name
	rep.Requested = len(res.Pages)

	logger := log.With().Str("job_id", job.ID).Str("masechta", res.Corpus.Name).Str("selection", rep.Descriptor).Logger()
	if len(res.Pages) == 0 {
		logger.Info().Msg("selection is empty, nothing to do")
		rep.Duration = time.Since(start)
		return rep, nil
	}

	if err := os.MkdirAll(shas.MasechtaDir(p.deps.OutputDir, res.Corpus.Name), 0o755); err != nil {
		return rep, fmt.Errorf("create output dir: %w", err)
	}

	logger.Info().Int("pages", len(res.Pages)).Msg("starting download")
	downloaded := p.fetchAll(ctx, job, res, &rep)

	switch {
	case rep.Cancelled:
		logger.Warn().Int("downloaded", len(downloaded)).Msg("job cancelled, skipping merge")
	case rep.Aborted:
		logger.Warn().Int("downloaded", len(downloaded)).Msg("stopping after first failure, skipping merge")
	default:
		p.mergeAndClean(ctx, job, res.Corpus, rep.Descriptor, downloaded, &rep)
	}

	rep.Duration = time.Since(start)
	logger.Info().
		Int("downloaded", rep.Downloaded).
		Int("cache_hits", rep.CacheHits).
		Int("missed", len(rep.Missed)).
		Int("failed", len(rep.Failed)).
		Int("merged", len(rep.LeafFiles)+boolToInt(rep.FinalPath != "")).
		Int("deleted", rep.Deleted).
		Dur("duration", rep.Duration).
		Msg("job finished")
	return rep, nil
}

func (p *Pipeline) fetchAll(ctx context.Context, job Job, res shas.Resolution, rep *Report) []AmudFile {
	if job.Progress != nil {
		job.Progress.Start(len(res.Pages))
		defer job.Progress.Finish()
	}

	var downloaded []AmudFile
	for _, page := range res.Pages {
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}
		path, outcome, err := p.deps.Fetcher.Fetch(ctx, res.Corpus, page)
		if job.Progress != nil {
			job.Progress.Advance(page, outcome)
		}
		switch outcome {
		case fetch.Downloaded:
			rep.Downloaded++
		case fetch.CacheHit:
			rep.CacheHits++
		case fetch.Missed:
			rep.Missed = append(rep.Missed, page)
		default:
			if ctx.Err() != nil {
				rep.Cancelled = true
				return downloaded
			}
			rep.Failed = append(rep.Failed, page)
			rep.Errors = append(rep.Errors, err.Error())
		}
		if outcome.OK() {
			addr, _ := shas.ToAddress(page)
			downloaded = append(downloaded, AmudFile{Page: page, Address: addr, Path: path})
			continue
		}
		if job.StopOnFirstFailure {
			rep.Aborted = true
			break
		}
	}
	return downloaded
}

func (p *Pipeline) mergeAndClean(ctx context.Context, job Job, corpus shas.CorpusItem, descriptor string, downloaded []AmudFile, rep *Report) {
	if len(downloaded) == 0 || !(job.Plan.MergeAllIntoOne || job.Plan.MergeSidesIntoLeaf) {
		return
	}
	mr, err := p.merges.Merge(ctx, corpus, descriptor, downloaded, job.Plan)
	rep.LeafFiles = mr.LeafPaths
	rep.FinalPath = mr.FinalPath
	for _, f := range mr.Failures {
		rep.Errors = append(rep.Errors, f.Error())
	}
	if err != nil {
		rep.Cancelled = ctx.Err() != nil
		rep.Errors = append(rep.Errors, err.Error())
		return
	}

	rep.Deleted = Cleanup(mr.Deletable)

	if p.deps.Publisher != nil && rep.FinalPath != "" {
		url, err := p.deps.Publisher.Publish(ctx, rep.FinalPath, map[string]string{
			"masechta":  corpus.Name,
			"selection": descriptor,
			"job_id":    job.ID,
		})
		if err != nil {
			log.Error().Err(err).Str("file", rep.FinalPath).Msg("publishing merged PDF failed")
			rep.Errors = append(rep.Errors, err.Error())
		} else {
			rep.PublishedURL = url
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
