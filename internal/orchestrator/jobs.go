package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/shasdl/internal/fetch"
	"github.com/local/shasdl/internal/metrics"
	"github.com/local/shasdl/internal/shas"
)

const finishTimeout = 5 * time.Second

// ErrInvalidMessage marks a queue payload that can never be run.
var ErrInvalidMessage = errors.New("invalid job message")

// HandleMessage runs one queued job to completion and records its outcome in
// the status store. Only undecodable payloads are returned as errors; every
// other failure ends up in the job status.
func (o *Orchestrator) HandleMessage(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.JobID == "" {
		return fmt.Errorf("%w: missing job_id", ErrInvalidMessage)
	}
	logger := log.With().Str("job_id", msg.JobID).Str("masechta", msg.Request.Masechta).Logger()

	st, ok, err := o.deps.Status.Get(ctx, msg.JobID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read job status")
	}
	if ok && isFinal(st.Status) {
		logger.Info().Str("status", st.Status).Msg("job already finished, skipping redelivered message")
		return nil
	}
	start := time.Now()
	if st.Start != nil {
		start = *st.Start
	}

	if cancelled, _ := o.deps.Queue.IsCancelled(ctx, msg.JobID); cancelled {
		logger.Warn().Msg("job cancelled before processing; skipping")
		o.finish(ctx, msg.JobID, start, StateCancelled, "cancelled before start", nil)
		metrics.IncJob(StateCancelled)
		return nil
	}

	spec, err := msg.Request.Selection()
	if err != nil {
		o.finish(ctx, msg.JobID, start, StateFailed, err.Error(), nil)
		metrics.IncJob(StateFailed)
		return nil
	}
	stop := o.deps.StopOnFirstFailure
	if msg.Request.StopOnFailure != nil {
		stop = *msg.Request.StopOnFailure
	}

	_ = o.deps.Status.Set(ctx, msg.JobID, Status{Status: StateProcessing, Message: "downloading", Start: &start,
		Metadata: map[string]any{"masechta": msg.Request.Masechta}})

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go o.monitorCancellation(jobCtx, msg.JobID, cancel)

	rep, err := o.deps.Pipeline.Run(jobCtx, Job{
		ID:                 msg.JobID,
		Selection:          spec,
		Plan:               msg.Request.Plan(),
		StopOnFirstFailure: stop,
		Progress:           &statusProgress{ctx: ctx, o: o, jobID: msg.JobID, start: start},
	})
	cancel()

	if ctx.Err() != nil {
		// The worker itself is shutting down; this is not a user cancel.
		logger.Warn().Msg("job interrupted by worker shutdown")
		var last *Report
		if err == nil {
			last = &rep
		}
		o.finish(ctx, msg.JobID, start, StateFailed, "interrupted by worker shutdown", last)
		metrics.IncJob(StateFailed)
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		o.finish(ctx, msg.JobID, start, StateFailed, err.Error(), nil)
		metrics.IncJob(StateFailed)
		return nil
	}
	state := StateCompleted
	switch rep.Result() {
	case "cancelled":
		state = StateCancelled
	case "aborted":
		state = StateAborted
	}
	o.finish(ctx, msg.JobID, start, state, rep.Summary(), &rep)
	metrics.IncJob(state)
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, jobID string, start time.Time, state, message string, rep *Report) {
	end := time.Now()
	st := Status{Status: state, Message: message, Start: &start, End: &end, Metadata: map[string]any{}}
	if state == StateCompleted {
		st.Progress = 100
	}
	if rep != nil {
		st.Metadata = reportMetadata(*rep)
		if rep.Requested > 0 {
			st.Progress = percent(rep.Available()+len(rep.Missed)+len(rep.Failed), rep.Requested)
		}
	}
	// ctx may already be cancelled by a worker shutdown; the final status
	// must still be written.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := o.deps.Status.Set(wctx, jobID, st); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to store final job status")
	}
}

func reportMetadata(rep Report) map[string]any {
	m := map[string]any{
		"masechta":   rep.Masechta,
		"selection":  rep.Descriptor,
		"requested":  rep.Requested,
		"downloaded": rep.Downloaded,
		"cache_hits": rep.CacheHits,
		"missed":     rep.Missed,
		"failed":     rep.Failed,
		"deleted":    rep.Deleted,
	}
	if len(rep.LeafFiles) > 0 {
		m["daf_files"] = rep.LeafFiles
	}
	if rep.FinalPath != "" {
		m["final_path"] = rep.FinalPath
	}
	if rep.PublishedURL != "" {
		m["published_url"] = rep.PublishedURL
	}
	if len(rep.Errors) > 0 {
		m["errors"] = rep.Errors
	}
	return m
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}

// statusProgress mirrors pipeline progress into the status store.
type statusProgress struct {
	ctx   context.Context
	o     *Orchestrator
	jobID string
	start time.Time

	total, done, missed int
}

func (p *statusProgress) Start(total int) {
	p.total = total
	p.write("downloading")
}

func (p *statusProgress) Advance(page int, outcome fetch.Outcome) {
	p.done++
	if !outcome.OK() {
		p.missed++
	}
	addr, _ := shas.ToAddress(page)
	p.write(fmt.Sprintf("amud %s %s", addr, outcome))
}

func (p *statusProgress) Finish() { p.write("merging") }

func (p *statusProgress) write(message string) {
	// the last few percent are left for merging
	prog := percent(p.done, p.total) * 9 / 10
	err := p.o.deps.Status.Set(p.ctx, p.jobID, Status{Status: StateProcessing, Progress: prog, Message: message, Start: &p.start,
		Metadata: map[string]any{"requested": p.total, "fetched": p.done, "missing": p.missed}})
	if err != nil {
		log.Warn().Err(err).Str("job_id", p.jobID).Msg("failed to update job progress")
	}
}
