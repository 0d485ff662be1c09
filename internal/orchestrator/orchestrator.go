package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/shasdl/internal/metrics"
	"github.com/local/shasdl/internal/shas"
	"github.com/local/shasdl/internal/store"
)

// Job states stored in the status store.
const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
	StateCancelled  = "cancelled"
	StateAborted    = "aborted"
)

type Queue interface {
	Enqueue(ctx context.Context, payload []byte) (string, error)
	CancelJob(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// Status is the stored state of a job; *store.RedisStatus is the StatusStore.
type Status = store.Status

type StatusStore interface {
	Set(ctx context.Context, jobID string, st Status) error
	Get(ctx context.Context, jobID string) (Status, bool, error)
}

type Dependencies struct {
	Queue    Queue
	Status   StatusStore
	Pipeline *Pipeline
	// StopOnFirstFailure applies to jobs that do not set stop_on_failure.
	StopOnFirstFailure bool
	// PollInterval is how often a running job checks for cancellation.
	PollInterval time.Duration
}

// Orchestrator exposes the job API and runs queued jobs.
type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.PollInterval <= 0 {
		deps.PollInterval = time.Second
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /catalog", o.handleCatalog)
	mux.HandleFunc("POST /jobs", o.handleCreateJob)
	mux.HandleFunc("GET /jobs/{id}", o.handleJobStatus)
	mux.HandleFunc("POST /jobs/{id}/cancel", o.handleCancelJob)
}

// JobRequest is the body of POST /jobs.
type JobRequest struct {
	Masechta          string   `json:"masechta"`
	SelectBy          string   `json:"select_by"`
	Mode              string   `json:"mode"`
	Start             string   `json:"start,omitempty"`
	End               string   `json:"end,omitempty"`
	Items             []string `json:"items,omitempty"`
	MergeAll          bool     `json:"merge_all"`
	MergeDapim        bool     `json:"merge_dapim"`
	KeepIntermediates bool     `json:"keep_intermediates"`
	StopOnFailure     *bool    `json:"stop_on_failure,omitempty"`
}

// Selection converts the request into a SelectionSpec.
func (r JobRequest) Selection() (shas.SelectionSpec, error) {
	by, err := shas.ParseAddressing(r.SelectBy)
	if err != nil {
		return shas.SelectionSpec{}, err
	}
	mode, err := shas.ParseMode(r.Mode)
	if err != nil {
		return shas.SelectionSpec{}, err
	}
	return shas.SelectionSpec{
		Masechta:   r.Masechta,
		Addressing: by,
		Mode:       mode,
		RangeStart: r.Start,
		RangeEnd:   r.End,
		Items:      r.Items,
	}, nil
}

// Plan returns the merge plan of the request.
func (r JobRequest) Plan() MergePlan {
	return MergePlan{MergeAllIntoOne: r.MergeAll, MergeSidesIntoLeaf: r.MergeDapim, KeepIntermediates: r.KeepIntermediates}
}

// JobMessage is what travels through the queue.
type JobMessage struct {
	JobID     string     `json:"job_id"`
	Request   JobRequest `json:"request"`
	Submitted time.Time  `json:"submitted"`
}

type createResp struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Pages   int    `json:"pages"`
	Message string `json:"message,omitempty"`
}

type catalogEntry struct {
	Name       string `json:"name"`
	TotalPages int    `json:"total_pages"`
	LastDaf    string `json:"last_daf"`
}

func (o *Orchestrator) handleCatalog(w http.ResponseWriter, r *http.Request) {
	items := o.deps.Pipeline.Catalog().Items()
	out := make([]catalogEntry, 0, len(items))
	for _, it := range items {
		last, _ := shas.ToAddress(it.TotalPages)
		out = append(out, catalogEntry{Name: it.Name, TotalPages: it.TotalPages, LastDaf: last.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (o *Orchestrator) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	spec, err := req.Selection()
	if err == nil {
		var res shas.Resolution
		if res, err = o.deps.Pipeline.Validate(spec); err == nil {
			o.enqueue(w, r, req, res)
			return
		}
	}
	if shas.IsValidation(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Error().Err(err).Msg("job validation failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (o *Orchestrator) enqueue(w http.ResponseWriter, r *http.Request, req JobRequest, res shas.Resolution) {
	req.Masechta = res.Corpus.Name
	msg := JobMessage{JobID: uuid.NewString(), Request: req, Submitted: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	start := msg.Submitted
	_ = o.deps.Status.Set(r.Context(), msg.JobID, Status{Status: StateQueued, Message: "queued", Start: &start,
		Metadata: map[string]any{"masechta": res.Corpus.Name, "requested": len(res.Pages)}})
	if _, err := o.deps.Queue.Enqueue(r.Context(), data); err != nil {
		log.Error().Err(err).Str("job_id", msg.JobID).Msg("enqueue failed")
		end := time.Now()
		_ = o.deps.Status.Set(r.Context(), msg.JobID, Status{Status: StateFailed, Message: "queue unavailable", Start: &start, End: &end})
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	log.Info().Str("job_id", msg.JobID).Str("masechta", res.Corpus.Name).Int("pages", len(res.Pages)).Msg("job created")
	writeJSON(w, http.StatusCreated, createResp{JobID: msg.JobID, Status: StateQueued, Pages: len(res.Pages)})
}

func (o *Orchestrator) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
		"metadata":   st.Metadata,
	})
}

type cancelReq struct {
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req cancelReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if isFinal(st.Status) {
		http.Error(w, "job already "+st.Status, http.StatusConflict)
		return
	}
	if err := o.deps.Queue.CancelJob(r.Context(), id); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	st.Message = "cancellation requested"
	if req.Reason != "" {
		st.Message += ": " + req.Reason
	}
	_ = o.deps.Status.Set(r.Context(), id, st)
	log.Info().Str("job_id", id).Str("reason", req.Reason).Msg("job cancellation requested")
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "status": "cancelling"})
}

func isFinal(state string) bool {
	switch state {
	case StateCompleted, StateFailed, StateCancelled, StateAborted:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
