package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/shasdl/internal/queue"
	"github.com/local/shasdl/internal/store"
)

type apiFixture struct {
	o      *Orchestrator
	q      *queue.RedisQueue
	status StatusStore
	src    *pageSource
	srv    *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q, err := queue.NewWithClient(rdb, "shasdl:jobs", "workers")
	require.NoError(t, err)
	status := store.NewWithClient(rdb, time.Hour)

	src := &pageSource{}
	p, _ := newTestPipeline(t, src)
	o := New(Dependencies{Queue: q, Status: status, Pipeline: p, PollInterval: 5 * time.Millisecond})

	mux := http.NewServeMux()
	o.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &apiFixture{o: o, q: q, status: status, src: src, srv: srv}
}

func (f *apiFixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *apiFixture) getJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHealthAndCatalog(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/catalog")
	require.NoError(t, err)
	defer resp.Body.Close()
	var entries []catalogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Len(t, entries, 37)
	for _, e := range entries {
		if e.Name == "Makkos" {
			assert.Equal(t, 46, e.TotalPages)
			assert.Equal(t, "24b", e.LastDaf)
		}
	}
}

func TestCreateJobValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/jobs", JobRequest{Masechta: "Nope", Mode: "all"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/jobs", JobRequest{Masechta: "Makkos", SelectBy: "amud", Mode: "range", Start: "5", End: "6b"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/jobs", JobRequest{Masechta: "Makkos", Mode: "sometimes"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	stream, _, _, err := f.q.Depths(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stream)
}

func TestJobLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	resp := f.post(t, "/jobs", JobRequest{Masechta: "makkos", SelectBy: "daf", Mode: "range", Start: "2", End: "3", MergeAll: true, MergeDapim: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, 4, created.Pages)
	assert.Equal(t, StateQueued, created.Status)

	code, body := f.getJSON(t, "/jobs/"+created.JobID)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StateQueued, body["status"])

	msgID, data, err := f.q.Dequeue(ctx, "w-0", 50*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, msgID)
	var msg JobMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "Makkos", msg.Request.Masechta)

	require.NoError(t, f.o.HandleMessage(ctx, data))

	code, body = f.getJSON(t, "/jobs/"+created.JobID)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StateCompleted, body["status"])
	assert.Equal(t, float64(100), body["progress"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, float64(4), meta["downloaded"])
	assert.Contains(t, meta["final_path"], "Makkos_Range_2-3_Full.pdf")
	assert.Len(t, f.src.calls(), 4)

	// redelivery of a finished job is a no-op
	require.NoError(t, f.o.HandleMessage(ctx, data))
	assert.Len(t, f.src.calls(), 4)

	// finished jobs cannot be cancelled
	resp = f.post(t, "/jobs/"+created.JobID+"/cancel", cancelReq{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelQueuedJob(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	resp := f.post(t, "/jobs", JobRequest{Masechta: "Makkos", Mode: "all"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	resp = f.post(t, "/jobs/"+created.JobID+"/cancel", cancelReq{Reason: "changed my mind"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, data, err := f.q.Dequeue(ctx, "w-0", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, f.o.HandleMessage(ctx, data))

	_, body := f.getJSON(t, "/jobs/"+created.JobID)
	assert.Equal(t, StateCancelled, body["status"])
	assert.Empty(t, f.src.calls())

	code, _ := f.getJSON(t, "/jobs/unknown")
	assert.Equal(t, http.StatusNotFound, code)
	resp = f.post(t, "/jobs/unknown/cancel", cancelReq{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRunningJob(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	resp := f.post(t, "/jobs", JobRequest{Masechta: "Makkos", Mode: "all", MergeAll: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	// cancel once the third page is being fetched; the monitor picks it up
	f.src.onCall = func(page int) {
		if page == 3 {
			require.NoError(t, f.q.CancelJob(ctx, created.JobID))
			time.Sleep(50 * time.Millisecond)
		}
	}

	_, data, err := f.q.Dequeue(ctx, "w-0", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, f.o.HandleMessage(ctx, data))

	_, body := f.getJSON(t, "/jobs/"+created.JobID)
	assert.Equal(t, StateCancelled, body["status"])
	assert.Less(t, len(f.src.calls()), 46)
	meta := body["metadata"].(map[string]any)
	_, hasFinal := meta["final_path"]
	assert.False(t, hasFinal)
}

func TestWorkerShutdownMidJobRecordsFinalStatus(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/jobs", JobRequest{Masechta: "Makkos", Mode: "all", MergeAll: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	f.src.onCall = func(page int) {
		if page == 3 {
			stopWorker()
		}
	}

	_, data, err := f.q.Dequeue(context.Background(), "w-0", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, f.o.HandleMessage(workerCtx, data))

	_, body := f.getJSON(t, "/jobs/"+created.JobID)
	assert.Equal(t, StateFailed, body["status"])
	assert.Equal(t, "interrupted by worker shutdown", body["message"])
	assert.Less(t, len(f.src.calls()), 46)

	resp = f.post(t, "/jobs/"+created.JobID+"/cancel", cancelReq{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	f := newAPIFixture(t)
	assert.ErrorIs(t, f.o.HandleMessage(context.Background(), []byte("not json")), ErrInvalidMessage)
	assert.ErrorIs(t, f.o.HandleMessage(context.Background(), []byte(`{}`)), ErrInvalidMessage)
}

func TestMetricsRoute(t *testing.T) {
	f := newAPIFixture(t)
	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
