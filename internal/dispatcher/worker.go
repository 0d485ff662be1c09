package dispatcher

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/shasdl/internal/metrics"
)

type Queue interface {
    Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
    Ack(ctx context.Context, msgID string) error
    AddDLQ(ctx context.Context, payload []byte, reason string) error
    Depths(ctx context.Context) (int64, int64, int64, error)
}

// Handler runs one job payload. A returned error means the payload can never
// succeed and goes to the DLQ.
type Handler interface {
    HandleMessage(ctx context.Context, data []byte) error
}

type Config struct {
    Concurrency  int
    Consumer     string
    BlockTimeout time.Duration
    DepthEvery   time.Duration
}

// Worker runs Concurrency loops, each taking one job at a time off the queue.
type Worker struct {
    cfg  Config
    q    Queue
    h    Handler
    stop chan struct{}
    wg   sync.WaitGroup

    // jobs run under ctx so a forced stop can interrupt them
    ctx    context.Context
    cancel context.CancelFunc
}

func New(cfg Config, q Queue, h Handler) *Worker {
    if cfg.Concurrency <= 0 { cfg.Concurrency = 2 }
    if cfg.Consumer == "" { cfg.Consumer = "worker" }
    if cfg.BlockTimeout <= 0 { cfg.BlockTimeout = 2 * time.Second }
    if cfg.DepthEvery <= 0 { cfg.DepthEvery = 15 * time.Second }
    ctx, cancel := context.WithCancel(context.Background())
    return &Worker{cfg: cfg, q: q, h: h, stop: make(chan struct{}), ctx: ctx, cancel: cancel}
}

func (w *Worker) Start() {
    for i := 0; i < w.cfg.Concurrency; i++ {
        w.wg.Add(1)
        go w.loop(i)
    }
    w.wg.Add(1)
    go w.reportDepths()
}

// Stop stops taking new jobs and waits for running ones. When ctx expires
// first, running jobs are cancelled and Stop waits for them to unwind.
func (w *Worker) Stop(ctx context.Context) error {
    close(w.stop)
    done := make(chan struct{})
    go func() { w.wg.Wait(); close(done) }()
    select {
    case <-done:
        w.cancel()
        return nil
    case <-ctx.Done():
        log.Warn().Msg("shutdown timeout reached, cancelling running jobs")
        w.cancel()
        <-done
        return ctx.Err()
    }
}

func (w *Worker) stopped() bool {
    select {
    case <-w.stop:
        return true
    default:
        return false
    }
}

func (w *Worker) loop(id int) {
    defer w.wg.Done()
    consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, id)
    log.Info().Int("worker", id).Str("consumer", consumer).Msg("dispatcher worker started")
    for !w.stopped() {
        msgID, data, err := w.q.Dequeue(w.ctx, consumer, w.cfg.BlockTimeout)
        if err != nil {
            if errors.Is(err, context.Canceled) { break }
            log.Error().Err(err).Int("worker", id).Msg("queue dequeue error")
            time.Sleep(500 * time.Millisecond)
            continue
        }
        if msgID == "" { continue }
        w.process(id, msgID, data)
    }
    log.Info().Int("worker", id).Msg("dispatcher worker stopped")
}

func (w *Worker) process(id int, msgID string, data []byte) {
    start := time.Now()
    if err := w.h.HandleMessage(w.ctx, data); err != nil {
        log.Error().Err(err).Int("worker", id).Str("msg_id", msgID).Msg("job payload rejected, moving to DLQ")
        if derr := w.q.AddDLQ(context.Background(), data, err.Error()); derr != nil {
            log.Error().Err(derr).Str("msg_id", msgID).Msg("DLQ add failed")
        }
    }
    if err := w.q.Ack(context.Background(), msgID); err != nil {
        log.Error().Err(err).Str("msg_id", msgID).Msg("ack failed")
    }
    log.Debug().Int("worker", id).Str("msg_id", msgID).Dur("took", time.Since(start)).Msg("message handled")
}

func (w *Worker) reportDepths() {
    defer w.wg.Done()
    ticker := time.NewTicker(w.cfg.DepthEvery)
    defer ticker.Stop()
    for {
        select {
        case <-w.stop:
            return
        case <-ticker.C:
            ctx, cancel := context.WithTimeout(w.ctx, 2*time.Second)
            stream, pending, dlq, err := w.q.Depths(ctx)
            cancel()
            if err != nil {
                log.Warn().Err(err).Msg("queue depth check failed")
                continue
            }
            metrics.SetQueueDepth("stream", stream)
            metrics.SetQueueDepth("pending", pending)
            metrics.SetQueueDepth("dlq", dlq)
        }
    }
}
