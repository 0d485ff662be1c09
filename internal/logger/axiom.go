package logger

import (
    "context"
    "encoding/json"
    "sync"
    "sync/atomic"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
)

const axiomBatch = 200

// axiomWriter forwards zerolog JSON lines at or above min to Axiom.
type axiomWriter struct {
    client  *axiomClient
    service string
    min     zerolog.Level
}

func (w *axiomWriter) Write(p []byte) (int, error) {
    return w.WriteLevel(zerolog.NoLevel, p)
}

func (w *axiomWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
    if l != zerolog.NoLevel && l < w.min {
        return len(p), nil
    }
    var ev map[string]any
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = map[string]any{"message": string(p), "level": zerolog.InfoLevel.String()}
    }
    ev["service"] = w.service
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    w.client.Send(axiom.Event(ev))
    return len(p), nil
}

// axiomClient batches events and ingests them every flush interval or every
// axiomBatch events, whichever comes first.
type axiomClient struct {
    client  *axiom.Client
    dataset string
    ch      chan axiom.Event
    dropped atomic.Int64
    wg      sync.WaitGroup
    cancel  context.CancelFunc
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
    if dataset == "" { dataset = "dev_shasdl" }
    opts := []axiom.Option{axiom.SetToken(token)}
    if orgID != "" { opts = append(opts, axiom.SetOrganizationID(orgID)) }
    c, err := axiom.NewClient(opts...)
    if err != nil { return nil, err }
    if flushEvery <= 0 { flushEvery = 10 * time.Second }

    ctx, cancel := context.WithCancel(context.Background())
    ac := &axiomClient{client: c, dataset: dataset, ch: make(chan axiom.Event, 1000), cancel: cancel}
    ac.wg.Add(1)
    go ac.loop(ctx, flushEvery)
    return ac, nil
}

// Send never blocks; events are dropped when the buffer is full.
func (a *axiomClient) Send(ev axiom.Event) {
    select {
    case a.ch <- ev:
    default:
        a.dropped.Add(1)
    }
}

func (a *axiomClient) loop(ctx context.Context, flushEvery time.Duration) {
    defer a.wg.Done()
    ticker := time.NewTicker(flushEvery)
    defer ticker.Stop()
    batch := make([]axiom.Event, 0, axiomBatch)
    flush := func() {
        if len(batch) == 0 { return }
        fctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        _, _ = a.client.IngestEvents(fctx, a.dataset, batch)
        cancel()
        batch = batch[:0]
    }
    for {
        select {
        case <-ctx.Done():
            // drain what is already buffered
            for {
                select {
                case ev := <-a.ch:
                    batch = append(batch, ev)
                    if len(batch) >= axiomBatch { flush() }
                default:
                    flush()
                    return
                }
            }
        case <-ticker.C:
            flush()
        case ev := <-a.ch:
            batch = append(batch, ev)
            if len(batch) >= axiomBatch { flush() }
        }
    }
}

func (a *axiomClient) Close() error {
    a.cancel()
    a.wg.Wait()
    return nil
}
