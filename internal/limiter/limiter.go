package limiter

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
    "golang.org/x/time/rate"

    "github.com/local/shasdl/internal/metrics"
)

// Adaptive paces calls to remote sources. Every call waits on a token bucket;
// a source that answers 429/503 is put on cooldown with exponential backoff.
// With a Redis client the cooldown is shared by all processes using it.
type Adaptive struct {
    rdb         *redis.Client
    bucket      *rate.Limiter
    baseBackoff time.Duration
    maxBackoff  time.Duration
    now         func() time.Time

    mu       sync.Mutex
    until    map[string]time.Time
    attempts map[string]int
}

type Options struct {
    // Interval is the minimum spacing between remote calls; zero disables pacing.
    Interval    time.Duration
    Burst       int
    BaseBackoff time.Duration
    MaxBackoff  time.Duration
    // Redis is optional; nil keeps cooldowns in process.
    Redis *redis.Client
}

func New(opts Options) *Adaptive {
    if opts.Burst <= 0 { opts.Burst = 1 }
    if opts.BaseBackoff <= 0 { opts.BaseBackoff = 2 * time.Second }
    if opts.MaxBackoff <= 0 { opts.MaxBackoff = time.Minute }
    lim := rate.Inf
    if opts.Interval > 0 { lim = rate.Every(opts.Interval) }
    return &Adaptive{
        rdb:         opts.Redis,
        bucket:      rate.NewLimiter(lim, opts.Burst),
        baseBackoff: opts.BaseBackoff,
        maxBackoff:  opts.MaxBackoff,
        now:         time.Now,
        until:       map[string]time.Time{},
        attempts:    map[string]int{},
    }
}

func (a *Adaptive) key(source string) string {
    return fmt.Sprintf("shasdl:cooldown:%s", strings.ToLower(source))
}

// Wait blocks until the bucket has a token and the source is not cooling down.
func (a *Adaptive) Wait(ctx context.Context, source string) error {
    if err := a.bucket.Wait(ctx); err != nil { return err }
    d := a.Remaining(ctx, source)
    if d <= 0 { return nil }
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

// Remaining returns how long the source stays on cooldown.
func (a *Adaptive) Remaining(ctx context.Context, source string) time.Duration {
    var until time.Time
    if a.rdb != nil {
        ms, err := a.rdb.Get(ctx, a.key(source)).Int64()
        if err != nil { return 0 }
        until = time.UnixMilli(ms)
    } else {
        a.mu.Lock()
        until = a.until[source]
        a.mu.Unlock()
    }
    return until.Sub(a.now())
}

// Throttled opens or extends the cooldown; the backoff doubles per call up to MaxBackoff.
func (a *Adaptive) Throttled(ctx context.Context, source string) {
    var attempts int64
    if a.rdb != nil {
        attempts, _ = a.rdb.Incr(ctx, a.key(source)+":attempts").Result()
    } else {
        a.mu.Lock()
        a.attempts[source]++
        attempts = int64(a.attempts[source])
        a.mu.Unlock()
    }
    if attempts < 1 { attempts = 1 }
    d := a.backoff(attempts)
    until := a.now().Add(d)
    if a.rdb != nil {
        _ = a.rdb.Set(ctx, a.key(source), until.UnixMilli(), d).Err()
    } else {
        a.mu.Lock()
        a.until[source] = until
        a.mu.Unlock()
    }
    metrics.CooldownOpened(source)
}

// Recovered resets the cooldown for source after a successful call.
func (a *Adaptive) Recovered(ctx context.Context, source string) {
    if a.rdb != nil {
        n, _ := a.rdb.Del(ctx, a.key(source), a.key(source)+":attempts").Result()
        if n > 0 { metrics.CooldownClosed(source) }
        return
    }
    a.mu.Lock()
    _, had := a.attempts[source]
    delete(a.until, source)
    delete(a.attempts, source)
    a.mu.Unlock()
    if had { metrics.CooldownClosed(source) }
}

func (a *Adaptive) backoff(attempts int64) time.Duration {
    d := a.baseBackoff
    for i := int64(1); i < attempts; i++ {
        d *= 2
        if d >= a.maxBackoff { return a.maxBackoff }
    }
    if d > a.maxBackoff { d = a.maxBackoff }
    return d
}
