package statuscheck

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "os"
    "path/filepath"
    "sync"
    "time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
    Ping(ctx context.Context) error
}

// Check probes one dependency; a nil error means it is usable.
type Check func(ctx context.Context) error

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    OK     bool              `json:"ok"`
    Checks map[string]Status `json:"checks"`
}

type namedCheck struct {
    name string
    fn   Check
}

// Checker runs readiness checks for the serve mode: Redis, the download
// directory and the page source.
type Checker struct {
    timeout time.Duration
    checks  []namedCheck
}

// New creates a Checker; every check gets at most timeout.
func New(timeout time.Duration) *Checker {
    if timeout <= 0 { timeout = 5 * time.Second }
    return &Checker{timeout: timeout}
}

// Add registers a check under name.
func (c *Checker) Add(name string, fn Check) *Checker {
    c.checks = append(c.checks, namedCheck{name: name, fn: fn})
    return c
}

// Summary runs all checks concurrently and returns the snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    sum := Summary{OK: true, Checks: make(map[string]Status, len(c.checks))}
    var mu sync.Mutex
    var wg sync.WaitGroup
    for _, ch := range c.checks {
        wg.Add(1)
        go func(ch namedCheck) {
            defer wg.Done()
            cctx, cancel := context.WithTimeout(ctx, c.timeout)
            defer cancel()
            st := Status{OK: true, Message: "ok"}
            if err := ch.fn(cctx); err != nil {
                st = Status{OK: false, Message: trimError(err)}
            }
            mu.Lock()
            sum.Checks[ch.name] = st
            if !st.OK { sum.OK = false }
            mu.Unlock()
        }(ch)
    }
    wg.Wait()
    return sum
}

// Handler serves the summary as JSON: 200 when everything is ready, 503 otherwise.
func (c *Checker) Handler() http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        sum := c.Summary(r.Context())
        code := http.StatusOK
        if !sum.OK { code = http.StatusServiceUnavailable }
        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(code)
        _ = json.NewEncoder(w).Encode(sum)
    })
}

// Redis checks the connection with PING.
func Redis(p RedisPinger) Check {
    return func(ctx context.Context) error {
        if p == nil { return errors.New("client unavailable") }
        return p.Ping(ctx)
    }
}

// WritableDir checks that files can be created in dir.
func WritableDir(dir string) Check {
    return func(context.Context) error {
        if err := os.MkdirAll(dir, 0o755); err != nil { return err }
        f, err := os.CreateTemp(dir, ".ready-*")
        if err != nil { return fmt.Errorf("not writable: %w", err) }
        name := f.Name()
        _ = f.Close()
        return os.Remove(filepath.Clean(name))
    }
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
