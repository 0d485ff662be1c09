package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    fetchTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "shasdl",
            Name:      "fetch_total",
            Help:      "Page fetches by source and outcome (downloaded, cache_hit, missed, failed)",
        },
        []string{"source", "outcome"},
    )

    fetchLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "shasdl",
            Name:      "fetch_duration_seconds",
            Help:      "Duration of remote page downloads by source",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"source"},
    )

    retriesTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "shasdl",
            Name:      "fetch_retries_total",
            Help:      "Retried page downloads by source",
        },
        []string{"source"},
    )

    mergeTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "shasdl",
            Name:      "merge_total",
            Help:      "PDF merges by stage (daf, full) and result",
        },
        []string{"stage", "result"},
    )

    mergeLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "shasdl",
            Name:      "merge_duration_seconds",
            Help:      "Duration of PDF merges by stage",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"stage"},
    )

    deletedTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "shasdl",
            Name:      "intermediates_deleted_total",
            Help:      "Intermediate amud files removed after merging",
        },
    )

    jobsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "shasdl",
            Name:      "jobs_total",
            Help:      "Jobs finished by result (completed, failed, cancelled, aborted)",
        },
        []string{"result"},
    )

    cooldownEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "shasdl",
            Name:      "source_cooldown_events_total",
            Help:      "Source cooldown events by source and action",
        },
        []string{"source", "action"},
    )

    queueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "shasdl",
            Name:      "queue_depth",
            Help:      "Queue depth gauges for stream and pending entries",
        },
        []string{"type"},
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(fetchTotal, fetchLatency, retriesTotal, mergeTotal, mergeLatency, deletedTotal, jobsTotal, cooldownEvents, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncFetch(source, outcome string) { fetchTotal.WithLabelValues(source, outcome).Inc() }

func ObserveDownload(source string, dur time.Duration) {
    fetchLatency.WithLabelValues(source).Observe(dur.Seconds())
}

func IncRetry(source string) { retriesTotal.WithLabelValues(source).Inc() }

func ObserveMerge(stage string, ok bool, dur time.Duration) {
    mergeTotal.WithLabelValues(stage, result(ok)).Inc()
    mergeLatency.WithLabelValues(stage).Observe(dur.Seconds())
}

func AddDeleted(n int) { deletedTotal.Add(float64(n)) }

func IncJob(result string) { jobsTotal.WithLabelValues(result).Inc() }

func CooldownOpened(source string) { cooldownEvents.WithLabelValues(source, "opened").Inc() }
func CooldownClosed(source string) { cooldownEvents.WithLabelValues(source, "closed").Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }

func result(ok bool) string { if ok { return "success" }; return "error" }
