package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route template, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // BackendRequests counts calls to the logistics backend by operation and outcome
    BackendRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "backend_requests_total", Help: "Logistics backend calls by operation and outcome."},
        []string{"op", "outcome"},
    )
    // BackendDuration tracks backend call latency including retries
    BackendDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "backend_request_duration_seconds", Help: "Logistics backend call duration in seconds.", Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}},
        []string{"op"},
    )

    // OptimizeRuns counts optimize triggers by result: applied, superseded, failed
    OptimizeRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "route_optimize_runs_total", Help: "Route optimize triggers by result."},
        []string{"result"},
    )
    // ActiveSessions is the number of open editing sessions
    ActiveSessions = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "route_sessions_active", Help: "Open route editing sessions."},
    )
    // TrackingPolls counts GPS polls by outcome
    TrackingPolls = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "tracking_polls_total", Help: "GPS location polls by outcome."},
        []string{"outcome"},
    )
)

// RegisterDefault registers collectors to the dedicated registry once.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(BackendRequests)
        Registry.MustRegister(BackendDuration)
        Registry.MustRegister(OptimizeRuns)
        Registry.MustRegister(ActiveSessions)
        Registry.MustRegister(TrackingPolls)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
