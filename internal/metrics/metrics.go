// Package metrics exposes Prometheus counters for the watch loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipewatch_runs_total",
		Help: "Finished pipeline runs by outcome.",
	}, []string{"outcome"})

	TriggerEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipewatch_trigger_events_total",
		Help: "Commit change events observed by the watcher.",
	})

	StageFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipewatch_stage_failures_total",
		Help: "Pipeline stages that ended in failure.",
	})
)

// Serve exposes /metrics on addr. It blocks until the server exits.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
