// Package telemetry wires go-metrics to an in-memory sink that can be
// inspected over HTTP.
package telemetry

import (
	"encoding/json"
	"net/http"
	"time"

	metrics "github.com/armon/go-metrics"
)

// Telemetry bundles a metrics emitter with the sink that retains its data.
type Telemetry struct {
	*metrics.Metrics
	sink *metrics.InmemSink
}

// New creates an emitter for service that aggregates into interval-sized
// buckets and keeps retain worth of history.
func New(service string, interval, retain time.Duration) (*Telemetry, error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if retain < interval {
		retain = time.Minute
	}
	sink := metrics.NewInmemSink(interval, retain)
	cfg := metrics.DefaultConfig(service)
	cfg.EnableHostname = false
	cfg.EnableHostnameLabel = false
	cfg.EnableRuntimeMetrics = false
	m, err := metrics.New(cfg, sink)
	if err != nil {
		return nil, err
	}
	return &Telemetry{Metrics: m, sink: sink}, nil
}

// Handler serves the current in-memory snapshot as JSON.
func (t *Telemetry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary, err := t.sink.DisplayMetrics(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	})
}
