package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ExportJSON exports the aggregated counters as JSON.
func ExportJSON(collector *Collector) ([]byte, error) {
	return json.Marshal(collector.Snapshot())
}

// PrometheusHandler serves the collector plus Go runtime metrics.
func PrometheusHandler(collector *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Handler serves Prometheus text by default and the JSON snapshot for
// ?format=json.
func Handler(collector *Collector) http.Handler {
	prom := PrometheusHandler(collector)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			prom.ServeHTTP(w, r)
			return
		}
		data, err := ExportJSON(collector)
		if err != nil {
			http.Error(w, "failed to export metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
}
