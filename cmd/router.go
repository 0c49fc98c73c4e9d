package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/distbreaker/internal/handler"
	"github.com/angeloszaimis/distbreaker/internal/stats"
)

func setupRouter(guardHandler *handler.GuardHandler, collector *stats.Collector, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/upstreams/{name}/", guardHandler.Proxy)

	mux.HandleFunc("GET /circuits", guardHandler.ListCircuits)
	mux.HandleFunc("GET /circuits/{name}", guardHandler.GetCircuit)
	mux.HandleFunc("POST /circuits/{name}/isolate", guardHandler.IsolateCircuit)
	mux.HandleFunc("POST /circuits/{name}/reset", guardHandler.ResetCircuit)

	mux.HandleFunc("GET /stats", collector.Handler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return mux
}
