package api

import (
	"net/http"
	"route-segment-service/internal/api/handlers"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	Segments handlers.SegmentResolver
	Updater  handlers.CoordinateUpdater
	Derived  handlers.DerivedMetricsRecomputer
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
func NewRouter(svc Services) http.Handler {
	mux := http.NewServeMux()

	segmentHandler := &handlers.SegmentHandler{Segments: svc.Segments}
	locationHandler := &handlers.LocationHandler{Updater: svc.Updater}
	routeHandler := &handlers.RouteHandler{Derived: svc.Derived}

	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("GET /road-distance", segmentHandler.RoadDistance)
	mux.HandleFunc("PATCH /locations/{id}/coordinates", locationHandler.UpdateCoordinates)
	mux.HandleFunc("POST /routes/{id}/derived-metrics", routeHandler.RecomputeDerivedMetrics)
	mux.Handle("GET /metrics", promhttp.Handler())

	return requestIDMiddleware(loggingMiddleware(mux))
}
