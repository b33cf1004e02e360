package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search modes.
const (
	ModeOAuth     = "oauth"
	ModeAnonymous = "anonymous"
)

var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddradar_search_requests_total",
			Help: "Total number of Reddit search and listing requests executed",
		},
		[]string{"mode", "status"},
	)

	SearchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddradar_search_failures_total",
			Help: "Search requests that contributed no posts, by reason",
		},
		[]string{"reason"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reddradar_search_duration_seconds",
			Help:    "Duration of Reddit search requests in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"mode"},
	)

	LeadsFoundTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reddradar_leads_found_total",
			Help: "Unique leads returned by aggregation runs",
		},
	)

	TokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddradar_token_exchanges_total",
			Help: "OAuth client-credential exchanges, by result",
		},
		[]string{"result"},
	)

	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddradar_generations_total",
			Help: "Reply generation attempts per provider, by result",
		},
		[]string{"provider", "result"},
	)

	GenerationTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reddradar_generation_tokens_total",
			Help: "Tokens reported by generation providers",
		},
		[]string{"provider"},
	)
)

// RecordSearch counts one search request. status is the HTTP status code as
// text, or "error" when no response was received.
func RecordSearch(mode, status string, d time.Duration) {
	SearchRequestsTotal.WithLabelValues(mode, status).Inc()
	SearchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordSearchFailure counts a request that contributed nothing.
func RecordSearchFailure(reason string) {
	SearchFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordGeneration counts one provider attempt and the tokens it reported.
func RecordGeneration(provider string, err error, tokens int) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	GenerationsTotal.WithLabelValues(provider, result).Inc()
	if tokens > 0 {
		GenerationTokensTotal.WithLabelValues(provider).Add(float64(tokens))
	}
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
