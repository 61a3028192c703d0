// Package metrics exposes the agent's Prometheus registry over an HTTP
// server built on chi, alongside a /healthz liveness endpoint and a
// startup-time route listing generated with go-chi/docgen.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/docgen"
	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "op_challenger_agent"

// Metrics holds every counter/gauge/histogram this agent records.
type Metrics struct {
	registry *prometheus.Registry

	GamesTracked      prometheus.Gauge
	ClaimsAppended    *prometheus.CounterVec
	ResponsesEmitted  *prometheus.CounterVec
	CallsEnqueued     prometheus.Counter
	CallsDropped      *prometheus.CounterVec
	CallsSubmitted    prometheus.Counter
	TrustedComparison *prometheus.CounterVec
	WatcherPollSecs   prometheus.Histogram
}

// New constructs a Metrics instance registered against a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		GamesTracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "games_tracked",
			Help:      "Number of dispute games currently tracked in the in-memory registry.",
		}),
		ClaimsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_appended_total",
			Help:      "Claims appended to tracked games, by game address.",
		}, []string{"game"}),
		ResponsesEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_emitted_total",
			Help:      "Responses computed by the fault game model, by kind (do_nothing, move, step, secondary_move).",
		}, []string{"kind"}),
		CallsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_enqueued_total",
			Help:      "PreparedCalls handed to the outbound dispatcher queue.",
		}),
		CallsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_dropped_total",
			Help:      "Calls dropped by the dispatcher, by reason (estimate_failed, submit_failed).",
		}, []string{"reason"}),
		CallsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_submitted_total",
			Help:      "Calls successfully broadcast to L1.",
		}),
		TrustedComparison: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trusted_comparisons_total",
			Help:      "Trusted-output comparisons, by result (match, mismatch, error).",
		}, []string{"result"}),
		WatcherPollSecs: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "watcher_poll_seconds",
			Help:      "Wall-clock time spent in one fault-game watcher poll pass.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Router builds the chi router serving /metrics and /healthz, logging the
// generated route list once via docgen at construction time.
func Router(logger gethlog.Logger, m *Metrics) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	routes := docgen.JSONRoutesDoc(r)
	logger.Info("metrics server routes", "routes", routes)

	return r
}

// Serve starts an HTTP server on addr exposing Router's handler, shutting
// down gracefully when ctx is canceled.
func Serve(ctx context.Context, logger gethlog.Logger, m *Metrics, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: Router(logger, m),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics: server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: graceful shutdown: %w", err)
		}
		return ctx.Err()
	}
}
