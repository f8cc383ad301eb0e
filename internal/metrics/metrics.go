// Package metrics exports session counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/memtest/internal/session"
	"github.com/example/memtest/pkg/models"
)

const namespace = "memtest"

// Observer counts session events. It implements session.Observer.
type Observer struct {
	sessionsStarted *prometheus.CounterVec
	sessionsEnded   *prometheus.CounterVec
	phasesEntered   *prometheus.CounterVec
	deadlines       *prometheus.CounterVec
	words           *prometheus.CounterVec
	retries         *prometheus.CounterVec
	duration        prometheus.Histogram
}

var _ session.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them with reg
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions that obtained an identity, by assigned condition.",
		}, []string{"condition"}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions that reached a terminal state.",
		}, []string{"status", "reason"}),
		phasesEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_entered_total",
			Help:      "Phase activations.",
		}, []string{"phase"}),
		deadlines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deadlines_expired_total",
			Help:      "Phases ended by their countdown instead of the participant.",
		}, []string{"phase"}),
		words: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recall_words_total",
			Help:      "Recall entries by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Retried identity and registry calls.",
		}, []string{"op"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from session start to its terminal state.",
			Buckets:   []float64{10, 30, 60, 120, 180, 300, 420, 600, 900},
		}),
	}

	for _, c := range []prometheus.Collector{
		o.sessionsStarted, o.sessionsEnded, o.phasesEntered, o.deadlines, o.words, o.retries, o.duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return o, nil
}

func (o *Observer) SessionStarted(condition models.Condition) {
	o.sessionsStarted.WithLabelValues(string(condition)).Inc()
}

func (o *Observer) PhaseEntered(phase session.Phase) {
	o.phasesEntered.WithLabelValues(string(phase)).Inc()
}

func (o *Observer) DeadlineExpired(phase session.Phase) {
	o.deadlines.WithLabelValues(string(phase)).Inc()
}

func (o *Observer) WordSubmitted(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	o.words.WithLabelValues(outcome).Inc()
}

func (o *Observer) StoreRetried(op string) {
	o.retries.WithLabelValues(op).Inc()
}

func (o *Observer) SessionEnded(status session.Status, reason session.AbortReason, d time.Duration) {
	o.sessionsEnded.WithLabelValues(string(status), string(reason)).Inc()
	if d > 0 {
		o.duration.Observe(d.Seconds())
	}
}

// Serve exposes the registry on addr at /metrics until ctx is cancelled
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop metrics server: %w", err)
		}
		<-errCh
		return nil
	}
}
