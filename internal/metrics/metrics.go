package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "paladin"

// Lockdown steps, used as the "step" label of LockdownStepFailures.
const (
	StepTerminate = "terminate"
	StepBroadcast = "broadcast"
	StepIsolate   = "isolate"
	StepRestore   = "restore"
	StepRedeploy  = "redeploy"
)

// Metrics holds every collector the agent exports.
type Metrics struct {
	FileEvents           *prometheus.CounterVec
	ScanErrors           prometheus.Counter
	EntropyScores        prometheus.Histogram
	SuspiciousEvents     prometheus.Counter
	HoneypotHits         prometheus.Counter
	AlertsReceived       prometheus.Counter
	AlertsMalformed      prometheus.Counter
	AlertsSent           prometheus.Counter
	Lockdowns            *prometheus.CounterVec
	LockdownStepFailures *prometheus.CounterVec
	OffendersTerminated  prometheus.Counter
	Triggered            prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FileEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_events_total",
			Help:      "Filesystem events received from the watch service, by kind.",
		}, []string{"kind"}),
		ScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_errors_total",
			Help:      "Files that could not be read for entropy scoring.",
		}),
		EntropyScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entropy_score_bits",
			Help:      "Shannon entropy of scored file samples in bits per byte.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 6.5, 7, 7.5, 7.9, 8},
		}),
		SuspiciousEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_events_total",
			Help:      "Files whose content scored above the entropy threshold.",
		}),
		HoneypotHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "honeypot_hits_total",
			Help:      "Filesystem events touching a honeypot.",
		}),
		AlertsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_alerts_received_total",
			Help:      "Distress alerts parsed from the grid.",
		}),
		AlertsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_alerts_malformed_total",
			Help:      "Grid datagrams discarded because they did not parse.",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_alerts_sent_total",
			Help:      "Distress alerts broadcast to the grid.",
		}),
		Lockdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockdowns_total",
			Help:      "Lockdown sequences started, by trigger source.",
		}, []string{"source"}),
		LockdownStepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockdown_step_failures_total",
			Help:      "Lockdown steps that failed, by step.",
		}, []string{"step"}),
		OffendersTerminated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offenders_terminated_total",
			Help:      "Processes killed during lockdown.",
		}),
		Triggered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "triggered",
			Help:      "1 once the protection latch has been set.",
		}),
	}

	reg.MustRegister(
		m.FileEvents,
		m.ScanErrors,
		m.EntropyScores,
		m.SuspiciousEvents,
		m.HoneypotHits,
		m.AlertsReceived,
		m.AlertsMalformed,
		m.AlertsSent,
		m.Lockdowns,
		m.LockdownStepFailures,
		m.OffendersTerminated,
		m.Triggered,
	)
	return m
}

// NewNop returns collectors registered with a private registry. Used by tests
// and by commands that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Serve exposes gatherer on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
