package monitor

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "scopewave"

var (
	// SCPI round trips
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scpi_requests_total",
			Help:      "SCPI operations issued, by op and result.",
		},
		[]string{"op", "result"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scpi_request_duration_seconds",
			Help:      "Latency of SCPI operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"op"},
	)

	TransportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Transport failures, by op and whether they were timeouts.",
		},
		[]string{"op", "timeout"},
	)

	ProtocolErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "protocol_errors_total",
		Help:      "Replies rejected as malformed or inconsistent.",
	})

	// Waveform transfers
	SweepsRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_read_total",
			Help:      "Waveforms read, by channel.",
		},
		[]string{"channel"},
	)

	PointsRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_read_total",
			Help:      "Waveform points decoded, by channel.",
		},
		[]string{"channel"},
	)

	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Time to transfer, decode and scale one waveform.",
		Buckets:   prometheus.DefBuckets,
	})

	BatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_channel_failures_total",
			Help:      "Per-channel failures captured by partial-mode batches.",
		},
		[]string{"channel"},
	)
)

type Monitor struct {
	log *logrus.Logger
}

// NewMonitor registers the collectors with the default registry. Call it
// once per process.
func NewMonitor(log *logrus.Logger) *Monitor {
	prometheus.MustRegister(
		Requests,
		RequestDuration,
		TransportErrors,
		ProtocolErrors,
		SweepsRead,
		PointsRead,
		SweepDuration,
		BatchFailures,
	)

	return &Monitor{log: log}
}

// StartMetricsServer serves /metrics and /health in the background.
func (m *Monitor) StartMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	m.log.Infof("metrics server listening on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.log.Errorf("metrics server: %v", err)
		}
	}()
}
