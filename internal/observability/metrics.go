package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics shared by the daemon and the
// rendezvous/relay server.
type Metrics struct {
	// Transfer metrics
	TransfersTotal        *prometheus.CounterVec
	TransfersActive       prometheus.Gauge
	TransferDuration      prometheus.Histogram
	BytesTransferredTotal *prometheus.CounterVec
	ChunksSentTotal       prometheus.Counter
	ChunksReceivedTotal   prometheus.Counter

	// Connection metrics
	QUICConnectionsTotal   *prometheus.CounterVec
	QUICConnectionsActive  prometheus.Gauge
	QUICConnectionDuration prometheus.Histogram
	RelayConnectionsTotal  *prometheus.CounterVec
	RelaySessionsActive    prometheus.Gauge

	// Crypto metrics
	CryptoOperationsTotal   *prometheus.CounterVec
	CryptoOperationDuration prometheus.Histogram
	ChecksumVerifications   *prometheus.CounterVec

	activeTransfers int64
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		TransfersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_transfers_total",
				Help: "Total transfers initiated",
			},
			[]string{"status"},
		),

		TransfersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_transfers_active",
				Help: "Currently active transfers",
			},
		),

		TransferDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_transfer_duration_seconds",
				Help:    "Transfer completion time distribution",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),

		BytesTransferredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_bytes_transferred_total",
				Help: "Total bytes transferred",
			},
			[]string{"direction"},
		),

		ChunksSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_chunks_sent_total",
				Help: "Total chunks sent",
			},
		),

		ChunksReceivedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_chunks_received_total",
				Help: "Total chunks received",
			},
		),

		QUICConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_quic_connections_total",
				Help: "Direct QUIC connection attempts",
			},
			[]string{"result"},
		),

		QUICConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_quic_connections_active",
				Help: "Active direct QUIC connections",
			},
		),

		QUICConnectionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_quic_connection_duration_seconds",
				Help:    "Direct QUIC connection lifetime",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),

		RelayConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_rendezvous_connections_total",
				Help: "WebSocket connections accepted by the rendezvous server",
			},
			[]string{"result"},
		),

		RelaySessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_rendezvous_sessions_active",
				Help: "Transfer codes with at least one registered peer",
			},
		),

		CryptoOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_crypto_operations_total",
				Help: "Cryptographic operations performed",
			},
			[]string{"operation"},
		),

		CryptoOperationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_crypto_operation_duration_seconds",
				Help:    "Crypto operation latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),

		ChecksumVerifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_checksum_verifications_total",
				Help: "Per-file SHA-256 integrity verifications",
			},
			[]string{"result"},
		),
	}
}

// RecordTransferStart increments active transfer counters.
func (m *Metrics) RecordTransferStart() {
	atomic.AddInt64(&m.activeTransfers, 1)
	m.TransfersActive.Set(float64(atomic.LoadInt64(&m.activeTransfers)))
}

// RecordTransferComplete records transfer completion metrics.
func (m *Metrics) RecordTransferComplete(success bool, durationSeconds float64) {
	atomic.AddInt64(&m.activeTransfers, -1)
	m.TransfersActive.Set(float64(atomic.LoadInt64(&m.activeTransfers)))

	status := "success"
	if !success {
		status = "failure"
	}

	m.TransfersTotal.WithLabelValues(status).Inc()
	m.TransferDuration.Observe(durationSeconds)
}

// RecordChunkSent updates metrics for a sent chunk.
func (m *Metrics) RecordChunkSent(bytes int) {
	m.ChunksSentTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("sent").Add(float64(bytes))
}

// RecordChunkReceived updates metrics for a received chunk.
func (m *Metrics) RecordChunkReceived(bytes int) {
	m.ChunksReceivedTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("received").Add(float64(bytes))
}

// RecordQUICConnection logs a direct QUIC connection attempt's outcome.
func (m *Metrics) RecordQUICConnection(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.QUICConnectionsTotal.WithLabelValues(result).Inc()
	if success {
		m.QUICConnectionsActive.Inc()
	}
}

// RecordQUICConnectionClose updates metrics for closed direct QUIC connections.
func (m *Metrics) RecordQUICConnectionClose(durationSeconds float64) {
	m.QUICConnectionsActive.Dec()
	m.QUICConnectionDuration.Observe(durationSeconds)
}

// RecordRelayConnection logs a rendezvous WebSocket connection's outcome.
func (m *Metrics) RecordRelayConnection(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.RelayConnectionsTotal.WithLabelValues(result).Inc()
}

// RecordCryptoOperation records cryptographic operation duration.
func (m *Metrics) RecordCryptoOperation(operation string, durationSeconds float64) {
	m.CryptoOperationsTotal.WithLabelValues(operation).Inc()
	m.CryptoOperationDuration.Observe(durationSeconds)
}

// RecordChecksumVerification increments per-file integrity check counters.
func (m *Metrics) RecordChecksumVerification(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ChecksumVerifications.WithLabelValues(result).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
