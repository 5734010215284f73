// Package metrics provides Prometheus metrics for the indexing pipeline.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GetAdriAI/idxr/internal/domain"
)

const namespace = "idxr"

var (
	// DocumentsIndexedTotal counts documents successfully upserted, per
	// partition and model.
	DocumentsIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_indexed_total",
			Help:      "Total documents successfully upserted",
		},
		[]string{"partition", "model"},
	)

	// TokensIndexedTotal counts tokens consumed by flushed documents.
	TokensIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_indexed_total",
			Help:      "Total tokens flushed to the vector store",
		},
		[]string{"partition", "model"},
	)

	// BatchesFlushedTotal counts flushes by the reason they were cut.
	BatchesFlushedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_flushed_total",
			Help:      "Total batch flushes by reason",
		},
		[]string{"partition", "model", "reason"},
	)

	// TruncationsTotal counts documents truncated before upsert, by strategy.
	TruncationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "truncations_total",
			Help:      "Total documents truncated before upsert, by strategy",
		},
		[]string{"partition", "model", "strategy"},
	)

	// FlushLatencySeconds tracks per-batch upsert latency.
	FlushLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_latency_seconds",
			Help:      "Batch upsert latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"partition", "model"},
	)

	// PartitionsInFlight tracks how many partitions the orchestrator is
	// currently processing concurrently.
	PartitionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partitions_in_flight",
			Help:      "Number of partitions currently being indexed",
		},
	)

	// PartitionOutcomesTotal counts partitions by terminal outcome.
	PartitionOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_outcomes_total",
			Help:      "Total partitions processed, by outcome",
		},
		[]string{"outcome"}, // complete, errored, retried
	)

	// QueryLatencySeconds tracks multi-collection query fan-out latency.
	QueryLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_latency_seconds",
			Help:      "Multi-collection query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"}, // query, get, count
	)
)

// Recorder adapts the package-level Prometheus vectors to the narrow
// indexer.Metrics interface, so the Partition Indexer never imports
// Prometheus directly.
type Recorder struct{}

func (Recorder) DocumentsFlushed(partition, model string, n int) {
	DocumentsIndexedTotal.WithLabelValues(partition, model).Add(float64(n))
}

func (Recorder) TokensFlushed(partition, model string, n int) {
	TokensIndexedTotal.WithLabelValues(partition, model).Add(float64(n))
}

func (Recorder) BatchFlushed(partition, model string, reason domain.FlushReason) {
	BatchesFlushedTotal.WithLabelValues(partition, model, string(reason)).Inc()
}

func (Recorder) TruncationPerformed(partition, model string, strategy domain.TruncationStrategy) {
	TruncationsTotal.WithLabelValues(partition, model, string(strategy)).Inc()
}

func (Recorder) FlushLatency(partition, model string, d time.Duration) {
	FlushLatencySeconds.WithLabelValues(partition, model).Observe(d.Seconds())
}

// ObserveQuery records a query-client operation's latency.
func ObserveQuery(op string, d time.Duration) {
	QueryLatencySeconds.WithLabelValues(op).Observe(d.Seconds())
}

// RecordPartitionOutcome increments the terminal-outcome counter.
func RecordPartitionOutcome(outcome string) {
	PartitionOutcomesTotal.WithLabelValues(outcome).Inc()
}

// Serve starts the Prometheus exposition HTTP server at addr, blocking
// until ctx is cancelled or the server fails.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
