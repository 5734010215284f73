// Package orchestrator implements the Parallel Orchestrator: running up to
// W Partition Indexers concurrently, one worker per partition, retrying
// transient-class failures once after the first pass completes. Clustered
// mode, when a Router is supplied, restricts this process to partitions it
// owns under rendezvous hashing over the current membership snapshot.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/errs"
	"github.com/GetAdriAI/idxr/internal/indexer"
	"github.com/GetAdriAI/idxr/internal/metrics"
)

// Router is the narrow slice of routing.Router the orchestrator needs. A
// nil Router means every partition is owned locally (unclustered mode).
type Router interface {
	IsHomeNode(partitionName string) bool
}

// Config are orchestrator-level tunables. Deterministic-sampling runs must
// set Workers to 1 (enforced by the caller, not the orchestrator itself,
// since sampling mode is a CLI-level concern outside this package).
type Config struct {
	Workers int
}

// Outcome captures one partition's terminal result across however many
// passes it took.
type Outcome struct {
	Partition string
	Result    indexer.Outcome
	Err       error
	Retried   bool
}

// Orchestrator runs an indexer.Indexer over many partitions.
type Orchestrator struct {
	ix     *indexer.Indexer
	cfg    Config
	router Router
	logger *slog.Logger
}

// New builds an Orchestrator. A nil router runs every partition locally
// (unclustered mode). A nil logger defaults to slog.Default().
func New(ix *indexer.Indexer, cfg Config, router Router, logger *slog.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{ix: ix, cfg: cfg, router: router, logger: logger}
}

// Run indexes every partition this process owns, at most Config.Workers
// concurrently and at most one worker per partition, then enqueues a single
// retry pass for any partition whose failure classified as transient.
func (o *Orchestrator) Run(ctx context.Context, partitions []domain.Partition, modelOrder []string, registry map[string]domain.ModelSpec) []Outcome {
	owned := o.ownedPartitions(partitions)
	if len(owned) == 0 {
		return nil
	}

	outcomes := o.runPass(ctx, owned, modelOrder, registry)

	byName := make(map[string]domain.Partition, len(owned))
	for _, p := range owned {
		byName[p.Name] = p
	}
	var retryable []domain.Partition
	for _, oc := range outcomes {
		if oc.Err != nil && errs.IsTransient(oc.Err) {
			retryable = append(retryable, byName[oc.Partition])
		}
	}
	if len(retryable) == 0 {
		return outcomes
	}

	o.logger.Info("orchestrator: retrying transient failures after first pass", "count", len(retryable))
	retried := o.runPass(ctx, retryable, modelOrder, registry)
	retriedByName := make(map[string]Outcome, len(retried))
	for _, r := range retried {
		r.Retried = true
		retriedByName[r.Partition] = r
	}

	final := make([]Outcome, 0, len(outcomes))
	for _, oc := range outcomes {
		if r, ok := retriedByName[oc.Partition]; ok {
			final = append(final, r)
			continue
		}
		final = append(final, oc)
	}
	return final
}

// ownedPartitions restricts partitions to those this process's router says
// it is the home node for. In unclustered mode (nil router) every partition
// is owned locally.
func (o *Orchestrator) ownedPartitions(partitions []domain.Partition) []domain.Partition {
	if o.router == nil {
		return partitions
	}
	var owned []domain.Partition
	for _, p := range partitions {
		if o.router.IsHomeNode(p.Name) {
			owned = append(owned, p)
		}
	}
	return owned
}

// runPass runs one bounded-concurrency sweep over partitions. One goroutine
// per partition, gated by a semaphore sized to Config.Workers; each
// goroutine is itself internally sequential inside indexer.IndexPartition,
// preserving the per-partition fail-stop property.
func (o *Orchestrator) runPass(ctx context.Context, partitions []domain.Partition, modelOrder []string, registry map[string]domain.ModelSpec) []Outcome {
	sem := make(chan struct{}, o.cfg.Workers)
	var wg sync.WaitGroup
	outcomes := make([]Outcome, len(partitions))

	for i, p := range partitions {
		i, p := i, p
		wg.Add(1)
		sem <- struct{}{}
		metrics.PartitionsInFlight.Inc()
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer metrics.PartitionsInFlight.Dec()

			result, err := o.ix.IndexPartition(ctx, p, modelOrder, registry)
			outcomes[i] = Outcome{Partition: p.Name, Result: result, Err: err}

			switch {
			case err == nil:
				metrics.RecordPartitionOutcome("complete")
			case errs.IsTransient(err):
				metrics.RecordPartitionOutcome("retried")
			default:
				metrics.RecordPartitionOutcome("errored")
				o.logger.Error("orchestrator: partition failed", "partition", p.Name, "error", err)
			}
		}()
	}
	wg.Wait()
	return outcomes
}
