package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/GetAdriAI/idxr/config"
	"github.com/GetAdriAI/idxr/internal/collection"
	"github.com/GetAdriAI/idxr/internal/document"
	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/embedding"
	"github.com/GetAdriAI/idxr/internal/indexer"
	"github.com/GetAdriAI/idxr/internal/manifest"
	"github.com/GetAdriAI/idxr/internal/membership"
	"github.com/GetAdriAI/idxr/internal/metrics"
	"github.com/GetAdriAI/idxr/internal/orchestrator"
	"github.com/GetAdriAI/idxr/internal/partselect"
	"github.com/GetAdriAI/idxr/internal/port"
	"github.com/GetAdriAI/idxr/internal/ratelimit"
	"github.com/GetAdriAI/idxr/internal/registry"
	"github.com/GetAdriAI/idxr/internal/routing"
	"github.com/GetAdriAI/idxr/internal/tokenizer"
	"github.com/GetAdriAI/idxr/internal/vectorstore/localstore"
	"github.com/GetAdriAI/idxr/internal/watch"
)

var (
	indexRegistryPath    string
	indexDBPath          string
	indexPartitions      []string
	indexExcludeParts    []string
	indexWatchFlag       bool
	indexNodeIDFlag      string
	indexDeleteStaleFlag bool
)

var indexCmd = &cobra.Command{
	Use:   "index [out-root]",
	Short: "Index every partition under a manifest root into the vector store",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexRegistryPath, "registry", "", "model registry YAML (default <dir>/registry.yaml)")
	indexCmd.Flags().StringVar(&indexDBPath, "db", "", "local vector store file (default <dir>/idxr.db)")
	indexCmd.Flags().StringSliceVar(&indexPartitions, "partitions", nil, "glob patterns selecting partitions to index (default: all)")
	indexCmd.Flags().StringSliceVar(&indexExcludeParts, "exclude-partitions", nil, "glob patterns excluding partitions")
	indexCmd.Flags().BoolVar(&indexWatchFlag, "watch", false, "watch the output root and re-index as new partitions appear")
	indexCmd.Flags().StringVar(&indexNodeIDFlag, "node-id", "", "this process's cluster node id (overrides config)")
	indexCmd.Flags().BoolVar(&indexDeleteStaleFlag, "delete-stale", false, "delete each replacement partition's replaced partitions from the store before reindexing (overrides delete_stale config)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := GetConfig()
	dir := GetRootDir()
	logger := GetLogger()
	outRoot := dir
	if len(args) == 1 {
		outRoot = args[0]
	}

	if indexRegistryPath == "" {
		indexRegistryPath = dir + "/registry.yaml"
	}
	if indexDBPath == "" {
		indexDBPath = dir + "/idxr.db"
	}

	reg, err := registry.Load(indexRegistryPath)
	if err != nil {
		return fmt.Errorf("index: loading model registry: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("index: building embedder: %w", err)
	}

	store, err := localstore.Open(indexDBPath, embedder)
	if err != nil {
		return fmt.Errorf("index: opening vector store: %w", err)
	}
	defer store.Close()

	var vstore port.VectorStore = store
	if cfg.RateLimit.RequestsPerSecond > 0 {
		vstore = ratelimit.New(store, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	kind := domain.CollectionStrategyPerPartition
	base := ""
	if cfg.CollectionStrategy == "single" {
		kind = domain.CollectionStrategySingle
		base = "idxr"
	}
	strategy, err := collection.New(kind, base)
	if err != nil {
		return fmt.Errorf("index: building collection strategy: %w", err)
	}

	builder := document.NewBuilder(tokenizer.New(), cfg.APITokenLimit, domain.TruncationStrategy(cfg.TruncationStrategy))

	ix := indexer.New(indexer.Deps{
		Store:    vstore,
		Strategy: strategy,
		Builder:  builder,
		OutRoot:  outRoot,
		Logger:   logger,
		Metrics:  metrics.Recorder{},
	}, indexer.Config{
		MaxBatchDocs:   cfg.BatchSizeDocs,
		MaxBatchTokens: cfg.BatchSizeTokens,
		Resume:         cfg.Resume,
	})

	var router *routing.Router
	if cfg.Cluster.Enabled {
		nodeID := cfg.Cluster.NodeID
		if indexNodeIDFlag != "" {
			nodeID = indexNodeIDFlag
		}
		router = routing.New(nodeID)
		provider := membership.NewGossipProvider(membership.GossipConfig{
			NodeID:    nodeID,
			BindAddr:  cfg.Cluster.GossipBindAddr,
			SeedNodes: cfg.Cluster.GossipSeedNodes,
		})
		provider.OnChange(func(nodes []routing.Node) { router.SetNodes(nodes) })
		if err := provider.Start(); err != nil {
			return fmt.Errorf("index: starting cluster membership: %w", err)
		}
		defer provider.Stop()
		router.SetNodes(provider.Nodes())
	}

	orch := orchestrator.New(ix, orchestrator.Config{Workers: cfg.ParallelPartitions}, routerOrNil(router), logger)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.BindAddr); err != nil {
				logger.Error("index: metrics server exited", "error", err)
			}
		}()
	}

	deleteStale := cfg.DeleteStale
	if cmd.Flags().Changed("delete-stale") {
		deleteStale = indexDeleteStaleFlag
	}

	runOnce := func() error {
		return indexOnce(ctx, outRoot, orch, reg, vstore, strategy, deleteStale)
	}

	if !indexWatchFlag && !cfg.Watch.Enabled {
		return runOnce()
	}

	debounce := cfg.Watch.Debounce
	logger.Info("index: watch mode enabled", "root", outRoot, "debounce", debounce)
	w := watch.New(outRoot, debounce, logger)
	return w.Run(ctx, func() {
		if err := runOnce(); err != nil {
			logger.Error("index: watch-triggered run failed", "error", err)
		}
	})
}

func routerOrNil(r *routing.Router) orchestrator.Router {
	if r == nil {
		return nil
	}
	return r
}

func indexOnce(ctx context.Context, outRoot string, orch *orchestrator.Orchestrator, reg *registry.Registry, vstore port.VectorStore, strategy collection.Strategy, deleteStale bool) error {
	man := manifest.New(outRoot)
	doc, err := man.Read()
	if err != nil {
		return fmt.Errorf("index: reading manifest: %w", err)
	}

	partitions := manifest.ToDomainPartitions(doc)
	selector := partselect.New(indexPartitions, indexExcludeParts)
	filtered := partitions[:0]
	for _, p := range partitions {
		if selector.Match(p.Name) {
			filtered = append(filtered, p)
		}
	}
	partitions = filtered

	if len(partitions) == 0 {
		return nil
	}

	if deleteStale {
		for _, p := range partitions {
			for _, replaced := range p.Replaces {
				where := port.Eq(domain.MetaPartitionName, replaced)
				if err := strategy.DeleteStale(ctx, vstore, replaced, where); err != nil {
					return fmt.Errorf("index: deleting stale partition %s replaced by %s: %w", replaced, p.Name, err)
				}
			}
		}
	}

	bar := progressbar.NewOptions(len(partitions),
		progressbar.OptionSetDescription("indexing partitions"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
	)

	start := time.Now()
	outcomes := orch.Run(ctx, partitions, reg.Order, reg.Specs)
	for _, oc := range outcomes {
		_ = bar.Add(1)
		if oc.Err != nil {
			fmt.Fprintf(os.Stderr, "partition %s failed: %v\n", oc.Partition, oc.Err)
		}
	}
	_ = bar.Close()
	fmt.Printf("indexed %d partitions in %s\n", len(outcomes), time.Since(start).Round(time.Second))
	return nil
}

func buildEmbedder(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "", "mock":
		return embedding.NewMock(cfg.Dimension), nil
	case "openai":
		c, err := embedding.NewOpenAI(apiKeyEnvOrDefault(cfg, "OPENAI_API_KEY"), cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "deepseek":
		c, err := embedding.NewDeepSeek(apiKeyEnvOrDefault(cfg, "DEEPSEEK_API_KEY"), cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "jina":
		c, err := embedding.NewJina(apiKeyEnvOrDefault(cfg, "JINA_API_KEY"), cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "ollama":
		c, err := embedding.NewOllama(cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("index: unknown embedding provider %q", cfg.Provider)
	}
}

func apiKeyEnvOrDefault(cfg config.EmbeddingConfig, def string) string {
	if cfg.APIKeyEnv != "" {
		return cfg.APIKeyEnv
	}
	return def
}
