package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/GetAdriAI/idxr/internal/collection"
	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/drop"
	"github.com/GetAdriAI/idxr/internal/manifest"
	"github.com/GetAdriAI/idxr/internal/vectorstore/localstore"
)

var (
	dropDBPath string
	dropActor  string
)

var dropCmd = &cobra.Command{
	Use:   "drop <plan.json> [out-root]",
	Short: "Apply a drop plan, deleting the selected model/partition slices from the vector store",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runDrop,
}

func init() {
	dropCmd.Flags().StringVar(&dropDBPath, "db", "", "local vector store file (default <dir>/idxr.db)")
	dropCmd.Flags().StringVar(&dropActor, "actor", "", "identity recorded in the manifest audit log (default: a generated id)")
	rootCmd.AddCommand(dropCmd)
}

func runDrop(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := GetConfig()
	dir := GetRootDir()
	logger := GetLogger()

	planPath := args[0]
	outRoot := dir
	if len(args) == 2 {
		outRoot = args[1]
	}
	if dropDBPath == "" {
		dropDBPath = dir + "/idxr.db"
	}
	if dropActor == "" {
		dropActor = "idxr-cli-" + uuid.NewString()
	}

	plan, err := drop.Load(planPath)
	if err != nil {
		return fmt.Errorf("drop: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("drop: building embedder: %w", err)
	}
	store, err := localstore.Open(dropDBPath, embedder)
	if err != nil {
		return fmt.Errorf("drop: opening vector store: %w", err)
	}
	defer store.Close()

	kind := domain.CollectionStrategyPerPartition
	base := ""
	if cfg.CollectionStrategy == "single" {
		kind = domain.CollectionStrategySingle
		base = "idxr"
	}
	strategy, err := collection.New(kind, base)
	if err != nil {
		return fmt.Errorf("drop: building collection strategy: %w", err)
	}

	applier := &drop.Applier{
		Store:    store,
		Strategy: strategy,
		Manifest: manifest.New(outRoot),
		Logger:   logger,
	}

	return applier.Apply(ctx, plan, planPath, dropActor, time.Now())
}
