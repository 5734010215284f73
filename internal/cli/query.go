package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/GetAdriAI/idxr/internal/queryclient"
	"github.com/GetAdriAI/idxr/internal/queryconfig"
	"github.com/GetAdriAI/idxr/internal/vectorstore/localstore"
)

var (
	queryConfigPath string
	queryDBPath     string
	queryModels     []string
	queryN          int
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run an ad-hoc query against the vector store using the query routing config",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryConfigPath, "queryconfig", "", "query routing config JSON (default <dir>/queryconfig.json)")
	queryCmd.Flags().StringVar(&queryDBPath, "db", "", "local vector store file (default <dir>/idxr.db)")
	queryCmd.Flags().StringSliceVar(&queryModels, "models", nil, "restrict the query to these models (default: every model)")
	queryCmd.Flags().IntVar(&queryN, "n", 10, "number of results to return")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := GetConfig()
	dir := GetRootDir()

	if queryConfigPath == "" {
		queryConfigPath = dir + "/queryconfig.json"
	}
	if queryDBPath == "" {
		queryDBPath = dir + "/idxr.db"
	}

	routing, err := queryconfig.Load(queryConfigPath)
	if err != nil {
		return fmt.Errorf("query: loading query config: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("query: building embedder: %w", err)
	}

	store, err := localstore.Open(queryDBPath, embedder)
	if err != nil {
		return fmt.Errorf("query: opening vector store: %w", err)
	}
	defer store.Close()

	var opts []queryclient.Option
	if cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, queryclient.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)))
	}
	client := queryclient.Connect(store, routing, opts...)
	defer client.Close()

	result, err := client.Query(ctx, []string{args[0]}, queryN, queryModels, nil)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
