package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/GetAdriAI/idxr/internal/queryconfig"
)

var (
	queryConfigOutPath       string
	queryConfigCollPrefix    string
)

var queryConfigCmd = &cobra.Command{
	Use:   "queryconfig [out-root]",
	Short: "Build the query routing config by scanning every partition's resume state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQueryConfig,
}

func init() {
	queryConfigCmd.Flags().StringVar(&queryConfigOutPath, "out", "", "where to write the config (default <dir>/queryconfig.json)")
	queryConfigCmd.Flags().StringVar(&queryConfigCollPrefix, "collection-prefix", "", "collection prefix recorded in the config's metadata")
	rootCmd.AddCommand(queryConfigCmd)
}

func runQueryConfig(cmd *cobra.Command, args []string) error {
	dir := GetRootDir()
	logger := GetLogger()

	outRoot := dir
	if len(args) == 1 {
		outRoot = args[0]
	}
	if queryConfigOutPath == "" {
		queryConfigOutPath = dir + "/queryconfig.json"
	}

	cfg, warnings, err := queryconfig.Build(outRoot, queryConfigCollPrefix, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("queryconfig: %w", err)
	}
	for _, w := range warnings {
		logger.Warn("queryconfig: warning while scanning resume state", "detail", string(w))
	}

	if err := queryconfig.Save(queryConfigOutPath, cfg); err != nil {
		return fmt.Errorf("queryconfig: saving %s: %w", queryConfigOutPath, err)
	}
	fmt.Printf("wrote query config to %s (%d models, %d collections)\n", queryConfigOutPath, cfg.Metadata.TotalModels, cfg.Metadata.TotalCollections)
	return nil
}
