// Package cli implements the idxr command-line tool: index, query, status,
// drop, and queryconfig subcommands wired over the indexing pipeline's
// internal packages.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/GetAdriAI/idxr/config"
	"github.com/GetAdriAI/idxr/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "idxr",
	Short: "Indexing pipeline for sanitised tabular partitions into a vector store",
	Long: `idxr ingests CSV partitions produced by an upstream sanitiser, builds
embeddable documents per model, and upserts them into a vector store,
tracking resumable progress per partition and model.

Example usage:
  idxr index /data/out             # Index every partition under a root
  idxr status /data/out            # Print process-level status
  idxr queryconfig /data/out       # Build the query routing config
  idxr drop plan.json /data/out    # Apply a drop plan`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger = logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./idxr.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "working directory (default is current directory)")
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config { return cfg }

// GetRootDir returns the resolved working directory.
func GetRootDir() string { return rootDir }

// GetLogger returns the process-wide structured logger.
func GetLogger() *slog.Logger { return logger }
