package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/GetAdriAI/idxr/internal/status"
	"github.com/GetAdriAI/idxr/internal/tui"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status [out-root]",
	Short: "Print the process-level status of every partition and model",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "open a live-refreshing status view instead of printing once")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	outRoot := GetRootDir()
	if len(args) == 1 {
		outRoot = args[0]
	}

	refresh := func() ([]status.ModelStatus, error) { return scanAll(outRoot) }

	if !statusWatch {
		rows, err := refresh()
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		fmt.Print(tui.RenderPlain(rows))
		return nil
	}

	p := tea.NewProgram(tui.New(refresh, GetConfig().Watch.Debounce))
	_, err := p.Run()
	return err
}

func scanAll(outRoot string) ([]status.ModelStatus, error) {
	entries, err := os.ReadDir(outRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", outRoot, err)
	}

	var all []status.ModelStatus
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rows, err := status.Scan(outRoot, e.Name())
		if err != nil {
			return nil, fmt.Errorf("scanning partition %s: %w", filepath.Join(outRoot, e.Name()), err)
		}
		all = append(all, rows...)
	}
	return all, nil
}
