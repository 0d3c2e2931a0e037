// mend is a self-correction tool for AI-generated content: it detects
// likely defects, applies an external corrector, validates the result,
// and iterates until the content converges or limits run out.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/mend/internal/engine"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mend",
	Short: "Detect and correct defects in AI-generated content",
	Long: `mend runs heuristic defect detection over AI-generated code or prose
and drives an external corrector program through a detect, correct,
validate loop until the content converges.

The corrector is any executable that reads content on stdin and writes
the corrected content to stdout; mend handles strategy selection,
attempt bookkeeping, validation, and retry limits.`,
}

func loadFileConfig() (*engine.FileConfig, error) {
	if configPath == "" {
		return engine.DefaultFileConfig(), nil
	}
	config, err := engine.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}
	return config, nil
}

// readContent returns the content to operate on: the named file, or
// stdin when no file is given.
func readContent(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a mend YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
