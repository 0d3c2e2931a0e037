package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/mend/internal/detector"
	"github.com/steveyegge/mend/internal/strategy"
	"github.com/steveyegge/mend/internal/types"
)

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Detect likely defects in content without correcting them",
	Long: `Run the heuristic detectors over a file (or stdin) and report the
findings with severity, confidence, and the strategy that would be tried.

Examples:
  # Check a file
  mend check generated.go

  # Check stdin
  cat generated.go | mend check

  # Raise the confidence floor
  mend check --min-confidence 0.8 generated.go

  # Machine-readable output
  mend check --json generated.go`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
		asJSON, _ := cmd.Flags().GetBool("json")

		content, err := readContent(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		config, err := loadFileConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("min-confidence") {
			config.Detector.MinConfidence = minConfidence
		}

		suite, err := detector.NewSuite(config.Detector)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		findings, err := suite.Detect(context.Background(), content)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(findings); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		} else {
			printFindings(findings)
		}

		if len(findings) > 0 {
			os.Exit(1)
		}
	},
}

func printFindings(findings []types.DetectedError) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if len(findings) == 0 {
		fmt.Printf("%s No defects detected\n", green("✓"))
		return
	}

	fmt.Printf("%s Found %d potential defect(s)\n\n", yellow("!"), len(findings))
	for i, f := range findings {
		marker := yellow("!")
		if f.Severity == types.SeverityCritical || f.Severity == types.SeverityHigh {
			marker = red("✗")
		}
		fmt.Printf("%s %d. [%s/%s] %s (confidence %.2f)\n",
			marker, i+1, f.Type, f.Severity, f.Description, f.Confidence)
		if f.SuggestedFix != "" {
			fmt.Printf("     Fix: %s\n", f.SuggestedFix)
		}
		fmt.Printf("     Default strategy: %s\n", strategy.DefaultStrategy(f.Type))
	}
}

func init() {
	checkCmd.Flags().Float64("min-confidence", 0.5, "Drop findings below this confidence")
	checkCmd.Flags().Bool("json", false, "Emit findings as JSON")
	rootCmd.AddCommand(checkCmd)
}
