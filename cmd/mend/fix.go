package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/steveyegge/mend/internal/engine"
	"github.com/steveyegge/mend/internal/events"
	"github.com/steveyegge/mend/internal/storage/sqlite"
	"github.com/steveyegge/mend/internal/types"
)

var fixCmd = &cobra.Command{
	Use:   "fix [file]",
	Short: "Iteratively correct content using an external corrector",
	Long: `Detect defects in a file (or stdin) and drive an external corrector
program until the content converges or the iteration budget runs out.

The corrector receives the current content on stdin and must write the
corrected content to stdout. The defect being fixed and the chosen
strategy are passed in the MEND_ERROR_TYPE, MEND_ERROR_DESCRIPTION, and
MEND_STRATEGY environment variables.

Examples:
  # Fix in place with up to 5 detect/correct rounds
  mend fix --corrector ./fix.sh --iterations 5 -o generated.go generated.go

  # Pipe through, archiving the correction history
  cat draft.md | mend fix --corrector ./fix.sh --archive .mend/history.db`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		correctorCmd, _ := cmd.Flags().GetString("corrector")
		iterations, _ := cmd.Flags().GetInt("iterations")
		output, _ := cmd.Flags().GetString("output")
		archivePath, _ := cmd.Flags().GetString("archive")
		rateLimit, _ := cmd.Flags().GetFloat64("rate-limit")
		verbose, _ := cmd.Flags().GetBool("verbose")

		if correctorCmd == "" {
			fmt.Fprintf(os.Stderr, "Error: --corrector is required\n")
			os.Exit(1)
		}

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

		opts := engine.Options{
			Detector:       config.Detector,
			Correction:     config.Correction,
			Corrector:      commandCorrector(correctorCmd),
			AttemptTimeout: config.Timeout(),
		}
		if rateLimit == 0 {
			rateLimit = config.CorrectorRateLimit
		}
		if rateLimit > 0 {
			opts.Limiter = rate.NewLimiter(rate.Limit(rateLimit), 1)
		}

		eng, err := engine.New(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if archivePath != "" {
			archive, err := sqlite.New(archivePath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer archive.Close()
			eng.Subscribe(archive.Listener())
		}
		if verbose {
			eng.Subscribe(progressListener())
		}

		taskID := "stdin"
		if len(args) > 0 && args[0] != "-" {
			taskID = args[0]
		}

		result, err := eng.IterativeCorrection(context.Background(), taskID, content, iterations)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := writeResult(output, result.FinalContent); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printSummary(result)

		if !result.Success {
			os.Exit(1)
		}
	},
}

// commandCorrector wraps an external program as the corrector procedure.
// The program gets the content on stdin and the defect context in its
// environment; whatever it writes to stdout becomes the correction.
func commandCorrector(command string) engine.CorrectorFunc {
	return func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = strings.NewReader(content)
		cmd.Env = append(os.Environ(),
			"MEND_ERROR_TYPE="+string(detected.Type),
			"MEND_ERROR_DESCRIPTION="+detected.Description,
			"MEND_STRATEGY="+string(strat),
		)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return "", fmt.Errorf("corrector failed: %v: %s", err, msg)
			}
			return "", fmt.Errorf("corrector failed: %w", err)
		}
		return stdout.String(), nil
	}
}

// progressListener prints one line per lifecycle event.
func progressListener() events.Listener {
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	return func(e events.Event) {
		switch ev := e.(type) {
		case events.ErrorDetected:
			fmt.Fprintf(os.Stderr, "%s detected %s: %s\n", cyan("▶"), ev.Error.Type, ev.Error.Description)
		case events.CorrectionStarted:
			fmt.Fprintf(os.Stderr, "%s attempt %d (%s)\n", cyan("▶"), ev.AttemptNumber, ev.Strategy)
		case events.CorrectionSucceeded:
			fmt.Fprintf(os.Stderr, "%s corrected\n", green("✓"))
		case events.CorrectionFailed:
			fmt.Fprintf(os.Stderr, "%s failed: %s\n", red("✗"), ev.Reason)
		}
	}
}

func writeResult(output, content string) error {
	if output == "" || output == "-" {
		_, err := fmt.Print(content)
		return err
	}
	return os.WriteFile(output, []byte(content), 0644)
}

func printSummary(result *types.CorrectionResult) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	if result.Success {
		fmt.Fprintf(os.Stderr, "%s corrected %d/%d defect(s) in %d attempt(s) (%s)\n",
			green("✓"), result.ErrorsCorrected, result.ErrorsDetected,
			result.TotalAttempts, result.Duration.Round(10*time.Millisecond))
		return
	}
	fmt.Fprintf(os.Stderr, "%s %d defect(s) remain after %d attempt(s) (correction rate %.0f%%)\n",
		yellow("!"), len(result.RemainingErrors), result.TotalAttempts,
		result.CorrectionRate()*100)
}

func init() {
	fixCmd.Flags().String("corrector", "", "Shell command that corrects content (stdin to stdout)")
	fixCmd.Flags().Int("iterations", 3, "Maximum detect/correct rounds")
	fixCmd.Flags().StringP("output", "o", "", "Write corrected content to this file (default stdout)")
	fixCmd.Flags().String("archive", "", "SQLite file to archive correction events into")
	fixCmd.Flags().Float64("rate-limit", 0, "Maximum corrector invocations per second")
	fixCmd.Flags().Bool("verbose", false, "Print per-event progress to stderr")
	rootCmd.AddCommand(fixCmd)
}
