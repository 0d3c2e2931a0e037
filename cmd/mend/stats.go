package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/mend/internal/events"
	"github.com/steveyegge/mend/internal/storage/sqlite"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize an archived correction history",
	Long: `Read the event archive written by 'mend fix --archive' and report
aggregate correction statistics.

Examples:
  mend stats --archive .mend/history.db
  mend stats --archive .mend/history.db --session <id>`,
	Run: func(cmd *cobra.Command, args []string) {
		archivePath, _ := cmd.Flags().GetString("archive")
		sessionID, _ := cmd.Flags().GetString("session")

		if archivePath == "" {
			fmt.Fprintf(os.Stderr, "Error: --archive is required\n")
			os.Exit(1)
		}

		archive, err := sqlite.New(archivePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer archive.Close()

		ctx := context.Background()
		if sessionID != "" {
			printSessionHistory(ctx, archive, sessionID)
			return
		}
		printArchiveSummary(ctx, archive)
	},
}

func printArchiveSummary(ctx context.Context, archive *sqlite.Archive) {
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	summary, err := archive.Summarize(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s %d event(s) across %d session(s)\n\n", cyan("▶"), summary.TotalEvents, summary.Sessions)

	kinds := make([]events.EventType, 0, len(summary.ByType))
	for t := range summary.ByType {
		kinds = append(kinds, t)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		fmt.Printf("  %-22s %d\n", kind, summary.ByType[kind])
	}

	succeeded := summary.ByType[events.EventCorrectionSucceeded]
	failed := summary.ByType[events.EventCorrectionFailed]
	if succeeded+failed > 0 {
		fmt.Printf("\n%s %d succeeded, %s %d failed (%.0f%% success)\n",
			green("✓"), succeeded, red("✗"), failed,
			float64(succeeded)/float64(succeeded+failed)*100)
	}
}

func printSessionHistory(ctx context.Context, archive *sqlite.Archive, sessionID string) {
	history, err := archive.BySession(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(history) == 0 {
		fmt.Printf("No events recorded for session %s\n", sessionID)
		return
	}
	for _, ev := range history {
		fmt.Printf("%s  %-22s %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Type, ev.ID)
	}
}

func init() {
	statsCmd.Flags().String("archive", "", "SQLite event archive to summarize")
	statsCmd.Flags().String("session", "", "Show the event history for one session")
	rootCmd.AddCommand(statsCmd)
}
