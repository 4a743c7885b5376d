package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/killallgit/opusify/internal/services/cleanup"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup [root]",
	Short: "Delete sources that have been converted",
	Long: `Walk root (default: current directory) and delete every .flac file whose
.opus twin (same directory, same base name, non-empty) exists.

A source without a confirmed twin is always kept. Stale partial outputs
left by interrupted conversions are removed as well. The command exits
non-zero only when a delete attempt failed.

Example:
  opusify cleanup --dry-run
  opusify cleanup ~/Music`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Bool("dry-run", false, "log what would be deleted without deleting")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}

	if cmd.Flags().Changed("dry-run") {
		appConfig.Cleanup.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}

	svc := cleanup.NewService(afero.NewOsFs(), cleanup.NewOptions(appConfig), logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := svc.Run(ctx, rootArg(args))
	if stats != nil {
		printCleanupSummary(cmd.OutOrStdout(), stats, appConfig.Cleanup.DryRun)
	}
	if err != nil {
		return err
	}

	if stats.Failed > 0 {
		return fmt.Errorf("%d file(s) could not be deleted", stats.Failed)
	}
	return nil
}

// printCleanupSummary reports counts; errors are sources kept because their
// twin could not be checked
func printCleanupSummary(out io.Writer, stats *cleanup.Stats, dryRun bool) {
	if dryRun {
		fmt.Fprintf(out, "dry run: would delete=%d kept=%d errors=%d\n", stats.DryRun, stats.Kept, stats.Errors)
	} else {
		fmt.Fprintf(out, "deleted=%d kept=%d failed=%d errors=%d\n", stats.Deleted, stats.Kept, stats.Failed, stats.Errors)
	}
	for _, f := range stats.Failures {
		fmt.Fprintf(out, "  FAILED %s: %v\n", f.Path, f.Err)
	}
}
