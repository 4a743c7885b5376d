package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/killallgit/opusify/internal/services/artwork"
	"github.com/killallgit/opusify/internal/services/conversion"
	"github.com/killallgit/opusify/pkg/ffmpeg"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert [root]",
	Short: "Convert lossless sources to Opus",
	Long: `Walk root (default: current directory) and transcode every .flac file
to a .opus file with the same base name in the same directory.

Tags are copied and checked on the output, cover art (embedded or a
sibling image such as cover.jpg) is embedded and written next to the
output as <base>.jpg. Existing outputs are skipped unless --overwrite is
given. A failing file is reported and the walk continues; the command
exits non-zero if any file failed.

Example:
  opusify convert
  opusify convert ~/Music --bitrate 160k
  opusify convert ~/Music --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().String("bitrate", "", "target bitrate, e.g. 192k (overrides config)")
	convertCmd.Flags().Bool("dry-run", false, "log what would be converted without writing anything")
	convertCmd.Flags().Bool("overwrite", false, "re-encode sources whose output already exists")
	convertCmd.Flags().Bool("no-verify", false, "skip tag and duration checks on the output")
	convertCmd.Flags().Bool("no-progress", false, "disable the progress spinner")
}

func runConvert(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("bitrate") {
		appConfig.Conversion.Bitrate, _ = flags.GetString("bitrate")
	}
	if flags.Changed("dry-run") {
		appConfig.Conversion.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("overwrite") {
		appConfig.Conversion.Overwrite, _ = flags.GetBool("overwrite")
	}
	if noVerify, _ := flags.GetBool("no-verify"); noVerify {
		appConfig.Conversion.VerifyTags = false
		appConfig.Conversion.VerifyDuration = false
	}
	if err := appConfig.Validate(); err != nil {
		return err
	}

	ff := ffmpeg.New(appConfig.FFmpeg.FFmpegPath, appConfig.FFmpeg.FFprobePath, appConfig.FFmpeg.Timeout)
	if !appConfig.Conversion.DryRun {
		if err := ff.ValidateBinaries(); err != nil {
			return err
		}
	}

	fs := afero.NewOsFs()
	art := artwork.NewService(fs, artwork.Options{
		SiblingNames: appConfig.Cover.SiblingNames,
		Ext:          appConfig.Cover.Ext,
		MaxSize:      appConfig.Cover.MaxSize,
		JPEGQuality:  appConfig.Cover.JPEGQuality,
	})
	svc := conversion.NewService(fs, ff, ff, art, conversion.NewOptions(appConfig), logger)

	noProgress, _ := flags.GetBool("no-progress")
	if bar := newProgress(cmd.ErrOrStderr(), "converting", noProgress); bar != nil {
		svc.SetProgress(bar)
		defer bar.Finish()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := svc.Run(ctx, rootArg(args))
	// An interrupted run still reports what it got through
	if stats != nil {
		printConvertSummary(cmd.OutOrStdout(), stats, appConfig.Conversion.DryRun)
	}
	if err != nil {
		return err
	}

	if stats.Failed > 0 {
		return fmt.Errorf("%d file(s) failed to convert", stats.Failed)
	}
	return nil
}

func printConvertSummary(out io.Writer, stats *conversion.RunStats, dryRun bool) {
	if dryRun {
		fmt.Fprintf(out, "dry run: would convert=%d skipped=%d errors=%d\n", stats.DryRun, stats.Skipped, stats.Failed)
	} else {
		fmt.Fprintf(out, "converted=%d skipped=%d errors=%d\n", stats.Converted, stats.Skipped, stats.Failed)
	}
	for _, f := range stats.Failures {
		fmt.Fprintf(out, "  FAILED %s: %v\n", f.Path, f.Err)
	}
}
