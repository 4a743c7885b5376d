package cmd

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/killallgit/opusify/pkg/config"
	"github.com/killallgit/opusify/pkg/ffmpeg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build variables - these will be set during build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
	OS        = runtime.GOOS
	Arch      = runtime.GOARCH
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Display detailed version information about opusify.

This includes the version number, git commit hash, build time,
runtime information and the ffmpeg release conversions will use.`,
	Run: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("short", "s", false, "print just the version number")
}

func runVersion(cmd *cobra.Command, args []string) {
	short, _ := cmd.Flags().GetBool("short")

	if short {
		fmt.Fprintf(cmd.OutOrStdout(), "v%s\n", Version)
		return
	}

	// Print detailed version information
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "opusify")
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "Version:      v%s\n", Version)
	fmt.Fprintf(out, "Git Commit:   %s\n", GitCommit)
	fmt.Fprintf(out, "Build Time:   %s\n", BuildTime)
	fmt.Fprintf(out, "Go Version:   %s\n", GoVersion)
	fmt.Fprintf(out, "OS/Arch:      %s/%s\n", OS, Arch)
	fmt.Fprintf(out, "FFmpeg:       %s\n", ffmpegVersion(cmd.Context()))
	fmt.Fprintln(out, strings.Repeat("-", 40))
}

// ffmpegVersion reports the release of the configured ffmpeg binary, or why
// it could not be determined
func ffmpegVersion(ctx context.Context) string {
	if ctx == nil {
		ctx = context.Background()
	}
	path := "ffmpeg"
	viper.Reset()
	if cfg, err := config.Load(cfgFile); err == nil {
		path = cfg.FFmpeg.FFmpegPath
	}

	v, err := ffmpeg.New(path, "", 5*time.Second).Version(ctx)
	if err != nil {
		return fmt.Sprintf("not available (%s)", path)
	}
	return v
}
