package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/killallgit/opusify/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	appConfig *config.Config
	logger    *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "opusify",
	Short: "Convert FLAC libraries to Opus",
	Long: `opusify - Convert a FLAC library to Opus, then remove the originals

Run the two stages by hand, in order:

  opusify convert [root]   transcode every .flac to a same-named .opus,
                           carrying tags and cover art across
  opusify cleanup [root]   delete every .flac whose .opus twin exists

Both stages default to the current directory. Conversion never deletes
anything; cleanup never deletes a source without a confirmed twin.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates a new root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultConfigPath+")")

	// Add persistent flags for logging configuration
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "enable JSON formatted logs")
}

// loadConfig loads the configuration and sets up logging. Only commands that
// touch the library call it; version and help do not.
func loadConfig(cmd *cobra.Command) error {
	viper.Reset()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error initializing config: %w", err)
	}

	// Flags override the config file
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("json-logs") {
		if jsonLogs, _ := flags.GetBool("json-logs"); jsonLogs {
			cfg.Logging.Format = "json"
		} else {
			cfg.Logging.Format = "text"
		}
	}

	l, err := newLogger(cmd.ErrOrStderr(), cfg.Logging)
	if err != nil {
		return err
	}

	appConfig = cfg
	logger = l
	slog.SetDefault(l)
	return nil
}

// newLogger builds the text or JSON slog handler the logging config asks for
func newLogger(w io.Writer, lc config.LoggingConfig) (*slog.Logger, error) {
	name := strings.ToLower(lc.Level)
	if name == "warning" {
		name = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// rootArg returns the library root from the positional args, "." if absent
func rootArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "."
}
