package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Conversion ConversionConfig `mapstructure:"conversion"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Cover      CoverConfig      `mapstructure:"cover"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ConversionConfig contains the source/target pair and encoder settings
type ConversionConfig struct {
	SourceExt         string        `mapstructure:"source_ext"`
	TargetExt         string        `mapstructure:"target_ext"`
	Format            string        `mapstructure:"format"`
	Codec             string        `mapstructure:"codec"`
	Bitrate           string        `mapstructure:"bitrate"`
	VBR               string        `mapstructure:"vbr"`
	Overwrite         bool          `mapstructure:"overwrite"`
	DryRun            bool          `mapstructure:"dry_run"`
	VerifyTags        bool          `mapstructure:"verify_tags"`
	VerifyDuration    bool          `mapstructure:"verify_duration"`
	DurationTolerance time.Duration `mapstructure:"duration_tolerance"`
	IgnoreTags        []string      `mapstructure:"ignore_tags"`
	SkipPrefixes      []string      `mapstructure:"skip_prefixes"`
}

// FFmpegConfig contains external tool settings
type FFmpegConfig struct {
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`
	FFprobePath     string        `mapstructure:"ffprobe_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
	InputFormat     string        `mapstructure:"input_format"`
	AnalyzeDuration string        `mapstructure:"analyze_duration"`
	ProbeSize       string        `mapstructure:"probe_size"`
	Threads         string        `mapstructure:"threads"`
	ProbeSource     bool          `mapstructure:"probe_source"`
}

// CoverConfig contains cover art settings
type CoverConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Embed        bool     `mapstructure:"embed"`
	Extract      bool     `mapstructure:"extract"`
	Ext          string   `mapstructure:"ext"`
	MaxSize      int      `mapstructure:"max_size"`
	JPEGQuality  int      `mapstructure:"jpeg_quality"`
	SiblingNames []string `mapstructure:"sibling_names"`
}

// CleanupConfig contains source removal settings
type CleanupConfig struct {
	DryRun        bool          `mapstructure:"dry_run"`
	MinTargetSize int64         `mapstructure:"min_target_size"`
	PartialMaxAge time.Duration `mapstructure:"partial_max_age"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
