package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/killallgit/opusify/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultConfigPath is read when no explicit config file is given. A missing
// file at this path is not an error.
const DefaultConfigPath = "./config/settings.yaml"

var bitratePattern = regexp.MustCompile(`^[0-9]+[kKmM]?$`)

// Init initializes the configuration system: defaults, environment
// overrides and the config file. An empty configFile falls back to
// DefaultConfigPath. Use Load to get the validated result.
func Init(configFile string) error {
	// Set default values
	setDefaults()

	// Set up environment variable reading for overrides
	viper.SetEnvPrefix("OPUSIFY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	explicit := configFile != ""
	if !explicit {
		configFile = DefaultConfigPath
	}
	configPath := filepath.Clean(configFile)
	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		// Only an explicitly requested file has to exist
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	}
	return nil
}

// Load runs Init and returns the validated, normalized configuration
func Load(configFile string) (*Config, error) {
	if err := Init(configFile); err != nil {
		return nil, err
	}
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the current configuration as a struct
// Init() must be called before using this
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// Validate validates a Config struct, normalizing extensions in place
func (c *Config) Validate() error {
	src, err := normalizeExt("conversion.source_ext", c.Conversion.SourceExt)
	if err != nil {
		return err
	}
	dst, err := normalizeExt("conversion.target_ext", c.Conversion.TargetExt)
	if err != nil {
		return err
	}
	if src == dst {
		return apperrors.ConfigError("conversion.target_ext", "must differ from source_ext")
	}
	c.Conversion.SourceExt = src
	c.Conversion.TargetExt = dst

	if !bitratePattern.MatchString(c.Conversion.Bitrate) {
		return apperrors.ConfigError("conversion.bitrate", fmt.Sprintf("invalid bitrate %q", c.Conversion.Bitrate))
	}
	if c.Conversion.DurationTolerance < 0 {
		return apperrors.ConfigError("conversion.duration_tolerance", "must not be negative")
	}

	if c.FFmpeg.FFmpegPath == "" {
		return apperrors.ConfigError("ffmpeg.ffmpeg_path", "must not be empty")
	}
	if c.FFmpeg.Timeout < 0 {
		return apperrors.ConfigError("ffmpeg.timeout", "must not be negative")
	}

	if c.Cover.Enabled {
		coverExt, err := normalizeExt("cover.ext", c.Cover.Ext)
		if err != nil {
			return err
		}
		if coverExt != ".jpg" && coverExt != ".jpeg" {
			return apperrors.ConfigError("cover.ext", "covers are written as JPEG, use .jpg or .jpeg")
		}
		c.Cover.Ext = coverExt
		if c.Cover.MaxSize < 0 {
			return apperrors.ConfigError("cover.max_size", "must not be negative")
		}
		// Auto-correct out of range quality
		if c.Cover.JPEGQuality < 1 || c.Cover.JPEGQuality > 100 {
			c.Cover.JPEGQuality = 90
		}
	}

	if c.Cleanup.MinTargetSize < 1 {
		c.Cleanup.MinTargetSize = 1
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return apperrors.ConfigError("logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level))
	}

	return nil
}

func normalizeExt(key, ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return "", apperrors.ConfigError(key, "must not be empty")
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if strings.ContainsAny(ext[1:], `./\`) {
		return "", apperrors.ConfigError(key, fmt.Sprintf("invalid extension %q", ext))
	}
	return ext, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Conversion defaults
	viper.SetDefault("conversion.source_ext", ".flac")
	viper.SetDefault("conversion.target_ext", ".opus")
	viper.SetDefault("conversion.format", "opus")
	viper.SetDefault("conversion.codec", "libopus")
	viper.SetDefault("conversion.bitrate", "192k")
	viper.SetDefault("conversion.vbr", "on")
	viper.SetDefault("conversion.overwrite", false)
	viper.SetDefault("conversion.dry_run", false)
	viper.SetDefault("conversion.verify_tags", true)
	viper.SetDefault("conversion.verify_duration", true)
	viper.SetDefault("conversion.duration_tolerance", 1*time.Second)
	viper.SetDefault("conversion.ignore_tags", []string{"encoder", "vendor", "waveformatextensible_channel_mask"})
	viper.SetDefault("conversion.skip_prefixes", []string{"._"})

	// FFmpeg defaults
	viper.SetDefault("ffmpeg.ffmpeg_path", "ffmpeg")
	viper.SetDefault("ffmpeg.ffprobe_path", "ffprobe")
	viper.SetDefault("ffmpeg.timeout", time.Duration(0))
	viper.SetDefault("ffmpeg.input_format", "flac")
	viper.SetDefault("ffmpeg.analyze_duration", "10000000")
	viper.SetDefault("ffmpeg.probe_size", "20000000")
	viper.SetDefault("ffmpeg.threads", "0")
	viper.SetDefault("ffmpeg.probe_source", true)

	// Cover defaults
	viper.SetDefault("cover.enabled", true)
	viper.SetDefault("cover.embed", true)
	viper.SetDefault("cover.extract", true)
	viper.SetDefault("cover.ext", ".jpg")
	viper.SetDefault("cover.max_size", 1200)
	viper.SetDefault("cover.jpeg_quality", 90)
	viper.SetDefault("cover.sibling_names", []string{"cover", "folder", "front", "album"})

	// Cleanup defaults
	viper.SetDefault("cleanup.dry_run", false)
	viper.SetDefault("cleanup.min_target_size", 1)
	viper.SetDefault("cleanup.partial_max_age", 1*time.Hour)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
