package conversion

import (
	"time"

	"github.com/killallgit/opusify/pkg/config"
	"github.com/killallgit/opusify/pkg/ffmpeg"
)

// Options controls a conversion run
type Options struct {
	SourceExt    string
	TargetExt    string
	SkipPrefixes []string
	Transcode    ffmpeg.TranscodeOptions

	Overwrite bool
	DryRun    bool

	ProbeSource       bool
	SourceFormat      string // Container the source probe must report, empty accepts any
	VerifyTags        bool
	VerifyDuration    bool
	DurationTolerance time.Duration
	IgnoreTags        []string

	EmbedCover   bool
	ExtractCover bool
}

// NewOptions builds run options from the application config
func NewOptions(cfg *config.Config) Options {
	conv := cfg.Conversion
	return Options{
		SourceExt:    conv.SourceExt,
		TargetExt:    conv.TargetExt,
		SkipPrefixes: conv.SkipPrefixes,
		Transcode: ffmpeg.TranscodeOptions{
			InputFormat:     cfg.FFmpeg.InputFormat,
			AnalyzeDuration: cfg.FFmpeg.AnalyzeDuration,
			ProbeSize:       cfg.FFmpeg.ProbeSize,
			Codec:           conv.Codec,
			Bitrate:         conv.Bitrate,
			VBR:             conv.VBR,
			Threads:         cfg.FFmpeg.Threads,
			OutputFormat:    conv.Format,
			CopyMetadata:    true,
		},
		Overwrite:         conv.Overwrite,
		DryRun:            conv.DryRun,
		ProbeSource:       cfg.FFmpeg.ProbeSource,
		SourceFormat:      cfg.FFmpeg.InputFormat,
		VerifyTags:        conv.VerifyTags,
		VerifyDuration:    conv.VerifyDuration,
		DurationTolerance: conv.DurationTolerance,
		IgnoreTags:        conv.IgnoreTags,
		EmbedCover:        cfg.Cover.Enabled && cfg.Cover.Embed,
		ExtractCover:      cfg.Cover.Enabled && cfg.Cover.Extract,
	}
}
