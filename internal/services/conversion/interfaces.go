package conversion

import (
	"context"

	"github.com/killallgit/opusify/pkg/ffmpeg"
)

// Transcoder encodes one audio file into another
type Transcoder interface {
	// Transcode reads input and writes the encoded result to output
	Transcode(ctx context.Context, input, output string, opts ffmpeg.TranscodeOptions) error
}

// Prober reads stream properties of an audio file
type Prober interface {
	// GetMetadata returns duration, format and tags of the file at path
	GetMetadata(ctx context.Context, path string) (*ffmpeg.AudioMetadata, error)
	// ValidateAudioFile is GetMetadata that also rejects files without a
	// decodable audio stream or outside the given container formats
	ValidateAudioFile(ctx context.Context, path string, formats ...string) (*ffmpeg.AudioMetadata, error)
}

// Progress receives one tick per processed source file
type Progress interface {
	Add(n int) error
}
