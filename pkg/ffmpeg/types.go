package ffmpeg

// AudioMetadata represents metadata extracted from an audio file
type AudioMetadata struct {
	Duration   float64           `json:"duration"`    // Duration in seconds
	SampleRate int               `json:"sample_rate"` // Sample rate in Hz
	Channels   int               `json:"channels"`    // Number of audio channels
	Bitrate    int               `json:"bitrate"`     // Bitrate in bits per second
	Format     string            `json:"format"`      // Container format (flac, ogg, etc.)
	Codec      string            `json:"codec"`       // Audio codec
	Size       int64             `json:"size"`        // File size in bytes
	Title      string            `json:"title"`       // Title metadata
	Artist     string            `json:"artist"`      // Artist metadata
	Album      string            `json:"album"`       // Album metadata
	Year       string            `json:"year"`        // Year metadata
	Tags       map[string]string `json:"tags"`        // All tags, lowercased keys
}

// TranscodeOptions defines how a lossless input is encoded
type TranscodeOptions struct {
	InputFormat     string            `json:"input_format"`     // Forced demuxer, e.g. "flac"
	AnalyzeDuration string            `json:"analyze_duration"` // -analyzeduration in microseconds
	ProbeSize       string            `json:"probe_size"`       // -probesize in bytes
	Codec           string            `json:"codec"`            // Audio encoder, e.g. "libopus"
	Bitrate         string            `json:"bitrate"`          // Target bitrate, e.g. "192k"
	VBR             string            `json:"vbr"`              // libopus -vbr mode (on, off, constrained)
	Threads         string            `json:"threads"`          // -threads, "0" lets ffmpeg decide
	OutputFormat    string            `json:"output_format"`    // Forced muxer, required when the output name has no usable extension
	CopyMetadata    bool              `json:"copy_metadata"`    // -map_metadata 0
	Metadata        map[string]string `json:"metadata"`         // Extra -metadata key=value pairs
}

// DefaultTranscodeOptions returns the FLAC to Opus settings the tool ships with
func DefaultTranscodeOptions() TranscodeOptions {
	return TranscodeOptions{
		InputFormat:     "flac",
		AnalyzeDuration: "10000000",
		ProbeSize:       "20000000",
		Codec:           "libopus",
		Bitrate:         "192k",
		VBR:             "on",
		Threads:         "0",
		OutputFormat:    "opus",
		CopyMetadata:    true,
	}
}
