package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// FFmpeg wraps ffmpeg and ffprobe functionality
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// New creates a new FFmpeg instance. A zero timeout disables the
// per-invocation deadline.
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
	}
}

// ValidateBinaries checks if ffmpeg and ffprobe are available
func (f *FFmpeg) ValidateBinaries() error {
	// Check ffmpeg
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, f.ffmpegPath)
	}

	// Check ffprobe
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFprobeNotFound, f.ffprobePath)
	}

	return nil
}

// Version returns the release reported by "ffmpeg -version", e.g. "6.1.1"
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	out, err := exec.CommandContext(ctx, f.ffmpegPath, "-hide_banner", "-version").Output()
	if err != nil {
		return "", NewProcessingError("version", f.ffmpegPath, err, "")
	}
	return parseVersion(string(out))
}

// parseVersion extracts the release from the first line of -version output
func parseVersion(out string) (string, error) {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[1] != "version" {
		return "", fmt.Errorf("unrecognized version output %q", line)
	}
	return fields[2], nil
}

// Transcode encodes input into output with the given options. The output is
// overwritten if it exists. On failure the ffmpeg stderr is carried in the
// returned *ProcessingError.
func (f *FFmpeg) Transcode(ctx context.Context, input, output string, opts TranscodeOptions) error {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	args := BuildTranscodeArgs(input, output, opts)

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrProcessingTimeout, ctx.Err())
		}
		return NewProcessingError("transcode", input, err, strings.TrimSpace(stderr.String()))
	}

	// ffmpeg can exit 0 after writing nothing useful, e.g. when no stream was mapped
	info, err := os.Stat(output)
	if err != nil {
		return NewProcessingError("transcode", input, err, strings.TrimSpace(stderr.String()))
	}
	if info.Size() == 0 {
		return NewProcessingError("transcode", input, ErrEmptyOutput, strings.TrimSpace(stderr.String()))
	}

	return nil
}

// BuildTranscodeArgs constructs the ffmpeg argument list (without the binary
// itself) for one transcode. Extra metadata keys are emitted in sorted order
// so the command line is deterministic.
func BuildTranscodeArgs(input, output string, opts TranscodeOptions) []string {
	args := make([]string, 0, 40)

	// --- Preamble ---
	args = append(args, "-hide_banner", "-nostdin", "-loglevel", "warning", "-y")

	// --- Input ---
	if opts.InputFormat != "" {
		args = append(args, "-f", opts.InputFormat)
	}
	if opts.AnalyzeDuration != "" {
		args = append(args, "-analyzeduration", opts.AnalyzeDuration)
	}
	if opts.ProbeSize != "" {
		args = append(args, "-probesize", opts.ProbeSize)
	}
	args = append(args, "-i", input)

	// --- Stream maps: audio only, artwork travels as a comment ---
	args = append(args, "-map", "0:a")
	if opts.CopyMetadata {
		args = append(args, "-map_metadata", "0")
	}

	// --- Audio codec ---
	if opts.Codec != "" {
		args = append(args, "-c:a", opts.Codec)
	}
	if opts.Bitrate != "" {
		args = append(args, "-b:a", opts.Bitrate)
	}
	if opts.VBR != "" {
		args = append(args, "-vbr", opts.VBR)
	}
	if opts.Threads != "" {
		args = append(args, "-threads", opts.Threads)
	}

	// --- Extra metadata ---
	keys := make([]string, 0, len(opts.Metadata))
	for k := range opts.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-metadata", k+"="+opts.Metadata[k])
	}

	// --- Output ---
	if opts.OutputFormat != "" {
		args = append(args, "-f", opts.OutputFormat)
	}
	args = append(args, output)

	return args
}

// withTimeout applies the configured per-invocation deadline, if any
func (f *FFmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, f.timeout)
}
