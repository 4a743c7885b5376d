package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ffprobeOutput represents the JSON structure returned by ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration   string            `json:"duration"`
		Size       string            `json:"size"`
		Bitrate    string            `json:"bit_rate"`
		FormatName string            `json:"format_name"`
		Tags       map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType  string            `json:"codec_type"`
		CodecName  string            `json:"codec_name"`
		SampleRate string            `json:"sample_rate"`
		Channels   int               `json:"channels"`
		Duration   string            `json:"duration"`
		Tags       map[string]string `json:"tags"`
	} `json:"streams"`
}

// GetMetadata extracts metadata from an audio file using ffprobe
func (f *FFmpeg) GetMetadata(ctx context.Context, filePath string) (*AudioMetadata, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-select_streams", "a:0", // Select first audio stream
		"-of", "json",
		filePath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrProcessingTimeout, ctx.Err())
		}
		return nil, NewProcessingError("metadata_extraction", filePath, err, strings.TrimSpace(stderr.String()))
	}

	return parseProbeOutput(stdout.Bytes(), filePath)
}

// parseProbeOutput decodes ffprobe JSON and converts it to AudioMetadata
func parseProbeOutput(data []byte, filePath string) (*AudioMetadata, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, NewProcessingError("metadata_parsing", filePath, err, "")
	}
	return parseMetadata(&output, filePath)
}

// parseMetadata converts ffprobe output to AudioMetadata
func parseMetadata(output *ffprobeOutput, filePath string) (*AudioMetadata, error) {
	metadata := &AudioMetadata{Tags: map[string]string{}}

	// Parse duration
	if output.Format.Duration != "" {
		if duration, err := strconv.ParseFloat(output.Format.Duration, 64); err == nil {
			metadata.Duration = duration
		}
	}

	// Parse file size
	if output.Format.Size != "" {
		if size, err := strconv.ParseInt(output.Format.Size, 10, 64); err == nil {
			metadata.Size = size
		}
	}

	// Parse bitrate
	if output.Format.Bitrate != "" {
		if bitrate, err := strconv.Atoi(output.Format.Bitrate); err == nil {
			metadata.Bitrate = bitrate
		}
	}

	metadata.Format = output.Format.FormatName

	// Container tags first; Ogg keeps its comments on the stream instead
	for k, v := range output.Format.Tags {
		metadata.Tags[strings.ToLower(k)] = v
	}

	hasAudio := false
	for _, stream := range output.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		hasAudio = true
		metadata.Codec = stream.CodecName
		metadata.Channels = stream.Channels

		if stream.SampleRate != "" {
			if sampleRate, err := strconv.Atoi(stream.SampleRate); err == nil {
				metadata.SampleRate = sampleRate
			}
		}

		// Use stream duration if format duration is not available
		if metadata.Duration == 0 && stream.Duration != "" {
			if duration, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				metadata.Duration = duration
			}
		}

		for k, v := range stream.Tags {
			key := strings.ToLower(k)
			if _, ok := metadata.Tags[key]; !ok {
				metadata.Tags[key] = v
			}
		}
		break
	}

	if !hasAudio {
		return nil, NewProcessingError("metadata_validation", filePath, ErrNoAudioStream, "")
	}

	metadata.Title = metadata.Tags["title"]
	metadata.Artist = metadata.Tags["artist"]
	metadata.Album = metadata.Tags["album"]
	metadata.Year = metadata.Tags["date"]
	if metadata.Year == "" {
		metadata.Year = metadata.Tags["year"]
	}

	// Validate that we have minimum required metadata
	if metadata.Duration == 0 {
		return nil, NewProcessingError("metadata_validation", filePath,
			fmt.Errorf("could not determine audio duration"), "")
	}

	return metadata, nil
}

// ValidateAudioFile checks that a file is a decodable audio file in one of
// the given container formats. An empty format list accepts any container.
func (f *FFmpeg) ValidateAudioFile(ctx context.Context, filePath string, formats ...string) (*AudioMetadata, error) {
	metadata, err := f.GetMetadata(ctx, filePath)
	if err != nil {
		return nil, err
	}

	if metadata.Duration <= 0 {
		return nil, NewProcessingError("metadata_validation", filePath, ErrInvalidAudioFile, "")
	}

	if len(formats) == 0 {
		return metadata, nil
	}
	// ffprobe reports comma separated demuxer aliases, e.g. "ogg" or "mov,mp4,m4a"
	for _, name := range strings.Split(metadata.Format, ",") {
		for _, want := range formats {
			if strings.EqualFold(name, want) {
				return metadata, nil
			}
		}
	}
	return nil, NewProcessingError("metadata_validation", filePath,
		fmt.Errorf("%w: %s", ErrInvalidAudioFile, metadata.Format), "")
}
