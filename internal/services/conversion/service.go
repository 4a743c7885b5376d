// Package conversion turns every lossless source under a root into its lossy
// twin, carrying tags and cover art across and verifying the result.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/opusify/internal/models"
	"github.com/killallgit/opusify/internal/services/artwork"
	"github.com/killallgit/opusify/internal/services/scanner"
	"github.com/killallgit/opusify/internal/services/tags"
	apperrors "github.com/killallgit/opusify/pkg/errors"
	"github.com/killallgit/opusify/pkg/ffmpeg"
	"github.com/spf13/afero"
)

// pictureMetadataKey is the comment carrying embedded artwork in Ogg streams
const pictureMetadataKey = "METADATA_BLOCK_PICTURE"

// RunStats summarizes a conversion run
type RunStats struct {
	Total         int
	Converted     int
	Skipped       int
	Failed        int
	DryRun        int
	CoversWritten int
	Failures      []models.FileResult
	Duration      time.Duration
}

func (r *RunStats) record(res models.FileResult) {
	r.Total++
	switch res.Status {
	case models.StatusConverted:
		r.Converted++
		if res.CoverPath != "" {
			r.CoversWritten++
		}
	case models.StatusSkipped:
		r.Skipped++
	case models.StatusDryRun:
		r.DryRun++
	case models.StatusFailed:
		r.Failed++
		r.Failures = append(r.Failures, res)
	}
}

// Service converts source files found under a root directory
type Service struct {
	fs         afero.Fs
	transcoder Transcoder
	prober     Prober
	artwork    *artwork.Service
	opts       Options
	logger     *slog.Logger
	progress   Progress
	newID      func() string
}

// NewService creates a new conversion service. prober and art may be nil,
// which disables source probing, duration checks and cover handling.
func NewService(fs afero.Fs, transcoder Transcoder, prober Prober, art *artwork.Service, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fs:         fs,
		transcoder: transcoder,
		prober:     prober,
		artwork:    art,
		opts:       opts,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// SetProgress attaches a progress indicator ticked once per file
func (s *Service) SetProgress(p Progress) {
	s.progress = p
}

// Run converts every source under root. Per-file failures are logged,
// counted and do not stop the walk. The returned error is non-nil only when
// the run itself could not proceed (missing root, cancelled context).
func (s *Service) Run(ctx context.Context, root string) (*RunStats, error) {
	ok, err := afero.DirExists(s.fs, root)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "failed to stat root %s", root)
	}
	if !ok {
		return nil, apperrors.NotFound("directory", root)
	}

	start := time.Now()
	stats := &RunStats{}
	s.logger.Info("Starting conversion",
		"root", root,
		"source_ext", s.opts.SourceExt,
		"target_ext", s.opts.TargetExt,
		"dry_run", s.opts.DryRun)

	sources := scanner.Sources(s.fs, root, scanner.Options{
		Extension:    s.opts.SourceExt,
		SkipPrefixes: s.opts.SkipPrefixes,
	})
	for path, walkErr := range sources {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		var res models.FileResult
		if walkErr != nil {
			res = models.FileResult{
				Path:   path,
				Status: models.StatusFailed,
				Err:    apperrors.SourceError(path, walkErr),
			}
		} else {
			res = s.ConvertFile(ctx, path)
		}

		stats.record(res)
		s.logResult(res)
		if s.progress != nil {
			_ = s.progress.Add(1)
		}
	}

	stats.Duration = time.Since(start)
	s.logger.Info("Conversion finished",
		"converted", stats.Converted,
		"skipped", stats.Skipped,
		"errors", stats.Failed,
		"dry_run", stats.DryRun,
		"covers", stats.CoversWritten,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, ctx.Err()
}

func (s *Service) logResult(res models.FileResult) {
	switch res.Status {
	case models.StatusConverted:
		s.logger.Info("Converted", "path", res.Path, "target", res.Target, "cover", res.CoverPath)
	case models.StatusSkipped:
		s.logger.Debug("Skipped", "path", res.Path, "reason", res.Reason)
	case models.StatusDryRun:
		s.logger.Info("Would convert", "path", res.Path, "target", res.Target)
	case models.StatusFailed:
		s.logger.Error("Conversion failed", "path", res.Path, "code", apperrors.GetCode(res.Err), "error", res.Err)
	}
}

// ConvertFile converts a single source into its twin. The output is written
// under a hidden partial name and only renamed into place once it has been
// transcoded and verified, so a failure never leaves a twin behind.
func (s *Service) ConvertFile(ctx context.Context, sourcePath string) models.FileResult {
	res := models.FileResult{Path: sourcePath}
	fail := func(err error) models.FileResult {
		res.Status = models.StatusFailed
		res.Err = err
		return res
	}

	pair, err := models.NewConversionPair(sourcePath, s.opts.TargetExt)
	if err != nil {
		return fail(apperrors.SourceError(sourcePath, err))
	}
	target := pair.Target.Path
	res.Target = target

	exists, err := afero.Exists(s.fs, target)
	if err != nil {
		return fail(apperrors.WriteError(target, err))
	}
	if exists && !s.opts.Overwrite {
		res.Status = models.StatusSkipped
		res.Reason = "target exists"
		return res
	}

	if s.opts.DryRun {
		res.Status = models.StatusDryRun
		return res
	}

	var srcMeta *ffmpeg.AudioMetadata
	if s.opts.ProbeSource && s.prober != nil {
		var formats []string
		if s.opts.SourceFormat != "" {
			formats = append(formats, s.opts.SourceFormat)
		}
		srcMeta, err = s.prober.ValidateAudioFile(ctx, sourcePath, formats...)
		if err != nil {
			return fail(apperrors.SourceError(sourcePath, err))
		}
	}

	srcTags, err := tags.Read(s.fs, sourcePath)
	if err != nil {
		return fail(apperrors.SourceError(sourcePath, err))
	}

	opts := s.opts.Transcode
	opts.Metadata = maps.Clone(opts.Metadata)
	cover := s.prepareCover(sourcePath, srcTags)
	if cover != nil && s.opts.EmbedCover {
		comment := artwork.PictureComment(cover)
		if len(comment) <= artwork.MaxCommentLen {
			if opts.Metadata == nil {
				opts.Metadata = map[string]string{}
			}
			opts.Metadata[pictureMetadataKey] = comment
		} else {
			s.logger.Warn("Cover too large to embed, writing sibling only",
				"path", sourcePath, "bytes", len(cover.Data))
		}
	}

	partial := pair.PartialPath(s.newID())
	if err := s.transcoder.Transcode(ctx, sourcePath, partial, opts); err != nil {
		s.removePartial(partial)
		return fail(apperrors.TranscodeError(sourcePath, err))
	}

	if err := s.verify(ctx, sourcePath, partial, srcTags, srcMeta); err != nil {
		s.removePartial(partial)
		return fail(err)
	}

	if err := s.fs.Rename(partial, target); err != nil {
		s.removePartial(partial)
		return fail(apperrors.WriteError(target, err))
	}

	if cover != nil && s.opts.ExtractCover {
		path, written, err := s.artwork.Write(cover, target)
		switch {
		case err != nil:
			s.logger.Warn("Failed to write cover", "path", sourcePath, "error", err)
		case written:
			res.CoverPath = path
		default:
			s.logger.Debug("Cover already present", "path", path)
		}
	}

	res.Status = models.StatusConverted
	return res
}

// prepareCover finds and normalizes cover art for a source. Missing or
// broken artwork only warns; it never fails the file.
func (s *Service) prepareCover(sourcePath string, srcTags *tags.Tags) *artwork.Cover {
	if s.artwork == nil || (!s.opts.EmbedCover && !s.opts.ExtractCover) {
		return nil
	}
	found, err := s.artwork.Find(sourcePath, srcTags.Picture)
	if err != nil {
		s.logger.Warn("Cover lookup failed", "path", sourcePath, "error", err)
		return nil
	}
	if found == nil {
		s.logger.Debug("No cover art", "path", sourcePath)
		return nil
	}
	cover, err := s.artwork.Prepare(found)
	if err != nil {
		s.logger.Warn("Cover could not be prepared", "path", sourcePath, "origin", found.Origin, "error", err)
		return nil
	}
	return cover
}

// verify checks a freshly written partial output against its source
func (s *Service) verify(ctx context.Context, sourcePath, partial string, srcTags *tags.Tags, srcMeta *ffmpeg.AudioMetadata) error {
	if s.opts.VerifyTags {
		outTags, err := tags.Read(s.fs, partial)
		if err != nil {
			return apperrors.VerifyError(sourcePath, fmt.Sprintf("output tags unreadable: %v", err))
		}
		if ms := tags.Compare(srcTags, outTags, s.opts.IgnoreTags); len(ms) > 0 {
			return apperrors.VerifyError(sourcePath, tags.Describe(ms))
		}
	}

	if s.opts.VerifyDuration && s.prober != nil && srcMeta != nil {
		outMeta, err := s.prober.GetMetadata(ctx, partial)
		if err != nil {
			return apperrors.VerifyError(sourcePath, fmt.Sprintf("output probe failed: %v", err))
		}
		diff := math.Abs(outMeta.Duration - srcMeta.Duration)
		if diff > s.opts.DurationTolerance.Seconds() {
			return apperrors.VerifyError(sourcePath,
				fmt.Sprintf("duration %.3fs, want %.3fs", outMeta.Duration, srcMeta.Duration))
		}
	}
	return nil
}

func (s *Service) removePartial(path string) {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove partial output", "path", path, "error", err)
	}
}
