package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/killallgit/opusify/internal/models"
	"github.com/killallgit/opusify/internal/services/scanner"
	"github.com/killallgit/opusify/pkg/config"
	apperrors "github.com/killallgit/opusify/pkg/errors"
	"github.com/spf13/afero"
)

// Options controls a cleanup run
type Options struct {
	SourceExt     string
	TargetExt     string
	SkipPrefixes  []string
	MinTargetSize int64         // Smallest twin accepted as proof of conversion
	DryRun        bool          // Report intent, delete nothing
	PartialMaxAge time.Duration // Age after which partial outputs are swept, 0 disables the sweep
}

// NewOptions builds cleanup options from the application config
func NewOptions(cfg *config.Config) Options {
	return Options{
		SourceExt:     cfg.Conversion.SourceExt,
		TargetExt:     cfg.Conversion.TargetExt,
		SkipPrefixes:  cfg.Conversion.SkipPrefixes,
		MinTargetSize: cfg.Cleanup.MinTargetSize,
		DryRun:        cfg.Cleanup.DryRun,
		PartialMaxAge: cfg.Cleanup.PartialMaxAge,
	}
}

// Stats summarizes a cleanup run
type Stats struct {
	Total           int
	Deleted         int
	Kept            int
	DryRun          int
	Failed          int // Delete attempts that failed
	Errors          int // Sources kept because they could not be checked
	PartialsRemoved int
	Failures        []models.FileResult
	Duration        time.Duration
}

func (s *Stats) record(res models.FileResult) {
	s.Total++
	switch res.Status {
	case models.StatusDeleted:
		s.Deleted++
	case models.StatusKept:
		s.Kept++
		if res.Err != nil {
			s.Errors++
		}
	case models.StatusDryRun:
		s.DryRun++
	case models.StatusFailed:
		s.Failed++
		s.Failures = append(s.Failures, res)
	}
}

// Service removes lossless sources whose converted twin is present
type Service struct {
	fs     afero.Fs
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new cleanup service
func NewService(fs afero.Fs, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MinTargetSize < 1 {
		opts.MinTargetSize = 1
	}
	return &Service{
		fs:     fs,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// HasConvertedTwin reports whether sourcePath has a converted twin: a
// regular file in the same directory with the exact same base name, the
// target extension and at least minSize bytes. It never modifies anything.
// Any error means the twin could not be confirmed.
func HasConvertedTwin(fs afero.Fs, sourcePath, targetExt string, minSize int64) (bool, error) {
	pair, err := models.NewConversionPair(sourcePath, targetExt)
	if err != nil {
		return false, err
	}

	info, err := fs.Stat(pair.Target.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !info.Mode().IsRegular() || info.Size() < minSize {
		return false, nil
	}

	// Case-insensitive filesystems resolve "Track.opus" for "track.opus";
	// only an entry with the exact name counts
	names, err := readDirNames(fs, pair.Target.Dir)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if pair.IsTwin(filepath.Join(pair.Target.Dir, name)) {
			return true, nil
		}
	}
	return false, nil
}

func readDirNames(fs afero.Fs, dir string) ([]string, error) {
	f, err := fs.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

// Run deletes every source under root that has a converted twin, then
// sweeps stale partial outputs. Delete failures are counted and do not stop
// the walk.
func (s *Service) Run(ctx context.Context, root string) (*Stats, error) {
	ok, err := afero.DirExists(s.fs, root)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "failed to stat root %s", root)
	}
	if !ok {
		return nil, apperrors.NotFound("directory", root)
	}

	start := time.Now()
	stats := &Stats{}
	s.logger.Info("Starting cleanup", "root", root, "dry_run", s.opts.DryRun)

	sources := scanner.Sources(s.fs, root, scanner.Options{
		Extension:    s.opts.SourceExt,
		SkipPrefixes: s.opts.SkipPrefixes,
	})
	for path, walkErr := range sources {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		if walkErr != nil {
			s.logger.Warn("Skipping unreadable path", "path", path, "error", walkErr)
			stats.Errors++
			continue
		}
		stats.record(s.CleanupFile(path))
	}

	if s.opts.PartialMaxAge > 0 {
		removed, err := s.SweepPartials(ctx, root)
		stats.PartialsRemoved = removed
		if err != nil {
			s.logger.Warn("Partial sweep incomplete", "root", root, "error", err)
		}
	}

	stats.Duration = time.Since(start)
	s.logger.Info("Cleanup finished",
		"deleted", stats.Deleted,
		"kept", stats.Kept,
		"failed", stats.Failed,
		"dry_run", stats.DryRun,
		"partials_removed", stats.PartialsRemoved,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, ctx.Err()
}

// CleanupFile deletes sourcePath if and only if its converted twin is
// confirmed. A failed or erroring check keeps the source.
func (s *Service) CleanupFile(sourcePath string) models.FileResult {
	res := models.FileResult{Path: sourcePath}
	if pair, err := models.NewConversionPair(sourcePath, s.opts.TargetExt); err == nil {
		res.Target = pair.Target.Path
	}

	ok, err := HasConvertedTwin(s.fs, sourcePath, s.opts.TargetExt, s.opts.MinTargetSize)
	if err != nil {
		res.Status = models.StatusKept
		res.Reason = "twin check failed"
		res.Err = err
		s.logger.Warn("Keeping source, twin check failed", "path", sourcePath, "error", err)
		return res
	}
	if !ok {
		res.Status = models.StatusKept
		res.Reason = "no converted twin"
		s.logger.Debug("Keeping source, no converted twin", "path", sourcePath)
		return res
	}

	if s.opts.DryRun {
		res.Status = models.StatusDryRun
		s.logger.Info("Would delete", "path", sourcePath, "twin", res.Target)
		return res
	}

	s.logger.Info("Deleting", "path", sourcePath, "twin", res.Target)
	if err := s.fs.Remove(sourcePath); err != nil {
		res.Status = models.StatusFailed
		res.Err = apperrors.DeleteError(sourcePath, err)
		s.logger.Error("Delete failed", "path", sourcePath, "error", err)
		return res
	}
	res.Status = models.StatusDeleted
	return res
}

// SweepPartials removes in-progress outputs older than PartialMaxAge left
// behind by interrupted conversions. It returns how many were removed, or
// would have been in dry-run mode.
func (s *Service) SweepPartials(ctx context.Context, root string) (int, error) {
	removed := 0
	err := afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files with errors
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		if !models.IsPartialName(info.Name(), s.opts.TargetExt) {
			return nil
		}

		age := s.now().Sub(info.ModTime())
		if age <= s.opts.PartialMaxAge {
			return nil
		}
		if s.opts.DryRun {
			s.logger.Info("Would remove stale partial output", "path", path, "age", age.Round(time.Second))
			removed++
			return nil
		}
		s.logger.Debug("Removing stale partial output", "path", path, "age", age.Round(time.Second))
		if err := s.fs.Remove(path); err != nil {
			s.logger.Warn("Failed to remove partial output", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})
	return removed, err
}
