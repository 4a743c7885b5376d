// Package scanner walks a directory tree and yields lossless source files.
package scanner

import (
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Options controls which files count as sources
type Options struct {
	Extension    string   // Source extension, compared case-insensitively
	SkipPrefixes []string // File name prefixes to ignore, e.g. "._" AppleDouble files
}

// IsSource reports whether a file name is a source under opts
func IsSource(name string, opts Options) bool {
	for _, prefix := range opts.SkipPrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return false
		}
	}
	ext := filepath.Ext(name)
	return ext != "" && strings.EqualFold(ext, opts.Extension) && len(name) > len(ext)
}

// Sources returns a lazy sequence of source file paths under root in lexical
// order. The walk advances only as the caller ranges over it; breaking out of
// the loop stops the walk. Paths that cannot be read are yielded with a
// non-nil error and the walk continues past them.
func Sources(fs afero.Fs, root string, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if !yield(path, err) {
					stopped = true
					return filepath.SkipAll
				}
				// Skip the unreadable entry, keep walking its siblings
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() || !info.Mode().IsRegular() {
				return nil
			}
			if !IsSource(info.Name(), opts) {
				return nil
			}
			if !yield(path, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		// SkipDir escapes Walk when the root itself was unreadable and already reported
		if err != nil && !stopped && !errors.Is(err, filepath.SkipAll) && !errors.Is(err, filepath.SkipDir) {
			yield(root, err)
		}
	}
}
