package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AudioFile identifies an audio file on disk by its path
type AudioFile struct {
	Path     string `json:"path"`      // Full path as found by the walk
	Dir      string `json:"dir"`       // Containing directory
	BaseName string `json:"base_name"` // File name without extension
	Ext      string `json:"ext"`       // Extension including the dot, case preserved
}

// NewAudioFile splits a path into directory, base name and extension
func NewAudioFile(path string) AudioFile {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	return AudioFile{
		Path:     path,
		Dir:      filepath.Dir(path),
		BaseName: strings.TrimSuffix(name, ext),
		Ext:      ext,
	}
}

// Stem returns the path with its extension removed
func (a AudioFile) Stem() string {
	return filepath.Join(a.Dir, a.BaseName)
}

// HasExt reports whether the file carries ext, compared case-insensitively
func (a AudioFile) HasExt(ext string) bool {
	return strings.EqualFold(a.Ext, ext)
}

// Sibling returns the path of a file in the same directory with the same
// base name and the given extension
func (a AudioFile) Sibling(ext string) string {
	return a.Stem() + ext
}

// ConversionPair relates a lossless source to its lossy twin. Both share
// directory and base name and differ only in extension.
type ConversionPair struct {
	Source AudioFile `json:"source"`
	Target AudioFile `json:"target"`
}

// NewConversionPair derives the target twin of sourcePath
func NewConversionPair(sourcePath, targetExt string) (ConversionPair, error) {
	src := NewAudioFile(sourcePath)
	if src.BaseName == "" {
		return ConversionPair{}, fmt.Errorf("source %q has an empty base name", sourcePath)
	}
	if src.HasExt(targetExt) {
		return ConversionPair{}, fmt.Errorf("source %q already has target extension %s", sourcePath, targetExt)
	}
	return ConversionPair{
		Source: src,
		Target: NewAudioFile(src.Sibling(targetExt)),
	}, nil
}

// IsTwin reports whether candidate is the authoritative converted twin of
// the pair's source: same directory, exact base name, target extension.
func (p ConversionPair) IsTwin(candidate string) bool {
	c := NewAudioFile(candidate)
	return filepath.Clean(c.Dir) == filepath.Clean(p.Source.Dir) &&
		c.BaseName == p.Source.BaseName &&
		c.Ext == p.Target.Ext
}

// PartialSuffix marks a converted output that is still being written
const PartialSuffix = ".part"

// PartialPath returns the hidden in-progress name for the pair's target,
// e.g. ".track.<id>.opus.part" next to "track.opus"
func (p ConversionPair) PartialPath(id string) string {
	name := fmt.Sprintf(".%s.%s%s%s", p.Target.BaseName, id, p.Target.Ext, PartialSuffix)
	return filepath.Join(p.Target.Dir, name)
}

// IsPartialName reports whether a file name is an in-progress output for
// the target extension
func IsPartialName(name, targetExt string) bool {
	return strings.HasPrefix(name, ".") &&
		strings.HasSuffix(name, targetExt+PartialSuffix) &&
		len(name) > len(targetExt+PartialSuffix)+1
}
