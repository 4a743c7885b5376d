// Package tags reads metadata and embedded artwork from audio files and
// compares tag sets between a source and its converted output.
package tags

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dhowden/tag"
	"github.com/spf13/afero"
)

// PictureKey is the vorbis comment carrying embedded artwork in Ogg streams.
// It is never compared as a plain tag.
const PictureKey = "metadata_block_picture"

// Picture is embedded cover art
type Picture struct {
	MIMEType    string
	Description string
	Data        []byte
}

// Tags is the readable metadata of one audio file
type Tags struct {
	Format   string            // e.g. "VORBIS"
	FileType string            // e.g. "FLAC", "OGG"
	Fields   map[string][]string // lowercased key -> values in file order
	Picture  *Picture
}

// Get returns the first value of key, if any
func (t *Tags) Get(key string) string {
	if vs := t.Fields[strings.ToLower(key)]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Title returns the title field, if any
func (t *Tags) Title() string {
	return t.Get("title")
}

// Read parses tags from the file at path. A file without any tag block
// yields empty Tags and no error. Vorbis comments of FLAC and Ogg files keep
// every value of a repeated key.
func Read(fs afero.Fs, path string) (*Tags, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return &Tags{Fields: map[string][]string{}}, nil
		}
		return nil, fmt.Errorf("failed to read tags from %s: %w", path, err)
	}

	t := &Tags{
		Format:   string(meta.Format()),
		FileType: string(meta.FileType()),
		Fields:   map[string][]string{},
	}

	// The tag library keeps only the last value of a repeated vorbis key
	if meta.Format() == tag.VORBIS {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind %s: %w", path, err)
		}
		comments, err := readComments(f)
		switch {
		case err == nil:
			delete(comments, PictureKey)
			t.Fields = comments
			t.Picture = picture(meta)
			return t, nil
		case !errors.Is(err, errNoComments):
			return nil, fmt.Errorf("failed to read comments from %s: %w", path, err)
		}
	}

	for k, v := range meta.Raw() {
		s, ok := v.(string)
		if !ok {
			continue
		}
		key := strings.ToLower(k)
		if key == PictureKey {
			continue
		}
		t.Fields[key] = []string{s}
	}
	t.Picture = picture(meta)
	return t, nil
}

func picture(meta tag.Metadata) *Picture {
	p := meta.Picture()
	if p == nil || len(p.Data) == 0 {
		return nil
	}
	return &Picture{
		MIMEType:    p.MIMEType,
		Description: p.Description,
		Data:        p.Data,
	}
}

// Mismatch describes a source field that did not survive conversion
type Mismatch struct {
	Key    string
	Want   string
	Got    string
	Absent bool
}

func (m Mismatch) String() string {
	if m.Absent {
		return fmt.Sprintf("%s missing", m.Key)
	}
	return fmt.Sprintf("%s=%q, want %q", m.Key, m.Got, m.Want)
}

// keyAliases maps names ffmpeg rewrites when it copies vorbis comments onto
// the names used for comparison.
var keyAliases = map[string]string{
	"album_artist": "albumartist",
	"album artist": "albumartist",
	"track":        "tracknumber",
	"disc":         "discnumber",
	"comment":      "description",
}

func canonicalKey(k string) string {
	k = strings.ToLower(k)
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

func canonicalFields(fields map[string][]string) map[string][]string {
	out := make(map[string][]string, len(fields))
	for k, vs := range fields {
		key := canonicalKey(k)
		out[key] = append(out[key], vs...)
	}
	return out
}

// Compare returns every field of src that is absent from dst or lost a
// value, in key order. Keys in ignore are skipped, as are values that are
// empty after trimming. A repeated source key is satisfied by the same
// values in dst, repeated or joined with ";".
func Compare(src, dst *Tags, ignore []string) []Mismatch {
	skip := make(map[string]bool, len(ignore))
	for _, k := range ignore {
		skip[canonicalKey(k)] = true
	}

	want := canonicalFields(src.Fields)
	have := canonicalFields(dst.Fields)

	keys := make([]string, 0, len(want))
	for k, vs := range want {
		if skip[k] || len(nonEmpty(vs)) == 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Mismatch
	for _, k := range keys {
		w := nonEmpty(want[k])
		got, ok := have[k]
		switch {
		case !ok || len(nonEmpty(got)) == 0:
			out = append(out, Mismatch{Key: k, Want: strings.Join(w, ";"), Absent: true})
		case !covers(got, w):
			out = append(out, Mismatch{Key: k, Want: strings.Join(w, ";"), Got: strings.Join(got, ";")})
		}
	}
	return out
}

// covers reports whether every wanted value survives in got
func covers(got, want []string) bool {
	present := map[string]bool{}
	for _, v := range got {
		present[strings.TrimSpace(v)] = true
		for _, part := range strings.Split(v, ";") {
			present[strings.TrimSpace(part)] = true
		}
	}
	if present[strings.Join(want, ";")] {
		return true
	}
	for _, v := range want {
		if !present[v] {
			return false
		}
	}
	return true
}

// nonEmpty returns the trimmed values that are not blank
func nonEmpty(vs []string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Describe joins mismatches into one log-friendly line
func Describe(ms []Mismatch) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = m.String()
	}
	return strings.Join(parts, "; ")
}
