// Package artwork locates cover art for a source file, normalizes it to JPEG
// and stores or embeds it for the converted output.
package artwork

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif" // GIF decoder registration
	"image/jpeg"
	_ "image/png" // PNG decoder registration
	"path/filepath"
	"strings"

	"github.com/killallgit/opusify/internal/models"
	"github.com/killallgit/opusify/internal/services/tags"
	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp" // BMP decoder registration
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder registration
)

// MaxCommentLen caps the base64 picture comment passed to ffmpeg on the
// command line. Linux rejects single arguments over 128 KiB.
const MaxCommentLen = 120 * 1024

// OriginEmbedded marks a cover taken from the source's own tags
const OriginEmbedded = "embedded"

// imageExts are the sibling image extensions considered, in priority order
var imageExts = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif"}

// Cover is a cover image and where it came from
type Cover struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Origin   string // OriginEmbedded or the sibling file path
}

// Options controls lookup and normalization
type Options struct {
	SiblingNames []string // Directory-level cover names without extension, e.g. "cover"
	Ext          string   // Extension of the written cover, ".jpg"
	MaxSize      int      // Longest edge in pixels, 0 keeps the original size
	JPEGQuality  int
}

// Service finds, prepares and writes cover art
type Service struct {
	fs   afero.Fs
	opts Options
}

// NewService creates a new artwork service
func NewService(fs afero.Fs, opts Options) *Service {
	if opts.Ext == "" {
		opts.Ext = ".jpg"
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 90
	}
	return &Service{fs: fs, opts: opts}
}

// OutputPath returns where the cover for target is stored: same directory,
// same base name, cover extension
func (s *Service) OutputPath(targetPath string) string {
	return models.NewAudioFile(targetPath).Sibling(s.opts.Ext)
}

// Find locates cover art for sourcePath. The embedded picture wins, then a
// per-track sibling image (<base>.jpg, <base>.png, ...), then a directory
// cover such as cover.jpg or folder.png. It returns nil when nothing is found.
func (s *Service) Find(sourcePath string, embedded *tags.Picture) (*Cover, error) {
	if embedded != nil && len(embedded.Data) > 0 {
		return &Cover{Data: embedded.Data, MIMEType: embedded.MIMEType, Origin: OriginEmbedded}, nil
	}

	src := models.NewAudioFile(sourcePath)
	entries, err := afero.ReadDir(s.fs, src.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", src.Dir, err)
	}

	// name without extension -> ext -> actual file name
	byStem := make(map[string]map[string]string)
	for _, e := range entries {
		if e.IsDir() || !e.Mode().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if byStem[stem] == nil {
			byStem[stem] = make(map[string]string)
		}
		byStem[stem][ext] = e.Name()
	}

	lookup := func(stem string) string {
		exts := byStem[stem]
		for _, ext := range imageExts {
			if name, ok := exts[ext]; ok {
				return name
			}
		}
		return ""
	}

	// Per-track image matches the exact base name
	name := lookup(src.BaseName)
	if name == "" {
		// Directory covers match case-insensitively
		for _, want := range s.opts.SiblingNames {
			for stem := range byStem {
				if strings.EqualFold(stem, want) {
					if name = lookup(stem); name != "" {
						break
					}
				}
			}
			if name != "" {
				break
			}
		}
	}
	if name == "" {
		return nil, nil
	}

	path := filepath.Join(src.Dir, name)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cover %s: %w", path, err)
	}
	return &Cover{Data: data, Origin: path}, nil
}

// Prepare normalizes a cover to JPEG no larger than MaxSize on its longest
// edge. A JPEG that already fits is passed through untouched.
func (s *Service) Prepare(c *Cover) (*Cover, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(c.Data))
	if err != nil {
		return nil, fmt.Errorf("unsupported cover image from %s: %w", c.Origin, err)
	}

	fits := s.opts.MaxSize == 0 || (cfg.Width <= s.opts.MaxSize && cfg.Height <= s.opts.MaxSize)
	if format == "jpeg" && fits {
		return &Cover{
			Data:     c.Data,
			MIMEType: "image/jpeg",
			Width:    cfg.Width,
			Height:   cfg.Height,
			Origin:   c.Origin,
		}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(c.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover from %s: %w", c.Origin, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if !fits {
		width, height = fitWithin(width, height, s.opts.MaxSize)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	// Catmull-Rom for high-quality scaling
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: s.opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode cover: %w", err)
	}

	return &Cover{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    width,
		Height:   height,
		Origin:   c.Origin,
	}, nil
}

// fitWithin scales w x h down so the longest edge equals max, keeping the
// aspect ratio
func fitWithin(w, h, max int) (int, int) {
	if w >= h {
		nh := int(float64(h) * float64(max) / float64(w))
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := int(float64(w) * float64(max) / float64(h))
	if nw < 1 {
		nw = 1
	}
	return nw, max
}

// Write stores the cover next to targetPath under the target's base name.
// An existing file at that path is left alone and reported as not written.
func (s *Service) Write(c *Cover, targetPath string) (string, bool, error) {
	path := s.OutputPath(targetPath)
	if c.Origin == path {
		return path, false, nil
	}
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return path, false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if exists {
		return path, false, nil
	}
	if err := afero.WriteFile(s.fs, path, c.Data, 0644); err != nil {
		return path, false, fmt.Errorf("failed to write cover %s: %w", path, err)
	}
	return path, true, nil
}

// PictureComment encodes the cover as a base64 FLAC picture block, the value
// of the METADATA_BLOCK_PICTURE vorbis comment used by Ogg Opus and Vorbis.
func PictureComment(c *Cover) string {
	var buf bytes.Buffer
	be32 := func(n int) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(n))
	}
	be32(3) // front cover
	be32(len(c.MIMEType))
	buf.WriteString(c.MIMEType)
	be32(0) // description
	be32(c.Width)
	be32(c.Height)
	be32(24)
	be32(0)
	be32(len(c.Data))
	buf.Write(c.Data)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
