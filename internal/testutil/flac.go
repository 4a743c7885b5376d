// Package testutil builds synthetic audio fixtures for package tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sort"
)

// FLAC metadata block types
const (
	blockStreamInfo    = 0
	blockVorbisComment = 4
	blockPicture       = 6
)

// Picture is an embedded FLAC picture
type Picture struct {
	MIMEType    string
	Description string
	Width       int
	Height      int
	Data        []byte
}

// FLAC returns the bytes of a minimal FLAC stream: a STREAMINFO block, a
// VORBIS_COMMENT block with tags and, when pic is non-nil, a PICTURE block.
// It carries no audio frames; it is enough for tag readers, not decoders.
func FLAC(tags map[string]string, pic *Picture) []byte {
	return FLACComments(Comments(tags), pic)
}

// FLACComments is FLAC with raw "KEY=value" entries, written in order.
// Repeating a key yields a multi-valued field.
func FLACComments(entries []string, pic *Picture) []byte {
	var buf bytes.Buffer
	buf.WriteString("fLaC")

	blocks := []struct {
		kind byte
		data []byte
	}{
		{blockStreamInfo, make([]byte, 34)},
		{blockVorbisComment, VorbisComment("testutil", entries)},
	}
	if pic != nil {
		blocks = append(blocks, struct {
			kind byte
			data []byte
		}{blockPicture, PictureBlock(*pic)})
	}

	for i, b := range blocks {
		header := b.kind
		if i == len(blocks)-1 {
			header |= 0x80
		}
		buf.WriteByte(header)
		n := len(b.data)
		buf.Write([]byte{byte(n >> 16), byte(n >> 8), byte(n)})
		buf.Write(b.data)
	}
	return buf.Bytes()
}

// Comments turns a tag map into "KEY=value" entries in sorted key order
func Comments(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]string, len(keys))
	for i, k := range keys {
		entries[i] = k + "=" + tags[k]
	}
	return entries
}

// VorbisComment encodes a vorbis comment body (little-endian lengths)
func VorbisComment(vendor string, entries []string) []byte {
	var buf bytes.Buffer
	le32 := func(n int) {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(n))
	}
	le32(len(vendor))
	buf.WriteString(vendor)

	le32(len(entries))
	for _, entry := range entries {
		le32(len(entry))
		buf.WriteString(entry)
	}
	return buf.Bytes()
}

// PictureBlock encodes a FLAC PICTURE block body (big-endian lengths) as a
// front cover.
func PictureBlock(p Picture) []byte {
	var buf bytes.Buffer
	be32 := func(n int) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(n))
	}
	be32(3) // front cover
	be32(len(p.MIMEType))
	buf.WriteString(p.MIMEType)
	be32(len(p.Description))
	buf.WriteString(p.Description)
	be32(p.Width)
	be32(p.Height)
	be32(24)
	be32(0)
	be32(len(p.Data))
	buf.Write(p.Data)
	return buf.Bytes()
}

// JPEG returns a solid-colour JPEG of the given size
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

// PNG returns a solid-colour PNG of the given size
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, solid(w, h))
	return buf.Bytes()
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return img
}
