package tags

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxCommentPacket bounds a comment header. Embedded artwork makes these
// large but never anywhere near this.
const maxCommentPacket = 64 << 20

var (
	flacMagic      = []byte("fLaC")
	oggMagic       = []byte("OggS")
	opusTagsPrefix = []byte("OpusTags")
	vorbisPrefix   = []byte("\x03vorbis")

	errNoComments = errors.New("no vorbis comment block")
)

// readComments returns every vorbis comment of a FLAC or Ogg stream keyed
// by lowercased name, keeping repeated keys in file order. Streams of any
// other kind report errNoComments.
func readComments(r io.Reader) (map[string][]string, error) {
	br := &byteReader{r: r}
	magic, err := br.next(4)
	if err != nil {
		return nil, errNoComments
	}
	switch {
	case bytes.Equal(magic, flacMagic):
		return flacComments(br)
	case bytes.Equal(magic, oggMagic):
		return oggComments(br)
	}
	return nil, errNoComments
}

func flacComments(br *byteReader) (map[string][]string, error) {
	for {
		header, err := br.next(4)
		if err != nil {
			return nil, err
		}
		last := header[0]&0x80 != 0
		kind := header[0] & 0x7f
		size := int(header[1])<<16 | int(header[2])<<8 | int(header[3])

		if kind == 4 {
			body, err := br.next(size)
			if err != nil {
				return nil, err
			}
			return parseComments(body)
		}
		if err := br.skip(size); err != nil {
			return nil, err
		}
		if last {
			return nil, errNoComments
		}
	}
}

// oggComments reassembles packets of the first logical stream until the
// comment header, which is always the second packet.
func oggComments(br *byteReader) (map[string][]string, error) {
	var (
		packet  []byte
		packets int
		serial  uint32
	)
	for page := 0; ; page++ {
		if page > 0 {
			magic, err := br.next(4)
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(magic, oggMagic) {
				return nil, errors.New("ogg: lost page sync")
			}
		}
		header, err := br.next(23)
		if err != nil {
			return nil, err
		}
		pageSerial := binary.LittleEndian.Uint32(header[10:14])
		lacing, err := br.next(int(header[22]))
		if err != nil {
			return nil, err
		}
		lacing = bytes.Clone(lacing)

		if page == 0 {
			serial = pageSerial
		}
		if pageSerial != serial {
			size := 0
			for _, l := range lacing {
				size += int(l)
			}
			if err := br.skip(size); err != nil {
				return nil, err
			}
			continue
		}

		for _, l := range lacing {
			seg, err := br.next(int(l))
			if err != nil {
				return nil, err
			}
			packet = append(packet, seg...)
			if len(packet) > maxCommentPacket {
				return nil, errors.New("ogg: comment header too large")
			}
			if l == 255 {
				continue
			}
			packets++
			if packets == 2 {
				switch {
				case bytes.HasPrefix(packet, opusTagsPrefix):
					return parseComments(packet[len(opusTagsPrefix):])
				case bytes.HasPrefix(packet, vorbisPrefix):
					return parseComments(packet[len(vorbisPrefix):])
				}
				return nil, errNoComments
			}
			packet = packet[:0]
		}
	}
}

// parseComments decodes a vorbis comment body: vendor string, then a count
// of "KEY=value" entries, all lengths little-endian.
func parseComments(body []byte) (map[string][]string, error) {
	r := bytes.NewReader(body)
	str := func() (string, error) {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return "", err
		}
		if int64(n) > int64(r.Len()) {
			return "", io.ErrUnexpectedEOF
		}
		b := make([]byte, n)
		_, err := io.ReadFull(r, b)
		return string(b), err
	}

	if _, err := str(); err != nil {
		return nil, fmt.Errorf("vorbis comment vendor: %w", err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("vorbis comment count: %w", err)
	}

	out := map[string][]string{}
	for i := uint32(0); i < count; i++ {
		entry, err := str()
		if err != nil {
			return nil, fmt.Errorf("vorbis comment %d: %w", i, err)
		}
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key := strings.ToLower(k)
		out[key] = append(out[key], v)
	}
	return out, nil
}

// byteReader reads exact-length chunks, reusing one buffer
type byteReader struct {
	r   io.Reader
	buf []byte
}

func (b *byteReader) next(n int) ([]byte, error) {
	if cap(b.buf) < n {
		b.buf = make([]byte, n)
	}
	b.buf = b.buf[:n]
	if _, err := io.ReadFull(b.r, b.buf); err != nil {
		return nil, err
	}
	return b.buf, nil
}

func (b *byteReader) skip(n int) error {
	_, err := io.CopyN(io.Discard, b.r, int64(n))
	return err
}
