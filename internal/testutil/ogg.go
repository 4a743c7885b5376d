package testutil

import (
	"bytes"
	"encoding/binary"
)

var oggCRCTable = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04c11db7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// OggOpus returns the header pages of an Ogg Opus stream: OpusHead followed
// by OpusTags carrying entries in order. Like FLAC it has no audio packets.
func OggOpus(entries []string) []byte {
	head := new(bytes.Buffer)
	head.WriteString("OpusHead")
	head.WriteByte(1) // version
	head.WriteByte(2) // channels
	_ = binary.Write(head, binary.LittleEndian, uint16(312))
	_ = binary.Write(head, binary.LittleEndian, uint32(48000))
	_ = binary.Write(head, binary.LittleEndian, int16(0))
	head.WriteByte(0) // mapping family

	comments := append([]byte("OpusTags"), VorbisComment("Lavf", entries)...)

	var out bytes.Buffer
	seq := uint32(0)
	seq = writeOggPacket(&out, head.Bytes(), 0x02, seq)
	writeOggPacket(&out, comments, 0, seq)
	return out.Bytes()
}

// writeOggPacket laces one packet over as many pages as it needs and
// returns the next page sequence number.
func writeOggPacket(out *bytes.Buffer, packet []byte, flags byte, seq uint32) uint32 {
	lacing := make([]byte, 0, len(packet)/255+1)
	for n := len(packet); ; n -= 255 {
		if n < 255 {
			lacing = append(lacing, byte(n))
			break
		}
		lacing = append(lacing, 255)
	}

	for first := true; len(lacing) > 0; first = false {
		segs := lacing
		if len(segs) > 255 {
			segs = segs[:255]
		}
		lacing = lacing[len(segs):]

		size := 0
		for _, s := range segs {
			size += int(s)
		}
		body := packet[:size]
		packet = packet[size:]

		pageFlags := flags
		if !first {
			pageFlags = 0x01 // continued
		}

		var page bytes.Buffer
		page.WriteString("OggS")
		page.WriteByte(0)
		page.WriteByte(pageFlags)
		_ = binary.Write(&page, binary.LittleEndian, uint64(0))
		_ = binary.Write(&page, binary.LittleEndian, uint32(1))
		_ = binary.Write(&page, binary.LittleEndian, seq)
		_ = binary.Write(&page, binary.LittleEndian, uint32(0)) // crc placeholder
		page.WriteByte(byte(len(segs)))
		page.Write(segs)
		page.Write(body)

		raw := page.Bytes()
		var crc uint32
		for _, b := range raw {
			crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^b]
		}
		binary.LittleEndian.PutUint32(raw[22:26], crc)
		out.Write(raw)
		seq++
	}
	return seq
}
