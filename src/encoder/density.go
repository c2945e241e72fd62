package encoder

import (
	"bytes"
	"encoding/binary"
)

var jfifIdentifier = []byte("JFIF\x00")

// SetDensity records dpi as the pixel density of a JPEG stream. An
// existing JFIF header is updated in place, otherwise one is inserted
// after the SOI marker (image/jpeg doesn't write one). Data that isn't a
// JPEG is returned unchanged.
func SetDensity(data []byte, dpi int) []byte {
	if len(data) < 4 || data[0] != 0xff || data[1] != 0xd8 || dpi <= 0 || dpi > 0xffff {
		return data
	}

	if len(data) >= 18 && data[2] == 0xff && data[3] == 0xe0 && bytes.Equal(data[6:11], jfifIdentifier) {
		out := append([]byte(nil), data...)
		out[13] = 1 // dots per inch
		binary.BigEndian.PutUint16(out[14:16], uint16(dpi))
		binary.BigEndian.PutUint16(out[16:18], uint16(dpi))
		return out
	}

	app0 := []byte{
		0xff, 0xe0, 0x00, 0x10,
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01, // version 1.1
		0x01,       // dots per inch
		0x00, 0x00, // x density
		0x00, 0x00, // y density
		0x00, 0x00, // no thumbnail
	}
	binary.BigEndian.PutUint16(app0[12:14], uint16(dpi))
	binary.BigEndian.PutUint16(app0[14:16], uint16(dpi))

	out := make([]byte, 0, len(data)+len(app0))
	out = append(out, data[:2]...)
	out = append(out, app0...)
	return append(out, data[2:]...)
}

// Density returns the dpi stored in a JFIF header, or 0 if there is none
// or its unit isn't inches.
func Density(data []byte) int {
	if len(data) < 18 || data[2] != 0xff || data[3] != 0xe0 || !bytes.Equal(data[6:11], jfifIdentifier) || data[13] != 1 {
		return 0
	}
	return int(binary.BigEndian.Uint16(data[14:16]))
}
