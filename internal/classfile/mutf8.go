package classfile

import (
	"strings"
	"unicode/utf16"
)

// decodeModifiedUTF8 decodes a CONSTANT_Utf8 payload. The class file form
// differs from UTF-8 in two ways: NUL is written as the two bytes C0 80, and
// characters outside the BMP are written as a surrogate pair of three-byte
// sequences.
func decodeModifiedUTF8(b []byte) (string, bool) {
	plain := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			plain = false
			break
		}
	}
	if plain {
		return string(b), true
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0:
			return "", false
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0:
			if i+1 >= len(b) || b[i+1]&0xc0 != 0x80 {
				return "", false
			}
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0:
			if i+2 >= len(b) || b[i+1]&0xc0 != 0x80 || b[i+2]&0xc0 != 0x80 {
				return "", false
			}
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return "", false
		}
	}
	return string(utf16.Decode(units)), true
}

// encodeModifiedUTF8 is the inverse of decodeModifiedUTF8.
func encodeModifiedUTF8(s string) []byte {
	var sb strings.Builder
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			sb.WriteByte(byte(u))
		case u < 0x800:
			sb.WriteByte(0xc0 | byte(u>>6))
			sb.WriteByte(0x80 | byte(u&0x3f))
		default:
			sb.WriteByte(0xe0 | byte(u>>12))
			sb.WriteByte(0x80 | byte(u>>6&0x3f))
			sb.WriteByte(0x80 | byte(u&0x3f))
		}
	}
	return []byte(sb.String())
}
