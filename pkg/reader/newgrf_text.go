package reader

import (
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type ctrlCode struct {
	skip int
	text string
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Private-use block the control bytes are mapped into
	ctrlBase = 0xE000

	// Control byte which introduces an extended control code
	ctrlExtended = 0x9A
)

var ctrlCodes = map[rune]ctrlCode{
	0x01: {1, " "}, // SETX
	0x0E: {0, ""},  // SMALLFONT
	0x0F: {0, ""},  // BIGFONT
	0x1F: {2, " "}, // SETXY
	0x7B: {0, " "},
	0x7C: {0, " "},
	0x7D: {0, " "},
	0x7E: {0, " "},
	0x7F: {0, " "},
	0x80: {0, " "},
	0x81: {2, " "},
	0x82: {0, " "},
	0x83: {0, " "},
	0x84: {0, " "},
	0x85: {0, " "},
	0x86: {0, " "},
	0x87: {0, " "},
	0x88: {0, ""}, // colours
	0x89: {0, ""},
	0x8A: {0, ""},
	0x8B: {0, ""},
	0x8C: {0, ""},
	0x8D: {0, ""},
	0x8E: {0, ""},
	0x8F: {0, ""},
	0x90: {0, ""},
	0x91: {0, ""},
	0x92: {0, ""},
	0x93: {0, ""},
	0x94: {0, ""},
	0x95: {0, ""},
	0x96: {0, ""},
	0x97: {0, ""},
	0x98: {0, ""},
	0x99: {0, ""},
	0x9E: {0, "€"},
	0x9F: {0, "Ÿ"},
	0xA0: {0, "▲"},
	0xAA: {0, "▼"},
	0xAC: {0, "✓"},
	0xAD: {0, "❌"},
	0xAF: {0, "▶"},
	0xB4: {0, ""}, // vehicle glyphs
	0xB5: {0, ""},
	0xB6: {0, ""},
	0xB7: {0, ""},
	0xB8: {0, ""},
	0xB9: {0, "₋₁"},
	0xBC: {0, "↑"},
	0xBD: {0, "↓"},
}

var extCtrlCodes = map[byte]ctrlCode{
	0x01: {0, " "},
	0x03: {2, ""},
	0x04: {1, ""},
	0x06: {0, " "},
	0x07: {0, " "},
	0x08: {0, " "},
	0x0B: {0, " "},
	0x0C: {0, " "},
	0x0D: {0, " "},
	0x0E: {1, ""},
	0x0F: {1, ""},
	0x10: {1, ""},
	0x11: {1, ""},
	0x12: {0, ""},
	0x13: {1, ""},
	0x14: {0, ""},
	0x15: {1, ""},
	0x16: {0, " "},
	0x17: {0, " "},
	0x18: {0, " "},
	0x19: {0, " "},
	0x1A: {0, " "},
	0x1B: {0, " "},
	0x1C: {0, " "},
	0x1D: {0, " "},
	0x1E: {0, " "},
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// DecodeString converts a NewGRF string to plain text. Strings starting
// with "Þ" in UTF-8 are unicode strings; others are single-byte strings.
// Control codes are replaced or removed.
func DecodeString(b []byte) string {
	var result strings.Builder

	pos := 0
	unicode := false
	if size, c := utf8At(b, 0); size == 2 && c == 0xDE {
		unicode = true
		pos = 2
	}

	for pos < len(b) {
		var c rune
		if unicode {
			size, r := utf8At(b, pos)
			if size == 0 {
				c = ctrlBase + rune(b[pos])
				pos++
			} else {
				c = r
				pos += size
			}
		} else {
			c = rune(b[pos])
			pos++
			if _, exists := ctrlCodes[c]; exists || c == ctrlExtended {
				c += ctrlBase
			}
		}

		switch {
		case c == 13:
			result.WriteByte('\n')
		case c == ctrlBase+ctrlExtended:
			if pos >= len(b) {
				return result.String()
			}
			code := extCtrlCodes[b[pos]]
			pos += 1 + code.skip
			result.WriteString(code.text)
		case c >= ctrlBase && c <= ctrlBase+0xFF:
			code := ctrlCodes[c-ctrlBase]
			pos += code.skip
			result.WriteString(code.text)
		case c >= 32:
			result.WriteRune(c)
		}
	}

	return result.String()
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// utf8At decodes one UTF-8 sequence at pos, returning its length and value,
// or zero length when the bytes are not a valid sequence. Overlong forms
// are accepted, the same way the game does.
func utf8At(b []byte, pos int) (int, rune) {
	n := len(b) - pos
	switch {
	case n >= 1 && b[pos]&0x80 == 0:
		return 1, rune(b[pos])
	case n >= 2 && b[pos]&0xE0 == 0xC0 && b[pos+1]&0xC0 == 0x80:
		return 2, rune(b[pos]&0x1F)<<6 | rune(b[pos+1]&0x3F)
	case n >= 3 && b[pos]&0xF0 == 0xE0 && b[pos+1]&0xC0 == 0x80 && b[pos+2]&0xC0 == 0x80:
		return 3, rune(b[pos]&0x0F)<<12 | rune(b[pos+1]&0x3F)<<6 | rune(b[pos+2]&0x3F)
	case n >= 4 && b[pos]&0xF8 == 0xF0 && b[pos+1]&0xC0 == 0x80 && b[pos+2]&0xC0 == 0x80 && b[pos+3]&0xC0 == 0x80:
		return 4, rune(b[pos]&0x07)<<18 | rune(b[pos+1]&0x3F)<<12 | rune(b[pos+2]&0x3F)<<6 | rune(b[pos+3]&0x3F)
	}
	return 0, 0
}
