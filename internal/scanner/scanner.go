// Package scanner decodes an encoded byte stream into a forward-only
// sequence of Unicode code points, coalescing UTF-16 surrogate pairs
// when running in full-Unicode mode.
//
// Grounded on tff/scanner.py's DefaultScanner: the surrogate-pair
// coalescing algorithm and its last-wins recovery on an unpaired high
// surrogate are ported byte-for-byte from that reference.
package scanner

import (
	"errors"
	"unicode/utf8"
)

// ErrDecoderMismatch is returned by ContinuousAssign when no encoding
// was configured via a prior Assign call (spec.md §4.1).
var ErrDecoderMismatch = errors.New("scanner: continuous_assign before an encoding was configured")

// Scanner decodes bytes into code points. The only encoding
// implemented is UTF-8: the encoding tag passed to Assign is recorded
// (ContinuousAssign checks that one was set), but bytes are decoded as
// UTF-8 whatever tag is given.
type Scanner struct {
	ucs4 bool

	data     []byte
	encoding string

	cps []rune // decoded eagerly by Assign/ContinuousAssign for Next to walk
	pos int
}

// New returns a Scanner in full-Unicode (UCS-4) mode, the recommended
// default per spec.md §9.
func New() *Scanner {
	return &Scanner{ucs4: true}
}

// NewBMP returns a Scanner in BMP mode, kept for parity with narrow
// legacy consumers (spec.md §9 Open Question).
func NewBMP() *Scanner {
	return &Scanner{ucs4: false}
}

// Assign replaces the scanner's buffer outright; subsequent iteration
// yields code points decoded from these bytes under encoding.
func (s *Scanner) Assign(data []byte, encoding string) {
	s.encoding = encoding
	s.data = append(s.data[:0], data...)
	s.cps = s.CodePoints()
	s.pos = 0
}

// ContinuousAssign appends bytes to the assigned buffer and decodes the
// whole buffer again, so a multi-byte sequence split across calls
// decodes as one code point; iteration restarts from the buffer's first
// code point. It fails with ErrDecoderMismatch if Assign was never
// called to configure an encoding.
func (s *Scanner) ContinuousAssign(data []byte) error {
	if s.encoding == "" {
		return ErrDecoderMismatch
	}
	s.data = append(s.data, data...)
	s.cps = s.CodePoints()
	s.pos = 0
	return nil
}

// Next yields the next code point in the currently assigned buffer,
// advancing the scanner's cursor. The second return is false once the
// buffer is exhausted, matching the "iteration" operation of spec.md
// §4.1 for a parser that wants to pull one code point at a time.
func (s *Scanner) Next() (rune, bool) {
	if s.pos >= len(s.cps) {
		return 0, false
	}
	c := s.cps[s.pos]
	s.pos++
	return c, true
}

// CodePoints decodes the current buffer and returns every code point
// it contains, in order. A malformed byte is replaced by U+FFFD, never
// surfaced as an error.
//
// Full-Unicode mode coalesces a high surrogate [0xD800,0xDBFF]
// followed by a low surrogate [0xDC00,0xDFFF] into one code point; an
// unpaired high surrogate is discarded in favour of whatever code
// point follows it (last-wins, matching legacy consumer expectations
// per spec.md §4.1).
func (s *Scanner) CodePoints() []rune {
	units := s.decodeUTF16Like()
	if !s.ucs4 {
		out := make([]rune, len(units))
		for i, u := range units {
			out[i] = rune(u)
		}
		return out
	}

	out := make([]rune, 0, len(units))
	var high uint32
	var havingHigh bool
	for _, u := range units {
		c := uint32(u)
		switch {
		case c >= 0xD800 && c <= 0xDBFF:
			high = c
			havingHigh = true
		case havingHigh && c >= 0xDC00 && c <= 0xDFFF:
			out = append(out, rune(0x10000+(((high-0xD800)<<10)|(c-0xDC00))))
			havingHigh = false
		default:
			out = append(out, rune(c))
			havingHigh = false
		}
	}
	return out
}

// decodeUTF16Like decodes s.data as UTF-8 (each malformed byte becoming
// U+FFFD) and re-expresses every decoded rune as one or two 16-bit code
// units, the way iteration over `ord(x)` of a decoded Python unicode
// string would for a narrow or wide build: runes
// above the BMP arrive pre-split into a surrogate pair so the
// coalescing loop above is exercised identically regardless of the
// rune's origin.
func (s *Scanner) decodeUTF16Like() []uint32 {
	var units []uint32
	data := s.data
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			// Malformed byte: replaced, not propagated.
			units = append(units, 0xFFFD)
			data = data[1:]
			continue
		}
		data = data[size:]
		if r > 0xFFFF {
			c := uint32(r) - 0x10000
			units = append(units, 0xD800+(c>>10), 0xDC00+(c&0x3FF))
		} else {
			units = append(units, uint32(r))
		}
	}
	return units
}

// Count returns the number of code points that would be yielded by
// CodePoints, without allocating them as runes.
func (s *Scanner) Count() int {
	units := s.decodeUTF16Like()
	if !s.ucs4 {
		return len(units)
	}
	// Every unit except a high surrogate yields exactly one code point:
	// a low surrogate either completes a pair or stands alone, and an
	// unpaired high surrogate is discarded.
	n := 0
	for _, c := range units {
		if c < 0xD800 || c > 0xDBFF {
			n++
		}
	}
	return n
}
