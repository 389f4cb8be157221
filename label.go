package astidab

import (
	"errors"
	"strings"
	"unicode/utf16"
)

// Character sets
// Page: 42 | Annex C | Link: https://www.etsi.org/deliver/etsi_ts/101700_101799/101756/02.04.01_60/ts_101756v020401p.pdf
type CharacterSet uint8

const (
	CharacterSetEBULatin  CharacterSet = 0x0
	CharacterSetUCS2      CharacterSet = 0x6
	CharacterSetUTF8      CharacterSet = 0xf
	CharacterSetUndefined CharacterSet = 0xff
)

// Extended labels are announced as up to 8 segments of one FIG2 each
const maxLabelSegments = 8

// Errors
var ErrLabelTooShort = errors.New("astidab: FIG2 label length too short")

// DabLabel represents the label attached to an ensemble, a service or a
// service component. The short form (FIG1) is a fixed 16 character field
// replaced atomically by every announcement. The extended form (FIG2) is
// reassembled from segments that may arrive out of order and over several
// FIBs; it is only readable once every declared segment has been buffered.
type DabLabel struct {
	Text          string // short form, raw 16 characters
	CharacterFlag uint16 // abbreviation mask, stored but not interpreted
	Charset       CharacterSet

	ExtendedCharset CharacterSet
	SegmentCount    int
	toggleFlag      uint8
	rfu             uint8
	segments        map[uint8][]byte
}

// setShort applies a FIG1 short label. A single FIG1 fully replaces the
// previous text.
func (l *DabLabel) setShort(text string, characterFlag uint16, charset uint8) {
	l.Text = text
	l.CharacterFlag = characterFlag
	switch CharacterSet(charset) {
	case CharacterSetEBULatin, CharacterSetUCS2, CharacterSetUTF8:
		l.Charset = CharacterSet(charset)
	default:
		l.Charset = CharacterSetUndefined
	}
}

// addSegment buffers one FIG2 extended label segment. Segment 0 carries a
// header byte declaring the encoding and the segment count; a toggle flag
// change means a new version of the label has begun and discards everything
// buffered so far. f is the raw FIG2 character field for that segment.
func (l *DabLabel) addSegment(f []byte, toggleFlag, segmentIndex, rfu uint8) error {
	if l.toggleFlag != toggleFlag {
		l.segments = nil
		l.SegmentCount = 0
		l.ExtendedCharset = CharacterSetUndefined
		l.toggleFlag = toggleFlag
	}

	if segmentIndex == 0 {
		// Only the first segment carries the header byte
		encodingFlag := f[0] >> 7 & 0x1
		l.SegmentCount = int(f[0]>>4&0x7) + 1

		if encodingFlag == 1 {
			l.ExtendedCharset = CharacterSetUCS2
		} else {
			l.ExtendedCharset = CharacterSetUTF8
		}

		if rfu == 0 {
			// Header byte, then a 16 bit character flag
			if len(f) <= 3 {
				return ErrLabelTooShort
			}
			f = f[3:]
		} else {
			// ETSI TS 103 176 V2.2.1 reuses rfu to signal a text control
			// header without the character flag
			if len(f) <= 1 {
				return ErrLabelTooShort
			}
			f = f[1:]
		}

		l.rfu = rfu
	}

	if l.segments == nil {
		l.segments = make(map[uint8][]byte)
	}
	l.segments[segmentIndex] = append([]byte(nil), f...)
	return nil
}

// ExtendedText reassembles the FIG2 label. ok is false until all declared
// segments have arrived.
func (l DabLabel) ExtendedText() (text string, ok bool) {
	if l.SegmentCount == 0 || l.SegmentCount > maxLabelSegments {
		return
	}

	var raw []byte
	for i := 0; i < l.SegmentCount; i++ {
		s, found := l.segments[uint8(i)]
		if !found {
			return
		}
		raw = append(raw, s...)
	}

	if l.ExtendedCharset == CharacterSetUCS2 {
		// A truncated final code unit is discarded
		var us []uint16
		for i := 0; i+1 < len(raw); i += 2 {
			us = append(us, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(us)), true
	}
	return string(raw), true
}

// String returns the short label without its field padding.
func (l DabLabel) String() string {
	return strings.TrimRight(strings.TrimRight(l.Text, "\x00"), " ")
}

// clone deep-copies the label so that snapshots never alias the buffered
// segments of the live model.
func (l DabLabel) clone() DabLabel {
	c := l
	if l.segments != nil {
		c.segments = make(map[uint8][]byte, len(l.segments))
		for k, v := range l.segments {
			c.segments[k] = append([]byte(nil), v...)
		}
	}
	return c
}
