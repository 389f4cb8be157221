package astidab

import (
	"fmt"

	"github.com/icza/bitio"
)

// ReadBitField extracts an unsigned integer of width bits from b starting at
// the given bit offset. Bits are numbered from the most significant bit of
// b[0], the way FIG field layouts are written down in ETSI EN 300 401. width
// must be in [1,32] and the field must lie entirely inside b: violating
// either means a FIG length field got out of sync, so we panic instead of
// silently reading garbage into the ensemble state.
func ReadBitField(b []byte, offset, width int) uint32 {
	if width < 1 || width > 32 {
		panic(fmt.Sprintf("astidab: bit field width %d out of range", width))
	}
	if offset < 0 || offset+width > len(b)*8 {
		panic(fmt.Sprintf("astidab: bit field [%d,%d) outside %d-byte buffer", offset, offset+width, len(b)))
	}
	var v uint32
	for i := offset; i < offset+width; i++ {
		v = v<<1 | uint32(b[i>>3]>>(7-uint(i&7))&1)
	}
	return v
}

// WriteBinary writes the "0"/"1" runes of str to w. Test helper for building
// FIG fixtures bit by bit.
func WriteBinary(w *bitio.Writer, str string) error {
	for _, r := range str {
		var err error

		switch r {
		case '1':
			err = w.WriteBool(true)
		case '0':
			err = w.WriteBool(false)
		default:
			return fmt.Errorf("astidab: invalid rune: %v", r)
		}

		if err != nil {
			return err
		}
	}
	return nil
}
