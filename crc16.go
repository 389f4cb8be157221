package astidab

import (
	"encoding/binary"

	"github.com/howeyc/crc16"
)

// FIBCRCValid reports whether the 16 bit CRC trailing the 30 payload bytes of
// a FIB matches. The FIB CRC is CRC-16 CCITT with all ones initial state,
// transmitted complemented. ProcessFIB itself never checks the CRC, feeding
// it corrupted FIBs is the caller's mistake to avoid.
// Page: 28 | Chapter: 5.2.1 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300401/02.01.01_60/en_300401v020101p.pdf
func FIBCRCValid(fib []byte) bool {
	if len(fib) < fibPayloadSize+2 {
		return false
	}
	return crc16.ChecksumCCITTFalse(fib[:fibPayloadSize]) == binary.BigEndian.Uint16(fib[fibPayloadSize:])^0xffff
}
