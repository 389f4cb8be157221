package astidab

// processFIG2 handles the extended UTF-8 / UCS-2 labels. Unlike FIG1 a
// label may span several FIGs: each FIG carries one segment, identified by
// its index and a toggle flag that versions the whole label.
func (d *FICDecoder) processFIG2(fig []byte) {
	figLen := int(fig[0] & 0x1f)
	if figLen == 0 {
		logger.Print("astidab: FIG2 with empty data field")
		return
	}
	f := fig[1 : 1+figLen]

	toggleFlag := f[0] >> 7 & 0x1
	segmentIndex := f[0] >> 4 & 0x7
	rfu := f[0] >> 3 & 0x1
	extension := f[0] & 0x7

	// The identifier field length depends on the extension
	var identifierLen int
	switch extension {
	case 0, 1: // ensemble, programme service
		identifierLen = 2
	case 4: // service component
		if len(f) < 2 {
			logger.Printf("astidab: FIG2/%d length error %d", extension, figLen)
			return
		}
		if f[1]>>7&0x1 == 0 {
			identifierLen = 3
		} else {
			identifierLen = 5
		}
	case 5: // data service
		identifierLen = 4
	default:
		return
	}

	const headerLen = 1
	if figLen <= headerLen+identifierLen {
		logger.Printf("astidab: FIG2/%d length error %d", extension, figLen)
		return
	}
	data := f[headerLen+identifierLen:]

	var label *DabLabel
	switch extension {
	case 0:
		if ensembleID := uint16(f[1])<<8 | uint16(f[2]); ensembleID == d.ensembleID {
			label = &d.ensembleLabel
		}
	case 1:
		serviceID := uint32(f[1])<<8 | uint32(f[2])
		if s := d.findService(serviceID); s != nil {
			label = &s.Label
		}
	case 4:
		scids := int(f[1] & 0x0f)
		var serviceID uint32
		if f[1]>>7&0x1 == 0 {
			serviceID = uint32(f[2])<<8 | uint32(f[3])
		} else {
			serviceID = uint32(f[2])<<24 | uint32(f[3])<<16 | uint32(f[4])<<8 | uint32(f[5])
		}
		if c := d.findComponent(serviceID, scids); c != nil {
			label = &c.Label
		}
	case 5:
		serviceID := uint32(f[1])<<24 | uint32(f[2])<<16 | uint32(f[3])<<8 | uint32(f[4])
		if s := d.findService(serviceID); s != nil {
			label = &s.Label
		}
	}
	if label == nil {
		return
	}

	// A malformed segment aborts this label update only, the enclosing FIB
	// keeps processing
	if err := label.addSegment(data, toggleFlag, segmentIndex, rfu); err != nil {
		logger.Printf("astidab: FIG2/%d segment %d: %v", extension, segmentIndex, err)
	}
}
