package astidab

// processFIG1 handles the short form labels. The 3 bit extension selects the
// labelled entity; labels flagged as belonging to another ensemble are
// ignored entirely.
func (d *FICDecoder) processFIG1(fig []byte) {
	charset := uint8(ReadBitField(fig, 8, 4))
	otherEnsemble := ReadBitField(fig, 8+4, 1) == 1
	extension := ReadBitField(fig, 8+5, 3)
	if otherEnsemble {
		return
	}

	switch extension {
	case 0:
		// Ensemble label
		ensembleID := uint16(ReadBitField(fig, 16, 16))
		if ensembleID != d.ensembleID {
			return
		}
		text, characterFlag := labelField(fig, 32)
		d.ensembleLabel.setShort(text, characterFlag, charset)
		d.obs.OnEnsembleLabel(d.ensembleLabel.clone())

	case 1:
		// Programme service label, 16 bit id
		serviceID := ReadBitField(fig, 16, 16)
		if s := d.findService(serviceID); s != nil {
			text, characterFlag := labelField(fig, 32)
			s.Label.setShort(text, characterFlag, charset)
			d.obs.OnServiceLabel(serviceID, s.Label.clone())
		}

	case 3:
		// Region label, diagnostics only
		regionID := ReadBitField(fig, 16+2, 6)
		text, _ := labelField(fig, 24)
		logger.Printf("astidab: FIG1/3 region %d labelled %q", regionID, text)

	case 4:
		// Service component label
		longID := ReadBitField(fig, 16, 1) == 1
		scids := int(ReadBitField(fig, 20, 4))
		var serviceID uint32
		var offset int
		if longID {
			serviceID = ReadBitField(fig, 24, 32)
			offset = 56
		} else {
			serviceID = ReadBitField(fig, 24, 16)
			offset = 40
		}
		if c := d.findComponent(serviceID, scids); c != nil {
			text, characterFlag := labelField(fig, offset)
			c.Label.setShort(text, characterFlag, charset)
		}

	case 5:
		// Data service label, 32 bit id
		serviceID := ReadBitField(fig, 16, 32)
		if s := d.findService(serviceID); s != nil {
			text, characterFlag := labelField(fig, 48)
			s.Label.setShort(text, characterFlag, charset)
			d.obs.OnServiceLabel(serviceID, s.Label.clone())
		}

	case 6:
		// X-PAD user application label, diagnostics only
		longID := ReadBitField(fig, 16, 1) == 1
		scids := ReadBitField(fig, 20, 4)
		var serviceID, xpadApplicationType uint32
		var offset int
		if longID {
			serviceID = ReadBitField(fig, 24, 32)
			xpadApplicationType = ReadBitField(fig, 59, 5)
			offset = 64
		} else {
			serviceID = ReadBitField(fig, 24, 16)
			xpadApplicationType = ReadBitField(fig, 43, 5)
			offset = 48
		}
		text, _ := labelField(fig, offset)
		logger.Printf("astidab: FIG1/6 X-PAD app %d of service %d/%d labelled %q", xpadApplicationType, serviceID, scids, text)

	default:
		logger.Printf("astidab: unsupported FIG1/%d", extension)
	}
}

// labelField reads the fixed 16 character label and the character flag that
// follows it.
func labelField(fig []byte, offset int) (text string, characterFlag uint16) {
	b := make([]byte, 16)
	for i := range b {
		b[i] = byte(ReadBitField(fig, offset, 8))
		offset += 8
	}
	return string(b), uint16(ReadBitField(fig, offset, 16))
}
