package astidab

import (
	"bytes"
	"time"

	"github.com/icza/bitio"
)

// processFIG0 routes a FIG type 0 to its extension handler. fig is the whole
// FIG, header byte included, so field offsets below match the bit numbering
// of ETSI EN 300 401 clause 6.
func (d *FICDecoder) processFIG0(fig []byte) {
	extension := ReadBitField(fig, 8+3, 5)
	switch extension {
	case 0:
		d.fig0Ensemble(fig)
	case 1:
		d.fig0SubchannelOrganization(fig)
	case 2:
		d.fig0ServiceOrganization(fig)
	case 3:
		d.fig0PacketComponents(fig)
	case 5:
		d.fig0ComponentLanguage(fig)
	case 7:
		d.fig0Configuration(fig)
	case 8:
		d.fig0ServiceComponentGlobal(fig)
	case 9:
		d.fig0CountryLTO(fig)
	case 10:
		d.fig0DateTime(fig)
	case 13:
		d.fig0UserApplications(fig)
	case 14:
		d.fig0FECScheme(fig)
	case 17:
		d.fig0ProgrammeType(fig)
	case 18:
		d.fig0Announcements(fig)
	case 19:
		d.fig0AnnouncementSwitching(fig)
	case 21:
		logger.Print("astidab: FIG0/21 frequency information ignored")
	case 22:
		d.fig0TransmitterIdentification(fig)
	default:
		logger.Printf("astidab: unsupported FIG0/%d", extension)
	}
}

// fig0Ensemble handles FIG0/0: ensemble id, change flags and the CIF frame
// counter. A change of ensemble id fires the new ensemble notification; a
// frame counter rollover is timestamped for external synchronization.
func (d *FICDecoder) fig0Ensemble(fig []byte) {
	ensembleID := uint16(ReadBitField(fig, 16, 16))
	if d.ensembleID != ensembleID {
		d.ensembleID = ensembleID
		d.obs.OnNewEnsemble(ensembleID)
	}

	changeFlags := ReadBitField(fig, 16+16, 2)
	cifCountHigh := ReadBitField(fig, 16+19, 5) % 20
	cifCountLow := ReadBitField(fig, 16+24, 8) % 250
	occurrenceChange := ReadBitField(fig, 16+32, 8)

	// In transmission mode I four ETI frames make one transmission frame, so
	// the low counter wraps every twelve seconds rather than six.
	if cifCountLow == 0 {
		d.lastFrameCountRollover = time.Now()
	}

	if changeFlags != 0 {
		// Multiplex reconfiguration is announced but not implemented
		logger.Printf("astidab: FIG0/0 reconfiguration announced (flags %d, cif count %d, in %d CIFs), not supported",
			changeFlags, cifCountHigh*250+cifCountLow, occurrenceChange)
	}
}

// fig0SubchannelOrganization handles FIG0/1: the capacity unit start address
// and the protection scheme of each subchannel.
func (d *FICDecoder) fig0SubchannelOrganization(fig []byte) {
	length := len(fig) - 1
	dataService := ReadBitField(fig, 8+2, 1) == 1
	used := 2
	for used < length-1 {
		used = d.handleSubchannelOrganization(fig, used, dataService)
	}
}

func (d *FICDecoder) handleSubchannelOrganization(fig []byte, offset int, dataService bool) int {
	bitOffset := offset * 8
	subChID := int(ReadBitField(fig, bitOffset, 6))
	sub := &d.subChannels[subChID]
	sub.ID = subChID
	sub.DataService = dataService
	sub.StartAddress = int(ReadBitField(fig, bitOffset+6, 10))

	if ReadBitField(fig, bitOffset+16, 1) == 0 {
		// UEP, short form: table index decides both size and level
		tableIndex := int(ReadBitField(fig, bitOffset+18, 6))
		sub.Protection.ShortForm = true
		sub.Protection.UEPTableIndex = tableIndex
		sub.Protection.UEPLevel = uepProtectionTable[tableIndex][1]
		sub.Length = uepProtectionTable[tableIndex][0]
		bitOffset += 24
	} else {
		// EEP, long form: explicit size with a profile and level
		sub.Protection.ShortForm = false
		option := ReadBitField(fig, bitOffset+17, 3)
		switch option {
		case 0:
			sub.Protection.EEPProfile = EEPProfileA
		case 1:
			sub.Protection.EEPProfile = EEPProfileB
		}
		if option == 0 || option == 1 {
			sub.Protection.EEPLevel = int(ReadBitField(fig, bitOffset+20, 2)) + 1
			sub.Length = int(ReadBitField(fig, bitOffset+22, 10))
		} else {
			logger.Printf("astidab: FIG0/1 for subchannel %d has invalid protection option %d", subChID, option)
		}
		bitOffset += 32
	}
	return bitOffset / 8
}

// fig0ServiceOrganization handles FIG0/2: it binds services to their
// components and is the one place where service sightings are counted, so
// the sighting gate runs here.
func (d *FICDecoder) fig0ServiceOrganization(fig []byte) {
	length := len(fig) - 1
	longIDs := ReadBitField(fig, 8+2, 1) == 1
	used := 2
	for used < length {
		used = d.handleServiceOrganization(fig, used, longIDs)
	}
}

func (d *FICDecoder) handleServiceOrganization(fig []byte, offset int, longIDs bool) int {
	bitOffset := offset * 8

	var serviceID uint32
	if longIDs {
		serviceID = ReadBitField(fig, bitOffset, 32)
		bitOffset += 32
	} else {
		serviceID = ReadBitField(fig, bitOffset, 16)
		bitOffset += 16
	}

	confirmed, dropped := d.gate.observe(serviceID)
	for _, id := range dropped {
		d.dropService(id)
	}
	if confirmed && d.findService(serviceID) == nil {
		d.services = append(d.services, Service{ServiceID: serviceID})
		d.obs.OnServiceDetected(serviceID)
	}

	componentCount := int(ReadBitField(fig, bitOffset+4, 4))
	bitOffset += 8

	for i := 0; i < componentCount; i++ {
		transportMode := TransportMode(ReadBitField(fig, bitOffset, 2))
		switch transportMode {
		case TransportModeAudio:
			d.bindComponent(ServiceComponent{
				ServiceID:       serviceID,
				ComponentNumber: i,
				TransportMode:   transportMode,
				AudioType:       uint8(ReadBitField(fig, bitOffset+2, 6)),
				SubchannelID:    int(ReadBitField(fig, bitOffset+8, 6)),
				Primary:         ReadBitField(fig, bitOffset+14, 1) == 1,
			})
		case TransportModeStreamData:
			d.bindComponent(ServiceComponent{
				ServiceID:       serviceID,
				ComponentNumber: i,
				TransportMode:   transportMode,
				DataType:        uint8(ReadBitField(fig, bitOffset+2, 6)),
				SubchannelID:    int(ReadBitField(fig, bitOffset+8, 6)),
				Primary:         ReadBitField(fig, bitOffset+14, 1) == 1,
			})
		case TransportModePacketData:
			d.bindComponent(ServiceComponent{
				ServiceID:         serviceID,
				ComponentNumber:   i,
				TransportMode:     transportMode,
				SubchannelID:      InvalidSubchannelID, // resolved later by FIG0/3
				PacketServiceID:   uint16(ReadBitField(fig, bitOffset+2, 12)),
				Primary:           ReadBitField(fig, bitOffset+14, 1) == 1,
				ConditionalAccess: ReadBitField(fig, bitOffset+15, 1) == 1,
			})
		default:
			// reserved
		}
		bitOffset += 16
	}
	return bitOffset / 8
}

// fig0PacketComponents handles FIG0/3: packet mode specifics for a component
// previously announced by FIG0/2, located by its packet service id. Unknown
// ids are an expected transient during acquisition and are dropped silently.
func (d *FICDecoder) fig0PacketComponents(fig []byte) {
	length := len(fig) - 1
	used := 2
	for used < length {
		bitOffset := used * 8
		packetServiceID := uint16(ReadBitField(fig, bitOffset, 12))
		dataGroups := ReadBitField(fig, bitOffset+16, 1) == 0
		dataType := uint8(ReadBitField(fig, bitOffset+18, 6))
		subChID := int(ReadBitField(fig, bitOffset+24, 6))
		packetAddress := uint16(ReadBitField(fig, bitOffset+30, 10))
		used += 7

		if c := d.findPacketComponent(packetServiceID); c != nil {
			c.SubchannelID = subChID
			c.DataType = dataType
			c.DataGroups = dataGroups
			c.PacketAddress = packetAddress
		}
	}
}

// fig0ComponentLanguage handles FIG0/5. Only the short form addressing a
// subchannel is retained; the long form addressing a service component is
// read for synchronization but not stored.
func (d *FICDecoder) fig0ComponentLanguage(fig []byte) {
	length := len(fig) - 1
	used := 2
	for used < length {
		bitOffset := used * 8
		if ReadBitField(fig, bitOffset, 1) == 0 {
			// short form
			if ReadBitField(fig, bitOffset+1, 1) == 0 {
				subChID := ReadBitField(fig, bitOffset+2, 6)
				d.subChannels[subChID].Language = uint8(ReadBitField(fig, bitOffset+8, 8))
			}
			bitOffset += 16
		} else {
			// long form
			logger.Printf("astidab: FIG0/5 long form language for SCId %d not retained", ReadBitField(fig, bitOffset+4, 12))
			bitOffset += 24
		}
		used = bitOffset / 8
	}
}

// fig0Configuration handles FIG0/7, diagnostics only.
func (d *FICDecoder) fig0Configuration(fig []byte) {
	serviceCount := ReadBitField(fig, 16, 6)
	reconfigurationCount := ReadBitField(fig, 16+6, 10)
	logger.Printf("astidab: FIG0/7 configuration: %d services, reconfiguration count %d", serviceCount, reconfigurationCount)
}

// fig0ServiceComponentGlobal handles FIG0/8: the cross reference between
// service component identifiers and packet service ids. Nothing is mutated,
// but the record walk must advance exactly like the wire layout so the outer
// loop stays synchronized.
func (d *FICDecoder) fig0ServiceComponentGlobal(fig []byte) {
	length := len(fig) - 1
	longIDs := ReadBitField(fig, 8+2, 1) == 1
	used := 2
	for used < length {
		used = d.handleServiceComponentGlobal(fig, used, longIDs)
	}
}

func (d *FICDecoder) handleServiceComponentGlobal(fig []byte, offset int, longIDs bool) int {
	bitOffset := offset * 8
	if longIDs {
		bitOffset += 32
	} else {
		bitOffset += 16
	}

	extensionFlag := ReadBitField(fig, bitOffset, 1) == 1
	scids := ReadBitField(fig, bitOffset+4, 4)
	bitOffset += 4

	if ReadBitField(fig, bitOffset, 1) == 1 {
		scid := ReadBitField(fig, bitOffset+4, 12)
		bitOffset += 16
		if d.findPacketComponent(uint16(scids<<4|scid)) != nil {
			logger.Printf("astidab: FIG0/8 packet component %d already known", scids<<4|scid)
		}
	} else {
		bitOffset += 8
	}

	if extensionFlag {
		bitOffset += 8 // Rfa
	}
	return bitOffset / 8
}

// fig0CountryLTO handles FIG0/9: the local time offset and the ensemble
// extended country code. An absolute timestamp is only meaningful once this
// has been seen, so it also arms the date and time notification.
func (d *FICDecoder) fig0CountryLTO(fig []byte) {
	offset := 16
	hours := int(ReadBitField(fig, offset+3, 4))
	if ReadBitField(fig, offset+2, 1) == 1 {
		hours = -hours
	}
	d.dateTime.HourOffset = hours
	d.dateTime.MinuteOffset = 0
	if ReadBitField(fig, offset+7, 1) == 1 {
		d.dateTime.MinuteOffset = 30
	}
	d.timeOffsetReceived = true

	d.ensembleECC = uint8(ReadBitField(fig, offset+8, 8))
}

// fig0DateTime handles FIG0/10: the Modified Julian Date and time of day.
// The consumer is only notified once FIG0/9 has provided the time zone.
func (d *FICDecoder) fig0DateTime(fig []byte) {
	r := bitio.NewCountReader(bytes.NewReader(fig[2:]))
	if err := parseTimeAndDate(r, &d.dateTime); err != nil {
		logger.Printf("astidab: parsing FIG0/10 date and time failed: %v", err)
		return
	}
	if d.timeOffsetReceived {
		d.obs.OnDateTime(d.dateTime)
	}
}

// fig0UserApplications handles FIG0/13: the user applications bound to a
// service component. Slideshow fields are decoded fully and their MOT data
// group handed to the external MOT collaborator; the other application types
// are diagnostics.
func (d *FICDecoder) fig0UserApplications(fig []byte) {
	length := len(fig) - 1
	longIDs := ReadBitField(fig, 8+2, 1) == 1
	used := 2
	for used < length {
		used = d.handleUserApplications(fig, used, longIDs)
	}
}

func (d *FICDecoder) handleUserApplications(fig []byte, offset int, longIDs bool) int {
	bitOffset := offset * 8

	serviceIDWidth := 16
	if longIDs {
		serviceIDWidth = 32
	}
	serviceID := ReadBitField(fig, bitOffset, serviceIDWidth)
	bitOffset += serviceIDWidth
	scids := ReadBitField(fig, bitOffset, 4)
	applicationCount := int(ReadBitField(fig, bitOffset+4, 4))
	bitOffset += 8

	for i := 0; i < applicationCount; i++ {
		applicationType := UserApplicationType(ReadBitField(fig, bitOffset, 11))
		length := int(ReadBitField(fig, bitOffset+11, 5))
		bitOffset += 16
		bitOffsetNext := bitOffset + 8*length

		switch applicationType {
		case UserApplicationTypeSlideshow:
			// CA flags, X-PAD application type and data service component
			// type precede the MOT data group
			caFlag := ReadBitField(fig, bitOffset, 1) == 1
			caOrganizationFlag := ReadBitField(fig, bitOffset+1, 1) == 1
			xpadApplicationType := ReadBitField(fig, bitOffset+3, 5)
			dataGroups := ReadBitField(fig, bitOffset+8, 1) == 0
			dataType := ReadBitField(fig, bitOffset+10, 6)
			caOrganization := ReadBitField(fig, bitOffset+16, 16)
			bitOffset += 32

			logger.Printf("astidab: FIG0/13 slideshow for service %d/%d: ca=%v caOrg=%v(%d) xpad=%d dg=%v dscty=%d len=%d",
				serviceID, scids, caFlag, caOrganizationFlag, caOrganization, xpadApplicationType, dataGroups, dataType, length)

			if d.mot != nil && length > 4 {
				data := make([]byte, length-4)
				for k := range data {
					data[k] = byte(ReadBitField(fig, bitOffset+k*8, 8))
				}
				d.mot.HandleMOTDataGroup(data)
			}
		default:
			logger.Printf("astidab: FIG0/13 %s for service %d/%d, length %d", applicationType, serviceID, scids, length)
		}

		bitOffset = bitOffsetNext
	}
	return bitOffset / 8
}

// fig0FECScheme handles FIG0/14: the forward error correction scheme of a
// subchannel, applied by scanning the table for the announced id.
func (d *FICDecoder) fig0FECScheme(fig []byte) {
	length := len(fig) - 1
	used := 2
	for used < length {
		subChID := int(ReadBitField(fig, used*8, 6))
		fecScheme := uint8(ReadBitField(fig, used*8+6, 2))
		used++

		for i := range d.subChannels {
			if d.subChannels[i].ID == subChID {
				d.subChannels[i].FECScheme = fecScheme
			}
		}
	}
}

// fig0ProgrammeType handles FIG0/17: language and programme type of a
// service. The optional language and closed caption fields change the record
// width.
func (d *FICDecoder) fig0ProgrammeType(fig []byte) {
	length := len(fig) - 1
	offset := 16
	for offset < length*8 {
		serviceID := ReadBitField(fig, offset, 16)
		languageFlag := ReadBitField(fig, offset+18, 1) == 1
		ccFlag := ReadBitField(fig, offset+19, 1) == 1

		s := d.findService(serviceID)
		if languageFlag {
			if s != nil {
				s.Language = uint8(ReadBitField(fig, offset+24, 8))
			}
			offset += 8
		}

		if s != nil {
			s.ProgramType = uint8(ReadBitField(fig, offset+27, 5))
		}

		if ccFlag {
			offset += 40
		} else {
			offset += 32
		}
	}
}

// fig0Announcements handles FIG0/18, diagnostics only.
func (d *FICDecoder) fig0Announcements(fig []byte) {
	length := len(fig) - 1
	offset := 16
	for offset/8 < length-1 {
		serviceID := ReadBitField(fig, offset, 16)
		supportFlags := ReadBitField(fig, offset+16, 16)
		clusterCount := int(ReadBitField(fig, offset+35, 5))
		logger.Printf("astidab: FIG0/18 announcement support %#x for service %d with %d clusters", supportFlags, serviceID, clusterCount)
		offset += 40 + clusterCount*8
	}
}

// fig0AnnouncementSwitching handles FIG0/19, diagnostics only.
func (d *FICDecoder) fig0AnnouncementSwitching(fig []byte) {
	length := len(fig) - 1
	offset := 16
	for offset/8 < length-1 {
		clusterID := ReadBitField(fig, offset, 8)
		switchingFlags := ReadBitField(fig, offset+8, 16)
		newFlag := ReadBitField(fig, offset+24, 1) == 1
		regionFlag := ReadBitField(fig, offset+25, 1) == 1
		subChID := ReadBitField(fig, offset+26, 6)
		if regionFlag {
			regionID := ReadBitField(fig, offset+34, 6)
			logger.Printf("astidab: FIG0/19 announcement %#x (new=%v) for cluster %d on subchannel %d, region %d",
				switchingFlags, newFlag, clusterID, subChID, regionID)
			offset += 40
		} else {
			logger.Printf("astidab: FIG0/19 announcement %#x (new=%v) for cluster %d on subchannel %d",
				switchingFlags, newFlag, clusterID, subChID)
			offset += 32
		}
	}
}

// fig0TransmitterIdentification handles FIG0/22, diagnostics only. Records
// are either fixed size (main identifier) or repeated subfields, both must
// advance the walk correctly.
func (d *FICDecoder) fig0TransmitterIdentification(fig []byte) {
	length := len(fig) - 1
	used := 2
	for used < length {
		mainID := ReadBitField(fig, used*8+1, 7)
		if ReadBitField(fig, used*8, 1) == 0 {
			// main identifier, fixed size
			latitude := int16(ReadBitField(fig, used*8+8, 16))
			longitude := int16(ReadBitField(fig, used*8+24, 16))
			logger.Printf("astidab: FIG0/22 TII main id %d at (%d, %d)", mainID, latitude, longitude)
			used += 6
		} else {
			subfieldCount := int(ReadBitField(fig, used*8+13, 3))
			logger.Printf("astidab: FIG0/22 TII main id %d with %d subfields", mainID, subfieldCount)
			used += (16 + subfieldCount*48) / 8
		}
	}
}
