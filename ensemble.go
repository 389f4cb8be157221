package astidab

// Transport mechanism of a service component (TMId)
// Page: 58 | Chapter: 6.3.1 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300401/02.01.01_60/en_300401v020101p.pdf
type TransportMode uint8

const (
	TransportModeAudio      TransportMode = 0
	TransportModeStreamData TransportMode = 1
	TransportModePacketData TransportMode = 3
)

// String implements the Stringer interface
func (m TransportMode) String() string {
	switch m {
	case TransportModeAudio:
		return "audio"
	case TransportModeStreamData:
		return "stream data"
	case TransportModePacketData:
		return "packet data"
	}
	return "reserved"
}

// Service represents a confirmed broadcast service. Services only enter the
// model once the sighting gate has confirmed them.
type Service struct {
	ServiceID   uint32
	Label       DabLabel
	Language    uint8
	ProgramType uint8
}

// ServiceComponent represents one elementary stream of a service. The
// transport mode decides which of the mode specific fields are meaningful:
// audio and stream data components reference a subchannel directly, packet
// data components carry a packet service id that FIG0/3 later resolves to a
// subchannel and packet address.
type ServiceComponent struct {
	ServiceID       uint32
	ComponentNumber int
	TransportMode   TransportMode
	Label           DabLabel

	AudioType uint8 // ASCTy, audio mode
	DataType  uint8 // DSCTy, stream and packet data modes

	SubchannelID    int
	PacketServiceID uint16 // SCId, packet data mode
	PacketAddress   uint16
	DataGroups      bool // inverted wire DG flag: true when MOT data groups are used

	Primary           bool
	ConditionalAccess bool
}

// EEP protection profiles
type EEPProfile uint8

const (
	EEPProfileA EEPProfile = iota
	EEPProfileB
)

// ProtectionSettings holds the error protection scheme of a subchannel:
// either a short form UEP table index or a long form EEP profile and level.
type ProtectionSettings struct {
	ShortForm     bool
	UEPTableIndex int
	UEPLevel      int
	EEPProfile    EEPProfile
	EEPLevel      int
}

// The subchannel table always has 64 slots; unused slots carry the invalid
// sentinel id
const (
	subchannelCount     = 64
	InvalidSubchannelID = -1
	fibPayloadSize      = 30
)

// Subchannel represents one capacity allocation of the multiplex. Slots with
// no owning component are marked invalid rather than removed, the table is
// never resized.
type Subchannel struct {
	ID           int
	StartAddress int
	Length       int // capacity units
	DataService  bool
	Protection   ProtectionSettings
	Language     uint8
	FECScheme    uint8
}

// Valid reports whether the slot currently describes an on-air subchannel.
func (s Subchannel) Valid() bool { return s.ID != InvalidSubchannelID }

// uepProtectionTable maps a FIG0/1 short form table index to the subchannel
// size in capacity units and the protection level.
// Page: 50 | Chapter: 6.2.1, Table 8 | Link: https://www.etsi.org/deliver/etsi_en/300400_300499/300401/02.01.01_60/en_300401v020101p.pdf
var uepProtectionTable = [subchannelCount][2]int{
	{16, 5}, {21, 4}, {24, 3}, {29, 2}, {35, 1},
	{24, 5}, {29, 4}, {35, 3}, {42, 2}, {52, 1},
	{29, 5}, {35, 4}, {42, 3}, {52, 2},
	{32, 5}, {42, 4}, {48, 3}, {58, 2}, {70, 1},
	{40, 5}, {52, 4}, {58, 3}, {70, 2}, {84, 1},
	{48, 5}, {58, 4}, {70, 3}, {84, 2}, {104, 1},
	{58, 5}, {70, 4}, {84, 3}, {104, 2},
	{84, 5}, {64, 4}, {96, 3}, {116, 2}, {140, 1},
	{80, 5}, {104, 4}, {116, 3}, {140, 2}, {168, 1},
	{96, 5}, {116, 4}, {140, 3}, {168, 2}, {208, 1},
	{116, 5}, {140, 4}, {168, 3}, {208, 2}, {232, 1},
	{128, 5}, {168, 4}, {192, 3}, {232, 2}, {280, 1},
	{160, 5}, {208, 4}, {280, 2},
	{192, 5}, {280, 3}, {416, 1},
}
