package astidab

// User application types
// Page: 28 | Table 16 | Link: https://www.etsi.org/deliver/etsi_ts/101700_101799/101756/02.04.01_60/ts_101756v020401p.pdf
type UserApplicationType uint16

const (
	UserApplicationTypeDynamicLabels     UserApplicationType = 0x001
	UserApplicationTypeSlideshow         UserApplicationType = 0x002
	UserApplicationTypeBroadcastWebSite  UserApplicationType = 0x003
	UserApplicationTypeTPEG              UserApplicationType = 0x004
	UserApplicationTypeDGPS              UserApplicationType = 0x005
	UserApplicationTypeTMC               UserApplicationType = 0x006
	UserApplicationTypeSPI               UserApplicationType = 0x007
	UserApplicationTypeDABJava           UserApplicationType = 0x008
	UserApplicationTypeDMB               UserApplicationType = 0x009
	UserApplicationTypeIPDCServices      UserApplicationType = 0x00a
	UserApplicationTypeVoiceApplications UserApplicationType = 0x00b
	UserApplicationTypeMiddleware        UserApplicationType = 0x00c
	UserApplicationTypeFilecasting       UserApplicationType = 0x00d
	UserApplicationTypeFIS               UserApplicationType = 0x00e
	UserApplicationTypeJournaline        UserApplicationType = 0x44a
)

// String implements the Stringer interface
func (t UserApplicationType) String() string {
	switch t {
	case UserApplicationTypeDynamicLabels:
		return "dynamic labels"
	case UserApplicationTypeSlideshow:
		return "slideshow"
	case UserApplicationTypeBroadcastWebSite:
		return "MOT broadcast web site"
	case UserApplicationTypeTPEG:
		return "TPEG"
	case UserApplicationTypeDGPS:
		return "DGPS"
	case UserApplicationTypeTMC:
		return "TMC"
	case UserApplicationTypeSPI:
		return "SPI"
	case UserApplicationTypeDABJava:
		return "DAB Java"
	case UserApplicationTypeDMB:
		return "DMB"
	case UserApplicationTypeIPDCServices:
		return "IPDC services"
	case UserApplicationTypeVoiceApplications:
		return "voice applications"
	case UserApplicationTypeMiddleware:
		return "middleware"
	case UserApplicationTypeFilecasting:
		return "filecasting"
	case UserApplicationTypeFIS:
		return "FIS"
	case UserApplicationTypeJournaline:
		return "Journaline"
	}
	return "reserved"
}
