package astidab

import (
	"bytes"
	"testing"
	"time"

	"github.com/icza/bitio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ensembleEvents records observer notifications
type ensembleEvents struct {
	ensembles      []uint16
	services       []uint32
	ensembleLabels []string
	serviceLabels  map[uint32]string
	dateTimes      []DabTime
}

func newEnsembleEvents() *ensembleEvents {
	return &ensembleEvents{serviceLabels: make(map[uint32]string)}
}

func (e *ensembleEvents) OnNewEnsemble(id uint16)         { e.ensembles = append(e.ensembles, id) }
func (e *ensembleEvents) OnServiceDetected(sid uint32)    { e.services = append(e.services, sid) }
func (e *ensembleEvents) OnEnsembleLabel(label DabLabel)  { e.ensembleLabels = append(e.ensembleLabels, label.String()) }
func (e *ensembleEvents) OnServiceLabel(sid uint32, label DabLabel) {
	e.serviceLabels[sid] = label.String()
}
func (e *ensembleEvents) OnDateTime(t DabTime) { e.dateTimes = append(e.dateTimes, t) }

// fib pads the given FIGs with end marker bytes up to a full 32 byte FIB
func fib(figs ...[]byte) []byte {
	b := bytes.Join(figs, nil)
	for len(b) < fibPayloadSize+2 {
		b = append(b, 0xff)
	}
	return b
}

// fig0Header writes the FIG0 header for a data field of n bytes
func fig0Header(w *bitio.Writer, n, extension int) {
	w.WriteBits(0, 3)                  // FIG type
	w.WriteBits(uint64(n+1), 5)        // Length
	WriteBinary(w, "000")              // CN, OE, PD
	w.WriteBits(uint64(extension), 5)  // Extension
}

func fig0EnsembleBytes(ensembleID uint16, cifCountLow int) []byte {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	fig0Header(w, 5, 0)
	w.WriteBits(uint64(ensembleID), 16)  // Ensemble id
	WriteBinary(w, "00")                 // Change flags
	WriteBinary(w, "0")                  // Alarm flag
	w.WriteBits(3, 5)                    // CIF count, high part
	w.WriteBits(uint64(cifCountLow), 8)  // CIF count, low part
	w.WriteBits(0, 8)                    // Occurrence change
	return buf.Bytes()
}

func fig0SubchannelBytes(subChID, startAddress, uepTableIndex int) []byte {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	fig0Header(w, 3, 1)
	w.WriteBits(uint64(subChID), 6)        // Subchannel id
	w.WriteBits(uint64(startAddress), 10)  // Start address
	WriteBinary(w, "0")                    // Short form
	WriteBinary(w, "0")                    // Table switch
	w.WriteBits(uint64(uepTableIndex), 6)  // UEP table index
	return buf.Bytes()
}

func fig0ServiceBytes(serviceID uint16, subChID int) []byte {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	fig0Header(w, 5, 2)
	w.WriteBits(uint64(serviceID), 16)  // Service id
	WriteBinary(w, "0000")              // Rfa, CAId
	w.WriteBits(1, 4)                   // Number of components
	WriteBinary(w, "00")                // TMId audio
	w.WriteBits(0, 6)                   // ASCTy
	w.WriteBits(uint64(subChID), 6)     // Subchannel id
	WriteBinary(w, "1")                 // Primary
	WriteBinary(w, "0")                 // CA flag
	return buf.Bytes()
}

func fig1ServiceLabelBytes(serviceID uint16, text string) []byte {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	w.WriteBits(1, 3)                   // FIG type
	w.WriteBits(21, 5)                  // Length
	w.WriteBits(0, 4)                   // Charset
	WriteBinary(w, "0")                 // OE
	w.WriteBits(1, 3)                   // Extension: programme service
	w.WriteBits(uint64(serviceID), 16)  // Service id
	for i := 0; i < 16; i++ {
		c := byte(' ')
		if i < len(text) {
			c = text[i]
		}
		w.WriteByte(c)
	}
	w.WriteBits(0, 16) // Character flag
	return buf.Bytes()
}

func fig0LTOBytes(sign byte, halfHours int, ecc uint8) []byte {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	fig0Header(w, 2, 9)
	WriteBinary(w, "00")                 // Ext flag, Rfa
	w.WriteBits(uint64(sign), 1)         // LTO sign
	w.WriteBits(uint64(halfHours/2), 4)  // LTO hours
	w.WriteBool(halfHours%2 == 1)        // Half hour
	w.WriteBits(uint64(ecc), 8)          // ECC
	return buf.Bytes()
}

func fig0DateTimeBytes(mjd, hour, minutes int) []byte {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	fig0Header(w, 4, 10)
	return append(buf.Bytes(), timeAndDateBytes(mjd, hour, minutes, 0, false)...)
}

// confirmService feeds a FIG0/2 twice so the sighting gate confirms it
func confirmService(t *testing.T, d *FICDecoder, serviceID uint16, subChID int) {
	require.NoError(t, d.ProcessFIB(fib(fig0ServiceBytes(serviceID, subChID))))
	require.NoError(t, d.ProcessFIB(fib(fig0ServiceBytes(serviceID, subChID))))
}

func TestFICDecoderShortFIB(t *testing.T) {
	d := NewFICDecoder(nil)
	assert.Equal(t, ErrShortFIB, d.ProcessFIB(make([]byte, 12)))
}

func TestFICDecoderNewEnsemble(t *testing.T) {
	e := newEnsembleEvents()
	d := NewFICDecoder(e)

	require.NoError(t, d.ProcessFIB(fib(fig0EnsembleBytes(0x8001, 42))))
	assert.Equal(t, uint16(0x8001), d.EnsembleID())

	// A repeat doesn't re-notify
	require.NoError(t, d.ProcessFIB(fib(fig0EnsembleBytes(0x8001, 42))))
	assert.Equal(t, []uint16{0x8001}, e.ensembles)
}

func TestFICDecoderFrameCountRollover(t *testing.T) {
	d := NewFICDecoder(nil)
	before := d.LastFrameCountRollover()
	require.NoError(t, d.ProcessFIB(fib(fig0EnsembleBytes(0x8001, 0))))
	assert.True(t, d.LastFrameCountRollover().After(before) || d.LastFrameCountRollover().Equal(before))
	assert.False(t, d.LastFrameCountRollover().Before(before))
}

func TestFICDecoderServiceConfirmation(t *testing.T) {
	e := newEnsembleEvents()
	d := NewFICDecoder(e)

	// A single sighting is not enough
	require.NoError(t, d.ProcessFIB(fib(fig0ServiceBytes(0x4001, 3))))
	assert.Empty(t, d.Services())
	assert.Empty(t, e.services)

	// The second sighting confirms, creates the service and binds its
	// component
	require.NoError(t, d.ProcessFIB(fib(fig0ServiceBytes(0x4001, 3))))
	assert.Equal(t, []uint32{0x4001}, e.services)

	ss := d.Services()
	require.Len(t, ss, 1)
	assert.Equal(t, uint32(0x4001), ss[0].ServiceID)

	cs := d.Components(0x4001)
	require.Len(t, cs, 1)
	assert.Equal(t, TransportModeAudio, cs[0].TransportMode)
	assert.Equal(t, 3, cs[0].SubchannelID)
	assert.True(t, cs[0].Primary)

	// Further sightings never re-notify
	require.NoError(t, d.ProcessFIB(fib(fig0ServiceBytes(0x4001, 3))))
	assert.Equal(t, []uint32{0x4001}, e.services)
	assert.Len(t, d.Services(), 1)
}

func TestFICDecoderSubchannelOrganization(t *testing.T) {
	d := NewFICDecoder(nil)
	require.NoError(t, d.ProcessFIB(fib(fig0SubchannelBytes(3, 54, 10))))

	sub := d.Subchannel(3)
	assert.True(t, sub.Valid())
	assert.Equal(t, 54, sub.StartAddress)
	assert.Equal(t, uepProtectionTable[10][0], sub.Length)
	assert.Equal(t, uepProtectionTable[10][1], sub.Protection.UEPLevel)
	assert.True(t, sub.Protection.ShortForm)

	assert.False(t, d.Subchannel(5).Valid())
	assert.False(t, d.Subchannel(InvalidSubchannelID).Valid())
	assert.False(t, d.Subchannel(64).Valid())
}

func TestFICDecoderServiceLabel(t *testing.T) {
	e := newEnsembleEvents()
	d := NewFICDecoder(e)
	confirmService(t, d, 0x4001, 3)

	require.NoError(t, d.ProcessFIB(fib(fig1ServiceLabelBytes(0x4001, "Radio Gaga"))))
	assert.Equal(t, "Radio Gaga", d.Service(0x4001).Label.String())
	assert.Equal(t, "Radio Gaga", e.serviceLabels[0x4001])

	// Idempotent under repeated identical input
	require.NoError(t, d.ProcessFIB(fib(fig1ServiceLabelBytes(0x4001, "Radio Gaga"))))
	assert.Equal(t, "Radio Gaga", d.Service(0x4001).Label.String())

	// A label for an unknown service is discarded silently
	require.NoError(t, d.ProcessFIB(fib(fig1ServiceLabelBytes(0x9999, "Ghost"))))
	assert.Equal(t, "", d.Service(0x9999).Label.String())
}

func TestFICDecoderDateTimeGating(t *testing.T) {
	e := newEnsembleEvents()
	d := NewFICDecoder(e)

	// FIG0/10 before any FIG0/9: no notification, the time zone is unknown
	require.NoError(t, d.ProcessFIB(fib(fig0DateTimeBytes(58849, 12, 30))))
	assert.Empty(t, e.dateTimes)

	require.NoError(t, d.ProcessFIB(fib(fig0LTOBytes(0, 3, 0xe0))))
	assert.Equal(t, uint8(0xe0), d.EnsembleECC())

	require.NoError(t, d.ProcessFIB(fib(fig0DateTimeBytes(58849, 12, 30))))
	require.Len(t, e.dateTimes, 1)
	assert.Equal(t, DabTime{Year: 2020, Month: 1, Day: 1, Hour: 12, Minutes: 30, HourOffset: 1, MinuteOffset: 30}, e.dateTimes[0])
}

func TestFICDecoderHaltsOnEndMarker(t *testing.T) {
	d := NewFICDecoder(nil)

	// An end marker FIG at byte offset 10 hides everything after it
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	w.WriteBits(5, 3) // Unsupported FIG type
	w.WriteBits(2, 5) // Length
	w.WriteByte(0x00)
	w.WriteByte(0x00)
	b := fib(fig0EnsembleBytes(0x8001, 42), buf.Bytes(), []byte{0xff}, fig0EnsembleBytes(0x9002, 42))
	require.NoError(t, d.ProcessFIB(b))
	assert.Equal(t, uint16(0x8001), d.EnsembleID())

	// Subsequent FIBs are unaffected
	require.NoError(t, d.ProcessFIB(fib(fig0EnsembleBytes(0x9002, 42))))
	assert.Equal(t, uint16(0x9002), d.EnsembleID())
}

func TestFICDecoderReset(t *testing.T) {
	d := NewFICDecoder(nil)
	confirmService(t, d, 0x4001, 3)
	require.NoError(t, d.ProcessFIB(fib(fig0SubchannelBytes(3, 54, 10))))
	require.NoError(t, d.ProcessFIB(fib(fig0EnsembleBytes(0x8001, 42))))

	d.Reset()

	assert.Empty(t, d.Services())
	assert.Empty(t, d.Components(0x4001))
	assert.Equal(t, uint16(0), d.EnsembleID())
	assert.Equal(t, uint8(0), d.EnsembleECC())
	assert.Equal(t, "", d.EnsembleLabel().String())

	subs := d.Subchannels()
	assert.Len(t, subs, subchannelCount)
	for _, sub := range subs {
		assert.False(t, sub.Valid())
	}
}

func TestFICDecoderDropServiceCascade(t *testing.T) {
	now := time.Unix(1000, 0)
	d := NewFICDecoder(nil, FICDecoderOptClock(func() time.Time { return now }))

	// Two confirmed services on separate subchannels
	require.NoError(t, d.ProcessFIB(fib(fig0SubchannelBytes(3, 0, 10), fig0SubchannelBytes(4, 100, 11))))
	confirmService(t, d, 0x4001, 3)
	confirmService(t, d, 0x4002, 4)
	require.Len(t, d.Services(), 2)
	assert.True(t, d.Subchannel(3).Valid())
	assert.True(t, d.Subchannel(4).Valid())

	// 0x4001 stops being signalled: decay ticks drain its counter while
	// 0x4002 keeps refreshing, until 0x4001 is found at zero and dropped
	for i := 0; i < 8; i++ {
		now = now.Add(1100 * time.Millisecond)
		require.NoError(t, d.ProcessFIB(fib(fig0ServiceBytes(0x4002, 4))))
	}

	assert.Empty(t, d.Components(0x4001))
	assert.Equal(t, Service{}, d.Service(0x4001))
	assert.False(t, d.Subchannel(3).Valid())

	// The surviving service and its subchannel are untouched
	require.Len(t, d.Services(), 1)
	require.Len(t, d.Components(0x4002), 1)
	assert.True(t, d.Subchannel(4).Valid())
}
