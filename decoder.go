package astidab

import (
	"errors"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
	"golang.org/x/exp/slices"
)

// Errors
var ErrShortFIB = errors.New("astidab: FIB must be at least 30 bytes long")

// EnsembleObserver receives model change notifications. Callbacks fire
// synchronously from inside ProcessFIB while the decoder lock is held, so
// implementations must not call back into the decoder.
type EnsembleObserver interface {
	OnNewEnsemble(id uint16)
	OnServiceDetected(serviceID uint32)
	OnEnsembleLabel(label DabLabel)
	OnServiceLabel(serviceID uint32, label DabLabel)
	OnDateTime(t DabTime)
}

// MOTHandler receives the raw MOT data groups carried by FIG0/13 slideshow
// user application fields. Reassembly of MOT objects happens outside the FIC
// decoder.
type MOTHandler interface {
	HandleMOTDataGroup(b []byte)
}

type nopObserver struct{}

func (nopObserver) OnNewEnsemble(uint16)            {}
func (nopObserver) OnServiceDetected(uint32)        {}
func (nopObserver) OnEnsembleLabel(DabLabel)        {}
func (nopObserver) OnServiceLabel(uint32, DabLabel) {}
func (nopObserver) OnDateTime(DabTime)              {}

// FICDecoder builds a live model of the tuned ensemble from the Fast
// Information Blocks handed to ProcessFIB. The caller guarantees the FIB CRC
// has already been validated; only the first 30 bytes of a FIB carry FIG
// payload. One exclusive lock guards the whole model: FIBs are expected from
// a single producer in arrival order while snapshot queries may come from
// any goroutine.
type FICDecoder struct {
	m   sync.Mutex
	obs EnsembleObserver
	mot MOTHandler

	gate *serviceGate

	ensembleID         uint16
	ensembleECC        uint8
	ensembleLabel      DabLabel
	dateTime           DabTime
	timeOffsetReceived bool

	lastFrameCountRollover time.Time

	services    []Service
	components  []ServiceComponent
	subChannels [subchannelCount]Subchannel
}

// NewFICDecoder creates a new FIC decoder notifying obs. A nil obs is valid
// and disables notifications.
func NewFICDecoder(obs EnsembleObserver, opts ...func(*FICDecoder)) (d *FICDecoder) {
	// Init
	if obs == nil {
		obs = nopObserver{}
	}
	d = &FICDecoder{obs: obs}

	// Apply options
	for _, opt := range opts {
		opt(d)
	}

	if d.gate == nil {
		d.gate = newServiceGate(nil)
	}
	d.reset()
	return
}

// FICDecoderOptMOTHandler returns the option to set the MOT data group handler
func FICDecoderOptMOTHandler(h MOTHandler) func(*FICDecoder) {
	return func(d *FICDecoder) {
		d.mot = h
	}
}

// FICDecoderOptClock returns the option to set the monotonic clock used by
// the service sighting gate
func FICDecoderOptClock(now func() time.Time) func(*FICDecoder) {
	return func(d *FICDecoder) {
		d.gate = newServiceGate(now)
	}
}

// ProcessFIB decodes one 256 bit Fast Information Block. The last 2 bytes of
// a 32 byte FIB are its CRC and are ignored; the 30 payload bytes are walked
// FIG by FIG. Protocol anomalies never fail the call: unsupported FIGs are
// skipped using their declared length so the walk stays in sync, and a
// desynchronized length field aborts the current FIB only.
func (d *FICDecoder) ProcessFIB(fib []byte) error {
	if len(fib) < fibPayloadSize {
		return ErrShortFIB
	}

	d.m.Lock()
	defer d.m.Unlock()

	// A FIG whose length field points past the payload is a protocol bug;
	// abandon this FIB rather than decode garbage into the model.
	defer func() {
		if p := recover(); p != nil {
			logger.Printf("astidab: desynchronized FIG length, FIB dropped: %v", p)
		}
	}()

	i := astikit.NewBytesIterator(fib[:fibPayloadSize])
	for i.HasBytesLeft() {
		offsetStart := i.Offset()

		// FIG header: 3 bit type, 5 bit length of the data field
		b, err := i.NextByte()
		if err != nil {
			return nil
		}
		figType := b >> 5
		figLen := int(b & 0x1f)

		// Conditional access and the end marker terminate the FIB
		if figType == 6 || figType == 7 {
			return nil
		}

		// Hand the complete FIG, header byte included, to the type handler
		i.Seek(offsetStart)
		var fig []byte
		if fig, err = i.NextBytes(1 + figLen); err != nil {
			logger.Printf("astidab: FIG %d length %d exceeds FIB payload", figType, figLen)
			return nil
		}

		switch figType {
		case 0:
			d.processFIG0(fig)
		case 1:
			d.processFIG1(fig)
		case 2:
			d.processFIG2(fig)
		default:
			logger.Printf("astidab: unsupported FIG type %d", figType)
		}
	}
	return nil
}

// findService locates the live entry for serviceID
func (d *FICDecoder) findService(serviceID uint32) *Service {
	for i := range d.services {
		if d.services[i].ServiceID == serviceID {
			return &d.services[i]
		}
	}
	return nil
}

// findComponent locates a component by service id and component number
func (d *FICDecoder) findComponent(serviceID uint32, componentNumber int) *ServiceComponent {
	for i := range d.components {
		if d.components[i].ServiceID == serviceID && d.components[i].ComponentNumber == componentNumber {
			return &d.components[i]
		}
	}
	return nil
}

// findPacketComponent locates a packet data component by its packet service id
func (d *FICDecoder) findPacketComponent(packetServiceID uint16) *ServiceComponent {
	for i := range d.components {
		if d.components[i].TransportMode != TransportModePacketData {
			continue
		}
		if d.components[i].PacketServiceID == packetServiceID {
			return &d.components[i]
		}
	}
	return nil
}

// bindComponent creates a component row unless the (service, component
// number) pair already exists: the first announcement wins, repeats are
// idempotent. Components for services the gate hasn't confirmed yet are
// silently discarded, the announcement repeats soon enough.
func (d *FICDecoder) bindComponent(c ServiceComponent) {
	if d.findService(c.ServiceID) == nil {
		return
	}
	if d.findComponent(c.ServiceID, c.ComponentNumber) != nil {
		return
	}
	d.components = append(d.components, c)
}

// dropService removes a service, cascades over its components and
// invalidates every subchannel left without a referencing component.
func (d *FICDecoder) dropService(serviceID uint32) {
	kept := d.services[:0]
	for _, s := range d.services {
		if s.ServiceID != serviceID {
			kept = append(kept, s)
		}
	}
	d.services = kept

	keptComponents := d.components[:0]
	for _, c := range d.components {
		if c.ServiceID != serviceID {
			keptComponents = append(keptComponents, c)
		}
	}
	d.components = keptComponents

	// Orphaned subchannels
	for i := range d.subChannels {
		if !d.subChannels[i].Valid() {
			continue
		}
		referenced := false
		for j := range d.components {
			if d.components[j].SubchannelID == d.subChannels[i].ID {
				referenced = true
				break
			}
		}
		if !referenced {
			d.subChannels[i].ID = InvalidSubchannelID
		}
	}
}

// reset wipes the model, caller must hold the lock or own the decoder
func (d *FICDecoder) reset() {
	d.services = nil
	d.components = nil
	for i := range d.subChannels {
		d.subChannels[i] = Subchannel{ID: InvalidSubchannelID}
	}
	d.ensembleID = 0
	d.ensembleECC = 0
	d.ensembleLabel = DabLabel{}
	d.dateTime = DabTime{}
	d.timeOffsetReceived = false
	d.gate.reset()
	d.lastFrameCountRollover = time.Now()
}

// Reset wipes the whole model. Call it whenever the multiplex changes: the
// FIC carries no versioning, so state from the previous ensemble can only be
// discarded wholesale.
func (d *FICDecoder) Reset() {
	d.m.Lock()
	defer d.m.Unlock()
	d.reset()
}

// Services returns a snapshot of all confirmed services sorted by id.
func (d *FICDecoder) Services() (ss []Service) {
	d.m.Lock()
	defer d.m.Unlock()
	for _, s := range d.services {
		s.Label = s.Label.clone()
		ss = append(ss, s)
	}
	slices.SortFunc(ss, func(a, b Service) bool { return a.ServiceID < b.ServiceID })
	return
}

// Service returns a snapshot of a single service, or the zero Service when
// the id is unknown.
func (d *FICDecoder) Service(serviceID uint32) Service {
	d.m.Lock()
	defer d.m.Unlock()
	if s := d.findService(serviceID); s != nil {
		c := *s
		c.Label = c.Label.clone()
		return c
	}
	return Service{}
}

// Components returns a snapshot of the components bound to a service.
func (d *FICDecoder) Components(serviceID uint32) (cs []ServiceComponent) {
	d.m.Lock()
	defer d.m.Unlock()
	for _, c := range d.components {
		if c.ServiceID == serviceID {
			c.Label = c.Label.clone()
			cs = append(cs, c)
		}
	}
	return
}

// Subchannel returns a snapshot of the subchannel slot referenced by a
// component. Ids outside the 64 slot table return an invalid subchannel.
func (d *FICDecoder) Subchannel(subchannelID int) Subchannel {
	d.m.Lock()
	defer d.m.Unlock()
	if subchannelID < 0 || subchannelID >= subchannelCount {
		return Subchannel{ID: InvalidSubchannelID}
	}
	return d.subChannels[subchannelID]
}

// Subchannels returns a snapshot of the whole 64 slot subchannel table.
func (d *FICDecoder) Subchannels() [subchannelCount]Subchannel {
	d.m.Lock()
	defer d.m.Unlock()
	return d.subChannels
}

// EnsembleID returns the id of the tuned ensemble, 0 before FIG0/0 arrives.
func (d *FICDecoder) EnsembleID() uint16 {
	d.m.Lock()
	defer d.m.Unlock()
	return d.ensembleID
}

// EnsembleECC returns the extended country code announced by FIG0/9.
func (d *FICDecoder) EnsembleECC() uint8 {
	d.m.Lock()
	defer d.m.Unlock()
	return d.ensembleECC
}

// EnsembleLabel returns a snapshot of the ensemble label.
func (d *FICDecoder) EnsembleLabel() DabLabel {
	d.m.Lock()
	defer d.m.Unlock()
	return d.ensembleLabel.clone()
}

// LastFrameCountRollover returns the wall clock time of the last FIC frame
// count rollover seen in FIG0/0, for external synchronization.
func (d *FICDecoder) LastFrameCountRollover() time.Time {
	d.m.Lock()
	defer d.m.Unlock()
	return d.lastFrameCountRollover
}
