package astidab

import "time"

// serviceGate keeps track of how often each service id is signalled, using a
// saturating counter per id. Every time a service is sighted in a FIG0/2 the
// counter is incremented, and once per second every counter is decremented by
// one; an id found at zero during that decay pass is dropped. A service is
// only considered real once its counter reaches 2, which keeps misdecoded
// service ids from appearing and staying in the list.
type serviceGate struct {
	counts    map[uint32]uint8
	lastDecay time.Time
	now       func() time.Time
}

const (
	gateSaturation   = 4
	gateConfirmCount = 2
)

func newServiceGate(now func() time.Time) *serviceGate {
	if now == nil {
		now = time.Now
	}
	return &serviceGate{
		counts:    make(map[uint32]uint8),
		lastDecay: now(),
		now:       now,
	}
}

// observe registers a sighting of serviceID. The decay pass runs before the
// increment so that a sighting arriving together with an overdue decay tick
// can't flap: ids whose counter was already at zero are reported in dropped
// and removed from tracking. confirmed reports whether serviceID has now been
// seen often enough to be trusted.
func (g *serviceGate) observe(serviceID uint32) (confirmed bool, dropped []uint32) {
	now := g.now()
	if g.lastDecay.Add(time.Second).Before(now) {
		for id, c := range g.counts {
			if c > 0 {
				g.counts[id] = c - 1
			} else {
				dropped = append(dropped, id)
				delete(g.counts, id)
			}
		}
		g.lastDecay = now
	}

	if g.counts[serviceID] < gateSaturation {
		g.counts[serviceID]++
	}
	return g.counts[serviceID] >= gateConfirmCount, dropped
}

func (g *serviceGate) reset() {
	g.counts = make(map[uint32]uint8)
	g.lastDecay = g.now()
}
