package device

import (
	"fmt"

	"github.com/fluxripper/fluxusb/pkg"
)

// Direction indicates the transfer direction of an endpoint, named from the
// host's point of view: OUT carries host-to-device data, IN device-to-host.
type Direction uint8

// Endpoint directions.
const (
	DirOut Direction = iota
	DirIn
)

// String returns a string representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirOut:
		return "OUT"
	case DirIn:
		return "IN"
	default:
		return "unknown"
	}
}

// maxEndpoints is the number of endpoint numbers per direction.
const maxEndpoints = 16

// Endpoint holds the per-endpoint transfer state: the data-toggle bit, the
// stall flag, and the fixed attributes assigned at registration.
//
// There is no locking; the core is a single sequential machine and the
// transaction engine is the only mutator.
type Endpoint struct {
	number    uint8
	direction Direction
	maxPacket int
	toggle    bool
	stalled   bool
}

// Number returns the endpoint number (0-15).
func (e *Endpoint) Number() uint8 {
	return e.number
}

// Direction returns the endpoint's transfer direction.
func (e *Endpoint) Direction() Direction {
	return e.direction
}

// MaxPacketSize returns the endpoint's maximum packet size.
func (e *Endpoint) MaxPacketSize() int {
	return e.maxPacket
}

// Toggle returns the current data-toggle bit: false selects DATA0, true
// selects DATA1.
func (e *Endpoint) Toggle() bool {
	return e.toggle
}

// SetToggle sets the data-toggle bit.
func (e *Endpoint) SetToggle(v bool) {
	e.toggle = v
}

// Stalled returns whether the endpoint is halted.
func (e *Endpoint) Stalled() bool {
	return e.stalled
}

// SetStalled sets or clears the endpoint halt condition.
func (e *Endpoint) SetStalled(v bool) {
	e.stalled = v
}

// Reset returns the endpoint to its post-reset state: toggle DATA0, not
// stalled.
func (e *Endpoint) Reset() {
	e.toggle = false
	e.stalled = false
}

// String returns a short description for diagnostics.
func (e *Endpoint) String() string {
	return fmt.Sprintf("EP%d %s max=%d", e.number, e.direction, e.maxPacket)
}

// Registry indexes the active endpoints by number and direction. Endpoints
// are registered once at device init and persist for the device lifetime;
// bus reset clears their transfer state but not their registration.
type Registry struct {
	eps [2 * maxEndpoints]*Endpoint
}

func (r *Registry) index(number uint8, dir Direction) int {
	return int(number&0x0F) + int(dir)*maxEndpoints
}

// Add registers an endpoint. It returns pkg.ErrInvalidEndpoint for numbers
// above 15 and pkg.ErrBusy if the slot is already registered.
func (r *Registry) Add(number uint8, dir Direction, maxPacket int) (*Endpoint, error) {
	if number >= maxEndpoints {
		return nil, pkg.ErrInvalidEndpoint
	}
	if maxPacket < 1 {
		return nil, pkg.ErrInvalidParameter
	}
	i := r.index(number, dir)
	if r.eps[i] != nil {
		return nil, pkg.ErrBusy
	}
	ep := &Endpoint{number: number, direction: dir, maxPacket: maxPacket}
	r.eps[i] = ep
	pkg.LogDebug(pkg.ComponentDevice, "endpoint registered", "endpoint", ep.String())
	return ep, nil
}

// Lookup returns the endpoint registered under number and dir, or nil.
func (r *Registry) Lookup(number uint8, dir Direction) *Endpoint {
	if number >= maxEndpoints {
		return nil
	}
	return r.eps[r.index(number, dir)]
}

// ResetAll returns every registered endpoint to its post-reset state.
func (r *Registry) ResetAll() {
	for _, ep := range r.eps {
		if ep != nil {
			ep.Reset()
		}
	}
}

// ResetToggles clears the data-toggle bit of every registered endpoint,
// leaving halt conditions untouched. SET_CONFIGURATION uses this.
func (r *Registry) ResetToggles() {
	for _, ep := range r.eps {
		if ep != nil {
			ep.SetToggle(false)
		}
	}
}
