package personality

import (
	"github.com/fluxripper/fluxusb/pkg"
	"github.com/fluxripper/fluxusb/stream"
)

// DrainTimeout is the tick budget of each drain stage during a personality
// switch. A stage that has not gone idle by then is forced forward.
const DrainTimeout = 255

// pipeDepth sizes the shared bulk pipe in each direction.
const pipeDepth = 64

// routerState tracks the switch sequence.
type routerState int

const (
	routerIdle          routerState = iota // No personality active yet
	routerActive                           // Active engine wired to the pipe
	routerDrainTx                          // Waiting for the transmit path to idle
	routerDrainRx                          // Waiting for the receive path to idle
	routerResetProtocol                    // Pulsing reset into the outgoing engine
	routerSwitch                           // Committing the pending personality
)

// String returns a string representation of the router state.
func (s routerState) String() string {
	switch s {
	case routerIdle:
		return "idle"
	case routerActive:
		return "active"
	case routerDrainTx:
		return "drain-tx"
	case routerDrainRx:
		return "drain-rx"
	case routerResetProtocol:
		return "reset-protocol"
	case routerSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Router owns the shared bulk pipe and arbitrates which protocol engine is
// wired to it. The USB side feeds host bytes with HostWrite and collects
// response bytes with HostRead; Tick moves at most one byte per direction
// between the pipe and the active engine.
type Router struct {
	engines [numPersonalities]Engine

	rx *stream.Pipe // Host to engine
	tx *stream.Pipe // Engine to host

	state   routerState
	active  ID
	pending ID
	timer   int
}

// NewRouter creates a router with empty pipes and no active personality.
func NewRouter() *Router {
	return &Router{
		rx: stream.New(pipeDepth),
		tx: stream.New(pipeDepth),
	}
}

// Bind registers an engine under a personality. Engines are bound once at
// init time, before Start.
func (r *Router) Bind(id ID, e Engine) error {
	if !id.Valid() || e == nil {
		return pkg.ErrInvalidParameter
	}
	if r.engines[id] != nil {
		return pkg.ErrBusy
	}
	r.engines[id] = e
	return nil
}

// Start activates the initial personality.
func (r *Router) Start(initial ID) error {
	if !initial.Valid() || r.engines[initial] == nil {
		return pkg.ErrInvalidParameter
	}
	if r.state != routerIdle {
		return pkg.ErrInvalidState
	}
	r.active = initial
	r.state = routerActive
	pkg.LogInfo(pkg.ComponentRouter, "personality active", "personality", initial)
	return nil
}

// ActiveID returns the active personality.
func (r *Router) ActiveID() ID {
	return r.active
}

// Pending returns the switch target, if a switch is in progress.
func (r *Router) Pending() (ID, bool) {
	if r.state == routerActive || r.state == routerIdle {
		return 0, false
	}
	return r.pending, true
}

// Switching reports whether a drain-and-switch sequence is in progress.
func (r *Router) Switching() bool {
	_, ok := r.Pending()
	return ok
}

// Status returns the active engine's diagnostic status byte.
func (r *Router) Status() byte {
	if e := r.engines[r.active]; e != nil {
		return e.Status()
	}
	return 0
}

// Request asks for a switch to target. It is accepted only while Active;
// a request naming the already-active personality is a no-op.
func (r *Router) Request(target ID) error {
	if !target.Valid() || r.engines[target] == nil {
		return pkg.ErrInvalidParameter
	}
	if target == r.active && r.state == routerActive {
		return nil
	}
	if r.state != routerActive {
		return pkg.ErrBusy
	}
	r.pending = target
	r.timer = 0
	r.state = routerDrainTx
	pkg.LogInfo(pkg.ComponentRouter, "personality switch requested",
		"from", r.active, "to", target)
	return nil
}

// HostWrite offers one host byte into the receive pipe. Bytes are refused
// while a switch is in progress so traffic for the old and new personality
// cannot interleave.
func (r *Router) HostWrite(b byte) bool {
	if r.state != routerActive {
		return false
	}
	return r.rx.Offer(b)
}

// HostRead takes one response byte from the transmit pipe. Reads stay
// legal during the transmit drain so the host can collect what the
// outgoing personality already produced.
func (r *Router) HostRead() (byte, bool) {
	return r.tx.Take()
}

// TxLen returns the number of response bytes waiting for the host.
func (r *Router) TxLen() int {
	return r.tx.Len()
}

// RxFree returns the receive pipe space available for host bytes.
func (r *Router) RxFree() int {
	return r.rx.Free()
}

// Tick advances the router by one byte-time.
func (r *Router) Tick() {
	switch r.state {
	case routerIdle:
		// Waiting for Start.

	case routerActive:
		r.shuttle(r.engines[r.active])

	case routerDrainTx:
		// The engine is no longer pulled; the host drains what is
		// already buffered.
		if r.tx.Empty() && !r.engines[r.active].TxPending() {
			r.advance(routerDrainRx)
			return
		}
		r.expire(routerDrainRx, "tx drain timeout")

	case routerDrainRx:
		// Deliver what the host already sent; the engine may still
		// consume it.
		r.feedRx(r.engines[r.active])
		if r.rx.Empty() {
			r.advance(routerResetProtocol)
			return
		}
		r.expire(routerResetProtocol, "rx drain timeout")

	case routerResetProtocol:
		r.engines[r.active].ResetProtocol()
		r.rx.Reset()
		r.tx.Reset()
		r.advance(routerSwitch)

	case routerSwitch:
		r.active = r.pending
		r.state = routerActive
		pkg.LogInfo(pkg.ComponentRouter, "personality active", "personality", r.active)
	}
}

// shuttle moves at most one byte per direction between the pipe and e.
func (r *Router) shuttle(e Engine) {
	r.feedRx(e)
	if r.tx.Free() > 0 && e.TxPending() {
		if b, ok := e.Tx(); ok {
			r.tx.Offer(b)
		}
	}
}

// feedRx offers at most one buffered host byte to e.
func (r *Router) feedRx(e Engine) {
	if b, ok := r.rx.Peek(); ok && e.Rx(b) {
		r.rx.Take()
	}
}

// advance moves to the next switch stage and restarts the stage timer.
func (r *Router) advance(next routerState) {
	r.state = next
	r.timer = 0
}

// expire counts the stage timer and forces the next stage at the budget.
// Forcing loses whatever was in flight; that is the accepted price of
// never wedging.
func (r *Router) expire(next routerState, msg string) {
	r.timer++
	if r.timer >= DrainTimeout {
		pkg.LogWarn(pkg.ComponentRouter, msg,
			"from", r.active, "to", r.pending, "ticks", r.timer)
		r.advance(next)
	}
}

// Reset forces the router to its initial state on bus reset. Pipes are
// cleared and any switch in progress is abandoned, but engine protocol
// state is untouched: each engine owns its own reset policy.
func (r *Router) Reset() {
	started := r.state != routerIdle
	r.rx.Reset()
	r.tx.Reset()
	r.timer = 0
	if started {
		// The active personality survives a bus reset.
		r.state = routerActive
	}
}
