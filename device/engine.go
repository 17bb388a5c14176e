package device

import (
	"github.com/fluxripper/fluxusb/pkg"
	"github.com/fluxripper/fluxusb/wire"
)

// Handler consumes the endpoint events the transaction engine dispatches.
// One handler serves both directions of an endpoint number.
//
// Payload slices passed to Setup and DataOut alias the decoder's buffer and
// are valid only for the duration of the call; handlers must copy bytes
// they keep.
//
// DataOut and DataIn report readiness through their error: nil means the
// transfer succeeded (ACK), pkg.ErrNAK means transient backpressure (NAK),
// any other error halts the transfer (STALL).
type Handler interface {
	// Setup delivers a validated 8-byte SETUP payload.
	Setup(data []byte)

	// DataOut delivers a validated OUT data payload.
	DataOut(data []byte) error

	// DataIn fills buf with up to len(buf) bytes for an IN transaction
	// and returns the count. A zero count with a nil error transmits a
	// zero-length packet.
	DataIn(buf []byte) (int, error)

	// InAcked signals that the host acknowledged the most recent IN data
	// packet. Handlers advance their transmit position here, not in
	// DataIn, because the engine may retransmit the same packet.
	InAcked()
}

// engineState tracks the transaction in flight.
type engineState int

const (
	engineIdle     engineState = iota // No transaction in progress
	engineDataWait                    // SETUP/OUT token seen, data packet expected
	engineAwaitAck                    // IN data sent, host handshake expected
)

// Engine is the transaction engine: it consumes decoded packets, maintains
// per-endpoint toggle and stall state through the registry, dispatches
// endpoint events to handlers, and produces the handshake or data packet to
// transmit.
//
// A returned packet with a false second value means no response: corrupt or
// mismatched traffic is dropped silently and the host recovers by retry.
type Engine struct {
	dev      *Device
	reg      *Registry
	handlers [maxEndpoints]Handler

	state engineState
	token wire.Packet // Pending SETUP/OUT token in engineDataWait

	// Retransmit buffer for the IN data packet awaiting acknowledgement.
	txBuf [wire.MaxDataPayload]byte
	txLen int
	txEP  uint8
	txPID wire.PID
}

// NewEngine creates a transaction engine over the given device state and
// endpoint registry.
func NewEngine(dev *Device, reg *Registry) *Engine {
	return &Engine{dev: dev, reg: reg}
}

// SetHandler binds a handler to an endpoint number, covering both
// directions.
func (e *Engine) SetHandler(number uint8, h Handler) error {
	if number >= maxEndpoints {
		return pkg.ErrInvalidEndpoint
	}
	e.handlers[number] = h
	return nil
}

// Reset returns the engine to idle. Bus reset invokes this; registry and
// device state are reset by their owners.
func (e *Engine) Reset() {
	e.state = engineIdle
	e.txLen = 0
}

// Submit feeds one decoded packet through the engine. It returns the packet
// to transmit in response, if any.
func (e *Engine) Submit(p wire.Packet) (wire.Packet, bool) {
	switch p.Kind() {
	case wire.KindToken:
		return e.submitToken(p)
	case wire.KindData:
		return e.submitData(p)
	case wire.KindHandshake:
		e.submitHandshake(p)
	}
	return wire.Packet{}, false
}

func (e *Engine) submitToken(p wire.Packet) (wire.Packet, bool) {
	if p.PID == wire.PIDSOF {
		e.dev.SetFrame(p.Frame)
		return wire.Packet{}, false
	}

	// An unassigned device accepts every address pre-enumeration.
	if addr := e.dev.Address(); addr != 0 && p.Addr != addr {
		e.state = engineIdle
		return wire.Packet{}, false
	}

	switch p.PID {
	case wire.PIDSetup:
		// SETUP forces the addressed endpoint back to DATA0 in both
		// directions and aborts whatever transaction was in flight.
		if out := e.reg.Lookup(p.Endpoint, DirOut); out != nil {
			out.SetToggle(false)
		}
		if in := e.reg.Lookup(p.Endpoint, DirIn); in != nil {
			in.SetToggle(false)
		}
		e.token = p
		e.state = engineDataWait
	case wire.PIDOut:
		e.token = p
		e.state = engineDataWait
	case wire.PIDIn:
		return e.submitIn(p)
	}
	return wire.Packet{}, false
}

func (e *Engine) submitIn(p wire.Packet) (wire.Packet, bool) {
	ep := e.reg.Lookup(p.Endpoint, DirIn)
	if ep == nil {
		pkg.LogDebug(pkg.ComponentDevice, "IN to unknown endpoint", "endpoint", p.Endpoint)
		return handshake(wire.PIDStall)
	}
	if ep.Stalled() {
		return handshake(wire.PIDStall)
	}

	// A repeated IN while the previous data packet is unacknowledged
	// means the host missed it: retransmit the identical packet.
	if e.state == engineAwaitAck && p.Endpoint == e.txEP {
		return wire.Packet{PID: e.txPID, Payload: e.txBuf[:e.txLen]}, true
	}

	h := e.handlers[p.Endpoint]
	if h == nil {
		return handshake(wire.PIDStall)
	}
	n, err := h.DataIn(e.txBuf[:ep.MaxPacketSize()])
	switch pkg.HandshakeFor(err) {
	case pkg.HandshakeNAK:
		return handshake(wire.PIDNak)
	case pkg.HandshakeSTALL:
		e.halt(ep, err)
		return handshake(wire.PIDStall)
	}

	e.txLen = n
	e.txEP = p.Endpoint
	e.txPID = wire.DataPID(ep.Toggle())
	e.state = engineAwaitAck
	return wire.Packet{PID: e.txPID, Payload: e.txBuf[:n]}, true
}

func (e *Engine) submitData(p wire.Packet) (wire.Packet, bool) {
	if e.state != engineDataWait {
		// Data with no preceding token is dropped silently.
		pkg.LogDebug(pkg.ComponentDevice, "unexpected data packet", "packet", p.String())
		return wire.Packet{}, false
	}
	e.state = engineIdle
	tok := e.token

	ep := e.reg.Lookup(tok.Endpoint, DirOut)
	if ep == nil {
		pkg.LogDebug(pkg.ComponentDevice, "data to unknown endpoint", "endpoint", tok.Endpoint)
		return handshake(wire.PIDStall)
	}

	h := e.handlers[tok.Endpoint]

	if tok.PID == wire.PIDSetup {
		if len(p.Payload) != SetupPacketLength || h == nil {
			return handshake(wire.PIDStall)
		}
		ep.SetStalled(false)
		h.Setup(p.Payload)
		// Toggle stays at DATA0 for the data stage.
		ep.SetToggle(false)
		return handshake(wire.PIDAck)
	}

	if ep.Stalled() {
		return handshake(wire.PIDStall)
	}
	if p.PID.Toggle() != ep.Toggle() {
		// The host missed our previous ACK and retransmitted a packet
		// we already consumed. Acknowledge without redelivery.
		pkg.LogDebug(pkg.ComponentDevice, "duplicate OUT data", "endpoint", tok.Endpoint)
		return handshake(wire.PIDAck)
	}
	if len(p.Payload) > ep.MaxPacketSize() {
		return handshake(wire.PIDStall)
	}
	if h == nil {
		return handshake(wire.PIDStall)
	}

	err := h.DataOut(p.Payload)
	switch pkg.HandshakeFor(err) {
	case pkg.HandshakeNAK:
		return handshake(wire.PIDNak)
	case pkg.HandshakeSTALL:
		e.halt(ep, err)
		return handshake(wire.PIDStall)
	}
	ep.SetToggle(!ep.Toggle())
	return handshake(wire.PIDAck)
}

func (e *Engine) submitHandshake(p wire.Packet) {
	if p.PID != wire.PIDAck || e.state != engineAwaitAck {
		return
	}
	e.state = engineIdle
	ep := e.reg.Lookup(e.txEP, DirIn)
	if ep != nil {
		ep.SetToggle(!ep.Toggle())
	}
	if h := e.handlers[e.txEP]; h != nil {
		h.InAcked()
	}
}

// halt records a terminal handler error against the endpoint. The control
// endpoint uses a protocol stall cleared by the next SETUP, so its halt
// flag is never latched.
func (e *Engine) halt(ep *Endpoint, err error) {
	pkg.LogDebug(pkg.ComponentDevice, "endpoint stalled",
		"endpoint", ep.String(), "err", err)
	if ep.Number() != 0 {
		ep.SetStalled(true)
	}
}

func handshake(pid wire.PID) (wire.Packet, bool) {
	return wire.Packet{PID: pid}, true
}
