// Package flux implements the flux-stream emulation engine: it pulls flux
// transition intervals from a Source collaborator and streams them to the
// host in the dongle flux encoding (direct bytes 1-249, two-byte values
// 250-1524, opcode-escaped space and index markers, 0x00 terminator).
// Capture timing itself is the Source's business; only the stream framing
// lives here.
package flux

import (
	"errors"
	"io"

	"github.com/fluxripper/fluxusb/pkg"
)

// Host control bytes.
const (
	CtrlStop  = 0x00
	CtrlStart = 0x01
)

// Flux stream opcodes, escaped by the 0xFF marker.
const (
	OpIndex   = 0x01
	OpSpace   = 0x02
	OpAstable = 0x03

	opcodeMarker = 0xFF
	streamEnd    = 0x00
)

// Encoding breakpoints.
const (
	maxDirect   = 249
	twoByteMin  = 250
	twoByteMax  = 1524
	longLeadOut = 249 // Trailing direct byte after a SPACE opcode
)

// Source supplies flux intervals in sample ticks. Next returns io.EOF at
// end of capture and pkg.ErrNAK when no sample is ready yet.
type Source interface {
	Next() (ticks uint32, index bool, err error)
}

// Engine is the flux-stream protocol engine.
type Engine struct {
	source Source

	streaming bool
	failed    bool
	out       []byte
}

// New creates a flux-stream engine over source.
func New(source Source) *Engine {
	return &Engine{source: source}
}

// Rx accepts one host control byte: CtrlStart begins a stream, CtrlStop
// abandons it.
func (e *Engine) Rx(b byte) bool {
	switch b {
	case CtrlStart:
		e.streaming = true
		e.failed = false
		e.out = e.out[:0]
	case CtrlStop:
		e.streaming = false
		e.out = e.out[:0]
	default:
		pkg.LogDebug(pkg.ComponentPersonality, "unknown flux control byte", "byte", b)
	}
	return true
}

// Tx returns the next stream byte, pulling and encoding samples from the
// source as the buffer drains.
func (e *Engine) Tx() (byte, bool) {
	if len(e.out) == 0 && e.streaming {
		e.pull()
	}
	if len(e.out) == 0 {
		return 0, false
	}
	b := e.out[0]
	e.out = e.out[1:]
	return b, true
}

// TxPending reports whether a stream byte can be produced.
func (e *Engine) TxPending() bool {
	return len(e.out) > 0 || e.streaming
}

// ResetProtocol abandons any stream in progress.
func (e *Engine) ResetProtocol() {
	e.streaming = false
	e.failed = false
	e.out = nil
}

// Status reports bit 0 while streaming and bit 1 after a source failure.
func (e *Engine) Status() byte {
	var s byte
	if e.streaming {
		s |= 0x01
	}
	if e.failed {
		s |= 0x02
	}
	return s
}

// pull fetches one sample and appends its encoding.
func (e *Engine) pull() {
	ticks, index, err := e.source.Next()
	switch {
	case err == nil:
	case errors.Is(err, pkg.ErrNAK):
		// Nothing ready this tick; hold.
		return
	case errors.Is(err, io.EOF):
		e.out = append(e.out, streamEnd)
		e.streaming = false
		return
	default:
		pkg.LogWarn(pkg.ComponentPersonality, "flux source failed", "err", err)
		e.out = append(e.out, streamEnd)
		e.streaming = false
		e.failed = true
		return
	}

	if index {
		e.out = append(e.out, opcodeMarker, OpIndex)
		e.out = appendN28(e.out, ticks)
		return
	}
	e.out = appendInterval(e.out, ticks)
}

// appendInterval encodes one flux interval.
func appendInterval(dst []byte, v uint32) []byte {
	switch {
	case v <= maxDirect:
		if v == 0 {
			// Zero would read as the stream terminator.
			v = 1
		}
		return append(dst, byte(v))
	case v <= twoByteMax:
		r := v - twoByteMin
		return append(dst, byte(twoByteMin+r/255), byte(1+r%255))
	default:
		// SPACE soaks up all but a direct-range remainder.
		dst = append(dst, opcodeMarker, OpSpace)
		dst = appendN28(dst, v-longLeadOut)
		return append(dst, longLeadOut)
	}
}

// appendN28 encodes a 28-bit value as four odd bytes, low bits first.
func appendN28(dst []byte, v uint32) []byte {
	return append(dst,
		byte(v&0x3F)<<1|1,
		byte(v>>6&0x7F)<<1|1,
		byte(v>>13&0x7F)<<1|1,
		byte(v>>20&0x7F)<<1|1)
}
