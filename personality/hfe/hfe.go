// Package hfe implements the floppy-emulator framing engine: the host
// requests fixed-size track blocks with a 4-byte frame {track, head,
// block u16 LE} and receives a status byte followed, on success, by one
// block of track image data. Track image storage is the TrackStore
// collaborator's business.
package hfe

import (
	"errors"

	"github.com/fluxripper/fluxusb/pkg"
)

// BlockSize is the fixed track block length served per request.
const BlockSize = 512

// requestSize is the host request frame length.
const requestSize = 4

// Response status codes.
const (
	StatusOK       = 0x00
	StatusBadBlock = 0x01 // Track/head/block outside the image
	StatusNotReady = 0x02 // No image loaded yet
	StatusError    = 0x03 // Store failure
)

// TrackStore supplies track image blocks. ReadBlock returns exactly
// BlockSize bytes; pkg.ErrInvalidParameter marks an out-of-range request
// and pkg.ErrNAK a store with no image loaded.
type TrackStore interface {
	ReadBlock(track, head uint8, block uint16) ([]byte, error)
}

// Engine is the floppy-emulator protocol engine.
type Engine struct {
	store TrackStore

	req    [requestSize]byte
	reqLen int

	resp []byte

	lastStatus byte
}

// New creates a floppy-emulator engine over store.
func New(store TrackStore) *Engine {
	return &Engine{store: store}
}

// Rx accepts one request byte. Bytes are refused while a response is
// queued.
func (e *Engine) Rx(b byte) bool {
	if len(e.resp) > 0 {
		return false
	}
	e.req[e.reqLen] = b
	e.reqLen++
	if e.reqLen == requestSize {
		e.reqLen = 0
		e.serve(e.req[0], e.req[1], uint16(e.req[2])|uint16(e.req[3])<<8)
	}
	return true
}

// Tx returns the next queued response byte.
func (e *Engine) Tx() (byte, bool) {
	if len(e.resp) == 0 {
		return 0, false
	}
	b := e.resp[0]
	e.resp = e.resp[1:]
	return b, true
}

// TxPending reports whether response bytes are queued.
func (e *Engine) TxPending() bool {
	return len(e.resp) > 0
}

// ResetProtocol discards partial requests and queued responses.
func (e *Engine) ResetProtocol() {
	e.reqLen = 0
	e.resp = nil
	e.lastStatus = StatusOK
}

// Status reports the last response status, with the high bit set while a
// response is draining.
func (e *Engine) Status() byte {
	s := e.lastStatus
	if len(e.resp) > 0 {
		s |= 0x80
	}
	return s
}

func (e *Engine) serve(track, head uint8, block uint16) {
	data, err := e.store.ReadBlock(track, head, block)
	switch {
	case err == nil:
		if len(data) != BlockSize {
			pkg.LogWarn(pkg.ComponentPersonality, "track store returned short block",
				"track", track, "head", head, "block", block, "len", len(data))
			e.respond(StatusError, nil)
			return
		}
		e.respond(StatusOK, data)
	case errors.Is(err, pkg.ErrInvalidParameter):
		e.respond(StatusBadBlock, nil)
	case errors.Is(err, pkg.ErrNAK):
		e.respond(StatusNotReady, nil)
	default:
		pkg.LogWarn(pkg.ComponentPersonality, "track store failed", "err", err)
		e.respond(StatusError, nil)
	}
}

func (e *Engine) respond(status byte, data []byte) {
	e.lastStatus = status
	e.resp = append(e.resp, status)
	e.resp = append(e.resp, data...)
}
