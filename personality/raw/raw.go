package raw

import (
	"encoding/binary"

	"github.com/fluxripper/fluxusb/pkg"
)

// maxFluxChunk caps the payload of one READ_FLUX response. The host pages
// through longer captures with repeated commands.
const maxFluxChunk = 4096

// Drive is the mechanics collaborator behind the native protocol. Errors
// are mapped onto wire result codes: pkg.ErrInvalidParameter,
// pkg.ErrNotConfigured (no drive), pkg.ErrNAK (not ready), pkg.ErrOverrun,
// pkg.ErrTimeout, and pkg.ErrBusy each have a dedicated code; anything
// else reports ERR_INVALID_CMD.
type Drive interface {
	Info() Info
	Select(unit uint8) error
	Motor(on bool) error
	Seek(track uint8) error
	CaptureStart() error
	CaptureStop() (CaptureInfo, error)
	ReadFlux(max int) ([]byte, error)
	ReadTrackRaw(track, head uint8) ([]byte, error)
	PLLStatus() (PLLStatus, error)
	SignalQuality() (SignalQuality, error)
	Profile() (Profile, error)
}

// Engine is the native-framing protocol engine. It accumulates command
// bytes, resynchronizes on the signature after garbage, executes through
// the Drive collaborator, and queues the framed response.
type Engine struct {
	drive Drive

	cmd    [CommandSize]byte
	cmdLen int

	resp []byte

	lastResult uint8
}

// New creates a native protocol engine over drive.
func New(drive Drive) *Engine {
	return &Engine{drive: drive}
}

// Rx accepts one host byte. The engine refuses bytes while a response is
// still queued so command and response framing cannot interleave.
func (e *Engine) Rx(b byte) bool {
	if len(e.resp) > 0 {
		return false
	}
	e.cmd[e.cmdLen] = b
	e.cmdLen++
	e.resync()
	if e.cmdLen == CommandSize {
		cmd := decodeCommand(e.cmd[:])
		e.cmdLen = 0
		e.execute(cmd)
	}
	return true
}

// resync discards leading bytes until the buffer starts with the command
// signature. A host that lost framing recovers at the next signature.
func (e *Engine) resync() {
	for e.cmdLen >= 4 && binary.LittleEndian.Uint32(e.cmd[0:4]) != Signature {
		copy(e.cmd[:], e.cmd[1:e.cmdLen])
		e.cmdLen--
	}
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

// ResetProtocol discards partial commands and queued responses.
func (e *Engine) ResetProtocol() {
	e.cmdLen = 0
	e.resp = nil
	e.lastResult = ResultOK
}

// Status reports the last result code in the low nibble and a busy bit
// while a response is draining.
func (e *Engine) Status() byte {
	s := e.lastResult & 0x0F
	if len(e.resp) > 0 {
		s |= 0x10
	}
	return s
}

// execute runs one decoded command and queues its response.
func (e *Engine) execute(cmd Command) {
	var payload []byte
	var err error

	switch cmd.Opcode {
	case CmdNop:
		// Status query; header only.

	case CmdGetInfo:
		payload = appendInfo(nil, e.drive.Info())

	case CmdSelectDrive:
		if cmd.Param1 >= maxDrives {
			err = pkg.ErrInvalidParameter
			break
		}
		err = e.drive.Select(cmd.Param1)

	case CmdMotorCtrl:
		err = e.drive.Motor(cmd.Param1 != 0)

	case CmdSeek:
		err = e.drive.Seek(cmd.Param1)

	case CmdCaptureStart:
		err = e.drive.CaptureStart()

	case CmdCaptureStop:
		var info CaptureInfo
		if info, err = e.drive.CaptureStop(); err == nil {
			payload = appendCaptureInfo(nil, info)
		}

	case CmdReadFlux:
		max := int(cmd.Param3)
		if max <= 0 || max > maxFluxChunk {
			max = maxFluxChunk
		}
		payload, err = e.drive.ReadFlux(max)

	case CmdReadTrackRaw:
		payload, err = e.drive.ReadTrackRaw(cmd.Param1, uint8(cmd.Param2))

	case CmdGetPLLStatus:
		var pll PLLStatus
		if pll, err = e.drive.PLLStatus(); err == nil {
			payload = appendPLLStatus(nil, pll)
		}

	case CmdGetSignalQual:
		var q SignalQuality
		if q, err = e.drive.SignalQuality(); err == nil {
			payload = appendSignalQuality(nil, q)
		}

	case CmdGetDriveProfile:
		var p Profile
		if p, err = e.drive.Profile(); err == nil {
			payload = appendProfile(nil, p)
		}

	default:
		e.respond(ResultErrInvalidCmd, cmd.Opcode, nil)
		return
	}

	status := resultFor(err)
	if status != ResultOK {
		// Protocol-level failure: the result code travels in the
		// header, never a payload, and device state is untouched.
		payload = nil
		pkg.LogDebug(pkg.ComponentPersonality, "command failed",
			"opcode", cmd.Opcode, "result", status, "err", err)
	}
	e.respond(status, cmd.Opcode, payload)
}

func (e *Engine) respond(status, opcode uint8, payload []byte) {
	e.lastResult = status
	e.resp = appendResponseHeader(e.resp, status, opcode, uint16(len(payload)))
	e.resp = append(e.resp, payload...)
}
