// Package gw implements the legacy-dongle compatibility engine. The device
// reports itself as a Greaseweazle F7 Lightning and answers the dongle's
// two-byte-header command frames ([cmd, length, args...]) with [cmd, ack]
// responses. Only the framing and arbitration subset lives here; drive
// mechanics sit behind the Drive collaborator.
package gw

import (
	"encoding/binary"
	"errors"

	"github.com/fluxripper/fluxusb/pkg"
)

// Command opcodes.
const (
	CmdGetInfo       = 0x00
	CmdUpdate        = 0x01
	CmdSeek          = 0x02
	CmdHead          = 0x03
	CmdSetParams     = 0x04
	CmdGetParams     = 0x05
	CmdMotor         = 0x06
	CmdReadFlux      = 0x07
	CmdWriteFlux     = 0x08
	CmdGetFluxStatus = 0x09
	CmdGetIndexTimes = 0x0A
	CmdSwitchFwMode  = 0x0B
	CmdSelect        = 0x0C
	CmdDeselect      = 0x0D
	CmdSetBusType    = 0x0E
	CmdSetPin        = 0x0F
	CmdReset         = 0x10
	CmdEraseFlux     = 0x11
	CmdSourceBytes   = 0x12
	CmdSinkBytes     = 0x13
	CmdGetPin        = 0x14
	CmdTestMode      = 0x15
	CmdNoClickStep   = 0x16

	CmdMax = 0x16
)

// Acknowledge codes.
const (
	AckOkay          = 0x00
	AckBadCommand    = 0x01
	AckNoIndex       = 0x02
	AckNoTrk0        = 0x03
	AckFluxOverflow  = 0x04
	AckFluxUnderflow = 0x05
	AckWrProt        = 0x06
	AckNoUnit        = 0x07
	AckNoBus         = 0x08
	AckBadUnit       = 0x09
	AckBadPin        = 0x0A
	AckBadCylinder   = 0x0B
	AckOutOfSRAM     = 0x0C
	AckOutOfFlash    = 0x0D
)

// GET_INFO sub-indices.
const (
	GetInfoFirmware     = 0x00
	GetInfoBWStats      = 0x01
	GetInfoCurrentDrive = 0x07
)

// Bus types.
const (
	BusNone    = 0x00
	BusIBMPC   = 0x01
	BusShugart = 0x02
	BusApple2  = 0x03
)

// Reported hardware identity: a Greaseweazle F7 Lightning on high-speed
// USB with the standard 72 MHz sample clock.
const (
	fwMajor    = 1
	fwMinor    = 6
	hwModel    = 7
	hwSubmodel = 1
	usbSpeed   = 1
	mcuID      = 7
	mcuMHz     = 216
	mcuSRAMKB  = 64
	usbBufKB   = 32
	sampleFreq = 72000000
)

// infoSize is the fixed GET_INFO payload length.
const infoSize = 32

// Drive-condition errors the collaborator reports; each maps onto its
// acknowledge code. Any unrecognized error reports AckBadCommand.
var (
	ErrNoIndex        = errors.New("no index pulse")
	ErrNoTrk0         = errors.New("track 0 not found")
	ErrFluxOverflow   = errors.New("flux buffer overflow")
	ErrFluxUnderflow  = errors.New("flux buffer underflow")
	ErrWriteProtected = errors.New("disk write protected")
	ErrNoUnit         = errors.New("no unit selected")
	ErrNoBus          = errors.New("no bus configured")
	ErrBadUnit        = errors.New("bad unit number")
	ErrBadCylinder    = errors.New("bad cylinder")
)

// ackFor maps a collaborator error onto the wire acknowledge code.
func ackFor(err error) byte {
	switch {
	case err == nil:
		return AckOkay
	case errors.Is(err, ErrNoIndex):
		return AckNoIndex
	case errors.Is(err, ErrNoTrk0):
		return AckNoTrk0
	case errors.Is(err, ErrFluxOverflow):
		return AckFluxOverflow
	case errors.Is(err, ErrFluxUnderflow):
		return AckFluxUnderflow
	case errors.Is(err, ErrWriteProtected):
		return AckWrProt
	case errors.Is(err, ErrNoUnit):
		return AckNoUnit
	case errors.Is(err, ErrNoBus):
		return AckNoBus
	case errors.Is(err, ErrBadUnit):
		return AckBadUnit
	case errors.Is(err, ErrBadCylinder):
		return AckBadCylinder
	default:
		return AckBadCommand
	}
}

// Drive is the mechanics collaborator behind the legacy framing.
type Drive interface {
	Select(unit uint8) error
	Deselect()
	Seek(cylinder int) error
	Head(head uint8) error
	Motor(unit uint8, on bool) error
	SetBusType(bus uint8) error

	// FluxStatus reports the outcome of the last flux operation.
	FluxStatus() error

	// DriveInfo returns the current-drive flags and cylinder for
	// GET_INFO(CURRENT_DRIVE).
	DriveInfo() (flags, cylinder uint8)

	// Reset restores default parameters and deselects the drive.
	Reset()
}

// Engine is the legacy-dongle protocol engine.
type Engine struct {
	drive Drive

	cmd    [258]byte // cmd, length, up to 256 argument bytes
	cmdLen int

	resp []byte

	lastAck byte
}

// New creates a legacy-dongle engine over drive.
func New(drive Drive) *Engine {
	return &Engine{drive: drive}
}

// Rx accepts one host byte. Bytes are refused while a response is queued.
func (e *Engine) Rx(b byte) bool {
	if len(e.resp) > 0 {
		return false
	}
	e.cmd[e.cmdLen] = b
	e.cmdLen++
	if e.cmdLen < 2 {
		return true
	}
	total := int(e.cmd[1])
	if total < 2 {
		// An impossible length byte; answer immediately so the host
		// does not wedge waiting for more of a broken frame.
		e.respond(e.cmd[0], AckBadCommand, nil)
		e.cmdLen = 0
		return true
	}
	if e.cmdLen < total {
		return true
	}
	op, args := e.cmd[0], e.cmd[2:total]
	e.cmdLen = 0
	e.execute(op, args)
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

// ResetProtocol discards partial frames and queued responses.
func (e *Engine) ResetProtocol() {
	e.cmdLen = 0
	e.resp = nil
	e.lastAck = AckOkay
}

// Status reports the last acknowledge code, with the high bit set while a
// response is draining.
func (e *Engine) Status() byte {
	s := e.lastAck
	if len(e.resp) > 0 {
		s |= 0x80
	}
	return s
}

func (e *Engine) execute(op byte, args []byte) {
	switch op {
	case CmdGetInfo:
		e.getInfo(args)

	case CmdSeek:
		cyl, ok := seekCylinder(args)
		if !ok {
			e.respond(op, AckBadCommand, nil)
			return
		}
		e.respond(op, ackFor(e.drive.Seek(cyl)), nil)

	case CmdHead:
		if len(args) != 1 {
			e.respond(op, AckBadCommand, nil)
			return
		}
		e.respond(op, ackFor(e.drive.Head(args[0])), nil)

	case CmdMotor:
		if len(args) != 2 {
			e.respond(op, AckBadCommand, nil)
			return
		}
		e.respond(op, ackFor(e.drive.Motor(args[0], args[1] != 0)), nil)

	case CmdSelect:
		if len(args) != 1 {
			e.respond(op, AckBadCommand, nil)
			return
		}
		e.respond(op, ackFor(e.drive.Select(args[0])), nil)

	case CmdDeselect:
		e.drive.Deselect()
		e.respond(op, AckOkay, nil)

	case CmdSetBusType:
		if len(args) != 1 || args[0] > BusApple2 {
			e.respond(op, AckBadCommand, nil)
			return
		}
		e.respond(op, ackFor(e.drive.SetBusType(args[0])), nil)

	case CmdGetFluxStatus:
		e.respond(op, ackFor(e.drive.FluxStatus()), nil)

	case CmdReset:
		e.drive.Reset()
		e.respond(op, AckOkay, nil)

	default:
		pkg.LogDebug(pkg.ComponentPersonality, "unsupported legacy command", "op", op)
		e.respond(op, AckBadCommand, nil)
	}
}

// seekCylinder decodes the one- or two-byte signed cylinder argument.
func seekCylinder(args []byte) (int, bool) {
	switch len(args) {
	case 1:
		return int(int8(args[0])), true
	case 2:
		return int(int16(binary.LittleEndian.Uint16(args))), true
	default:
		return 0, false
	}
}

func (e *Engine) getInfo(args []byte) {
	if len(args) != 1 {
		e.respond(CmdGetInfo, AckBadCommand, nil)
		return
	}
	switch args[0] {
	case GetInfoFirmware:
		e.respond(CmdGetInfo, AckOkay, firmwareInfo())
	case GetInfoCurrentDrive:
		flags, cyl := e.drive.DriveInfo()
		payload := make([]byte, infoSize)
		payload[0] = flags
		payload[1] = cyl
		e.respond(CmdGetInfo, AckOkay, payload)
	default:
		e.respond(CmdGetInfo, AckBadCommand, nil)
	}
}

// firmwareInfo encodes the fixed 32-byte firmware identity block.
func firmwareInfo() []byte {
	buf := make([]byte, infoSize)
	buf[0] = fwMajor
	buf[1] = fwMinor
	buf[2] = 1 // Main firmware, not bootloader
	buf[3] = CmdMax
	binary.LittleEndian.PutUint32(buf[4:8], sampleFreq)
	buf[8] = hwModel
	buf[9] = hwSubmodel
	buf[10] = usbSpeed
	buf[11] = mcuID
	binary.LittleEndian.PutUint16(buf[12:14], mcuMHz)
	binary.LittleEndian.PutUint16(buf[14:16], mcuSRAMKB)
	binary.LittleEndian.PutUint16(buf[16:18], usbBufKB)
	return buf
}

func (e *Engine) respond(op, ack byte, payload []byte) {
	e.lastAck = ack
	e.resp = append(e.resp, op, ack)
	e.resp = append(e.resp, payload...)
}
