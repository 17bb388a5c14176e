// Package raw implements the native vendor protocol engine: 16-byte
// commands opened by the "FRWQ" signature, answered by an 8-byte response
// header plus an optional payload. Drive mechanics live behind the Drive
// collaborator; this package owns only framing, dispatch, and result-code
// mapping.
package raw

import (
	"encoding/binary"
	"errors"

	"github.com/fluxripper/fluxusb/pkg"
)

// Signature opens every command and response ("FRWQ" big-endian, stored
// little-endian on the wire).
const Signature = 0x46525751

// Wire sizes.
const (
	CommandSize        = 16
	ResponseHeaderSize = 8
)

// Command opcodes.
const (
	CmdNop             = 0x00
	CmdGetInfo         = 0x01
	CmdSelectDrive     = 0x02
	CmdMotorCtrl       = 0x03
	CmdSeek            = 0x05
	CmdCaptureStart    = 0x10
	CmdCaptureStop     = 0x11
	CmdReadFlux        = 0x13
	CmdReadTrackRaw    = 0x20
	CmdGetPLLStatus    = 0x30
	CmdGetSignalQual   = 0x31
	CmdGetDriveProfile = 0x40
)

// Result codes.
const (
	ResultOK              = 0x00
	ResultErrInvalidCmd   = 0x01
	ResultErrInvalidParam = 0x02
	ResultErrNoDrive      = 0x03
	ResultErrNotReady     = 0x04
	ResultErrOverflow     = 0x05
	ResultErrTimeout      = 0x06
	ResultErrBusy         = 0x07
)

// Device status flags reported in Info.StatusFlags.
const (
	StatusDiskPresent     = 1 << 0
	StatusWriteProtected  = 1 << 1
	StatusHDDReady        = 1 << 2
	StatusCaptureActive   = 1 << 3
	StatusCaptureOverflow = 1 << 4
	StatusPLLLocked       = 1 << 5
)

// Flux sample flags (32-bit sample words).
const (
	FluxFlagIndex    = 1 << 31
	FluxFlagOverflow = 1 << 30
	FluxFlagWeak     = 1 << 29
	FluxTimestamp    = 0x07FFFFFF
)

// maxDrives bounds the SELECT_DRIVE unit parameter.
const maxDrives = 4

// Command is a decoded 16-byte command packet.
type Command struct {
	Opcode uint8
	Param1 uint8
	Param2 uint16
	Param3 uint32
	Param4 uint32
}

// decodeCommand decodes buf, which must hold CommandSize bytes beginning
// with a valid signature.
func decodeCommand(buf []byte) Command {
	return Command{
		Opcode: buf[4],
		Param1: buf[5],
		Param2: binary.LittleEndian.Uint16(buf[6:8]),
		Param3: binary.LittleEndian.Uint32(buf[8:12]),
		Param4: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// AppendCommand encodes a command packet to dst. Host-side tooling and
// tests share this encoder.
func AppendCommand(dst []byte, c Command) []byte {
	var buf [CommandSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], Signature)
	buf[4] = c.Opcode
	buf[5] = c.Param1
	binary.LittleEndian.PutUint16(buf[6:8], c.Param2)
	binary.LittleEndian.PutUint32(buf[8:12], c.Param3)
	binary.LittleEndian.PutUint32(buf[12:16], c.Param4)
	return append(dst, buf[:]...)
}

// appendResponseHeader encodes the fixed 8-byte response header.
func appendResponseHeader(dst []byte, status, opcode uint8, dataLen uint16) []byte {
	var buf [ResponseHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], Signature)
	buf[4] = status
	buf[5] = opcode
	binary.LittleEndian.PutUint16(buf[6:8], dataLen)
	return append(dst, buf[:]...)
}

// resultFor maps a collaborator error onto the wire result code.
func resultFor(err error) uint8 {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, pkg.ErrInvalidParameter):
		return ResultErrInvalidParam
	case errors.Is(err, pkg.ErrNotConfigured):
		return ResultErrNoDrive
	case errors.Is(err, pkg.ErrNAK):
		return ResultErrNotReady
	case errors.Is(err, pkg.ErrOverrun):
		return ResultErrOverflow
	case errors.Is(err, pkg.ErrTimeout):
		return ResultErrTimeout
	case errors.Is(err, pkg.ErrBusy):
		return ResultErrBusy
	default:
		return ResultErrInvalidCmd
	}
}

// Info is the GET_INFO payload (24 bytes on the wire).
type Info struct {
	DeviceID      uint32 // "FLUX"
	FWVersion     uint16
	HWVersion     uint16
	MaxLUNs       uint8
	MaxFDDs       uint8
	MaxHDDs       uint8
	StatusFlags   uint8
	SelectedDrive uint8
	DriveType     uint8 // 0 FDD, 1 HDD
	CurrentTrack  uint8
	Capacity      uint32 // Sectors
}

func appendInfo(dst []byte, i Info) []byte {
	var buf [24]byte
	binary.LittleEndian.PutUint32(buf[0:4], i.DeviceID)
	binary.LittleEndian.PutUint16(buf[4:6], i.FWVersion)
	binary.LittleEndian.PutUint16(buf[6:8], i.HWVersion)
	buf[8] = i.MaxLUNs
	buf[9] = i.MaxFDDs
	buf[10] = i.MaxHDDs
	buf[12] = i.StatusFlags
	buf[16] = i.SelectedDrive
	buf[17] = i.DriveType
	buf[18] = i.CurrentTrack
	binary.LittleEndian.PutUint32(buf[20:24], i.Capacity)
	return append(dst, buf[:]...)
}

// PLLStatus is the GET_PLL_STATUS payload (8 bytes on the wire).
type PLLStatus struct {
	Frequency  uint16 // kHz
	Locked     bool
	LockCount  uint8
	ErrorCount uint8
}

func appendPLLStatus(dst []byte, p PLLStatus) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint16(buf[0:2], p.Frequency)
	if p.Locked {
		buf[2] = 1
	}
	buf[3] = p.LockCount
	buf[7] = p.ErrorCount
	return append(dst, buf[:]...)
}

// SignalQuality is the GET_SIGNAL_QUAL payload (12 bytes on the wire).
type SignalQuality struct {
	Amplitude    uint16 // mV
	Noise        uint16 // mV
	BitErrorRate uint8
	JitterNS     uint16
	Overflow     bool
}

func appendSignalQuality(dst []byte, q SignalQuality) []byte {
	var buf [12]byte
	binary.LittleEndian.PutUint16(buf[0:2], q.Amplitude)
	binary.LittleEndian.PutUint16(buf[2:4], q.Noise)
	buf[5] = q.BitErrorRate
	binary.LittleEndian.PutUint16(buf[6:8], q.JitterNS)
	if q.Overflow {
		buf[8] = 1
	}
	return append(dst, buf[:]...)
}

// Profile is the GET_DRIVE_PROFILE payload (16 bytes on the wire).
type Profile struct {
	DriveNum       uint8
	DriveType      uint8
	DiskPresent    bool
	WriteProtected bool
	AtTrack0       bool
	CurrentTrack   uint8
	Capacity       uint32 // Sectors
	BlockSize      uint32 // Bytes per sector
}

func appendProfile(dst []byte, p Profile) []byte {
	var buf [16]byte
	buf[0] = p.DriveNum
	buf[1] = p.DriveType
	if p.DiskPresent {
		buf[2] = 1
	}
	if p.WriteProtected {
		buf[3] = 1
	}
	if p.AtTrack0 {
		buf[4] = 1
	}
	buf[5] = p.CurrentTrack
	binary.LittleEndian.PutUint32(buf[8:12], p.Capacity)
	binary.LittleEndian.PutUint32(buf[12:16], p.BlockSize)
	return append(dst, buf[:]...)
}

// CaptureInfo is the CAPTURE_STOP payload (16 bytes on the wire).
type CaptureInfo struct {
	SampleCount   uint32
	IndexCount    uint32
	OverflowCount uint32
	DurationUS    uint32
}

func appendCaptureInfo(dst []byte, c CaptureInfo) []byte {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], c.SampleCount)
	binary.LittleEndian.PutUint32(buf[4:8], c.IndexCount)
	binary.LittleEndian.PutUint32(buf[8:12], c.OverflowCount)
	binary.LittleEndian.PutUint32(buf[12:16], c.DurationUS)
	return append(dst, buf[:]...)
}
