package gw

import (
	"bytes"
	"encoding/binary"
	"testing"
)

type stubDrive struct {
	selected   []uint8
	deselects  int
	seeks      []int
	heads      []uint8
	motor      []bool
	bus        []uint8
	resets     int
	err        error
	fluxErr    error
	driveFlags uint8
	cylinder   uint8
}

func (d *stubDrive) Select(unit uint8) error {
	if d.err != nil {
		return d.err
	}
	d.selected = append(d.selected, unit)
	return nil
}

func (d *stubDrive) Deselect() { d.deselects++ }

func (d *stubDrive) Seek(cylinder int) error {
	if d.err != nil {
		return d.err
	}
	d.seeks = append(d.seeks, cylinder)
	return nil
}

func (d *stubDrive) Head(head uint8) error {
	if d.err != nil {
		return d.err
	}
	d.heads = append(d.heads, head)
	return nil
}

func (d *stubDrive) Motor(unit uint8, on bool) error {
	if d.err != nil {
		return d.err
	}
	d.motor = append(d.motor, on)
	return nil
}

func (d *stubDrive) SetBusType(bus uint8) error {
	if d.err != nil {
		return d.err
	}
	d.bus = append(d.bus, bus)
	return nil
}

func (d *stubDrive) FluxStatus() error { return d.fluxErr }

func (d *stubDrive) DriveInfo() (uint8, uint8) { return d.driveFlags, d.cylinder }

func (d *stubDrive) Reset() { d.resets++ }

// send feeds one command frame and drains the full response.
func send(t *testing.T, e *Engine, op byte, args ...byte) []byte {
	t.Helper()
	frame := append([]byte{op, byte(2 + len(args))}, args...)
	for i, b := range frame {
		if !e.Rx(b) {
			t.Fatalf("Rx refused frame byte %d", i)
		}
	}
	var out []byte
	for {
		b, ok := e.Tx()
		if !ok {
			break
		}
		out = append(out, b)
	}
	if len(out) < 2 {
		t.Fatalf("response too short: %v", out)
	}
	if out[0] != op {
		t.Fatalf("response echoes op %02X, want %02X", out[0], op)
	}
	return out
}

func TestGetInfoFirmware(t *testing.T) {
	e := New(&stubDrive{})

	resp := send(t, e, CmdGetInfo, GetInfoFirmware)
	if resp[1] != AckOkay {
		t.Fatalf("ack = %02X", resp[1])
	}
	info := resp[2:]
	if len(info) != infoSize {
		t.Fatalf("info = %d bytes, want %d", len(info), infoSize)
	}
	if info[0] != fwMajor || info[1] != fwMinor || info[2] != 1 || info[3] != CmdMax {
		t.Errorf("identity bytes = % X", info[:4])
	}
	if f := binary.LittleEndian.Uint32(info[4:8]); f != sampleFreq {
		t.Errorf("sample freq = %d, want %d", f, sampleFreq)
	}
	if info[8] != hwModel || info[9] != hwSubmodel {
		t.Errorf("hw model = %d.%d, want %d.%d", info[8], info[9], hwModel, hwSubmodel)
	}
	if !bytes.Equal(info[18:], make([]byte, 14)) {
		t.Error("reserved tail not zero")
	}
}

func TestGetInfoCurrentDrive(t *testing.T) {
	e := New(&stubDrive{driveFlags: 0x07, cylinder: 42})

	resp := send(t, e, CmdGetInfo, GetInfoCurrentDrive)
	if resp[1] != AckOkay {
		t.Fatalf("ack = %02X", resp[1])
	}
	if resp[2] != 0x07 || resp[3] != 42 {
		t.Errorf("drive info = %02X/%d, want 07/42", resp[2], resp[3])
	}
}

func TestDriveCommands(t *testing.T) {
	d := &stubDrive{}
	e := New(d)

	if resp := send(t, e, CmdSelect, 0); resp[1] != AckOkay {
		t.Errorf("SELECT ack = %02X", resp[1])
	}
	if resp := send(t, e, CmdMotor, 0, 1); resp[1] != AckOkay {
		t.Errorf("MOTOR ack = %02X", resp[1])
	}
	if resp := send(t, e, CmdHead, 1); resp[1] != AckOkay {
		t.Errorf("HEAD ack = %02X", resp[1])
	}
	if resp := send(t, e, CmdSetBusType, BusShugart); resp[1] != AckOkay {
		t.Errorf("SET_BUS_TYPE ack = %02X", resp[1])
	}
	if resp := send(t, e, CmdDeselect); resp[1] != AckOkay {
		t.Errorf("DESELECT ack = %02X", resp[1])
	}
	if resp := send(t, e, CmdReset); resp[1] != AckOkay {
		t.Errorf("RESET ack = %02X", resp[1])
	}

	if len(d.selected) != 1 || len(d.motor) != 1 || !d.motor[0] ||
		len(d.heads) != 1 || d.heads[0] != 1 ||
		len(d.bus) != 1 || d.bus[0] != BusShugart ||
		d.deselects != 1 || d.resets != 1 {
		t.Errorf("drive calls wrong: %+v", d)
	}
}

func TestSeekWidths(t *testing.T) {
	d := &stubDrive{}
	e := New(d)

	// One-byte signed cylinder.
	send(t, e, CmdSeek, 0xFF) // -1 (flippy-drive offset seeks go negative)
	// Two-byte signed cylinder.
	send(t, e, CmdSeek, 0x2C, 0x01) // 300

	if len(d.seeks) != 2 || d.seeks[0] != -1 || d.seeks[1] != 300 {
		t.Errorf("seeks = %v, want [-1 300]", d.seeks)
	}
}

func TestAckMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want byte
	}{
		{"no trk0", ErrNoTrk0, AckNoTrk0},
		{"no unit", ErrNoUnit, AckNoUnit},
		{"bad unit", ErrBadUnit, AckBadUnit},
		{"bad cylinder", ErrBadCylinder, AckBadCylinder},
		{"write protected", ErrWriteProtected, AckWrProt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(&stubDrive{err: tt.err})
			if resp := send(t, e, CmdSeek, 5); resp[1] != tt.want {
				t.Errorf("ack = %02X, want %02X", resp[1], tt.want)
			}
		})
	}
}

func TestFluxStatus(t *testing.T) {
	d := &stubDrive{fluxErr: ErrFluxOverflow}
	e := New(d)

	if resp := send(t, e, CmdGetFluxStatus); resp[1] != AckFluxOverflow {
		t.Errorf("GET_FLUX_STATUS ack = %02X, want overflow", resp[1])
	}

	d.fluxErr = nil
	if resp := send(t, e, CmdGetFluxStatus); resp[1] != AckOkay {
		t.Errorf("GET_FLUX_STATUS ack = %02X, want okay", resp[1])
	}
}

func TestUnknownCommand(t *testing.T) {
	e := New(&stubDrive{})
	if resp := send(t, e, 0x42); resp[1] != AckBadCommand {
		t.Errorf("unknown command ack = %02X, want bad command", resp[1])
	}
}

func TestBadArgumentCount(t *testing.T) {
	e := New(&stubDrive{})
	if resp := send(t, e, CmdMotor, 1); resp[1] != AckBadCommand {
		t.Errorf("MOTOR with one arg ack = %02X, want bad command", resp[1])
	}
}

func TestBadLengthByte(t *testing.T) {
	e := New(&stubDrive{})
	e.Rx(CmdSeek)
	e.Rx(1) // Length below the two header bytes

	var out []byte
	for {
		b, ok := e.Tx()
		if !ok {
			break
		}
		out = append(out, b)
	}
	if len(out) != 2 || out[1] != AckBadCommand {
		t.Errorf("response = %v, want [op bad-command]", out)
	}
}

func TestRxRefusedWhileResponding(t *testing.T) {
	e := New(&stubDrive{})
	e.Rx(CmdDeselect)
	e.Rx(2)

	if e.Rx(CmdReset) {
		t.Error("Rx accepted a byte with a response pending")
	}
}

func TestResetProtocol(t *testing.T) {
	e := New(&stubDrive{})
	e.Rx(CmdMotor)
	e.Rx(4)
	e.Rx(0)
	e.ResetProtocol()

	// The half-received frame is gone.
	if resp := send(t, e, CmdDeselect); resp[1] != AckOkay {
		t.Errorf("ack after reset = %02X", resp[1])
	}
}
