package device

import (
	"errors"
	"testing"

	"github.com/fluxripper/fluxusb/pkg"
)

func TestParseSetup(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		want      SetupPacket
		dirIn     bool
		typ       int
		recipient int
	}{
		{
			name: "GET_DESCRIPTOR device",
			data: []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x40, 0x00},
			want: SetupPacket{
				RequestType: 0x80, Request: 0x06,
				Value: 0x0100, Length: 0x0040,
			},
			dirIn:     true,
			typ:       RequestTypeStandard,
			recipient: RecipientDevice,
		},
		{
			name: "SET_ADDRESS",
			data: []byte{0x00, 0x05, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00},
			want: SetupPacket{Request: 0x05, Value: 0x0005},
			typ:  RequestTypeStandard,
		},
		{
			name: "vendor IN",
			data: []byte{0xC0, 0x42, 0x34, 0x12, 0x78, 0x56, 0x10, 0x00},
			want: SetupPacket{
				RequestType: 0xC0, Request: 0x42,
				Value: 0x1234, Index: 0x5678, Length: 0x0010,
			},
			dirIn: true,
			typ:   RequestTypeVendor,
		},
		{
			name: "class interface OUT",
			data: []byte{0x21, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			want: SetupPacket{RequestType: 0x21, Request: 0xFF},
			typ:  RequestTypeClass,
			recipient: RecipientInterface,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSetup(tt.data)
			if err != nil {
				t.Fatalf("ParseSetup: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSetup = %+v, want %+v", got, tt.want)
			}
			if got.DirectionIn() != tt.dirIn {
				t.Errorf("DirectionIn = %v, want %v", got.DirectionIn(), tt.dirIn)
			}
			if got.Type() != tt.typ {
				t.Errorf("Type = %d, want %d", got.Type(), tt.typ)
			}
			if got.Recipient() != tt.recipient {
				t.Errorf("Recipient = %d, want %d", got.Recipient(), tt.recipient)
			}
		})
	}
}

func TestParseSetupTooShort(t *testing.T) {
	for _, n := range []int{0, 1, 7} {
		if _, err := ParseSetup(make([]byte, n)); !errors.Is(err, pkg.ErrSetupPacketTooShort) {
			t.Errorf("ParseSetup(%d bytes) = %v, want ErrSetupPacketTooShort", n, err)
		}
	}
}
