package device

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fluxripper/fluxusb/pkg"
)

const testControlMaxPacket = 8

func newTestControl(t *testing.T) (*Control, *Device, *Registry) {
	t.Helper()
	dev := NewDevice(SpeedHigh)
	reg := &Registry{}
	if _, err := reg.Add(0, DirOut, testControlMaxPacket); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Add(0, DirIn, testControlMaxPacket); err != nil {
		t.Fatal(err)
	}
	return NewControl(dev, reg, testControlMaxPacket), dev, reg
}

func setupBytes(requestType, request uint8, value, index, length uint16) []byte {
	return []byte{
		requestType, request,
		byte(value), byte(value >> 8),
		byte(index), byte(index >> 8),
		byte(length), byte(length >> 8),
	}
}

// drainIn pulls the IN data stage to completion, returning the assembled
// bytes and the number of data packets sent (including a terminating
// zero-length packet).
func drainIn(t *testing.T, c *Control) ([]byte, int) {
	t.Helper()
	var out []byte
	packets := 0
	buf := make([]byte, testControlMaxPacket)
	for c.state == ctrlDataIn {
		n, err := c.DataIn(buf)
		if err != nil {
			t.Fatalf("DataIn: %v", err)
		}
		out = append(out, buf[:n]...)
		packets++
		c.InAcked()
		if packets > 200 {
			t.Fatal("data stage never completed")
		}
	}
	return out, packets
}

// finishStatusOut completes the host's zero-length status stage after an IN
// data stage.
func finishStatusOut(t *testing.T, c *Control) {
	t.Helper()
	if err := c.DataOut(nil); err != nil {
		t.Fatalf("status stage: %v", err)
	}
	if c.state != ctrlIdle {
		t.Fatalf("state after status = %d, want idle", c.state)
	}
}

type stubDescriptors struct {
	device []byte
}

func (s stubDescriptors) Descriptor(typ, index uint8, lang uint16) ([]byte, error) {
	if typ == DescriptorTypeDevice && index == 0 {
		return s.device, nil
	}
	return nil, pkg.ErrNotSupported
}

type stubVendor struct {
	reply []byte
	err   error

	requests []SetupPacket
	outData  []byte
}

func (v *stubVendor) VendorRequest(s SetupPacket) ([]byte, error) {
	v.requests = append(v.requests, s)
	return v.reply, v.err
}

func (v *stubVendor) VendorData(s SetupPacket, data []byte) error {
	v.requests = append(v.requests, s)
	v.outData = append([]byte(nil), data...)
	return v.err
}

func TestControlGetDescriptorChunked(t *testing.T) {
	c, _, _ := newTestControl(t)
	desc := make([]byte, 18)
	for i := range desc {
		desc[i] = byte(i + 1)
	}
	c.SetDescriptorSource(stubDescriptors{device: desc})

	c.Setup(setupBytes(0x80, RequestGetDescriptor, 0x0100, 0, 18))

	got, packets := drainIn(t, c)
	if !bytes.Equal(got, desc) {
		t.Errorf("descriptor bytes = %v, want %v", got, desc)
	}
	if packets != 3 { // 8 + 8 + 2
		t.Errorf("data stage took %d packets, want 3", packets)
	}
	finishStatusOut(t, c)
}

func TestControlGetDescriptorTruncated(t *testing.T) {
	c, _, _ := newTestControl(t)
	desc := make([]byte, 18)
	c.SetDescriptorSource(stubDescriptors{device: desc})

	// Hosts commonly read the first 8 bytes of the device descriptor
	// before knowing EP0's max packet size.
	c.Setup(setupBytes(0x80, RequestGetDescriptor, 0x0100, 0, 8))

	got, packets := drainIn(t, c)
	if len(got) != 8 || packets != 1 {
		t.Errorf("got %d bytes in %d packets, want 8 in 1", len(got), packets)
	}
	finishStatusOut(t, c)
}

func TestControlGetDescriptorZLP(t *testing.T) {
	c, _, _ := newTestControl(t)
	c.SetDescriptorSource(stubDescriptors{device: make([]byte, 8)})

	// Reply is shorter than wLength and a multiple of the packet size: a
	// zero-length packet must terminate the stage.
	c.Setup(setupBytes(0x80, RequestGetDescriptor, 0x0100, 0, 64))

	got, packets := drainIn(t, c)
	if len(got) != 8 || packets != 2 {
		t.Errorf("got %d bytes in %d packets, want 8 in 2 (data + ZLP)", len(got), packets)
	}
	finishStatusOut(t, c)
}

func TestControlSetAddressDeferred(t *testing.T) {
	c, dev, _ := newTestControl(t)

	c.Setup(setupBytes(0x00, RequestSetAddress, 5, 0, 0))
	if dev.Address() != 0 {
		t.Fatal("address applied at SETUP time")
	}

	// Status stage: the device sends a zero-length packet, still at the
	// old address.
	buf := make([]byte, testControlMaxPacket)
	n, err := c.DataIn(buf)
	if n != 0 || err != nil {
		t.Fatalf("status DataIn = %d, %v; want 0, nil", n, err)
	}
	if dev.Address() != 0 {
		t.Fatal("address applied before the status stage was acknowledged")
	}

	c.InAcked()
	if dev.Address() != 5 {
		t.Fatalf("Address = %d, want 5 after status ACK", dev.Address())
	}
	if c.state != ctrlIdle {
		t.Error("transfer did not complete")
	}
}

func TestControlSetAddressInvalid(t *testing.T) {
	c, dev, _ := newTestControl(t)

	c.Setup(setupBytes(0x00, RequestSetAddress, 0x85, 0, 0))
	if _, err := c.DataIn(make([]byte, 8)); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("DataIn after invalid SET_ADDRESS = %v, want ErrStall", err)
	}
	c.InAcked()
	if dev.Address() != 0 {
		t.Error("invalid address applied")
	}
}

func TestControlVendorIn(t *testing.T) {
	c, _, _ := newTestControl(t)
	v := &stubVendor{reply: []byte{0x0A, 0x0B, 0x0C}}
	c.SetVendorHandler(v)

	c.Setup(setupBytes(0xC0, 0x42, 0x1234, 0x5678, 16))

	if len(v.requests) != 1 {
		t.Fatalf("vendor handler saw %d requests, want 1", len(v.requests))
	}
	if s := v.requests[0]; s.Request != 0x42 || s.Value != 0x1234 || s.Index != 0x5678 {
		t.Errorf("vendor request fields wrong: %v", s.String())
	}

	got, _ := drainIn(t, c)
	if !bytes.Equal(got, v.reply) {
		t.Errorf("data stage = %v, want %v", got, v.reply)
	}
	finishStatusOut(t, c)
}

func TestControlVendorOut(t *testing.T) {
	c, _, _ := newTestControl(t)
	v := &stubVendor{}
	c.SetVendorHandler(v)
	payload := []byte{9, 8, 7, 6}

	c.Setup(setupBytes(0x40, 0x42, 0, 0, uint16(len(payload))))
	if err := c.DataOut(payload); err != nil {
		t.Fatalf("DataOut: %v", err)
	}
	if !bytes.Equal(v.outData, payload) {
		t.Errorf("vendor received %v, want %v", v.outData, payload)
	}

	// Status stage is a device-sent zero-length packet.
	if n, err := c.DataIn(make([]byte, 8)); n != 0 || err != nil {
		t.Fatalf("status DataIn = %d, %v; want 0, nil", n, err)
	}
	c.InAcked()
	if c.state != ctrlIdle {
		t.Error("transfer did not complete")
	}
}

func TestControlVendorStall(t *testing.T) {
	c, _, _ := newTestControl(t)
	c.SetVendorHandler(&stubVendor{err: pkg.ErrInvalidRequest})

	c.Setup(setupBytes(0xC0, 0x42, 0, 0, 4))
	if _, err := c.DataIn(make([]byte, 8)); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("DataIn after vendor error = %v, want ErrStall", err)
	}
}

func TestControlVendorUnbound(t *testing.T) {
	c, _, _ := newTestControl(t)

	c.Setup(setupBytes(0xC0, 0x42, 0, 0, 4))
	if _, err := c.DataIn(make([]byte, 8)); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("vendor request without handler = %v, want ErrStall", err)
	}
}

func TestControlSetupClearsStall(t *testing.T) {
	c, dev, _ := newTestControl(t)

	c.Setup(setupBytes(0xC0, 0x42, 0, 0, 4)) // no vendor handler: stalls
	if _, err := c.DataIn(make([]byte, 8)); err == nil {
		t.Fatal("expected stalled transfer")
	}

	// The next SETUP must recover.
	c.Setup(setupBytes(0x00, RequestSetAddress, 7, 0, 0))
	if n, err := c.DataIn(make([]byte, 8)); n != 0 || err != nil {
		t.Fatalf("DataIn after recovery = %d, %v; want 0, nil", n, err)
	}
	c.InAcked()
	if dev.Address() != 7 {
		t.Error("transfer after recovery did not complete")
	}
}

func TestControlOutOverrun(t *testing.T) {
	c, _, _ := newTestControl(t)
	c.SetVendorHandler(&stubVendor{})

	c.Setup(setupBytes(0x40, 0x42, 0, 0, 4))
	if err := c.DataOut(make([]byte, 8)); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("oversized data stage = %v, want ErrStall", err)
	}
}

func TestControlOutTooLong(t *testing.T) {
	c, _, _ := newTestControl(t)
	c.SetVendorHandler(&stubVendor{})

	// wLength beyond the transfer buffer stalls at SETUP time.
	c.Setup(setupBytes(0x40, 0x42, 0, 0, maxControlData+1))
	if err := c.DataOut(make([]byte, 8)); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("DataOut = %v, want ErrStall", err)
	}
}

func TestControlReset(t *testing.T) {
	c, dev, _ := newTestControl(t)

	c.Setup(setupBytes(0x00, RequestSetAddress, 5, 0, 0))
	c.Reset()
	dev.Reset()

	c.InAcked()
	if dev.Address() != 0 {
		t.Error("abandoned SET_ADDRESS completed across a reset")
	}
}
