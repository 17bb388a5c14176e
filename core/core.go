package core

import (
	"github.com/fluxripper/fluxusb/device"
	"github.com/fluxripper/fluxusb/personality"
	"github.com/fluxripper/fluxusb/pkg"
	"github.com/fluxripper/fluxusb/wire"
)

// Config selects the endpoint layout of the stack. Zero values take the
// defaults below.
type Config struct {
	// Speed is the negotiated bus speed.
	Speed device.Speed

	// ControlMaxPacket is the default endpoint's maximum packet size
	// (default 64).
	ControlMaxPacket int

	// BulkEndpoint is the endpoint number carrying the shared bulk pipe
	// in both directions (default 1).
	BulkEndpoint uint8

	// BulkMaxPacket is the bulk endpoint's maximum packet size
	// (default 64).
	BulkMaxPacket int
}

const (
	defaultControlMaxPacket = 64
	defaultBulkEndpoint     = 1
	defaultBulkMaxPacket    = 64
)

// Stack is the assembled device stack.
type Stack struct {
	dec    wire.Decoder
	dev    *device.Device
	reg    *device.Registry
	eng    *device.Engine
	ctrl   *device.Control
	router *personality.Router

	engines map[personality.ID]personality.Engine

	resp []byte
}

// New assembles a stack: the control manager on endpoint zero, the
// personality router behind the bulk endpoint, and the switch requests of
// the vendor control channel wired to the router. Protocol engines are
// bound afterwards with Bind and activated with Start.
func New(cfg Config) (*Stack, error) {
	if cfg.ControlMaxPacket == 0 {
		cfg.ControlMaxPacket = defaultControlMaxPacket
	}
	if cfg.BulkEndpoint == 0 {
		cfg.BulkEndpoint = defaultBulkEndpoint
	}
	if cfg.BulkMaxPacket == 0 {
		cfg.BulkMaxPacket = defaultBulkMaxPacket
	}

	s := &Stack{
		dev:     device.NewDevice(cfg.Speed),
		reg:     &device.Registry{},
		router:  personality.NewRouter(),
		engines: make(map[personality.ID]personality.Engine),
	}
	s.eng = device.NewEngine(s.dev, s.reg)
	s.ctrl = device.NewControl(s.dev, s.reg, cfg.ControlMaxPacket)
	s.ctrl.SetVendorHandler(&vendorSwitch{router: s.router})
	s.ctrl.SetClassHandler(&classBridge{router: s.router, engines: s.engines})

	for _, ep := range []struct {
		number    uint8
		dir       device.Direction
		maxPacket int
	}{
		{0, device.DirOut, cfg.ControlMaxPacket},
		{0, device.DirIn, cfg.ControlMaxPacket},
		{cfg.BulkEndpoint, device.DirOut, cfg.BulkMaxPacket},
		{cfg.BulkEndpoint, device.DirIn, cfg.BulkMaxPacket},
	} {
		if _, err := s.reg.Add(ep.number, ep.dir, ep.maxPacket); err != nil {
			return nil, err
		}
	}

	if err := s.eng.SetHandler(0, s.ctrl); err != nil {
		return nil, err
	}
	if err := s.eng.SetHandler(cfg.BulkEndpoint, &bulkBridge{router: s.router}); err != nil {
		return nil, err
	}

	pkg.LogInfo(pkg.ComponentCore, "stack assembled",
		"bulk_endpoint", cfg.BulkEndpoint, "speed", cfg.Speed)
	return s, nil
}

// Device returns the device state for address and configuration queries.
func (s *Stack) Device() *device.Device {
	return s.dev
}

// Control returns the control manager so the caller can bind its
// descriptor source, class handler, and power attributes.
func (s *Stack) Control() *device.Control {
	return s.ctrl
}

// Router returns the personality router.
func (s *Stack) Router() *personality.Router {
	return s.router
}

// Bind registers a protocol engine under a personality.
func (s *Stack) Bind(id personality.ID, e personality.Engine) error {
	if err := s.router.Bind(id, e); err != nil {
		return err
	}
	s.engines[id] = e
	return nil
}

// Start activates the initial personality.
func (s *Stack) Start(initial personality.ID) error {
	return s.router.Start(initial)
}

// Feed consumes one byte from the bus.
func (s *Stack) Feed(b byte) {
	if p, ok := s.dec.Feed(b); ok {
		s.dispatch(p)
	}
}

// End signals the bus end-of-packet condition, completing any pending
// data packet.
func (s *Stack) End() {
	if p, ok := s.dec.End(); ok {
		s.dispatch(p)
	}
}

// Response returns the encoded reply to the most recent transaction and
// clears it. A nil return means the stack has nothing to transmit.
func (s *Stack) Response() []byte {
	r := s.resp
	s.resp = nil
	return r
}

// Tick advances the personality router by one byte-time. The PHY
// collaborator calls this at its transfer cadence.
func (s *Stack) Tick() {
	s.router.Tick()
}

// BusReset restores the stack to its post-reset state: decoder idle,
// transaction engine idle, address and configuration cleared, every
// endpoint back to DATA0 with halts removed. The active personality
// survives; its protocol state is its own business.
func (s *Stack) BusReset() {
	pkg.LogInfo(pkg.ComponentCore, "bus reset")
	s.dec.Reset()
	s.eng.Reset()
	s.ctrl.Reset()
	s.dev.Reset()
	s.reg.ResetAll()
	s.router.Reset()
	s.resp = nil
}

// dispatch runs one decoded packet through the transaction engine and
// encodes the reply, if any.
func (s *Stack) dispatch(p wire.Packet) {
	out, ok := s.eng.Submit(p)
	if !ok {
		return
	}
	switch out.Kind() {
	case wire.KindData:
		s.resp = wire.AppendData(s.resp[:0], out.PID, out.Payload)
	case wire.KindHandshake:
		s.resp = wire.AppendHandshake(s.resp[:0], out.PID)
	}
}
