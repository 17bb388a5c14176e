package personality

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fluxripper/fluxusb/pkg"
)

// scriptEngine is a scriptable protocol engine for router tests.
type scriptEngine struct {
	received []byte
	queued   []byte
	refuseRx bool
	alwaysTx bool // Never deasserts its tx valid line
	resets   int
	status   byte
}

func (e *scriptEngine) Rx(b byte) bool {
	if e.refuseRx {
		return false
	}
	e.received = append(e.received, b)
	return true
}

func (e *scriptEngine) Tx() (byte, bool) {
	if e.alwaysTx {
		return 0xEE, true
	}
	if len(e.queued) == 0 {
		return 0, false
	}
	b := e.queued[0]
	e.queued = e.queued[1:]
	return b, true
}

func (e *scriptEngine) TxPending() bool {
	return e.alwaysTx || len(e.queued) > 0
}

func (e *scriptEngine) ResetProtocol() { e.resets++ }

func (e *scriptEngine) Status() byte { return e.status }

func newTestRouter(t *testing.T) (*Router, *scriptEngine, *scriptEngine) {
	t.Helper()
	r := NewRouter()
	a := &scriptEngine{status: 0xA0}
	b := &scriptEngine{status: 0xB0}
	if err := r.Bind(Native, a); err != nil {
		t.Fatal(err)
	}
	if err := r.Bind(MassStorage, b); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(Native); err != nil {
		t.Fatal(err)
	}
	return r, a, b
}

// settle ticks until the router returns to Active, failing the test if it
// takes more than limit ticks.
func settle(t *testing.T, r *Router, limit int) int {
	t.Helper()
	for i := 0; i < limit; i++ {
		r.Tick()
		if !r.Switching() {
			return i + 1
		}
	}
	t.Fatalf("router still switching after %d ticks (state not Active)", limit)
	return 0
}

func TestRouterByteFlow(t *testing.T) {
	r, a, _ := newTestRouter(t)

	for _, b := range []byte{1, 2, 3} {
		if !r.HostWrite(b) {
			t.Fatal("HostWrite refused with pipe space available")
		}
	}
	// One byte per tick.
	r.Tick()
	if len(a.received) != 1 {
		t.Fatalf("engine received %d bytes after one tick, want 1", len(a.received))
	}
	r.Tick()
	r.Tick()
	if !bytes.Equal(a.received, []byte{1, 2, 3}) {
		t.Errorf("engine received %v, want [1 2 3]", a.received)
	}

	a.queued = []byte{0x10, 0x20}
	r.Tick()
	r.Tick()
	var got []byte
	for {
		b, ok := r.HostRead()
		if !ok {
			break
		}
		got = append(got, b)
	}
	if !bytes.Equal(got, []byte{0x10, 0x20}) {
		t.Errorf("host read %v, want [10 20]", got)
	}
}

func TestRouterBackpressure(t *testing.T) {
	r, a, _ := newTestRouter(t)
	a.refuseRx = true

	r.HostWrite(0x55)
	for i := 0; i < 10; i++ {
		r.Tick()
	}
	if len(a.received) != 0 {
		t.Fatal("byte delivered to an engine that refused it")
	}

	// The byte is held, not dropped.
	a.refuseRx = false
	r.Tick()
	if !bytes.Equal(a.received, []byte{0x55}) {
		t.Errorf("held byte not delivered after engine became ready: %v", a.received)
	}
}

func TestRouterSwitchClean(t *testing.T) {
	r, a, b := newTestRouter(t)

	if err := r.Request(MassStorage); err != nil {
		t.Fatal(err)
	}
	ticks := settle(t, r, 10)
	t.Logf("clean switch took %d ticks", ticks)

	if r.ActiveID() != MassStorage {
		t.Fatalf("active = %v, want mass-storage", r.ActiveID())
	}
	if a.resets != 1 {
		t.Errorf("outgoing engine resets = %d, want 1", a.resets)
	}
	if b.resets != 0 {
		t.Errorf("incoming engine was reset")
	}

	// Traffic now reaches only the new engine.
	r.HostWrite(0x99)
	r.Tick()
	if len(a.received) != 0 || !bytes.Equal(b.received, []byte{0x99}) {
		t.Errorf("post-switch byte routed wrong: a=%v b=%v", a.received, b.received)
	}
}

func TestRouterSwitchDrainsTx(t *testing.T) {
	r, a, _ := newTestRouter(t)
	a.queued = []byte{0xAA, 0xBB}
	r.Tick() // 0xAA into the pipe

	if err := r.Request(MassStorage); err != nil {
		t.Fatal(err)
	}

	// The engine still holds 0xBB, so the tx drain cannot complete until
	// the timeout forces it; but the host can still read the buffered
	// byte during the drain.
	if b, ok := r.HostRead(); !ok || b != 0xAA {
		t.Fatalf("HostRead during drain = %02X, %v; want AA, true", b, ok)
	}
	r.Tick()
	r.Tick()
	// 0xBB was queued in the engine, not the pipe; the drain never pulls
	// the engine, so its valid line stays up until the timeout.
	if !r.Switching() {
		t.Fatal("drain completed with the engine's tx still pending")
	}
}

func TestRouterSwitchTimeout(t *testing.T) {
	r, a, b := newTestRouter(t)
	a.alwaysTx = true

	if err := r.Request(MassStorage); err != nil {
		t.Fatal(err)
	}

	// A misbehaving engine that never deasserts tx must not block the
	// switch past the stage budgets.
	ticks := settle(t, r, 2*DrainTimeout+4)
	if ticks < DrainTimeout {
		t.Errorf("switch completed in %d ticks, before the tx drain budget", ticks)
	}
	if r.ActiveID() != MassStorage {
		t.Fatalf("active = %v, want mass-storage", r.ActiveID())
	}

	// Only the new engine is wired afterwards.
	before := len(b.received)
	r.HostWrite(0x01)
	r.Tick()
	if len(b.received) != before+1 {
		t.Error("new engine not wired after forced switch")
	}
	var leaked bool
	for {
		bb, ok := r.HostRead()
		if !ok {
			break
		}
		if bb == 0xEE {
			leaked = true
		}
	}
	if leaked {
		t.Error("old engine's bytes leaked past the switch")
	}
}

func TestRouterRequestErrors(t *testing.T) {
	r, _, _ := newTestRouter(t)

	if err := r.Request(Flux); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Request(unbound) = %v, want ErrInvalidParameter", err)
	}
	if err := r.Request(Native); err != nil {
		t.Errorf("Request(active) = %v, want nil no-op", err)
	}
	if r.Switching() {
		t.Fatal("no-op request started a switch")
	}

	if err := r.Request(MassStorage); err != nil {
		t.Fatal(err)
	}
	if err := r.Request(Native); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("Request during switch = %v, want ErrBusy", err)
	}
}

func TestRouterHostWriteRefusedDuringSwitch(t *testing.T) {
	r, a, _ := newTestRouter(t)
	a.alwaysTx = true
	if err := r.Request(MassStorage); err != nil {
		t.Fatal(err)
	}

	if r.HostWrite(0x11) {
		t.Error("HostWrite accepted during a switch")
	}
}

func TestRouterStartErrors(t *testing.T) {
	r := NewRouter()
	if err := r.Start(Native); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Start(unbound) = %v, want ErrInvalidParameter", err)
	}
	e := &scriptEngine{}
	if err := r.Bind(Native, e); err != nil {
		t.Fatal(err)
	}
	if err := r.Bind(Native, e); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("duplicate Bind = %v, want ErrBusy", err)
	}
	if err := r.Start(Native); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(Native); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("second Start = %v, want ErrInvalidState", err)
	}
}

func TestRouterReset(t *testing.T) {
	r, a, _ := newTestRouter(t)
	a.alwaysTx = true
	if err := r.Request(MassStorage); err != nil {
		t.Fatal(err)
	}
	r.Tick()

	r.Reset()

	if r.Switching() {
		t.Error("switch survived a bus reset")
	}
	if r.ActiveID() != Native {
		t.Errorf("active = %v after reset, want native retained", r.ActiveID())
	}
	// Bus reset must not touch engine protocol state.
	if a.resets != 0 {
		t.Error("bus reset pulsed the engine's protocol reset")
	}
	if _, ok := r.HostRead(); ok {
		t.Error("pipes not cleared by reset")
	}
}

func TestRouterStatus(t *testing.T) {
	r, _, _ := newTestRouter(t)
	if r.Status() != 0xA0 {
		t.Errorf("Status = %02X, want active engine's A0", r.Status())
	}
	if err := r.Request(MassStorage); err != nil {
		t.Fatal(err)
	}
	settle(t, r, 10)
	if r.Status() != 0xB0 {
		t.Errorf("Status = %02X after switch, want B0", r.Status())
	}
}
