package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aoactl/aoactld-go/memorywriter"
)

// mockBus records every call the controller makes and can be told to
// fail or to block inside Register.
type mockBus struct {
	mu    sync.Mutex
	calls []string

	configureErr error
	registerErr  error

	// when set, Register signals entered and waits for gate
	entered chan struct{}
	gate    chan struct{}

	nextHandle int
}

func (b *mockBus) record(s string) {
	b.mu.Lock()
	b.calls = append(b.calls, s)
	b.mu.Unlock()
}

func (b *mockBus) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *mockBus) ConfigureSerial(ports int, name string) error {
	b.record(fmt.Sprintf("configure %d %s", ports, name))
	return b.configureErr
}

func (b *mockBus) Register(id Identity) (GadgetHandle, error) {
	b.record(fmt.Sprintf("register %04x:%04x", id.VendorID, id.ProductID))
	if b.entered != nil {
		b.entered <- struct{}{}
		<-b.gate
	}
	if b.registerErr != nil {
		return nil, b.registerErr
	}
	b.mu.Lock()
	b.nextHandle++
	h := b.nextHandle
	b.mu.Unlock()
	return h, nil
}

func (b *mockBus) Unregister(h GadgetHandle) error {
	b.record(fmt.Sprintf("unregister %v", h))
	return nil
}

func newTestCore(bus *mockBus) *Core {
	return New(bus, memorywriter.New(90000, 200, false, nil), 0)
}

func TestSwitchModeACM(t *testing.T) {
	bus := &mockBus{}
	c := newTestCore(bus)

	if err := c.SwitchMode(ModeACM); err != nil {
		t.Fatalf("SwitchMode(ModeACM): %v", err)
	}
	if c.Mode() != ModeACM {
		t.Errorf("mode = %s, want acm", c.Mode())
	}

	want := []string{"configure 1 ttyGS", "register 0525:a4a7"}
	got := bus.callLog()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("bus calls = %v, want %v", got, want)
	}
}

func TestSwitchModeNoop(t *testing.T) {
	bus := &mockBus{}
	c := newTestCore(bus)

	if err := c.SwitchMode(ModeAOA); err != nil {
		t.Fatalf("SwitchMode(ModeAOA): %v", err)
	}
	before := len(bus.callLog())

	if err := c.SwitchMode(ModeAOA); err != nil {
		t.Fatalf("repeated SwitchMode(ModeAOA): %v", err)
	}
	if after := len(bus.callLog()); after != before {
		t.Errorf("no-op switch touched the bus: %v", bus.callLog()[before:])
	}
}

func TestSwitchModeACMToAOA(t *testing.T) {
	bus := &mockBus{}
	c := newTestCore(bus)

	if err := c.SwitchMode(ModeACM); err != nil {
		t.Fatalf("SwitchMode(ModeACM): %v", err)
	}
	if err := c.SwitchMode(ModeAOA); err != nil {
		t.Fatalf("SwitchMode(ModeAOA): %v", err)
	}
	if c.Mode() != ModeAOA {
		t.Errorf("mode = %s, want aoa", c.Mode())
	}

	want := []string{
		"configure 1 ttyGS", "register 0525:a4a7",
		"unregister 1",
		"configure 1 ttyAOA", "register 18d1:2d00",
	}
	got := bus.callLog()
	if len(got) != len(want) {
		t.Fatalf("bus calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSwitchModeToNoneUnregisters(t *testing.T) {
	bus := &mockBus{}
	c := newTestCore(bus)

	if err := c.SwitchMode(ModeACM); err != nil {
		t.Fatalf("SwitchMode(ModeACM): %v", err)
	}
	if err := c.SwitchMode(ModeNone); err != nil {
		t.Fatalf("SwitchMode(ModeNone): %v", err)
	}
	if c.Mode() != ModeNone {
		t.Errorf("mode = %s, want none", c.Mode())
	}
	got := bus.callLog()
	if got[len(got)-1] != "unregister 1" {
		t.Errorf("last call = %q, want unregister", got[len(got)-1])
	}
}

func TestSwitchModeUnsupported(t *testing.T) {
	c := newTestCore(&mockBus{})
	if err := c.SwitchMode(Mode(42)); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("SwitchMode(42) = %v, want ErrUnsupportedMode", err)
	}
}

func TestRegisterFailureLeavesNone(t *testing.T) {
	bus := &mockBus{registerErr: errors.New("udc rejected descriptors")}
	c := newTestCore(bus)

	err := c.SwitchMode(ModeACM)
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("SwitchMode error = %v, want ErrRegistrationFailed", err)
	}
	if c.Mode() != ModeNone {
		t.Errorf("mode after failure = %s, want none", c.Mode())
	}
}

func TestRegisterFailureDuringSwitchLeavesNone(t *testing.T) {
	bus := &mockBus{}
	c := newTestCore(bus)

	if err := c.SwitchMode(ModeACM); err != nil {
		t.Fatalf("SwitchMode(ModeACM): %v", err)
	}

	// the old identity is gone before the new register fails
	bus.registerErr = errors.New("udc rejected descriptors")
	if err := c.SwitchMode(ModeAOA); !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("SwitchMode error = %v, want ErrRegistrationFailed", err)
	}
	if c.Mode() != ModeNone {
		t.Errorf("mode after failed switch = %s, want none", c.Mode())
	}
}

func TestResetAtNoneIsNoop(t *testing.T) {
	bus := &mockBus{}
	c := newTestCore(bus)

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset at none: %v", err)
	}
	if calls := bus.callLog(); len(calls) != 0 {
		t.Errorf("Reset at none touched the bus: %v", calls)
	}
}

func TestResetReregistersSameIdentity(t *testing.T) {
	bus := &mockBus{}
	c := newTestCore(bus)

	if err := c.SwitchMode(ModeAOA); err != nil {
		t.Fatalf("SwitchMode(ModeAOA): %v", err)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if c.Mode() != ModeAOA {
		t.Errorf("mode after reset = %s, want aoa", c.Mode())
	}

	got := bus.callLog()
	want := []string{
		"configure 1 ttyAOA", "register 18d1:2d00",
		"unregister 1",
		"configure 1 ttyAOA", "register 18d1:2d00",
	}
	if len(got) != len(want) {
		t.Fatalf("bus calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConcurrentTransitionRejected(t *testing.T) {
	bus := &mockBus{
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	c := newTestCore(bus)

	errc := make(chan error, 1)
	go func() {
		errc <- c.SwitchMode(ModeACM)
	}()

	select {
	case <-bus.entered:
	case <-time.After(time.Second):
		t.Fatal("first transition never reached the bus")
	}

	if err := c.SwitchMode(ModeAOA); !errors.Is(err, ErrAlreadyTransitioning) {
		t.Errorf("concurrent switch = %v, want ErrAlreadyTransitioning", err)
	}
	if err := c.Reset(); !errors.Is(err, ErrAlreadyTransitioning) {
		t.Errorf("concurrent reset = %v, want ErrAlreadyTransitioning", err)
	}

	close(bus.gate)
	if err := <-errc; err != nil {
		t.Fatalf("first transition failed: %v", err)
	}
	if c.Mode() != ModeACM {
		t.Errorf("mode = %s, want acm", c.Mode())
	}
}

func TestIdentityForMode(t *testing.T) {
	testcases := []struct {
		mode        Mode
		vendor      uint16
		product     uint16
		class       uint8
		label       string
		configValue uint8
		function    string
		portName    string
	}{
		{ModeACM, 0x0525, 0xa4a7, 0x02, "CDC ACM config", 2, "acm", "ttyGS"},
		{ModeAOA, 0x18d1, 0x2d00, 0xff, "Android Open Accessory config", 1, "gser", "ttyAOA"},
	}
	for _, tc := range testcases {
		id, err := identityForMode(tc.mode)
		if err != nil {
			t.Fatalf("identityForMode(%s): %v", tc.mode, err)
		}
		if id.VendorID != tc.vendor || id.ProductID != tc.product {
			t.Errorf("%s: id %04x:%04x, want %04x:%04x",
				tc.mode, id.VendorID, id.ProductID, tc.vendor, tc.product)
		}
		if id.DeviceClass != tc.class {
			t.Errorf("%s: class %#02x, want %#02x", tc.mode, id.DeviceClass, tc.class)
		}
		if id.ConfigLabel != tc.label || id.ConfigValue != tc.configValue {
			t.Errorf("%s: config %q/%d, want %q/%d",
				tc.mode, id.ConfigLabel, id.ConfigValue, tc.label, tc.configValue)
		}
		if id.Function != tc.function || id.PortName != tc.portName {
			t.Errorf("%s: function %s/%s, want %s/%s",
				tc.mode, id.Function, id.PortName, tc.function, tc.portName)
		}
	}
	if _, err := identityForMode(ModeNone); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("identityForMode(none) = %v, want ErrUnsupportedMode", err)
	}
}

func TestOpenSessionDefaultsToACM(t *testing.T) {
	bus := &mockBus{}
	c := newTestCore(bus)

	s, err := c.OpenSession()
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if c.Mode() != ModeACM {
		t.Errorf("mode after open = %s, want acm", c.Mode())
	}

	if _, err := c.OpenSession(); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second open = %v, want ErrAlreadyOpen", err)
	}

	s.Close()
	if c.Mode() != ModeNone {
		t.Errorf("mode after close = %s, want none", c.Mode())
	}
	if c.SessionOpen() {
		t.Error("session slot still taken after close")
	}

	s2, err := c.OpenSession()
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.ID() == s.ID() {
		t.Errorf("reopened session reused id %s", s.ID())
	}
}

func TestOpenSessionFailureReleasesSlot(t *testing.T) {
	bus := &mockBus{registerErr: errors.New("no udc")}
	c := newTestCore(bus)

	if _, err := c.OpenSession(); !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("OpenSession = %v, want ErrRegistrationFailed", err)
	}
	if c.SessionOpen() {
		t.Fatal("failed open left the session slot taken")
	}

	bus.registerErr = nil
	if _, err := c.OpenSession(); err != nil {
		t.Fatalf("open after recovery: %v", err)
	}
}

func TestSessionByID(t *testing.T) {
	c := newTestCore(&mockBus{})

	if _, err := c.SessionByID("1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("lookup with no session = %v, want ErrSessionNotFound", err)
	}

	s, err := c.OpenSession()
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	got, err := c.SessionByID(s.ID())
	if err != nil || got != s {
		t.Errorf("SessionByID(%s) = %v, %v", s.ID(), got, err)
	}
	if _, err := c.SessionByID("999"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("stale lookup = %v, want ErrSessionNotFound", err)
	}
}

func TestHostConnectionEdgesOnly(t *testing.T) {
	c := newTestCore(&mockBus{})
	s, err := c.OpenSession()
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	c.HostConnectionChanged(true)
	c.HostConnectionChanged(true) // repeat, no edge
	c.HostConnectionChanged(false)
	c.HostConnectionChanged(false) // repeat, no edge

	ev, err := s.ReadNext(context.Background(), false)
	if err != nil || ev.Type != EventConnectedACM {
		t.Fatalf("first event = %v, %v; want connected", ev, err)
	}
	ev, err = s.ReadNext(context.Background(), false)
	if err != nil || ev.Type != EventDisconnectedACM {
		t.Fatalf("second event = %v, %v; want disconnected", ev, err)
	}
	if _, err := s.ReadNext(context.Background(), false); !errors.Is(err, ErrWouldBlock) {
		t.Errorf("queue not empty after two edges: %v", err)
	}
}
