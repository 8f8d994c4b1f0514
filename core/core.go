package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/aoactl/aoactld-go/memorywriter"
)

// Package with the core logic of the gadget mode controller and the
// event channel between the gadget layer and the control consumer.
//
// The gadget package is not imported here; the composite/configfs
// machinery hides behind the GadgetBus interface so this package can be
// tested against a mock bus, and so the configfs backend can be swapped
// for the UDP emulator.

// Mode is the identity the gadget currently presents to the host.
type Mode int

const (
	ModeNone Mode = 0 // unregistered, invisible to the host
	ModeACM  Mode = 1 // CDC-ACM serial modem
	ModeAOA  Mode = 2 // Android Open Accessory
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeACM:
		return "acm"
	case ModeAOA:
		return "aoa"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Identity is the immutable descriptor set registered with the gadget
// layer for one mode. A fresh value is built per transition; nothing
// ever mutates a registered identity in place.
type Identity struct {
	VendorID    uint16
	ProductID   uint16
	DeviceClass uint8
	ConfigLabel string
	ConfigValue uint8
	Function    string // gadget function type bound into the config
	SerialPorts int
	PortName    string
}

// Per-mode IDs. The ACM pair is the NetChip donation used by g_serial;
// the AOA pair is Google's accessory-mode identity.
const (
	classCDC        = 0x02
	classVendorSpec = 0xff

	acmVendorID  = 0x0525
	acmProductID = 0xa4a7
	aoaVendorID  = 0x18d1
	aoaProductID = 0x2d00
)

func identityForMode(mode Mode) (Identity, error) {
	switch mode {
	case ModeACM:
		return Identity{
			VendorID:    acmVendorID,
			ProductID:   acmProductID,
			DeviceClass: classCDC,
			ConfigLabel: "CDC ACM config",
			ConfigValue: 2,
			Function:    "acm",
			SerialPorts: 1,
			PortName:    "ttyGS",
		}, nil
	case ModeAOA:
		return Identity{
			VendorID:    aoaVendorID,
			ProductID:   aoaProductID,
			DeviceClass: classVendorSpec,
			ConfigLabel: "Android Open Accessory config",
			ConfigValue: 1,
			Function:    "gser",
			SerialPorts: 1,
			PortName:    "ttyAOA",
		}, nil
	}
	return Identity{}, ErrUnsupportedMode
}

// GadgetHandle is an opaque registration owned by the controller.
// Created by Register, destroyed by Unregister, never shared.
type GadgetHandle interface{}

// GadgetBus is the composite/gadget layer the controller drives.
// Register may block on hardware I/O; callers of SwitchMode and Reset
// must tolerate that.
type GadgetBus interface {
	ConfigureSerial(ports int, name string) error
	Register(id Identity) (GadgetHandle, error)
	Unregister(h GadgetHandle) error
}

// GadgetEvents is the inbound notification sink the gadget layer feeds
// asynchronously. Core implements it; backends call it from their own
// goroutines, including completion-callback contexts.
type GadgetEvents interface {
	HostConnectionChanged(connected bool)
	ControlStringReceived(category StringCategory, data []byte)
	StartRequested()
}

var (
	ErrRegistrationFailed   = errors.New("gadget registration failed")
	ErrAlreadyTransitioning = errors.New("mode transition already in progress")
	ErrUnsupportedMode      = errors.New("unsupported gadget mode")
	ErrAlreadyOpen          = errors.New("control session already open")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionClosed        = errors.New("session closed")
	ErrWouldBlock           = errors.New("no event pending")
	ErrInterrupted          = errors.New("read interrupted")
	ErrInvalidArgument      = errors.New("invalid argument")
)

type Core struct {
	bus GadgetBus

	// modeMutex serializes the whole unregister/register sequence.
	// Transitions are rejected, not queued: a second requester gets
	// ErrAlreadyTransitioning while one is running.
	modeMutex sync.Mutex
	mode      atomic.Int32 // Mode, written only with modeMutex held
	handle    GadgetHandle // nil iff mode == ModeNone

	queue     *eventQueue
	connected atomic.Bool

	sessionMutex sync.Mutex
	session      *Session
	lastSession  int

	log *memorywriter.MemoryWriter
}

func New(bus GadgetBus, log *memorywriter.MemoryWriter, queueLimit int) *Core {
	return &Core{
		bus:   bus,
		queue: newEventQueue(queueLimit),
		log:   log,
	}
}

func (c *Core) Log(s string) {
	c.log.Println("core - " + s)
}

// Mode returns the currently registered identity.
func (c *Core) Mode() Mode {
	return Mode(c.mode.Load())
}

// Connected reports whether the host has the ACM data interface open.
func (c *Core) Connected() bool {
	return c.connected.Load()
}

// QueueDepth and DroppedEvents feed the status page.
func (c *Core) QueueDepth() int       { return c.queue.depth() }
func (c *Core) DroppedEvents() uint64 { return c.queue.droppedCount() }

// SwitchMode moves the gadget to the requested identity. It is a no-op
// when the identity is already current. On registration failure the
// controller is left unregistered (ModeNone) and the error is returned;
// there is no retry.
func (c *Core) SwitchMode(mode Mode) error {
	if mode != ModeNone && mode != ModeACM && mode != ModeAOA {
		return ErrUnsupportedMode
	}

	if !c.modeMutex.TryLock() {
		c.Log("switch - rejected, transition in progress")
		return ErrAlreadyTransitioning
	}
	defer c.modeMutex.Unlock()

	current := Mode(c.mode.Load())
	c.Log(fmt.Sprintf("switch - %s -> %s", current, mode))

	if current == mode {
		return nil
	}

	if current != ModeNone {
		c.unbindLocked()
	}

	if mode == ModeNone {
		return nil
	}

	return c.bindLocked(mode)
}

// Reset re-applies the current identity by a full unregister/register
// cycle, forcing the host to re-enumerate. No-op success when no
// identity is registered.
func (c *Core) Reset() error {
	if !c.modeMutex.TryLock() {
		c.Log("reset - rejected, transition in progress")
		return ErrAlreadyTransitioning
	}
	defer c.modeMutex.Unlock()

	current := Mode(c.mode.Load())
	c.Log(fmt.Sprintf("reset - mode %s", current))

	if current == ModeNone {
		return nil
	}

	c.unbindLocked()
	return c.bindLocked(current)
}

// bindLocked configures the line discipline and registers the identity.
// Failure leaves the controller at ModeNone. modeMutex must be held.
func (c *Core) bindLocked(mode Mode) error {
	id, err := identityForMode(mode)
	if err != nil {
		return err
	}

	if err := c.bus.ConfigureSerial(id.SerialPorts, id.PortName); err != nil {
		c.Log("bind - serial setup failed: " + err.Error())
		return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	h, err := c.bus.Register(id)
	if err != nil {
		c.Log("bind - register failed: " + err.Error())
		return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	c.handle = h
	c.mode.Store(int32(mode))
	c.Log("bind - registered " + mode.String())
	return nil
}

// unbindLocked unregisters the current identity and drops the handle.
// modeMutex must be held and a handle must exist.
func (c *Core) unbindLocked() {
	if err := c.bus.Unregister(c.handle); err != nil {
		// The identity is gone from the host either way; just log.
		c.Log("unbind - unregister error: " + err.Error())
	}
	c.handle = nil
	c.mode.Store(int32(ModeNone))
}

// HostConnectionChanged is called by the gadget layer when the host
// opens or closes the ACM data interface. Repeated reports of the same
// state are ignored; only edges produce events.
func (c *Core) HostConnectionChanged(connected bool) {
	if c.connected.Swap(connected) == connected {
		return
	}
	if connected {
		c.publish(Event{Type: EventConnectedACM})
	} else {
		c.publish(Event{Type: EventDisconnectedACM})
	}
}

// ControlStringReceived records an accessory identification string sent
// by the host. Oversized payloads are truncated to MaxPayload bytes.
func (c *Core) ControlStringReceived(category StringCategory, data []byte) {
	if len(data) > MaxPayload {
		data = data[:MaxPayload]
	}
	c.publish(Event{
		Type:     EventStringReceived,
		Category: category,
		Payload:  string(data),
	})
}

// StartRequested records the host's request to start accessory mode.
func (c *Core) StartRequested() {
	c.publish(Event{Type: EventStartRequested})
}

func (c *Core) publish(ev Event) {
	dropped := c.queue.publish(ev)
	if dropped > 0 {
		c.Log(fmt.Sprintf("publish - %s, dropped %d stale events", ev.Type, dropped))
	} else {
		c.Log("publish - " + ev.Type.String())
	}
}

// Session is the single allowed consumer of the event channel.
type Session struct {
	c    *Core
	id   string
	done chan struct{}
	once sync.Once
}

// OpenSession claims the exclusive consumer slot. Opening switches the
// gadget to ACM, mirroring the default-to-modem-on-open contract of the
// control device; if that fails the slot is released again. Events
// queued before the open are replayed to the new session in full.
func (c *Core) OpenSession() (*Session, error) {
	c.sessionMutex.Lock()
	if c.session != nil {
		c.sessionMutex.Unlock()
		return nil, ErrAlreadyOpen
	}
	c.lastSession++
	s := &Session{
		c:    c,
		id:   strconv.Itoa(c.lastSession),
		done: make(chan struct{}),
	}
	c.session = s
	c.sessionMutex.Unlock()

	c.Log("open - session " + s.id)

	if err := c.SwitchMode(ModeACM); err != nil {
		c.sessionMutex.Lock()
		c.session = nil
		c.sessionMutex.Unlock()
		return nil, err
	}

	return s, nil
}

// SessionOpen reports whether the consumer slot is taken.
func (c *Core) SessionOpen() bool {
	c.sessionMutex.Lock()
	defer c.sessionMutex.Unlock()
	return c.session != nil
}

// SessionByID resolves an open session handle.
func (c *Core) SessionByID(id string) (*Session, error) {
	c.sessionMutex.Lock()
	defer c.sessionMutex.Unlock()
	if c.session == nil || c.session.id != id {
		return nil, ErrSessionNotFound
	}
	return c.session, nil
}

func (s *Session) ID() string {
	return s.id
}

// Close unregisters the gadget and frees the consumer slot. A read
// blocked on this session is woken with ErrSessionClosed. The queue is
// left intact for the next session.
func (s *Session) Close() {
	s.once.Do(func() {
		s.c.Log("close - session " + s.id)

		// Best effort; if a transition is running whoever owns the
		// lock decides the final mode.
		if err := s.c.SwitchMode(ModeNone); err != nil {
			s.c.Log("close - switch to none: " + err.Error())
		}

		close(s.done)

		s.c.sessionMutex.Lock()
		if s.c.session == s {
			s.c.session = nil
		}
		s.c.sessionMutex.Unlock()
	})
}

// ReadNext consumes the oldest unread event. With blocking=false it
// fails with ErrWouldBlock when nothing is pending. A blocking read
// suspends until an event arrives, the context is cancelled
// (ErrInterrupted) or the session is closed (ErrSessionClosed). An
// interrupted read consumes nothing; the pending entry stays pending.
func (s *Session) ReadNext(ctx context.Context, blocking bool) (Event, error) {
	for {
		select {
		case <-s.done:
			return Event{}, ErrSessionClosed
		default:
		}

		if ev, ok := s.c.queue.tryNext(); ok {
			return ev, nil
		}

		if !blocking {
			return Event{}, ErrWouldBlock
		}

		// Grab the wake channel before re-checking emptiness; a
		// publish in between closes exactly this channel.
		wake := s.c.queue.readable()
		if s.c.queue.pending() {
			continue
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return Event{}, ErrInterrupted
		case <-s.done:
			return Event{}, ErrSessionClosed
		}
	}
}

// Poll reports read readiness without consuming anything.
func (s *Session) Poll() bool {
	return s.c.queue.pending()
}

// Readable exposes the wake channel for select-style integration; it is
// closed on the next publish after the call.
func (s *Session) Readable() <-chan struct{} {
	return s.c.queue.readable()
}
