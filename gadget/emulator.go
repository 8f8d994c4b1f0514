package gadget

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/aoactl/aoactld-go/core"
	"github.com/aoactl/aoactld-go/memorywriter"
)

// Emulator is a gadget bus for environments without a UDC. While an
// identity is registered it listens on a UDP port and turns datagrams
// into the notifications a real host would produce:
//
//	connect
//	disconnect
//	start
//	string <category> <text>
//
// where category is 0..5 (manufacturer, model, description, version,
// uri, serial). Datagrams arriving while unregistered are lost, the
// same way a host cannot talk to an unbound gadget.
type Emulator struct {
	port   int
	notify core.GadgetEvents
	log    *memorywriter.MemoryWriter

	mu          sync.Mutex
	serialPorts int
	serialName  string
}

func InitEmulator(port int, log *memorywriter.MemoryWriter) *Emulator {
	return &Emulator{
		port: port,
		log:  log,
	}
}

// SetEvents wires the notification sink. Must be called before the
// first Register.
func (e *Emulator) SetEvents(n core.GadgetEvents) {
	e.notify = n
}

func (e *Emulator) Log(s string) {
	e.log.Println("emulator - " + s)
}

func (e *Emulator) ConfigureSerial(ports int, name string) error {
	if ports < 1 || name == "" {
		return core.ErrInvalidArgument
	}
	e.mu.Lock()
	e.serialPorts = ports
	e.serialName = name
	e.mu.Unlock()
	return nil
}

type emulatedGadget struct {
	conn *net.UDPConn
	done chan struct{}
}

func (e *Emulator) Register(id core.Identity) (core.GadgetHandle, error) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: e.port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	e.Log(fmt.Sprintf("registered %04x:%04x (%s) on udp %d",
		id.VendorID, id.ProductID, id.ConfigLabel, e.port))

	g := &emulatedGadget{
		conn: conn,
		done: make(chan struct{}),
	}
	go e.serve(g)
	return g, nil
}

func (e *Emulator) Unregister(h core.GadgetHandle) error {
	g, ok := h.(*emulatedGadget)
	if !ok {
		return core.ErrInvalidArgument
	}
	err := g.conn.Close()
	<-g.done
	e.notify.HostConnectionChanged(false)
	e.Log("unregistered")
	return err
}

func (e *Emulator) serve(g *emulatedGadget) {
	defer close(g.done)

	buf := make([]byte, 2048)
	for {
		n, from, err := g.conn.ReadFromUDP(buf)
		if err != nil {
			// closed on unregister
			return
		}
		reply := "ok"
		if err := e.handle(strings.TrimSpace(string(buf[:n]))); err != nil {
			reply = "err: " + err.Error()
		}
		_, _ = g.conn.WriteToUDP([]byte(reply+"\n"), from)
	}
}

func (e *Emulator) handle(cmd string) error {
	e.Log("host: " + cmd)

	fields := strings.SplitN(cmd, " ", 3)
	switch fields[0] {
	case "connect":
		e.notify.HostConnectionChanged(true)
	case "disconnect":
		e.notify.HostConnectionChanged(false)
	case "start":
		e.notify.StartRequested()
	case "string":
		if len(fields) < 3 {
			return fmt.Errorf("usage: string <category> <text>")
		}
		cat, err := strconv.Atoi(fields[1])
		if err != nil || cat < int(core.StringManufacturer) || cat > int(core.StringSerial) {
			return fmt.Errorf("bad string category %q", fields[1])
		}
		e.notify.ControlStringReceived(core.StringCategory(cat), []byte(fields[2]))
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}
