package gadget

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aoactl/aoactld-go/core"
	"github.com/aoactl/aoactld-go/memorywriter"
)

// Configfs drives a real USB device controller through the Linux
// configfs gadget tree. Register builds the descriptor tree for one
// identity and binds the UDC; Unregister unbinds and tears it down,
// which the host observes as a full re-enumeration.
type Configfs struct {
	name   string // gadget directory name under the configfs root
	udc    string
	root   string
	notify core.GadgetEvents
	log    *memorywriter.MemoryWriter

	serialPorts int
	serialName  string
}

const (
	configfsRoot = "/sys/kernel/config/usb_gadget"
	udcClassDir  = "/sys/class/udc"

	statePollInterval = 250 * time.Millisecond

	productString = "Gadget Serial / Open Accessory"
)

// InitConfigfs prepares a configfs-backed bus. With udc == "" the first
// controller under /sys/class/udc is used. Nothing is registered yet;
// that happens on the first mode switch, and only after SetEvents has
// wired the notification sink.
func InitConfigfs(name, udc string, log *memorywriter.MemoryWriter) (*Configfs, error) {
	if _, err := os.Stat(configfsRoot); err != nil {
		return nil, fmt.Errorf("configfs gadget support not available: %w", err)
	}

	if udc == "" {
		picked, err := firstUDC()
		if err != nil {
			return nil, err
		}
		udc = picked
	}

	return &Configfs{
		name: name,
		udc:  udc,
		root: configfsRoot,
		log:  log,
	}, nil
}

// SetEvents wires the notification sink. Must be called before the
// first Register.
func (g *Configfs) SetEvents(n core.GadgetEvents) {
	g.notify = n
}

func firstUDC() (string, error) {
	entries, err := os.ReadDir(udcClassDir)
	if err != nil {
		return "", fmt.Errorf("listing UDCs: %w", err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no USB device controller found in %s", udcClassDir)
	}
	return entries[0].Name(), nil
}

func (g *Configfs) Log(s string) {
	g.log.Println("configfs - " + s)
}

// ConfigureSerial records the line-discipline parameters used when the
// function is instantiated during Register.
func (g *Configfs) ConfigureSerial(ports int, name string) error {
	if ports < 1 || name == "" {
		return core.ErrInvalidArgument
	}
	g.serialPorts = ports
	g.serialName = name
	return nil
}

type registration struct {
	dir  string
	stop chan struct{}
	done chan struct{}
}

func (g *Configfs) Register(id core.Identity) (core.GadgetHandle, error) {
	dir := filepath.Join(g.root, g.name)
	g.Log("register " + id.ConfigLabel + " at " + dir)

	if err := g.buildTree(dir, id); err != nil {
		// half-built trees confuse the next attempt
		g.teardown(dir)
		return nil, err
	}

	// binding the UDC is the actual "plug in" moment
	if err := writeAttr(dir, "UDC", g.udc); err != nil {
		g.teardown(dir)
		return nil, fmt.Errorf("binding UDC %s: %w", g.udc, err)
	}

	r := &registration{
		dir:  dir,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go g.watchState(r)
	return r, nil
}

func (g *Configfs) Unregister(h core.GadgetHandle) error {
	r, ok := h.(*registration)
	if !ok {
		return core.ErrInvalidArgument
	}

	close(r.stop)
	<-r.done

	// unbind first; attribute writes fail while bound
	if err := writeAttr(r.dir, "UDC", ""); err != nil {
		g.Log("unbind UDC: " + err.Error())
	}
	g.notify.HostConnectionChanged(false)

	g.teardown(r.dir)
	return nil
}

func (g *Configfs) buildTree(dir string, id core.Identity) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	attrs := map[string]string{
		"idVendor":     fmt.Sprintf("0x%04x", id.VendorID),
		"idProduct":    fmt.Sprintf("0x%04x", id.ProductID),
		"bDeviceClass": fmt.Sprintf("0x%02x", id.DeviceClass),
		"bcdUSB":       "0x0200",
	}
	for name, value := range attrs {
		if err := writeAttr(dir, name, value); err != nil {
			return err
		}
	}

	strDir := filepath.Join(dir, "strings", "0x409")
	if err := os.MkdirAll(strDir, 0o755); err != nil {
		return err
	}
	if err := writeAttr(strDir, "manufacturer", manufacturerString(g.udc)); err != nil {
		return err
	}
	if err := writeAttr(strDir, "product", productString); err != nil {
		return err
	}

	cfgDir := filepath.Join(dir, "configs", fmt.Sprintf("c.%d", id.ConfigValue))
	cfgStrDir := filepath.Join(cfgDir, "strings", "0x409")
	if err := os.MkdirAll(cfgStrDir, 0o755); err != nil {
		return err
	}
	if err := writeAttr(cfgStrDir, "configuration", id.ConfigLabel); err != nil {
		return err
	}

	name := id.PortName
	if g.serialName != "" {
		name = g.serialName
	}
	for port := 0; port < max(g.serialPorts, id.SerialPorts); port++ {
		fn := fmt.Sprintf("%s.%s%d", id.Function, name, port)
		fnDir := filepath.Join(dir, "functions", fn)
		if err := os.MkdirAll(fnDir, 0o755); err != nil {
			return err
		}
		if err := os.Symlink(fnDir, filepath.Join(cfgDir, fn)); err != nil {
			return err
		}
	}

	return nil
}

// teardown removes the gadget tree bottom up. Errors are logged only;
// leftovers are reported by the next Register attempt anyway.
func (g *Configfs) teardown(dir string) {
	cfgs, _ := filepath.Glob(filepath.Join(dir, "configs", "*"))
	for _, cfg := range cfgs {
		links, _ := os.ReadDir(cfg)
		for _, l := range links {
			if l.Type()&os.ModeSymlink != 0 {
				g.tryRemove(filepath.Join(cfg, l.Name()))
			}
		}
		g.tryRemove(filepath.Join(cfg, "strings", "0x409"))
		g.tryRemove(cfg)
	}

	fns, _ := filepath.Glob(filepath.Join(dir, "functions", "*"))
	for _, fn := range fns {
		g.tryRemove(fn)
	}

	g.tryRemove(filepath.Join(dir, "strings", "0x409"))
	g.tryRemove(dir)
}

func (g *Configfs) tryRemove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		g.Log("teardown " + path + ": " + err.Error())
	}
}

// watchState polls the UDC state file and feeds connection edges into
// the event sink. "configured" is the only state where the host has the
// interface up; everything else counts as disconnected.
func (g *Configfs) watchState(r *registration) {
	defer close(r.done)

	statePath := filepath.Join(udcClassDir, g.udc, "state")
	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			raw, err := os.ReadFile(statePath)
			if err != nil {
				continue
			}
			state := strings.TrimSpace(string(raw))
			g.notify.HostConnectionChanged(state == "configured")
		}
	}
}

func writeAttr(dir, name, value string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(value), 0o644)
}

// manufacturerString builds "sysname release with udc" from uname, the
// same shape the kernel gadget drivers report.
func manufacturerString(udc string) string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "Linux with " + udc
	}
	return fmt.Sprintf("%s %s with %s",
		unix.ByteSliceToString(uts.Sysname[:]),
		unix.ByteSliceToString(uts.Release[:]),
		udc)
}
