package main

import (
	"fmt"

	"github.com/aoactl/aoactld-go/core"
	"github.com/aoactl/aoactld-go/gadget"
	"github.com/aoactl/aoactld-go/server"
)

const version = "1.0.0"

// gadgetBus is what both backends provide: the bus the core drives plus
// the setter wiring the core back in as the notification sink.
type gadgetBus interface {
	core.GadgetBus
	SetEvents(core.GadgetEvents)
}

func main() {
	options := parseFlags()

	if options.versionFlag {
		fmt.Printf("aoactld version %s\n", version)
		return
	}

	stderrWriter, stderrLogger, shortMemoryWriter, longMemoryWriter := initLoggers(options)

	stderrLogger.Print("aoactld is starting.")

	var bus gadgetBus
	if options.withGadget {
		longMemoryWriter.Log("initing configfs gadget")
		g, err := gadget.InitConfigfs(options.gadgetName, options.udc, longMemoryWriter)
		if err != nil {
			stderrLogger.Fatalf("configfs: %s", err)
		}
		bus = g
	} else {
		longMemoryWriter.Log(fmt.Sprintf("initing emulator on udp %d", options.emuPort))
		bus = gadget.InitEmulator(options.emuPort, longMemoryWriter)
	}

	c := core.New(bus, longMemoryWriter, options.queueLimit)
	bus.SetEvents(c)

	longMemoryWriter.Log("creating HTTP server")
	s, err := server.New(c, stderrWriter, shortMemoryWriter, longMemoryWriter, version)
	if err != nil {
		stderrLogger.Fatalf("https: %s", err)
	}

	longMemoryWriter.Log("running HTTP server")
	if err := s.Run(); err != nil {
		stderrLogger.Fatalf("https: %s", err)
	}

	longMemoryWriter.Log("main ended successfully")
}
