package main

import (
	"flag"

	"github.com/aoactl/aoactld-go/core"
)

type initOptions struct {
	logfile     string
	verbose     bool
	withGadget  bool
	gadgetName  string
	udc         string
	emuPort     int
	queueLimit  int
	versionFlag bool
}

func parseFlags() initOptions {
	var options initOptions
	flag.StringVar(
		&(options.logfile),
		"l",
		"",
		"Log into a file, rotating after 20MB",
	)
	flag.BoolVar(
		&(options.verbose),
		"v",
		false,
		"Write the detailed log to stderr as well",
	)
	flag.BoolVar(
		&(options.withGadget),
		"g",
		true,
		"Use the real configfs gadget. Disable for testing environments: aoactld -g=false",
	)
	flag.StringVar(
		&(options.gadgetName),
		"n",
		"g_accessory_serial",
		"Gadget directory name under the configfs root",
	)
	flag.StringVar(
		&(options.udc),
		"udc",
		"",
		"USB device controller to bind; defaults to the first one found",
	)
	flag.IntVar(
		&(options.emuPort),
		"e",
		21324,
		"UDP port of the emulated host, used with -g=false",
	)
	flag.IntVar(
		&(options.queueLimit),
		"q",
		core.DefaultQueueLimit,
		"Maximum unread event backlog; oldest events are dropped beyond it",
	)
	flag.BoolVar(
		&(options.versionFlag),
		"version",
		false,
		"Print version and exit",
	)
	flag.Parse()
	return options
}
