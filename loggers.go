package main

import (
	"io"
	"log"
	"os"

	"github.com/aoactl/aoactld-go/memorywriter"
	"gopkg.in/natefinch/lumberjack.v2"
)

func initLoggers(options initOptions) (
	stderrWriter io.Writer, // short messages, stderr or rotated file
	stderrLogger *log.Logger, // logger for stderrWriter
	shortMemoryWriter *memorywriter.MemoryWriter, // shown on the status page
	longMemoryWriter *memorywriter.MemoryWriter, // detailed log for /status/log.gz
) {
	if options.logfile != "" {
		stderrWriter = &lumberjack.Logger{
			Filename:   options.logfile,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
		}
	} else {
		stderrWriter = os.Stderr
	}

	stderrLogger = log.New(stderrWriter, "", log.LstdFlags)

	shortMemoryWriter = memorywriter.New(2000, 200, false, nil)

	verboseWriter := io.Writer(nil)
	if options.verbose {
		verboseWriter = stderrWriter
	}
	longMemoryWriter = memorywriter.New(90000, 200, true, verboseWriter)

	return stderrWriter, stderrLogger, shortMemoryWriter, longMemoryWriter
}
