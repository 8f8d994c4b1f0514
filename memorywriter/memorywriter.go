// Package memorywriter keeps a rotating window of log lines in memory,
// pinning the first lines written after startup. Detailed tracing would
// be too big for a file that lives forever; the status page exports the
// window on demand instead.
package memorywriter

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// hard cap per line, to bound worst-case memory
const maxLineLength = 500

type MemoryWriter struct {
	mu           sync.Mutex
	maxLineCount int
	lines        [][]byte // rotating tail, lines include newlines
	startCount   int
	startLines   [][]byte // pinned head, never rotated
	startTime    time.Time
	printTime    bool
	copyTo       io.Writer // optional verbose mirror
}

// New creates a writer keeping size rotating lines plus the first
// startSize lines. With copyTo set, every line is mirrored there too
// (used for -v).
func New(size, startSize int, printTime bool, copyTo io.Writer) *MemoryWriter {
	return &MemoryWriter{
		maxLineCount: size,
		lines:        make([][]byte, 0, size),
		startCount:   startSize,
		startLines:   make([][]byte, 0, startSize),
		startTime:    time.Now(),
		printTime:    printTime,
		copyTo:       copyTo,
	}
}

func (m *MemoryWriter) Println(s string) {
	if _, err := m.Write([]byte(s + "\n")); err != nil {
		// give up, just print on stdout
		fmt.Println(err)
	}
}

// Log is Println; it exists so the writer can stand in for structured
// loggers in the packages that only ever log one-liners.
func (m *MemoryWriter) Log(s string) {
	m.Println(s)
}

func (m *MemoryWriter) Write(p []byte) (int, error) {
	if len(p) > maxLineLength {
		return 0, errors.New("input too long")
	}

	var line []byte
	if m.printTime {
		now := time.Now()
		elapsed := now.Sub(m.startTime)
		line = []byte(fmt.Sprintf("[%.6f : %s] %s",
			elapsed.Seconds(), now.Format("15:04:05"), string(p)))
	} else {
		line = make([]byte, len(p))
		copy(line, p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.copyTo != nil {
		// best effort; the in-memory window is the source of truth
		_, _ = m.copyTo.Write(line)
	}

	if len(m.startLines) < m.startCount {
		m.startLines = append(m.startLines, line)
	} else {
		for len(m.lines) >= m.maxLineCount {
			m.lines = m.lines[1:]
		}
		m.lines = append(m.lines, line)
	}
	return len(p), nil
}

// writeTo exports the window, newest first, with the given text on top
// and the pinned startup lines at the bottom.
func (m *MemoryWriter) writeTo(start string, w io.Writer) error {
	if _, err := w.Write([]byte(start)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.lines) - 1; i >= 0; i-- {
		if _, err := w.Write(m.lines[i]); err != nil {
			return err
		}
	}

	if _, err := w.Write([]byte("...\n")); err != nil {
		return err
	}

	for i := len(m.startLines) - 1; i >= 0; i-- {
		if _, err := w.Write(m.startLines[i]); err != nil {
			return err
		}
	}
	return nil
}

// String exports the window as text.
func (m *MemoryWriter) String(start string) (string, error) {
	var b bytes.Buffer
	if err := m.writeTo(start, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Gzip exports the window as gzipped bytes for the log download.
func (m *MemoryWriter) Gzip(start string) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	gw.Name = "log.txt"

	if err := m.writeTo(start, gw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
