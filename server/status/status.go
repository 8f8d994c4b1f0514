package status

import (
	"fmt"
	"net/http"

	"github.com/aoactl/aoactld-go/core"
	"github.com/aoactl/aoactld-go/memorywriter"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
)

// This package serves the status page on /status/ and the detailed log
// at /status/log.gz

type status struct {
	core                                *core.Core
	version                             string
	shortMemoryWriter, longMemoryWriter *memorywriter.MemoryWriter
}

const csrfkey = "h9wzrm2k0qp7c4x1jv8t5ydnl3b6agfe"

func ServeStatus(r *mux.Router, c *core.Core, v string, mw, dmw *memorywriter.MemoryWriter) {
	status := &status{
		core:              c,
		version:           v,
		shortMemoryWriter: mw,
		longMemoryWriter:  dmw,
	}
	r.Methods("GET").Path("/").HandlerFunc(status.statusPage)
	r.Methods("POST").Path("/log.gz").HandlerFunc(status.statusGzip)

	r.Use(csrf.Protect([]byte(csrfkey), csrf.Secure(false)))
	r.Use(OriginCheck(map[string]string{
		"/status/":       "",
		"/status/log.gz": "http://127.0.0.1:21327",
	}))
}

func (s *status) header() string {
	return fmt.Sprintf(
		"%s\nmode: %s\nconnected: %v\nsession open: %v\nqueued: %d\ndropped: %d\n",
		s.version,
		s.core.Mode(),
		s.core.Connected(),
		s.core.SessionOpen(),
		s.core.QueueDepth(),
		s.core.DroppedEvents(),
	)
}

func (s *status) statusGzip(w http.ResponseWriter, r *http.Request) {
	s.longMemoryWriter.Log("building gzip")

	gzip, err := s.longMemoryWriter.Gzip(s.header() + "\nCurrent log:\n")
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")

	if _, err := w.Write(gzip); err != nil {
		respondError(w, err)
	}
}

func (s *status) statusPage(w http.ResponseWriter, r *http.Request) {
	s.longMemoryWriter.Log("building status page")

	log, err := s.shortMemoryWriter.String(s.header())
	if err != nil {
		respondError(w, err)
		return
	}

	data := &statusTemplateData{
		Version:     s.version,
		Mode:        s.core.Mode().String(),
		Connected:   s.core.Connected(),
		SessionOpen: s.core.SessionOpen(),
		QueueDepth:  s.core.QueueDepth(),
		Dropped:     s.core.DroppedEvents(),
		Log:         log,
		CSRFField:   csrf.TemplateField(r),
	}

	if err := statusTemplate.Execute(w, data); err != nil {
		respondError(w, err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}
