package server

import (
	"io"
	"net/http"

	"github.com/aoactl/aoactld-go/core"
	"github.com/aoactl/aoactld-go/memorywriter"
	"github.com/aoactl/aoactld-go/server/api"
	"github.com/aoactl/aoactld-go/server/status"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Server glues the control API and the status page onto one local HTTP
// listener. All control logic lives in core; this package only routes.
type Server struct {
	https *http.Server
	core  *core.Core
}

const defaultAddr = "127.0.0.1:21327"

func New(
	c *core.Core,
	logWriter io.Writer,
	shortMemoryWriter *memorywriter.MemoryWriter,
	longMemoryWriter *memorywriter.MemoryWriter,
	version string,
) (*Server, error) {
	r := mux.NewRouter()

	statusRouter := r.PathPrefix("/status").Subrouter()
	status.ServeStatus(statusRouter, c, version, shortMemoryWriter, longMemoryWriter)

	// everything else is the control surface
	apiRouter := r.NewRoute().Subrouter()
	if err := api.ServeAPI(apiRouter, c, version, longMemoryWriter); err != nil {
		return nil, err
	}

	var h http.Handler = r
	// Log after the request is done, in the Apache format.
	h = handlers.LoggingHandler(logWriter, h)
	// Log when the request is received.
	h = logRequest(longMemoryWriter, h)

	https := &http.Server{
		Addr:    defaultAddr,
		Handler: h,
	}

	return &Server{
		https: https,
		core:  c,
	}, nil
}

func logRequest(w *memorywriter.MemoryWriter, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.Log(r.Method + " " + r.URL.String())
		handler.ServeHTTP(rw, r)
	})
}

func (s *Server) Run() error {
	return s.https.ListenAndServe()
}

func (s *Server) Close() error {
	return s.https.Close()
}
