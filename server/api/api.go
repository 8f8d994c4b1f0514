package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aoactl/aoactld-go/core"
	"github.com/aoactl/aoactld-go/memorywriter"
	"github.com/aoactl/aoactld-go/wire"

	"github.com/gorilla/mux"
)

// This package serves the control API. The mode/event logic is in the
// core package; here we only translate requests to core calls and core
// errors to the externally visible codes.
//
// The surface keeps character-device semantics: one exclusive session,
// open defaults the gadget to ACM, close unbinds it, read returns one
// fixed-size event record per call.

type api struct {
	core    *core.Core
	version string
	logger  *memorywriter.MemoryWriter
}

func ServeAPI(r *mux.Router, c *core.Core, v string, l *memorywriter.MemoryWriter) error {
	api := &api{
		core:    c,
		version: v,
		logger:  l,
	}
	sr := r.Methods("POST").Subrouter()
	sr.HandleFunc("/", api.Info)
	sr.HandleFunc("/configure", api.Info)
	sr.HandleFunc("/open", api.Open)
	sr.HandleFunc("/close/{session}", api.Close)
	sr.HandleFunc("/read/{session}", api.Read)
	sr.HandleFunc("/poll/{session}", api.Poll)
	sr.HandleFunc("/mode/{session}/acm", api.SwitchACM)
	sr.HandleFunc("/mode/{session}/aoa", api.SwitchAOA)
	sr.HandleFunc("/reset/{session}", api.Reset)
	r.Methods("GET").Path("/events/{session}").HandlerFunc(api.Events)

	corsv, err := corsValidator()
	if err != nil {
		return err
	}
	r.Use(CORS(corsv))
	return nil
}

func (a *api) Info(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("version " + a.version)

	type info struct {
		Version   string `json:"version"`
		Mode      string `json:"mode"`
		Connected bool   `json:"connected"`
	}
	err := json.NewEncoder(w).Encode(info{
		Version:   a.version,
		Mode:      a.core.Mode().String(),
		Connected: a.core.Connected(),
	})
	a.checkJSONError(w, err)
}

func (a *api) Open(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("open")

	s, err := a.core.OpenSession()
	if err != nil {
		a.respondError(w, err)
		return
	}

	type result struct {
		Session string `json:"session"`
	}
	err = json.NewEncoder(w).Encode(result{
		Session: s.ID(),
	})
	a.checkJSONError(w, err)
}

func (a *api) Close(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("close")

	vars := mux.Vars(r)
	s, err := a.core.SessionByID(vars["session"])
	if err != nil {
		a.respondError(w, err)
		return
	}

	s.Close()
	err = json.NewEncoder(w).Encode(vars)
	a.checkJSONError(w, err)
}

// Read returns one event record, hex-encoded. The optional count
// parameter mirrors the read(2) contract: anything other than one full
// record is invalid. wait=false makes the read non-blocking.
func (a *api) Read(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("read")

	s, err := a.core.SessionByID(mux.Vars(r)["session"])
	if err != nil {
		a.respondError(w, err)
		return
	}

	if c := r.URL.Query().Get("count"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n != wire.RecordSize {
			a.respondError(w, core.ErrInvalidArgument)
			return
		}
	}

	blocking := true
	if wait := r.URL.Query().Get("wait"); wait == "0" || wait == "false" {
		blocking = false
	}

	ev, err := s.ReadNext(r.Context(), blocking)
	if err != nil {
		a.respondError(w, err)
		return
	}

	_, err = w.Write([]byte(hex.EncodeToString(wire.Marshal(recordFor(ev)))))
	if err != nil {
		a.respondError(w, err)
	}
}

func (a *api) Poll(w http.ResponseWriter, r *http.Request) {
	s, err := a.core.SessionByID(mux.Vars(r)["session"])
	if err != nil {
		a.respondError(w, err)
		return
	}

	type result struct {
		Readable bool `json:"readable"`
	}
	err = json.NewEncoder(w).Encode(result{
		Readable: s.Poll(),
	})
	a.checkJSONError(w, err)
}

func (a *api) SwitchACM(w http.ResponseWriter, r *http.Request) {
	a.switchMode(w, r, core.ModeACM)
}

func (a *api) SwitchAOA(w http.ResponseWriter, r *http.Request) {
	a.switchMode(w, r, core.ModeAOA)
}

func (a *api) switchMode(w http.ResponseWriter, r *http.Request, mode core.Mode) {
	a.logger.Log("switch to " + mode.String())

	if _, err := a.core.SessionByID(mux.Vars(r)["session"]); err != nil {
		a.respondError(w, err)
		return
	}

	if err := a.core.SwitchMode(mode); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondMode(w)
}

func (a *api) Reset(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("reset")

	if _, err := a.core.SessionByID(mux.Vars(r)["session"]); err != nil {
		a.respondError(w, err)
		return
	}

	if err := a.core.Reset(); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondMode(w)
}

func (a *api) respondMode(w http.ResponseWriter) {
	type result struct {
		Mode string `json:"mode"`
	}
	err := json.NewEncoder(w).Encode(result{
		Mode: a.core.Mode().String(),
	})
	a.checkJSONError(w, err)
}

func recordFor(ev core.Event) wire.Record {
	return wire.Record{
		Kind:      uint32(ev.Type),
		Str:       uint32(ev.Category),
		Payload:   []byte(ev.Payload),
		HasString: ev.HasString(),
	}
}

func (a *api) checkJSONError(w http.ResponseWriter, err error) {
	if err != nil {
		a.respondError(w, err)
	}
}

func (a *api) respondError(w http.ResponseWriter, err error) {
	type jsonError struct {
		Error string `json:"error"`
	}
	a.logger.Log("Returning error: " + err.Error())
	w.WriteHeader(statusFor(err))

	// if even the encoder of the error errors, just log the error
	err = json.NewEncoder(w).Encode(jsonError{
		Error: err.Error(),
	})
	if err != nil {
		a.logger.Log("Error while writing error: " + err.Error())
	}
}

// statusFor maps the core taxonomy onto the external codes: EBUSY for
// the exclusive slot, 404 for stale session ids, 400 for the rest.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrAlreadyOpen):
		return http.StatusConflict
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
