package api

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aoactl/aoactld-go/core"
	"github.com/aoactl/aoactld-go/memorywriter"
	"github.com/aoactl/aoactld-go/wire"

	"github.com/gorilla/mux"
)

// Test the origin validation
func TestOriginValidator(t *testing.T) {
	testcases := []struct {
		origin string
		allow  bool
	}{
		// non-browser clients send no Origin at all
		{"", true},
		// `null` should be denied
		{"null", false},
		// local pages should be allowed, with or without a port
		{"http://localhost", true},
		{"https://localhost", true},
		{"http://localhost:8000", true},
		{"http://127.0.0.1", true},
		{"http://127.0.0.1:21325", true},
		// anything remote should be denied
		{"https://example.com", false},
		{"http://192.168.1.10", false},
		// fakes should be denied
		{"http://localhost.example.com", false},
		{"http://127.0.0.1.example.com", false},
		{"http://fakelocalhost", false},
	}
	validator, err := corsValidator()
	if err != nil {
		t.Fatalf("corsValidator: %v", err)
	}
	for _, tc := range testcases {
		allow := validator(tc.origin)
		if allow != tc.allow {
			t.Errorf("Origin %q: expected %v, got %v", tc.origin, tc.allow, allow)
		}
	}
}

// stubBus accepts every registration; API tests only care about the
// HTTP translation, not the gadget layer.
type stubBus struct{}

func (stubBus) ConfigureSerial(ports int, name string) error         { return nil }
func (stubBus) Register(id core.Identity) (core.GadgetHandle, error) { return struct{}{}, nil }
func (stubBus) Unregister(h core.GadgetHandle) error                 { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *core.Core) {
	t.Helper()

	mw := memorywriter.New(90000, 200, false, nil)
	c := core.New(stubBus{}, mw, 0)

	r := mux.NewRouter()
	if err := ServeAPI(r, c, "1.0.0", mw); err != nil {
		t.Fatalf("ServeAPI: %v", err)
	}

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, c
}

func postJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()

	res, err := http.Post(url, "", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != wantStatus {
		t.Fatalf("POST %s: status %d, want %d", url, res.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("POST %s: decoding response: %v", url, err)
		}
	}
}

func openSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	var res struct {
		Session string `json:"session"`
	}
	postJSON(t, srv.URL+"/open", http.StatusOK, &res)
	if res.Session == "" {
		t.Fatal("open returned an empty session id")
	}
	return res.Session
}

func TestInfo(t *testing.T) {
	srv, _ := newTestServer(t)

	var info struct {
		Version   string `json:"version"`
		Mode      string `json:"mode"`
		Connected bool   `json:"connected"`
	}
	postJSON(t, srv.URL+"/", http.StatusOK, &info)

	if info.Version != "1.0.0" {
		t.Errorf("version = %q, want 1.0.0", info.Version)
	}
	if info.Mode != "none" {
		t.Errorf("mode = %q, want none", info.Mode)
	}
	if info.Connected {
		t.Error("connected before any host activity")
	}
}

func TestOpenIsExclusive(t *testing.T) {
	srv, c := newTestServer(t)

	session := openSession(t, srv)
	if c.Mode() != core.ModeACM {
		t.Errorf("mode after open = %s, want acm", c.Mode())
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	postJSON(t, srv.URL+"/open", http.StatusConflict, &apiErr)
	if apiErr.Error == "" {
		t.Error("conflict response carries no error message")
	}

	postJSON(t, srv.URL+"/close/"+session, http.StatusOK, nil)
	if c.Mode() != core.ModeNone {
		t.Errorf("mode after close = %s, want none", c.Mode())
	}

	// the slot is free again
	openSession(t, srv)
}

func TestSwitchModeAndReset(t *testing.T) {
	srv, _ := newTestServer(t)
	session := openSession(t, srv)

	var res struct {
		Mode string `json:"mode"`
	}
	postJSON(t, srv.URL+"/mode/"+session+"/aoa", http.StatusOK, &res)
	if res.Mode != "aoa" {
		t.Errorf("mode = %q, want aoa", res.Mode)
	}

	postJSON(t, srv.URL+"/reset/"+session, http.StatusOK, &res)
	if res.Mode != "aoa" {
		t.Errorf("mode after reset = %q, want aoa", res.Mode)
	}

	postJSON(t, srv.URL+"/mode/"+session+"/acm", http.StatusOK, &res)
	if res.Mode != "acm" {
		t.Errorf("mode = %q, want acm", res.Mode)
	}
}

func TestSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	openSession(t, srv)

	for _, path := range []string{"/close/999", "/poll/999", "/reset/999", "/mode/999/aoa"} {
		postJSON(t, srv.URL+path, http.StatusNotFound, nil)
	}
}

func TestReadReturnsRecord(t *testing.T) {
	srv, c := newTestServer(t)
	session := openSession(t, srv)

	c.ControlStringReceived(core.StringModel, []byte("Nexus 7"))

	res, err := http.Post(srv.URL+"/read/"+session+"?count=264", "", nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("read status = %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	raw, err := hex.DecodeString(string(body))
	if err != nil {
		t.Fatalf("response is not hex: %v", err)
	}
	rec, err := wire.Unmarshal(raw)
	if err != nil {
		t.Fatalf("response is not a record: %v", err)
	}
	if rec.Kind != uint32(core.EventStringReceived) {
		t.Errorf("kind = %d, want string-received", rec.Kind)
	}
	if rec.Str != uint32(core.StringModel) {
		t.Errorf("category = %d, want model", rec.Str)
	}
	if string(rec.Payload) != "Nexus 7" {
		t.Errorf("payload = %q, want Nexus 7", rec.Payload)
	}
}

func TestReadRejectsWrongCount(t *testing.T) {
	srv, c := newTestServer(t)
	session := openSession(t, srv)
	c.StartRequested()

	for _, count := range []string{"1", "263", "265", "bogus"} {
		postJSON(t, srv.URL+"/read/"+session+"?count="+count, http.StatusBadRequest, nil)
	}

	// the bad reads consumed nothing
	postJSON(t, srv.URL+"/read/"+session+"?count=264&wait=false", http.StatusOK, nil)
}

func TestReadNowaitOnEmptyQueue(t *testing.T) {
	srv, _ := newTestServer(t)
	session := openSession(t, srv)

	postJSON(t, srv.URL+"/read/"+session+"?wait=false", http.StatusBadRequest, nil)
}

func TestPoll(t *testing.T) {
	srv, c := newTestServer(t)
	session := openSession(t, srv)

	var res struct {
		Readable bool `json:"readable"`
	}
	postJSON(t, srv.URL+"/poll/"+session, http.StatusOK, &res)
	if res.Readable {
		t.Error("readable on an empty queue")
	}

	c.StartRequested()
	postJSON(t, srv.URL+"/poll/"+session, http.StatusOK, &res)
	if !res.Readable {
		t.Error("not readable with a queued event")
	}
}
