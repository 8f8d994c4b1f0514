package api

import (
	"context"
	"net/http"

	"github.com/aoactl/aoactld-go/wire"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// the CORS middleware already vetted the origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events upgrades to a websocket and streams event records to the
// session owner, one binary message per record. It is the streaming
// twin of Read: both drain the same cursor, so a consumer should use
// one or the other.
func (a *api) Events(w http.ResponseWriter, r *http.Request) {
	s, err := a.core.SessionByID(mux.Vars(r)["session"])
	if err != nil {
		a.respondError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Log("events - upgrade: " + err.Error())
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			a.logger.Log("events - close: " + err.Error())
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the client never sends data; reads only detect the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		ev, err := s.ReadNext(ctx, true)
		if err != nil {
			// interrupted (client gone) or session closed
			a.logger.Log("events - " + err.Error())
			return
		}
		msg := wire.Marshal(recordFor(ev))
		if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			a.logger.Log("events - write: " + err.Error())
			return
		}
	}
}
