// Package client is a Go client for the aoactld control API, used by
// the aoactl CLI and usable by accessory-side applications directly.
package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aoactl/aoactld-go/wire"

	"github.com/gorilla/websocket"
)

type Client struct {
	url string

	Version string
}

// Info mirrors the daemon's info response.
type Info struct {
	Version   string `json:"version"`
	Mode      string `json:"mode"`
	Connected bool   `json:"connected"`
}

func (c *Client) post(
	ctx context.Context,
	path string,
	decode func(r io.Reader) error,
) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.url+path, nil)
	if err != nil {
		return err
	}

	r, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			fmt.Println(err)
		}
	}()

	if r.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(r.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, r.StatusCode)
		}
		return fmt.Errorf("wrong status code %d", r.StatusCode)
	}

	if decode == nil {
		return nil
	}
	return decode(r.Body)
}

// New connects to a running daemon and checks it speaks our version of
// the protocol.
func New(url string) (*Client, error) {
	c := &Client{url: strings.TrimRight(url, "/")}

	info, err := c.Info(context.Background())
	if err != nil {
		return nil, err
	}

	if strings.Split(info.Version, ".")[0] != "1" {
		return nil, fmt.Errorf("unsupported daemon version %s", info.Version)
	}
	c.Version = info.Version
	return c, nil
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	err := c.post(ctx, "/", func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&info)
	})
	return info, err
}

// Open claims the exclusive control session; the daemon switches the
// gadget to ACM as a side effect.
func (c *Client) Open(ctx context.Context) (string, error) {
	var res struct {
		Session string `json:"session"`
	}
	err := c.post(ctx, "/open", func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&res)
	})
	return res.Session, err
}

// Close releases the session and unbinds the gadget.
func (c *Client) Close(ctx context.Context, session string) error {
	return c.post(ctx, "/close/"+session, nil)
}

// SwitchMode requests an identity switch; mode is "acm" or "aoa".
// Returns the mode reported back by the daemon.
func (c *Client) SwitchMode(ctx context.Context, session, mode string) (string, error) {
	if mode != "acm" && mode != "aoa" {
		return "", fmt.Errorf("unknown mode %q", mode)
	}
	var res struct {
		Mode string `json:"mode"`
	}
	err := c.post(ctx, "/mode/"+session+"/"+mode, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&res)
	})
	return res.Mode, err
}

// Reset forces a re-enumeration under the current identity.
func (c *Client) Reset(ctx context.Context, session string) (string, error) {
	var res struct {
		Mode string `json:"mode"`
	}
	err := c.post(ctx, "/reset/"+session, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&res)
	})
	return res.Mode, err
}

// Poll reports whether a record is pending.
func (c *Client) Poll(ctx context.Context, session string) (bool, error) {
	var res struct {
		Readable bool `json:"readable"`
	}
	err := c.post(ctx, "/poll/"+session, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&res)
	})
	return res.Readable, err
}

// Read fetches one event record. With wait, the call blocks until an
// event arrives or ctx is cancelled.
func (c *Client) Read(ctx context.Context, session string, wait bool) (wire.Record, error) {
	path := "/read/" + session + fmt.Sprintf("?count=%d", wire.RecordSize)
	if !wait {
		path += "&wait=false"
	}

	var rec wire.Record
	err := c.post(ctx, path, func(r io.Reader) error {
		hexbody, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		raw, err := hex.DecodeString(string(hexbody))
		if err != nil {
			return err
		}
		rec, err = wire.Unmarshal(raw)
		return err
	})
	return rec, err
}

// Events streams records over the websocket endpoint, calling fn for
// each one until fn errors, the stream ends or ctx is cancelled.
func (c *Client) Events(ctx context.Context, session string, fn func(wire.Record) error) error {
	wsurl := strings.Replace(c.url, "http", "ws", 1) + "/events/" + session

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsurl, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() {
		if err := conn.Close(); err != nil {
			fmt.Println(err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		rec, err := wire.Unmarshal(msg)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
