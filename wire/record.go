// Package wire marshals control events into the fixed-size records the
// control surface hands to its consumer: one record per read, requested
// at exactly RecordSize bytes, carrying a little-endian event tag, an
// optional string-category tag and a NUL-terminated payload.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// MaxStringSize is the string storage per record, NUL included.
	MaxStringSize = 256

	// RecordSize is the full record: two uint32 tags plus the string
	// storage. Reads must request exactly this many bytes.
	RecordSize = 4 + 4 + MaxStringSize

	tagSize = 4
)

// Accessory protocol constants carried alongside the records; the
// gadget layer answers GET_PROTOCOL with ProtocolVersion and feeds
// SEND_STRING/START requests into the event channel.
const (
	ProtocolVersion = 2

	ReqGetProtocol = 51
	ReqSendString  = 52
	ReqStart       = 53
)

var (
	ErrShortRecord   = errors.New("record too short")
	ErrNoTerminator  = errors.New("record string not terminated")
	ErrStringTooLong = errors.New("record string too long")
)

// Record is one wire-visible control event. Kind and Str mirror the
// core event and string-category tags; this package stays a dumb codec
// and does not import core.
type Record struct {
	Kind    uint32
	Str     uint32
	Payload []byte // absent unless HasString
	// HasString selects the long layout: kind, category, payload, NUL.
	HasString bool
}

// Marshal encodes the meaningful prefix of a record: 4 bytes for a
// plain event, 8 + len(payload) + 1 for a string event. Payloads are
// clamped to the string storage (terminator included).
func Marshal(r Record) []byte {
	if !r.HasString {
		out := make([]byte, tagSize)
		binary.LittleEndian.PutUint32(out, r.Kind)
		return out
	}

	payload := r.Payload
	if len(payload) > MaxStringSize-1 {
		payload = payload[:MaxStringSize-1]
	}

	out := make([]byte, 2*tagSize+len(payload)+1)
	binary.LittleEndian.PutUint32(out[0:4], r.Kind)
	binary.LittleEndian.PutUint32(out[4:8], r.Str)
	copy(out[8:], payload)
	// trailing NUL is the zero value already
	return out
}

// Unmarshal decodes a record from the meaningful prefix produced by
// Marshal. A 4-byte buffer is a plain event; anything longer must carry
// a terminated string.
func Unmarshal(b []byte) (Record, error) {
	if len(b) < tagSize {
		return Record{}, ErrShortRecord
	}

	r := Record{Kind: binary.LittleEndian.Uint32(b[0:4])}
	if len(b) == tagSize {
		return r, nil
	}

	if len(b) < 2*tagSize+1 {
		return Record{}, ErrShortRecord
	}
	if len(b) > RecordSize {
		return Record{}, ErrStringTooLong
	}

	r.HasString = true
	r.Str = binary.LittleEndian.Uint32(b[4:8])

	rest := b[8:]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return Record{}, ErrNoTerminator
	}
	r.Payload = append([]byte(nil), rest[:nul]...)
	return r, nil
}
