package core

import (
	"fmt"
	"sync"
)

// Notification events, in the order the host produced them.
// The control consumer drains these through Session.ReadNext.

type EventType int

const (
	EventConnectedACM    EventType = 0
	EventDisconnectedACM EventType = 1
	EventStringReceived  EventType = 2
	EventStartRequested  EventType = 3
)

func (t EventType) String() string {
	switch t {
	case EventConnectedACM:
		return "connected-acm"
	case EventDisconnectedACM:
		return "disconnected-acm"
	case EventStringReceived:
		return "string-received"
	case EventStartRequested:
		return "start-requested"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// StringCategory identifies which accessory identification string
// the host sent with an ACCESSORY_SEND_STRING request.
type StringCategory int

const (
	StringManufacturer StringCategory = 0
	StringModel        StringCategory = 1
	StringDescription  StringCategory = 2
	StringVersion      StringCategory = 3
	StringURI          StringCategory = 4
	StringSerial       StringCategory = 5
)

func (c StringCategory) String() string {
	switch c {
	case StringManufacturer:
		return "manufacturer"
	case StringModel:
		return "model"
	case StringDescription:
		return "description"
	case StringVersion:
		return "version"
	case StringURI:
		return "uri"
	case StringSerial:
		return "serial"
	}
	return fmt.Sprintf("string(%d)", int(c))
}

// MaxPayload is the longest stored string payload, excluding the NUL
// terminator it gets on the wire. Longer host strings are truncated.
const MaxPayload = 255

type Event struct {
	Type     EventType
	Category StringCategory // only meaningful for EventStringReceived
	Payload  string         // ditto; always <= MaxPayload bytes
}

// HasString reports whether the event carries a string payload on the wire.
func (e Event) HasString() bool {
	return e.Type == EventStringReceived
}

// DefaultQueueLimit bounds the unread backlog. Producers never block;
// when the queue is full the oldest unread entry is dropped and counted.
const DefaultQueueLimit = 64

// eventQueue is the ordered single-reader queue behind a session.
// The head of entries is the read cursor; consumed entries are dropped,
// so the whole slice is exactly the unread backlog. The mutex guards
// entries, the drop counter and the wake channel; it is only ever held
// for short non-blocking sections.
type eventQueue struct {
	mu      sync.Mutex
	entries []Event
	limit   int
	dropped uint64
	wake    chan struct{} // closed and replaced on every append
}

func newEventQueue(limit int) *eventQueue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &eventQueue{
		limit: limit,
		wake:  make(chan struct{}),
	}
}

// publish appends the event, applying the flush-on-connect rule:
// a fresh ACM connection supersedes whatever the consumer has not read
// yet, so the backlog is evicted first. Returns the number of entries
// dropped by this call (flush or overflow), for logging by the caller.
func (q *eventQueue) publish(ev Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	if ev.Type == EventConnectedACM && len(q.entries) > 0 {
		dropped = len(q.entries)
		q.entries = q.entries[:0]
	}
	if len(q.entries) >= q.limit {
		// Best-effort channel; there is no caller to report to.
		over := len(q.entries) - q.limit + 1
		q.entries = q.entries[over:]
		q.dropped += uint64(over)
		dropped += over
	}
	q.entries = append(q.entries, ev)

	// Wake every waiter; they re-check under the lock.
	close(q.wake)
	q.wake = make(chan struct{})

	return dropped
}

// tryNext consumes the entry at the cursor, if any.
func (q *eventQueue) tryNext() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Event{}, false
	}
	ev := q.entries[0]
	q.entries = q.entries[1:]
	return ev, true
}

// readable returns a channel that is closed on the next publish.
// Callers must grab it before re-checking pending, never after.
func (q *eventQueue) readable() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wake
}

func (q *eventQueue) pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) > 0
}

func (q *eventQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *eventQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
