package core

import "sync"

// DefaultSendBuffer is the outbound queue size used when none is configured.
const DefaultSendBuffer = 64

// Conn is the outbound half of a live connection as seen by the relay.
// Room membership is keyed by *Conn identity, never by user ID.
type Conn struct {
	ID string

	mu     sync.Mutex
	events chan *Event
	closed bool
}

// NewConn constructs a connection handle with a bounded outbound queue.
func NewConn(id string, buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Conn{
		ID:     id,
		events: make(chan *Event, buffer),
	}
}

// Events returns the outbound queue drained by the transport write loop.
// The channel is closed by Close.
func (c *Conn) Events() <-chan *Event {
	return c.events
}

// Close marks the connection closed and releases the write loop.
// Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// deliver enqueues ev without blocking.
func (c *Conn) deliver(ev *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.events <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Participant is one live connection's identity within a room.
type Participant struct {
	Conn     *Conn
	UserID   string
	Username string
}
