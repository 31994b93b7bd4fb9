package main

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var (
	// connWriteTimeout bounds a single WebSocket write.
	connWriteTimeout = 5 * time.Second
	// connWriteBuffer is the per-connection outbound queue size. A full
	// queue means the peer is not draining and the connection is treated
	// as dead.
	connWriteBuffer = 64
)

var errConnClosed = errors.New("connection closed")

// gwConnection wraps one WebSocket connection with a serialized write sink.
// The read loop and the block broadcaster both enqueue through Write, so a
// single writer goroutine owns the socket and gorilla's single-writer rule
// holds.
type gwConnection struct {
	id     string
	conn   *websocket.Conn
	logger Logger

	writeSink chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	onSent    func()
}

func newGWConnection(id string, conn *websocket.Conn, logger Logger, onSent func()) *gwConnection {
	return &gwConnection{
		id:        id,
		conn:      conn,
		logger:    logger.With("connectionID", id),
		writeSink: make(chan []byte, connWriteBuffer),
		closed:    make(chan struct{}),
		onSent:    onSent,
	}
}

func (c *gwConnection) ConnectionID() string {
	return c.id
}

// Write enqueues a payload for delivery. It fails when the connection is
// closed or its outbound queue is full.
func (c *gwConnection) Write(payload []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.writeSink <- payload:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return errors.New("connection write queue is full")
	}
}

// WritePump drains the write sink onto the socket until the context is
// cancelled or a write fails. It must run in its own goroutine.
func (c *gwConnection) WritePump(ctx context.Context) {
	defer c.markClosed()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-c.writeSink:
			_ = c.conn.SetWriteDeadline(time.Now().Add(connWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("connection write failed", "error", err)
				return
			}
			if c.onSent != nil {
				c.onSent()
			}
		}
	}
}

func (c *gwConnection) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// SubscriberHub is the set of connections currently receiving block-event
// broadcasts. Connection handlers mutate it on subscribe/unsubscribe and
// disconnect; the broadcaster reads it on every tick. One mutex covers both,
// held only across map access, never across socket writes.
type SubscriberHub struct {
	mu   sync.RWMutex
	subs map[string]*gwConnection
}

func NewSubscriberHub() *SubscriberHub {
	return &SubscriberHub{
		subs: make(map[string]*gwConnection),
	}
}

// Add subscribes a connection to block events. Re-adding is a no-op.
func (h *SubscriberHub) Add(conn *gwConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[conn.ConnectionID()] = conn
}

// Remove unsubscribes a connection. Removing an absent entry is a no-op.
func (h *SubscriberHub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, connID)
}

// Len returns the current subscriber count.
func (h *SubscriberHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast sends a payload to every subscriber. Subscribers whose write
// fails are pruned from the set without aborting delivery to the rest.
// Returns the number of pruned connections.
func (h *SubscriberHub) Broadcast(payload []byte) int {
	h.mu.RLock()
	snapshot := make([]*gwConnection, 0, len(h.subs))
	for _, conn := range h.subs {
		snapshot = append(snapshot, conn)
	}
	h.mu.RUnlock()

	var dead []string
	for _, conn := range snapshot {
		if err := conn.Write(payload); err != nil {
			dead = append(dead, conn.ConnectionID())
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, id := range dead {
			delete(h.subs, id)
		}
		h.mu.Unlock()
	}
	return len(dead)
}
