// Package stream fans state estimates out to websocket subscribers.
//
// A Hub owns the set of connected clients and serializes all
// membership changes and broadcasts through a single Run goroutine,
// so the client map needs no locking. Each subscriber gets a bounded
// send queue; a subscriber that cannot keep up with the estimate rate
// is disconnected instead of stalling the feed.
package stream

import (
	"context"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

// DefaultClientBuffer bounds the per-client send queue. A subscriber
// that falls this many records behind is dropped.
const DefaultClientBuffer = 16

// Hub broadcasts encoded estimate records to connected subscribers.
type Hub struct {
	logger *zap.Logger
	buffer int

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	forward    chan []byte

	count atomic.Int64
}

// New returns a Hub whose clients each buffer up to buffer records.
// A non-positive buffer selects DefaultClientBuffer.
func New(logger *zap.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Hub{
		logger:     logger.Named("stream"),
		buffer:     buffer,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		forward:    make(chan []byte, DefaultClientBuffer),
	}
}

// Run owns the client set until ctx is canceled. All remaining
// subscribers are disconnected on exit.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(0)
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("subscriber joined", zap.String("remote", c.remote))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int64(len(h.clients)))
				h.logger.Debug("subscriber left", zap.String("remote", c.remote))
			}
		case msg := <-h.forward:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// A full queue means the peer stopped reading;
					// one stalled socket must not hold up the feed.
					h.logger.Warn("subscriber too slow, disconnecting",
						zap.String("remote", c.remote))
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

// Publish encodes est and queues it for broadcast. Records are dropped
// when the hub backlog is full or est fails to encode.
func (h *Hub) Publish(est *telemetry.StateEstimate) {
	data, err := est.Encode()
	if err != nil {
		h.logger.Error("encoding estimate for broadcast", zap.Error(err))
		return
	}
	select {
	case h.forward <- data:
	default:
		h.logger.Warn("broadcast backlog full, dropping estimate")
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// ServeHTTP upgrades the request to a websocket and attaches the peer
// to the hub until either side closes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.buffer),
		remote: conn.RemoteAddr().String(),
	}
	h.register <- c
	go c.writePump()
	c.readPump()
}
