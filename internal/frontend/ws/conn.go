// Package ws provides the WebSocket transport: an acceptor that upgrades HTTP
// requests and a connection type with bounded outbound queueing.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/impostor/internal/config"
)

// ErrClosed is returned by Send after the connection was closed.
var ErrClosed = errors.New("connection closed")

// Conn is one client WebSocket connection. Outbound envelopes are queued and
// written by a dedicated write pump; inbound frames are read by ReadLoop.
//
// Send and Close are safe for concurrent use.
type Conn struct {
	id     string
	remote string
	raw    *websocket.Conn

	writeTimeout time.Duration
	pongWait     time.Duration
	pingPeriod   time.Duration
	readLimit    int64

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an upgraded WebSocket connection.
//
// Precondition: raw must be an open connection; cfg must be valid.
// Postcondition: Returns a Conn with an empty outbound queue of cfg.SendBuffer entries.
func NewConn(raw *websocket.Conn, remote string, cfg config.WebSocketConfig) *Conn {
	return &Conn{
		id:           uuid.NewString(),
		remote:       remote,
		raw:          raw,
		writeTimeout: cfg.WriteTimeout,
		pongWait:     cfg.PongWait,
		pingPeriod:   cfg.PingPeriod(),
		readLimit:    cfg.MaxMessageBytes,
		send:         make(chan []byte, cfg.SendBuffer),
		done:         make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address reported by the HTTP server.
func (c *Conn) RemoteAddr() string { return c.remote }

// Send queues one text frame. It waits for queue space until ctx expires.
//
// Postcondition: Returns nil once data is queued, ErrClosed after Close, or
// an error wrapping ctx.Err() when the queue stayed full.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("outbound queue full: %w", ctx.Err())
	}
}

// Close stops the write pump, which closes the underlying connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Done is closed when Close is called.
func (c *Conn) Done() <-chan struct{} { return c.done }

// ReadLoop delivers inbound frames to handle until the peer goes away, the
// keepalive lapses or the connection is closed.
//
// Postcondition: Returns the error that ended the loop.
func (c *Conn) ReadLoop(handle func(data []byte)) error {
	c.raw.SetReadLimit(c.readLimit)
	_ = c.raw.SetReadDeadline(time.Now().Add(c.pongWait))
	c.raw.SetPongHandler(func(string) error {
		return c.raw.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := c.raw.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.raw.SetReadDeadline(time.Now().Add(c.pongWait))
		handle(data)
	}
}

// WritePump drains the outbound queue and sends keepalive pings until Close
// is called or a write fails. It closes the underlying connection on return.
func (c *Conn) WritePump(logger *zap.Logger) {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.raw.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.raw.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("write failed", zap.String("conn", c.id), zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.raw.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("ping failed", zap.String("conn", c.id), zap.Error(err))
				_ = c.Close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.raw.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			return
		}
	}
}

// drain writes whatever is still queued so a final reply is not lost on close.
func (c *Conn) drain() {
	for {
		select {
		case data := <-c.send:
			_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.raw.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
