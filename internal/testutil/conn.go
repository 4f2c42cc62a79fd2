// Package testutil provides test doubles and client helpers shared by the
// package tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrConnClosed is returned by FakeConn.Send after Close.
var ErrConnClosed = errors.New("fake conn closed")

// FakeConn is an in-memory player.Conn that records every envelope sent to it.
// It is safe for concurrent use.
type FakeConn struct {
	id string

	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	failWith error
	block    bool
}

// NewFakeConn returns an open FakeConn with the given connection id.
func NewFakeConn(id string) *FakeConn {
	return &FakeConn{id: id}
}

// ID returns the connection id.
func (c *FakeConn) ID() string { return c.id }

// Send records data, or fails as configured by FailWith and Block.
func (c *FakeConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	closed, fail, block := c.closed, c.failWith, c.block
	c.mu.Unlock()

	switch {
	case closed:
		return ErrConnClosed
	case fail != nil:
		return fail
	case block:
		<-ctx.Done()
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

// Close marks the connection closed. Safe to call multiple times.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FailWith makes every subsequent Send return err.
func (c *FakeConn) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

// Block makes every subsequent Send wait for its context to expire.
func (c *FakeConn) Block() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block = true
}

// Raw returns a copy of every recorded envelope in send order.
func (c *FakeConn) Raw() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// Messages decodes every recorded envelope as a JSON object.
// Envelopes that are not JSON objects are skipped.
func (c *FakeConn) Messages() []map[string]any {
	var out []map[string]any
	for _, raw := range c.Raw() {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Types returns the "type" field of every recorded envelope.
func (c *FakeConn) Types() []string {
	var out []string
	for _, m := range c.Messages() {
		t, _ := m["type"].(string)
		out = append(out, t)
	}
	return out
}

// Last returns the most recent envelope of the given type, or nil.
func (c *FakeConn) Last(typ string) map[string]any {
	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i]["type"] == typ {
			return msgs[i]
		}
	}
	return nil
}

// Count returns how many envelopes of the given type were recorded.
func (c *FakeConn) Count(typ string) int {
	n := 0
	for _, t := range c.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

// Reset forgets every recorded envelope.
func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}
