// Package player defines the participant record shared by the room and
// session packages, and the connection handle it is bound to.
package player

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNameLength is the maximum display name length in runes.
const MaxNameLength = 15

// Conn is the outbound half of a client connection.
type Conn interface {
	// ID returns an identifier unique among live connections.
	ID() string
	// Send enqueues one encoded envelope, giving up when ctx expires.
	Send(ctx context.Context, data []byte) error
	// Close terminates the connection. Safe to call more than once.
	Close() error
}

// Participant tracks one client identity across connections.
//
// Invariant: Connected == (Conn != nil).
type Participant struct {
	// ID is opaque and stable across reconnection.
	ID string
	// Name is the display name, at most MaxNameLength runes.
	Name string
	// Conn is the current connection; nil while disconnected.
	Conn Conn
	// RoomCode is the room the participant hosts or plays in; "" for none.
	RoomCode string
	// Connected reports whether a live connection is bound.
	Connected bool
	// LastSeen is the last time the participant was bound or unbound.
	LastSeen time.Time
}

// New creates a connected participant bound to conn.
//
// Precondition: id must be non-empty; conn must be non-nil.
func New(id, name string, conn Conn, now time.Time) *Participant {
	return &Participant{
		ID:        id,
		Name:      name,
		Conn:      conn,
		Connected: true,
		LastSeen:  now,
	}
}

// Bind attaches conn, marking the participant connected.
//
// Postcondition: Conn == conn, Connected is true, LastSeen == now.
func (p *Participant) Bind(conn Conn, now time.Time) {
	p.Conn = conn
	p.Connected = true
	p.LastSeen = now
}

// Unbind detaches the current connection, marking the participant disconnected.
//
// Postcondition: Conn is nil, Connected is false, LastSeen == now.
func (p *Participant) Unbind(now time.Time) {
	p.Conn = nil
	p.Connected = false
	p.LastSeen = now
}

// BoundTo reports whether connID is the participant's current connection.
func (p *Participant) BoundTo(connID string) bool {
	return p.Conn != nil && p.Conn.ID() == connID
}

// NormalizeName trims raw and truncates it to MaxNameLength runes. An empty
// result is replaced with "Player<ordinal>".
func NormalizeName(raw string, ordinal int) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		name = fmt.Sprintf("Player%d", ordinal)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	return name
}
