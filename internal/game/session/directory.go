// Package session owns the participant table, the connection index and the
// room directory, and plans envelope delivery to room occupants.
//
// A Directory is not safe for concurrent use. The game server serializes all
// access behind a single mutex.
package session

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/impostor/internal/game/player"
	"github.com/cory-johannsen/impostor/internal/game/random"
	"github.com/cory-johannsen/impostor/internal/game/room"
)

// CodeAlphabet is the set of characters room codes are drawn from.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the number of characters in a room code.
const CodeLength = 4

// maxCodeAttempts bounds collision retries in GenerateRoomCode.
const maxCodeAttempts = 1000

var (
	// ErrRoomNotFound is returned when a room code does not name an active room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrHostCannotJoin is returned when a host asks to join its own room as a player.
	ErrHostCannotJoin = errors.New("the host cannot join their own room as a player")
	// ErrCodeSpaceExhausted is returned when no unused room code could be found.
	ErrCodeSpaceExhausted = errors.New("no room codes available")
)

// codeSpace is the number of distinct room codes.
var codeSpace = func() int {
	n := 1
	for i := 0; i < CodeLength; i++ {
		n *= len(CodeAlphabet)
	}
	return n
}()

// Identity is the outcome of Identify.
type Identity struct {
	// Participant is the identified record, bound to the calling connection.
	Participant *player.Participant
	// Reclaimed is true when an existing record was rebound.
	Reclaimed bool
	// Detached is the participant previously bound to the same connection,
	// now unbound, when the connection switched identity. nil otherwise.
	Detached *player.Participant
}

// Directory tracks participants, their connections and the active rooms.
//
// Invariant: every conns entry maps a connection id to the participant whose
// Conn has that id.
// Invariant: a participant's RoomCode is "" or names an active room in which
// it is the host or a member.
type Directory struct {
	rooms        map[string]*room.Room
	participants map[string]*player.Participant
	conns        map[string]*player.Participant

	src   random.Source
	now   func() time.Time
	newID func() string

	identified int
}

// NewDirectory creates an empty Directory.
//
// Precondition: src must be non-nil. now may be nil, in which case time.Now is used.
func NewDirectory(src random.Source, now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		rooms:        make(map[string]*room.Room),
		participants: make(map[string]*player.Participant),
		conns:        make(map[string]*player.Participant),
		src:          src,
		now:          now,
		newID:        uuid.NewString,
	}
}

// Now returns the directory clock's current time.
func (d *Directory) Now() time.Time { return d.now() }

// Source returns the randomness source rounds should draw from.
func (d *Directory) Source() random.Source { return d.src }

// NormalizeCode trims and upper-cases a client-supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateRoomCode returns a code not used by any active room.
//
// Postcondition: Returns a CodeLength code over CodeAlphabet, or ErrCodeSpaceExhausted.
func (d *Directory) GenerateRoomCode() (string, error) {
	if len(d.rooms) >= codeSpace {
		return "", ErrCodeSpaceExhausted
	}
	buf := make([]byte, CodeLength)
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		for i := range buf {
			buf[i] = CodeAlphabet[d.src.Intn(len(CodeAlphabet))]
		}
		code := string(buf)
		if _, taken := d.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Identify registers or reclaims the participant for conn.
//
// A non-empty claimedID naming a known participant rebinds that participant
// to conn. Otherwise a new participant is created with claimedID, or a fresh
// id when claimedID is empty. A non-empty name replaces the display name of a
// reclaimed participant.
func (d *Directory) Identify(conn player.Conn, name, claimedID string) Identity {
	now := d.now()
	var out Identity

	if prev, ok := d.conns[conn.ID()]; ok && prev.ID != claimedID {
		delete(d.conns, conn.ID())
		prev.Unbind(now)
		d.touchRoomOf(prev, now)
		out.Detached = prev
	}

	if p, ok := d.participants[claimedID]; ok && claimedID != "" {
		if p.Conn != nil && p.Conn.ID() != conn.ID() {
			delete(d.conns, p.Conn.ID())
		}
		p.Bind(conn, now)
		d.conns[conn.ID()] = p
		if strings.TrimSpace(name) != "" {
			p.Name = player.NormalizeName(name, 0)
		}
		out.Participant = p
		out.Reclaimed = true
		return out
	}

	id := claimedID
	if id == "" {
		id = d.newID()
	}
	d.identified++
	p := player.New(id, player.NormalizeName(name, d.identified), conn, now)
	d.participants[id] = p
	d.conns[conn.ID()] = p
	out.Participant = p
	return out
}

// ParticipantByConn returns the participant bound to connID, or nil.
func (d *Directory) ParticipantByConn(connID string) *player.Participant {
	return d.conns[connID]
}

// Participant returns the participant with id, or nil.
func (d *Directory) Participant(id string) *player.Participant {
	return d.participants[id]
}

// Detach unbinds the participant currently bound to connID.
//
// Postcondition: Returns nil when connID is not bound to any participant,
// which is the case for a stale connection whose identity was rebound.
func (d *Directory) Detach(connID string) *player.Participant {
	p, ok := d.conns[connID]
	if !ok {
		return nil
	}
	delete(d.conns, connID)
	if !p.BoundTo(connID) {
		return nil
	}
	now := d.now()
	p.Unbind(now)
	d.touchRoomOf(p, now)
	return p
}

// Remove leaves the participant's room and drops its record.
//
// Postcondition: Returns the code of the room it left ("" for none) and
// whether that room was deleted.
func (d *Directory) Remove(id string) (string, bool) {
	p, ok := d.participants[id]
	if !ok {
		return "", false
	}
	code, deleted := d.LeaveRoom(p)
	if p.Conn != nil {
		delete(d.conns, p.Conn.ID())
	}
	delete(d.participants, id)
	return code, deleted
}

// CreateRoom allocates a room hosted by host, leaving any current room first.
//
// Postcondition: host.RoomCode names the new room, which has no members.
func (d *Directory) CreateRoom(host *player.Participant) (*room.Room, error) {
	code, err := d.GenerateRoomCode()
	if err != nil {
		return nil, err
	}
	d.LeaveRoom(host)
	r := room.New(code, host.ID, d.now())
	d.rooms[code] = r
	host.RoomCode = code
	return r, nil
}

// JoinRoom adds p as a member of the room named by code, leaving any other
// room first. Joining the room p already plays in is a no-op.
//
// Postcondition: On error no state changes.
func (d *Directory) JoinRoom(p *player.Participant, code string) (*room.Room, error) {
	code = NormalizeCode(code)
	r, ok := d.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if r.IsHost(p.ID) {
		return nil, ErrHostCannotJoin
	}
	if r.IsMember(p.ID) {
		return r, nil
	}
	if r.Phase() != room.PhaseLobby {
		return nil, room.ErrNotJoinable
	}
	d.LeaveRoom(p)
	if err := r.Add(p); err != nil {
		return nil, err
	}
	r.Touch(d.now())
	p.RoomCode = code
	return r, nil
}

// LeaveRoom removes p from its room, or vacates the host seat when p hosts it.
// A room is deleted when its last member leaves, which also clears the host's
// room code. Idempotent.
//
// Postcondition: p.RoomCode is "". Returns the code left and whether the room was deleted.
func (d *Directory) LeaveRoom(p *player.Participant) (string, bool) {
	code := p.RoomCode
	if code == "" {
		return "", false
	}
	p.RoomCode = ""
	r, ok := d.rooms[code]
	if !ok {
		return "", false
	}
	if r.IsHost(p.ID) {
		r.HostID = ""
		r.Touch(d.now())
		return code, false
	}
	if !r.Remove(p.ID) {
		return code, false
	}
	if r.MemberCount() == 0 {
		d.deleteRoom(r)
		return code, true
	}
	r.Touch(d.now())
	return code, false
}

// Room returns the active room named by code, or nil.
func (d *Directory) Room(code string) *room.Room {
	return d.rooms[NormalizeCode(code)]
}

// RoomFor returns the room p hosts or plays in, or nil.
func (d *Directory) RoomFor(p *player.Participant) *room.Room {
	if p == nil || p.RoomCode == "" {
		return nil
	}
	return d.rooms[p.RoomCode]
}

// RoomCount returns the number of active rooms.
func (d *Directory) RoomCount() int { return len(d.rooms) }

// ParticipantCount returns the number of known participants, connected or not.
func (d *Directory) ParticipantCount() int { return len(d.participants) }

// ConnectedCount returns the number of participants with a live connection.
func (d *Directory) ConnectedCount() int { return len(d.conns) }

// Broadcast plans delivery of data to every connected member of the room and
// to its host. excludeID suppresses one recipient, host included.
func (d *Directory) Broadcast(code string, data []byte, excludeID string) Outbox {
	var out Outbox
	r, ok := d.rooms[code]
	if !ok {
		return out
	}
	for _, m := range r.Members() {
		if m.ID == excludeID || m.Conn == nil {
			continue
		}
		out.Add(m.ID, m.Conn, data)
	}
	if r.HostID != "" && r.HostID != excludeID {
		if h, ok := d.participants[r.HostID]; ok && h.Conn != nil {
			out.Add(h.ID, h.Conn, data)
		}
	}
	return out
}

// Send plans delivery of data to p alone. Nothing is planned while p is disconnected.
func (d *Directory) Send(p *player.Participant, data []byte) Outbox {
	var out Outbox
	if p != nil && p.Conn != nil {
		out.Add(p.ID, p.Conn, data)
	}
	return out
}

// ReapIdle deletes rooms that have had no members and no connected host for
// at least idle.
//
// Postcondition: Returns the deleted codes in sorted order.
func (d *Directory) ReapIdle(idle time.Duration) []string {
	now := d.now()
	var reaped []string
	for code, r := range d.rooms {
		if r.MemberCount() > 0 || now.Sub(r.LastActive()) < idle {
			continue
		}
		host := d.participants[r.HostID]
		if host != nil && host.Connected {
			continue
		}
		d.deleteRoom(r)
		reaped = append(reaped, code)
	}
	sort.Strings(reaped)
	return reaped
}

// deleteRoom removes r and clears its host's room code.
func (d *Directory) deleteRoom(r *room.Room) {
	if h, ok := d.participants[r.HostID]; ok && h.RoomCode == r.Code {
		h.RoomCode = ""
	}
	delete(d.rooms, r.Code)
}

func (d *Directory) touchRoomOf(p *player.Participant, now time.Time) {
	if r := d.RoomFor(p); r != nil {
		r.Touch(now)
	}
}
