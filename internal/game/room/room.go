// Package room implements the per-room membership and round state machine.
//
// A Room is not safe for concurrent use; the owning session directory
// serializes every call.
package room

import (
	"errors"
	"time"

	"github.com/cory-johannsen/impostor/internal/game/player"
	"github.com/cory-johannsen/impostor/internal/game/random"
)

// MinMembers is the minimum number of members required to start a round.
const MinMembers = 3

// Phase is the round state of a room.
type Phase string

const (
	// PhaseLobby accepts joins; no round is in progress.
	PhaseLobby Phase = "lobby"
	// PhasePlaying has a topic and an impostor assigned.
	PhasePlaying Phase = "playing"
)

var (
	// ErrNotJoinable is returned when joining a room whose round is in progress.
	ErrNotJoinable = errors.New("room is not accepting players")
	// ErrNotStartable is returned when a round is requested with too few members.
	ErrNotStartable = errors.New("at least 3 players are required to start a round")
	// ErrNotPlaying is returned by round queries while the room is in the lobby.
	ErrNotPlaying = errors.New("no round in progress")
	// ErrNotMember is returned for round queries by a participant outside the room.
	ErrNotMember = errors.New("not a member of this room")
	// ErrNoTopics is returned when a round is started with an empty corpus.
	ErrNoTopics = errors.New("topic corpus is empty")
)

// Role is what one participant is told about the current round.
type Role struct {
	// Observer is true for the host, who does not play.
	Observer bool
	// IsImpostor is true for exactly one member per round.
	IsImpostor bool
	// Topic is the secret topic; always empty for the impostor and the host.
	Topic string
	// Name is the requesting participant's display name.
	Name string
}

// Results is the reveal payload for the current round.
type Results struct {
	Topic        string
	ImpostorID   string
	ImpostorName string
}

// Room holds membership and round state for one room code.
//
// Invariant: HostID is never a member key.
// Invariant: phase == PhasePlaying implies impostorID is a member key and topic != "".
// Invariant: every ready key is a member key.
type Room struct {
	// Code is the join code, unique among active rooms.
	Code string
	// HostID is the distinguished non-playing participant; "" once the host left.
	HostID string

	members map[string]*player.Participant
	order   []string

	phase      Phase
	topic      string
	impostorID string
	ready      map[string]bool

	lastActive time.Time
}

// New creates an empty room in the lobby.
//
// Precondition: code and hostID must be non-empty.
func New(code, hostID string, now time.Time) *Room {
	return &Room{
		Code:       code,
		HostID:     hostID,
		members:    make(map[string]*player.Participant),
		phase:      PhaseLobby,
		ready:      make(map[string]bool),
		lastActive: now,
	}
}

// Phase returns the current round phase.
func (r *Room) Phase() Phase { return r.phase }

// Topic returns the current secret topic; "" in the lobby.
func (r *Room) Topic() string { return r.topic }

// ImpostorID returns the current impostor; "" in the lobby.
func (r *Room) ImpostorID() string { return r.impostorID }

// LastActive returns the time of the last membership or round change.
func (r *Room) LastActive() time.Time { return r.lastActive }

// Touch records activity at now.
func (r *Room) Touch(now time.Time) { r.lastActive = now }

// IsHost reports whether id is the room's host.
func (r *Room) IsHost(id string) bool {
	return id != "" && r.HostID == id
}

// IsMember reports whether id is a playing member.
func (r *Room) IsMember(id string) bool {
	_, ok := r.members[id]
	return ok
}

// MemberCount returns the number of playing members (host excluded).
func (r *Room) MemberCount() int { return len(r.members) }

// Members returns the members in join order.
func (r *Room) Members() []*player.Participant {
	out := make([]*player.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

// Add registers p as a member.
//
// Precondition: p must not be the host.
// Postcondition: Returns ErrNotJoinable during a round; adding an existing member is a no-op.
func (r *Room) Add(p *player.Participant) error {
	if r.phase != PhaseLobby {
		return ErrNotJoinable
	}
	if _, ok := r.members[p.ID]; ok {
		return nil
	}
	r.members[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

// Remove drops id from membership and readiness. Removing the impostor
// aborts the round and returns the room to the lobby.
//
// Postcondition: Returns true if id was a member.
func (r *Room) Remove(id string) bool {
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	delete(r.ready, id)
	for i, mid := range r.order {
		if mid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.phase == PhasePlaying && r.impostorID == id {
		r.reset()
	}
	return true
}

// StartRound begins a round: a topic is drawn uniformly from topics and an
// impostor uniformly from the current members. Calling it while a round is in
// progress restarts the round.
//
// Precondition: src must be non-nil.
// Postcondition: On error no state changes. On success phase is PhasePlaying
// and readiness is cleared.
func (r *Room) StartRound(topics []string, src random.Source) error {
	if len(r.members) < MinMembers {
		return ErrNotStartable
	}
	if len(topics) == 0 {
		return ErrNoTopics
	}
	r.phase = PhasePlaying
	r.topic = random.Pick(src, topics)
	r.impostorID = random.Pick(src, r.order)
	r.ready = make(map[string]bool)
	return nil
}

// NewRound reinitializes topic, impostor and readiness. It is the
// self-transition of PhasePlaying and has the same preconditions as StartRound.
func (r *Room) NewRound(topics []string, src random.Source) error {
	return r.StartRound(topics, src)
}

// MarkReady records that member id has seen its role.
//
// Postcondition: Returns true only when id was newly added. The host and
// non-members are ignored.
func (r *Room) MarkReady(id string) bool {
	if r.IsHost(id) || !r.IsMember(id) || r.ready[id] {
		return false
	}
	r.ready[id] = true
	return true
}

// IsReady reports whether member id has acknowledged its role.
func (r *Room) IsReady(id string) bool { return r.ready[id] }

// ReadyCount returns the number of members that acknowledged their role.
func (r *Room) ReadyCount() int { return len(r.ready) }

// AllReady reports whether every member has acknowledged its role.
func (r *Room) AllReady() bool {
	return len(r.ready) == len(r.members)
}

// Role returns what id is allowed to know about the current round.
//
// Postcondition: The impostor's Role never carries the topic.
func (r *Room) Role(id string) (Role, error) {
	if r.phase != PhasePlaying {
		return Role{}, ErrNotPlaying
	}
	if r.IsHost(id) {
		return Role{Observer: true}, nil
	}
	p, ok := r.members[id]
	if !ok {
		return Role{}, ErrNotMember
	}
	if id == r.impostorID {
		return Role{IsImpostor: true, Name: p.Name}, nil
	}
	return Role{Topic: r.topic, Name: p.Name}, nil
}

// Results returns the reveal payload. The phase is unchanged.
func (r *Room) Results() (Results, error) {
	if r.phase != PhasePlaying {
		return Results{}, ErrNotPlaying
	}
	res := Results{Topic: r.topic, ImpostorID: r.impostorID}
	if p, ok := r.members[r.impostorID]; ok {
		res.ImpostorName = p.Name
	}
	return res, nil
}

func (r *Room) reset() {
	r.phase = PhaseLobby
	r.topic = ""
	r.impostorID = ""
	r.ready = make(map[string]bool)
}
