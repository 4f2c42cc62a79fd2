package room_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/impostor/internal/game/player"
	"github.com/cory-johannsen/impostor/internal/game/random"
	"github.com/cory-johannsen/impostor/internal/game/room"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var topics = []string{"Pizza", "Volcano", "Library"}

func newRoomWith(t *testing.T, n int) *room.Room {
	t.Helper()
	r := room.New("ABCD", "host", epoch)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%d", i)
		require.NoError(t, r.Add(player.New(id, "Name"+id, nil, epoch)))
	}
	return r
}

func TestNew(t *testing.T) {
	r := room.New("ABCD", "host", epoch)
	assert.Equal(t, "ABCD", r.Code)
	assert.Equal(t, room.PhaseLobby, r.Phase())
	assert.Equal(t, 0, r.MemberCount())
	assert.True(t, r.IsHost("host"))
	assert.False(t, r.IsMember("host"))
	assert.Equal(t, epoch, r.LastActive())
}

func TestIsHost_EmptyID(t *testing.T) {
	r := room.New("ABCD", "host", epoch)
	r.HostID = ""
	assert.False(t, r.IsHost(""))
}

func TestAdd_PreservesOrderAndIsIdempotent(t *testing.T) {
	r := newRoomWith(t, 3)
	require.NoError(t, r.Add(player.New("p1", "again", nil, epoch)))
	ids := make([]string, 0, 3)
	for _, m := range r.Members() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"p0", "p1", "p2"}, ids)
	assert.Equal(t, "Namep1", r.Members()[1].Name)
}

func TestAdd_RejectedWhilePlaying(t *testing.T) {
	r := newRoomWith(t, 3)
	require.NoError(t, r.StartRound(topics, random.NewSequence(0)))
	err := r.Add(player.New("late", "Late", nil, epoch))
	assert.ErrorIs(t, err, room.ErrNotJoinable)
	assert.Equal(t, 3, r.MemberCount())
}

func TestStartRound_TooFewMembers(t *testing.T) {
	r := newRoomWith(t, 2)
	err := r.StartRound(topics, random.NewSequence(0))
	assert.ErrorIs(t, err, room.ErrNotStartable)
	assert.Equal(t, room.PhaseLobby, r.Phase())
	assert.Empty(t, r.Topic())
	assert.Empty(t, r.ImpostorID())
}

func TestStartRound_EmptyCorpus(t *testing.T) {
	r := newRoomWith(t, 3)
	assert.ErrorIs(t, r.StartRound(nil, random.NewSequence(0)), room.ErrNoTopics)
	assert.Equal(t, room.PhaseLobby, r.Phase())
}

func TestStartRound_UsesSource(t *testing.T) {
	r := newRoomWith(t, 3)
	// first draw picks the topic, second the impostor
	require.NoError(t, r.StartRound(topics, random.NewSequence(1, 2)))
	assert.Equal(t, room.PhasePlaying, r.Phase())
	assert.Equal(t, "Volcano", r.Topic())
	assert.Equal(t, "p2", r.ImpostorID())
}

func TestNewRound_ClearsReadiness(t *testing.T) {
	r := newRoomWith(t, 3)
	require.NoError(t, r.StartRound(topics, random.NewSequence(0, 0)))
	r.MarkReady("p0")
	r.MarkReady("p1")
	require.Equal(t, 2, r.ReadyCount())

	require.NoError(t, r.NewRound(topics, random.NewSequence(2, 1)))
	assert.Equal(t, room.PhasePlaying, r.Phase())
	assert.Equal(t, 0, r.ReadyCount())
	assert.Equal(t, "Library", r.Topic())
	assert.Equal(t, "p1", r.ImpostorID())
}

func TestMarkReady(t *testing.T) {
	r := newRoomWith(t, 3)
	require.NoError(t, r.StartRound(topics, random.NewSequence(0)))

	assert.True(t, r.MarkReady("p0"))
	assert.False(t, r.MarkReady("p0"), "second mark is a no-op")
	assert.False(t, r.MarkReady("host"), "host never becomes ready")
	assert.False(t, r.MarkReady("stranger"))
	assert.True(t, r.IsReady("p0"))
	assert.Equal(t, 1, r.ReadyCount())
	assert.False(t, r.AllReady())

	r.MarkReady("p1")
	r.MarkReady("p2")
	assert.True(t, r.AllReady())
}

func TestRole(t *testing.T) {
	r := newRoomWith(t, 3)
	_, err := r.Role("p0")
	assert.ErrorIs(t, err, room.ErrNotPlaying)

	require.NoError(t, r.StartRound(topics, random.NewSequence(0, 1)))

	imp, err := r.Role("p1")
	require.NoError(t, err)
	assert.True(t, imp.IsImpostor)
	assert.Empty(t, imp.Topic)
	assert.Equal(t, "Namep1", imp.Name)

	crew, err := r.Role("p0")
	require.NoError(t, err)
	assert.False(t, crew.IsImpostor)
	assert.Equal(t, "Pizza", crew.Topic)

	host, err := r.Role("host")
	require.NoError(t, err)
	assert.True(t, host.Observer)
	assert.Empty(t, host.Topic)

	_, err = r.Role("stranger")
	assert.ErrorIs(t, err, room.ErrNotMember)
}

func TestResults(t *testing.T) {
	r := newRoomWith(t, 3)
	_, err := r.Results()
	assert.ErrorIs(t, err, room.ErrNotPlaying)

	require.NoError(t, r.StartRound(topics, random.NewSequence(2, 0)))
	res, err := r.Results()
	require.NoError(t, err)
	assert.Equal(t, room.Results{Topic: "Library", ImpostorID: "p0", ImpostorName: "Namep0"}, res)
	assert.Equal(t, room.PhasePlaying, r.Phase(), "reveal does not change phase")
}

func TestRemove(t *testing.T) {
	r := newRoomWith(t, 4)
	require.NoError(t, r.StartRound(topics, random.NewSequence(0, 0)))
	r.MarkReady("p3")

	assert.True(t, r.Remove("p3"))
	assert.False(t, r.Remove("p3"))
	assert.False(t, r.IsReady("p3"))
	assert.Equal(t, room.PhasePlaying, r.Phase(), "non-impostor leaving keeps the round")
	assert.Equal(t, 3, r.MemberCount())
}

func TestRemove_ImpostorAbortsRound(t *testing.T) {
	r := newRoomWith(t, 4)
	require.NoError(t, r.StartRound(topics, random.NewSequence(0, 2)))
	require.Equal(t, "p2", r.ImpostorID())
	r.MarkReady("p0")

	r.Remove("p2")
	assert.Equal(t, room.PhaseLobby, r.Phase())
	assert.Empty(t, r.Topic())
	assert.Empty(t, r.ImpostorID())
	assert.Equal(t, 0, r.ReadyCount())
}

func TestTouch(t *testing.T) {
	r := room.New("ABCD", "host", epoch)
	later := epoch.Add(time.Minute)
	r.Touch(later)
	assert.Equal(t, later, r.LastActive())
}

// Property-based tests

func drawRoom(t *rapid.T) *room.Room {
	n := rapid.IntRange(room.MinMembers, 10).Draw(t, "members")
	r := room.New("ROOM", "host", epoch)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%d", i)
		if err := r.Add(player.New(id, id, nil, epoch)); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	return r
}

func TestPropertyOneImpostorAndSharedTopic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := drawRoom(t)
		corpus := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 20).Draw(t, "topics")
		if err := r.StartRound(corpus, random.NewCryptoSource()); err != nil {
			t.Fatalf("start: %v", err)
		}
		if !r.IsMember(r.ImpostorID()) {
			t.Fatalf("impostor %q is not a member", r.ImpostorID())
		}
		impostors := 0
		for _, m := range r.Members() {
			role, err := r.Role(m.ID)
			if err != nil {
				t.Fatalf("role %s: %v", m.ID, err)
			}
			if role.IsImpostor {
				impostors++
				if role.Topic != "" {
					t.Fatalf("impostor saw topic %q", role.Topic)
				}
				continue
			}
			if role.Topic == "" || role.Topic != r.Topic() {
				t.Fatalf("member %s saw %q, want %q", m.ID, role.Topic, r.Topic())
			}
		}
		if impostors != 1 {
			t.Fatalf("got %d impostors", impostors)
		}
	})
}

func TestPropertyMarkReadyIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := drawRoom(t)
		if err := r.StartRound(topics, random.NewCryptoSource()); err != nil {
			t.Fatalf("start: %v", err)
		}
		ids := rapid.SliceOf(rapid.SampledFrom([]string{"p0", "p1", "p2", "host", "nobody"})).Draw(t, "marks")
		seen := map[string]bool{}
		for _, id := range ids {
			r.MarkReady(id)
			if r.IsMember(id) {
				seen[id] = true
			}
		}
		if r.ReadyCount() != len(seen) {
			t.Fatalf("ready count %d, want %d", r.ReadyCount(), len(seen))
		}
		if r.AllReady() != (len(seen) == r.MemberCount()) {
			t.Fatalf("AllReady mismatch: ready=%d members=%d", len(seen), r.MemberCount())
		}
	})
}

func TestPropertyRemovalKeepsPlayingInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := drawRoom(t)
		if err := r.StartRound(topics, random.NewCryptoSource()); err != nil {
			t.Fatalf("start: %v", err)
		}
		members := r.Members()
		victim := rapid.SampledFrom(members).Draw(t, "victim")
		r.Remove(victim.ID)
		if r.Phase() == room.PhasePlaying && !r.IsMember(r.ImpostorID()) {
			t.Fatalf("playing with non-member impostor %q", r.ImpostorID())
		}
		if r.Phase() == room.PhaseLobby && r.ImpostorID() != "" {
			t.Fatalf("lobby retains impostor %q", r.ImpostorID())
		}
	})
}
