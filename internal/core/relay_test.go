package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinNotifiesExistingMembersAndAcksJoiner(t *testing.T) {
	r := newTestRelay()
	alice := newParticipant("c-a", "1", "alice")
	bob := newParticipant("c-b", "2", "bob")

	mustJoin(t, r, "algo-101", alice)
	first := drain(alice.Conn)
	require.Len(t, first, 1)
	assert.Equal(t, EventRoomInfo, first[0].Kind)
	assert.Equal(t, 1, first[0].UserCount)
	assert.Equal(t, "algo-101", first[0].Room)

	mustJoin(t, r, "algo-101", bob)

	aliceEvents := drain(alice.Conn)
	require.Len(t, aliceEvents, 1, "alice gets exactly one user_joined")
	assert.Equal(t, EventUserJoined, aliceEvents[0].Kind)
	assert.Equal(t, "2", aliceEvents[0].UserID)
	assert.Equal(t, "bob", aliceEvents[0].Username)
	assert.Equal(t, fixedNow, aliceEvents[0].Timestamp)

	bobEvents := drain(bob.Conn)
	require.Len(t, bobEvents, 1, "bob gets exactly one room_info")
	assert.Equal(t, EventRoomInfo, bobEvents[0].Kind)
	assert.Equal(t, 2, bobEvents[0].UserCount)
}

func TestCodeUpdateSkipsSenderChatReachesEveryone(t *testing.T) {
	r := newTestRelay()
	a := newParticipant("c-a", "1", "alice")
	b := newParticipant("c-b", "2", "bob")
	c := newParticipant("c-c", "3", "carol")
	for _, p := range []Participant{a, b, c} {
		mustJoin(t, r, "room", p)
	}
	for _, p := range []Participant{a, b, c} {
		drain(p.Conn)
	}

	err := r.RelayCodeUpdate("room", a.Conn, CodePayload{Code: "print(1)", Language: "python"})
	require.NoError(t, err)

	assert.Empty(t, drain(a.Conn), "sender must not get its own code update")
	for _, p := range []Participant{b, c} {
		events := drain(p.Conn)
		require.Len(t, events, 1)
		ev := events[0]
		assert.Equal(t, EventCodeUpdate, ev.Kind)
		assert.Equal(t, "print(1)", ev.Code)
		assert.Equal(t, "python", ev.Language)
		assert.Equal(t, "1", ev.UserID)
		assert.Equal(t, "alice", ev.Username)
	}

	require.NoError(t, r.RelayChatMessage("room", a.Conn, "hello"))
	for _, p := range []Participant{a, b, c} {
		events := drain(p.Conn)
		require.Len(t, events, 1, "chat reaches %s", p.Username)
		assert.Equal(t, EventChatMessage, events[0].Kind)
		assert.Equal(t, "hello", events[0].Message)
		assert.Equal(t, "alice", events[0].Username)
	}
}

func TestLeaveNotifiesRemainingAndDeletesEmptyRoom(t *testing.T) {
	obs := newRecordingObserver()
	r := NewRelay(WithObserver(obs))
	a := newParticipant("c-a", "1", "alice")
	b := newParticipant("c-b", "2", "bob")
	mustJoin(t, r, "room", a)
	mustJoin(t, r, "room", b)
	drain(a.Conn)
	drain(b.Conn)

	r.Leave(b.Conn)
	events := drain(a.Conn)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserLeft, events[0].Kind)
	assert.Equal(t, "2", events[0].UserID)
	assert.Equal(t, 1, r.RoomSize("room"))

	r.Leave(a.Conn)
	assert.Empty(t, drain(a.Conn))
	assert.Empty(t, drain(b.Conn))
	assert.Empty(t, r.Rooms(), "empty room must be removed")
	_, exists := r.Members("room")
	assert.False(t, exists)

	// A fresh join recreates the room from scratch.
	c := newParticipant("c-c", "3", "carol")
	mustJoin(t, r, "room", c)
	events = drain(c.Conn)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].UserCount)

	assert.Equal(t, 2, obs.created)
	assert.Equal(t, 1, obs.deleted)
	assert.Equal(t, 3, obs.joined)
	assert.Equal(t, 2, obs.left)
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := newTestRelay()
	a := newParticipant("c-a", "1", "alice")
	b := newParticipant("c-b", "2", "bob")

	r.Leave(a.Conn) // never joined
	r.Leave(nil)

	mustJoin(t, r, "room", a)
	mustJoin(t, r, "room", b)
	drain(a.Conn)

	r.Leave(b.Conn)
	r.Leave(b.Conn)

	events := drain(a.Conn)
	require.Len(t, events, 1, "second leave must not broadcast")
	assert.Equal(t, 1, r.RoomSize("room"))
}

func TestUpdatesWithoutMembershipAreNoops(t *testing.T) {
	r := newTestRelay()
	stranger := NewConn("c-x", 4)
	a := newParticipant("c-a", "1", "alice")

	err := r.RelayCodeUpdate("room", stranger, CodePayload{Code: "x"})
	assert.True(t, errors.Is(err, ErrNotInRoom))
	assert.Empty(t, r.Rooms(), "no room may be created by an update")

	mustJoin(t, r, "room", a)
	drain(a.Conn)

	err = r.RelayChatMessage("room", stranger, "hi")
	assert.ErrorIs(t, err, ErrNotInRoom)
	err = r.RelayCodeUpdate("other-room", a.Conn, CodePayload{Code: "x"})
	assert.ErrorIs(t, err, ErrNotInRoom, "sender must be a member of the named room")
	err = r.RelayChatMessage("", a.Conn, "hi")
	assert.ErrorIs(t, err, ErrNotInRoom)
	err = r.RelayCodeUpdate("room", nil, CodePayload{})
	assert.ErrorIs(t, err, ErrNotInRoom)

	assert.Empty(t, drain(a.Conn))
	assert.Empty(t, drain(stranger))
	assert.Equal(t, 1, r.RoomSize("room"))
	assert.Equal(t, ErrCodeNotInRoom, Code(err))
}

func TestJoinRejectsMissingRoomOrConn(t *testing.T) {
	r := newTestRelay()

	err := r.Join("", newParticipant("c-a", "1", "alice"))
	assert.ErrorIs(t, err, ErrBadRequest)
	err = r.Join("room", Participant{UserID: "1"})
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Empty(t, r.Rooms())
}

func TestExclusionIsByConnectionNotUser(t *testing.T) {
	r := newTestRelay()
	stale := newParticipant("c-old", "7", "dana")
	fresh := newParticipant("c-new", "7", "dana")
	mustJoin(t, r, "room", stale)
	mustJoin(t, r, "room", fresh)
	drain(stale.Conn)
	drain(fresh.Conn)

	require.NoError(t, r.RelayCodeUpdate("room", fresh.Conn, CodePayload{Code: "v2"}))

	events := drain(stale.Conn)
	require.Len(t, events, 1, "a second connection of the same user still receives updates")
	assert.Equal(t, "v2", events[0].Code)
	assert.Empty(t, drain(fresh.Conn))
}

func TestRejoinSameRoomOnlyResendsRoomInfo(t *testing.T) {
	r := newTestRelay()
	a := newParticipant("c-a", "1", "alice")
	b := newParticipant("c-b", "2", "bob")
	mustJoin(t, r, "room", a)
	mustJoin(t, r, "room", b)
	drain(a.Conn)
	drain(b.Conn)

	mustJoin(t, r, "room", b)

	assert.Empty(t, drain(a.Conn), "no duplicate user_joined")
	events := drain(b.Conn)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomInfo, events[0].Kind)
	assert.Equal(t, 2, events[0].UserCount)
	assert.Equal(t, 2, r.RoomSize("room"))
}

func TestRejoinSameRoomKeepsFirstIdentity(t *testing.T) {
	r := newTestRelay()
	a := newParticipant("c-a", "1", "alice")
	b := newParticipant("c-b", "2", "bob")
	mustJoin(t, r, "room", a)
	mustJoin(t, r, "room", b)
	drain(a.Conn)

	mustJoin(t, r, "room", Participant{Conn: b.Conn, UserID: "99", Username: "mallory"})
	require.NoError(t, r.RelayChatMessage("room", b.Conn, "hi"))

	events := drain(a.Conn)
	require.Len(t, events, 1)
	assert.Equal(t, "2", events[0].UserID)
	assert.Equal(t, "bob", events[0].Username)

	members, ok := r.Members("room")
	require.True(t, ok)
	assert.Equal(t, "bob", members[1].Username)
}

func TestJoinAnotherRoomMovesConnection(t *testing.T) {
	r := newTestRelay()
	a := newParticipant("c-a", "1", "alice")
	b := newParticipant("c-b", "2", "bob")
	mustJoin(t, r, "first", a)
	mustJoin(t, r, "first", b)
	drain(a.Conn)
	drain(b.Conn)

	mustJoin(t, r, "second", b)

	assert.Equal(t, []EventKind{EventUserLeft}, kinds(drain(a.Conn)))
	events := drain(b.Conn)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomInfo, events[0].Kind)
	assert.Equal(t, "second", events[0].Room)

	room, ok := r.RoomOf(b.Conn)
	require.True(t, ok)
	assert.Equal(t, "second", room)
	assert.Equal(t, 1, r.RoomSize("first"))
	assert.Equal(t, 1, r.RoomSize("second"))
}

func TestClosedConnectionIsEvictedOnBroadcast(t *testing.T) {
	r := newTestRelay()
	a := newParticipant("c-a", "1", "alice")
	b := newParticipant("c-b", "2", "bob")
	c := newParticipant("c-c", "3", "carol")
	for _, p := range []Participant{a, b, c} {
		mustJoin(t, r, "room", p)
	}
	drain(a.Conn)
	drain(b.Conn)

	c.Conn.Close()
	require.NoError(t, r.RelayChatMessage("room", a.Conn, "anyone?"))

	assert.Equal(t, []EventKind{EventChatMessage, EventUserLeft}, kinds(drain(b.Conn)))
	assert.Equal(t, 2, r.RoomSize("room"))
	_, ok := r.RoomOf(c.Conn)
	assert.False(t, ok)
}

func TestSlowConsumerDoesNotAffectOthers(t *testing.T) {
	obs := newRecordingObserver()
	r := NewRelay(WithObserver(obs))
	slow := Participant{Conn: NewConn("c-slow", 1), UserID: "9", Username: "slow"}
	a := newParticipant("c-a", "1", "alice")

	mustJoin(t, r, "room", slow) // fills the single slot with room_info
	mustJoin(t, r, "room", a)
	drain(a.Conn)

	require.NoError(t, r.RelayChatMessage("room", a.Conn, "hi"))

	assert.Equal(t, []EventKind{EventChatMessage}, kinds(drain(a.Conn)))
	assert.Equal(t, 2, r.RoomSize("room"), "slow consumer stays a member")
	assert.Equal(t, 2, obs.failed[ErrCodeSlowConsumer])
}

func TestJoinOnClosedConnectionLeavesNoGhost(t *testing.T) {
	r := newTestRelay()
	a := newParticipant("c-a", "1", "alice")
	ghost := newParticipant("c-g", "2", "ghost")
	mustJoin(t, r, "room", a)
	drain(a.Conn)

	ghost.Conn.Close()
	mustJoin(t, r, "room", ghost)

	assert.Equal(t, []EventKind{EventUserJoined, EventUserLeft}, kinds(drain(a.Conn)))
	assert.Equal(t, 1, r.RoomSize("room"))
}

func TestMemberCountTracksConcurrentJoinsAndLeaves(t *testing.T) {
	r := NewRelay()
	const rooms, perRoom = 4, 25

	var wg sync.WaitGroup
	stay := make([][]Participant, rooms)
	for i := range rooms {
		for j := range perRoom {
			p := newParticipant(fmt.Sprintf("c-%d-%d", i, j), fmt.Sprint(j), "u")
			if j%2 == 0 {
				stay[i] = append(stay[i], p)
			}
			wg.Add(1)
			go func(room string, p Participant, leave bool) {
				defer wg.Done()
				_ = r.Join(room, p)
				_ = r.RelayCodeUpdate(room, p.Conn, CodePayload{Code: "x"})
				if leave {
					r.Leave(p.Conn)
				}
			}(fmt.Sprintf("room-%d", i), p, j%2 == 1)
		}
	}
	wg.Wait()

	for i := range rooms {
		assert.Equal(t, len(stay[i]), r.RoomSize(fmt.Sprintf("room-%d", i)))
	}

	for i := range rooms {
		for _, p := range stay[i] {
			r.Leave(p.Conn)
		}
	}
	assert.Empty(t, r.Rooms())
}

func TestRoomsAndMembersSnapshots(t *testing.T) {
	r := newTestRelay()
	mustJoin(t, r, "b-room", newParticipant("c-2", "2", "bob"))
	mustJoin(t, r, "a-room", newParticipant("c-1", "1", "alice"))
	mustJoin(t, r, "b-room", newParticipant("c-3", "3", "carol"))

	rooms := r.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "a-room", rooms[0].Room)
	assert.Equal(t, 1, rooms[0].UserCount)
	assert.Equal(t, "b-room", rooms[1].Room)
	assert.Equal(t, 2, rooms[1].UserCount)
	assert.Equal(t, fixedNow, rooms[1].CreatedAt)

	members, ok := r.Members("b-room")
	require.True(t, ok)
	require.Len(t, members, 2)
	assert.Equal(t, "bob", members[0].Username)
	assert.Equal(t, "carol", members[1].Username)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "code_update", EventCodeUpdate.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}
