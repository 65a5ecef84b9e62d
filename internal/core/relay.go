package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Observer receives relay lifecycle notifications. Calls happen under the
// relay lock and must not block or call back into the relay.
type Observer interface {
	RoomCreated(room string)
	RoomDeleted(room string)
	MemberJoined(room string)
	MemberLeft(room string)
	EventRelayed(kind EventKind, recipients int)
	DeliveryFailed(kind EventKind, code string)
}

// RoomInfo is a point-in-time view of an active room.
type RoomInfo struct {
	Room      string
	UserCount int
	CreatedAt time.Time
}

// Relay owns the room registry and fans events out to room members.
// All registry access goes through Join, RelayCodeUpdate, RelayChatMessage
// and Leave, serialized by one mutex.
type Relay struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	roomOf map[*Conn]*Room

	log      *zerolog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.log = logger
		}
	}
}

// WithObserver attaches a lifecycle observer, e.g. metrics.
func WithObserver(o Observer) Option {
	return func(r *Relay) { r.observer = o }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRelay creates an empty relay.
func NewRelay(opts ...Option) *Relay {
	nop := zerolog.Nop()
	r := &Relay{
		rooms:  make(map[string]*Room),
		roomOf: make(map[*Conn]*Room),
		log:    &nop,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join adds p to roomID, creating the room on first use. Existing members get
// user_joined, then the joiner gets room_info with the post-join count.
//
// A connection already in roomID is left in place and only gets room_info
// again. A connection in another room leaves it first.
func (r *Relay) Join(roomID string, p Participant) error {
	if roomID == "" || p.Conn == nil {
		return fmt.Errorf("join: %w", ErrBadRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var closed []*Conn
	if current, ok := r.roomOf[p.Conn]; ok {
		if current.Name == roomID {
			r.evictLocked(r.sendRoomInfoLocked(current, p))
			return nil
		}
		closed = r.leaveLocked(p.Conn)
	}

	room := r.getOrCreateLocked(roomID)
	room.add(p)
	r.roomOf[p.Conn] = room
	r.notify(func(o Observer) { o.MemberJoined(roomID) })

	now := r.now()
	closed = append(closed, r.broadcastLocked(room, &Event{
		Kind:      EventUserJoined,
		Room:      roomID,
		UserID:    p.UserID,
		Username:  p.Username,
		Timestamp: now,
	}, p.Conn)...)
	closed = append(closed, r.sendRoomInfoLocked(room, p)...)

	r.evictLocked(closed)

	r.log.Debug().
		Str("room_id", roomID).
		Str("conn_id", p.Conn.ID).
		Str("user_id", p.UserID).
		Int("user_count", room.Size()).
		Msg("participant joined")
	return nil
}

// RelayCodeUpdate sends the sender's editor state to every other member of
// roomID. It is a no-op returning ErrNotInRoom when sender is not a member.
func (r *Relay) RelayCodeUpdate(roomID string, sender *Conn, payload CodePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, p, err := r.senderLocked(roomID, sender)
	if err != nil {
		return fmt.Errorf("code update: %w", err)
	}

	closed := r.broadcastLocked(room, &Event{
		Kind:      EventCodeUpdate,
		Room:      roomID,
		UserID:    p.UserID,
		Username:  p.Username,
		Code:      payload.Code,
		Language:  payload.Language,
		Timestamp: r.now(),
	}, sender)
	r.evictLocked(closed)
	return nil
}

// RelayChatMessage sends a chat line to every member of roomID, the sender
// included. It is a no-op returning ErrNotInRoom when sender is not a member.
func (r *Relay) RelayChatMessage(roomID string, sender *Conn, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, p, err := r.senderLocked(roomID, sender)
	if err != nil {
		return fmt.Errorf("chat message: %w", err)
	}

	closed := r.broadcastLocked(room, &Event{
		Kind:      EventChatMessage,
		Room:      roomID,
		UserID:    p.UserID,
		Username:  p.Username,
		Message:   text,
		Timestamp: r.now(),
	}, nil)
	r.evictLocked(closed)
	return nil
}

// Leave removes c from its room. Leaving twice, or without having joined,
// does nothing. The last member out deletes the room silently; otherwise the
// remaining members get user_left.
func (r *Relay) Leave(c *Conn) {
	if c == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked(r.leaveLocked(c))
}

// RoomSize returns the member count of roomID, zero when it does not exist.
func (r *Relay) RoomSize(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		return room.Size()
	}
	return 0
}

// Rooms returns the active rooms sorted by name.
func (r *Relay) Rooms() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := lo.MapToSlice(r.rooms, func(name string, room *Room) RoomInfo {
		return RoomInfo{Room: name, UserCount: room.Size(), CreatedAt: room.CreatedAt}
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Room < infos[j].Room })
	return infos
}

// Members returns the participants of roomID sorted by connection ID.
// The second result is false when the room does not exist.
func (r *Relay) Members(roomID string) ([]Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	members := lo.Values(room.members)
	sort.Slice(members, func(i, j int) bool { return members[i].Conn.ID < members[j].Conn.ID })
	return members, true
}

// RoomOf returns the room c currently belongs to.
func (r *Relay) RoomOf(c *Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.roomOf[c]
	if !ok {
		return "", false
	}
	return room.Name, true
}

func (r *Relay) senderLocked(roomID string, sender *Conn) (*Room, Participant, error) {
	if roomID == "" || sender == nil {
		return nil, Participant{}, ErrNotInRoom
	}
	room, ok := r.roomOf[sender]
	if !ok || room.Name != roomID {
		return nil, Participant{}, ErrNotInRoom
	}
	p, ok := room.member(sender)
	if !ok {
		return nil, Participant{}, ErrNotInRoom
	}
	return room, p, nil
}

func (r *Relay) getOrCreateLocked(roomID string) *Room {
	room, ok := r.rooms[roomID]
	if !ok {
		room = NewRoom(roomID, r.now())
		r.rooms[roomID] = room
		r.notify(func(o Observer) { o.RoomCreated(roomID) })
		r.log.Info().Str("room_id", roomID).Msg("room created")
	}
	return room
}

// pruneIfEmptyLocked deletes room from the registry once it has no members.
func (r *Relay) pruneIfEmptyLocked(room *Room) bool {
	if !room.Empty() {
		return false
	}
	if r.rooms[room.Name] == room {
		delete(r.rooms, room.Name)
		r.notify(func(o Observer) { o.RoomDeleted(room.Name) })
		r.log.Info().Str("room_id", room.Name).Msg("room deleted")
	}
	return true
}

// leaveLocked removes c and returns connections found closed while
// broadcasting user_left.
func (r *Relay) leaveLocked(c *Conn) []*Conn {
	room, ok := r.roomOf[c]
	if !ok {
		return nil
	}
	delete(r.roomOf, c)

	p, removed := room.remove(c)
	if !removed {
		return nil
	}
	r.notify(func(o Observer) { o.MemberLeft(room.Name) })

	r.log.Debug().
		Str("room_id", room.Name).
		Str("conn_id", c.ID).
		Str("user_id", p.UserID).
		Int("user_count", room.Size()).
		Msg("participant left")

	if r.pruneIfEmptyLocked(room) {
		return nil
	}

	return r.broadcastLocked(room, &Event{
		Kind:      EventUserLeft,
		Room:      room.Name,
		UserID:    p.UserID,
		Timestamp: r.now(),
	}, nil)
}

// evictLocked removes connections that were found closed during a
// broadcast. Their user_left may surface more closed connections, so the
// queue is drained until empty.
func (r *Relay) evictLocked(closed []*Conn) {
	for len(closed) > 0 {
		c := closed[0]
		closed = closed[1:]
		closed = append(closed, r.leaveLocked(c)...)
	}
}

func (r *Relay) sendRoomInfoLocked(room *Room, p Participant) []*Conn {
	ev := &Event{
		Kind:      EventRoomInfo,
		Room:      room.Name,
		UserCount: room.Size(),
		Timestamp: r.now(),
	}
	if err := p.Conn.deliver(ev); err != nil {
		r.deliveryFailed(ev, p, err)
		if errors.Is(err, ErrConnClosed) {
			return []*Conn{p.Conn}
		}
		return nil
	}
	r.notify(func(o Observer) { o.EventRelayed(ev.Kind, 1) })
	return nil
}

func (r *Relay) broadcastLocked(room *Room, ev *Event, exclude *Conn) []*Conn {
	var closed []*Conn
	delivered := room.broadcast(ev, exclude, func(p Participant, err error) {
		r.deliveryFailed(ev, p, err)
		if errors.Is(err, ErrConnClosed) {
			closed = append(closed, p.Conn)
		}
	})
	r.notify(func(o Observer) { o.EventRelayed(ev.Kind, delivered) })
	return closed
}

func (r *Relay) deliveryFailed(ev *Event, p Participant, err error) {
	code := Code(err)
	r.notify(func(o Observer) { o.DeliveryFailed(ev.Kind, code) })
	r.log.Debug().
		Str("room_id", ev.Room).
		Str("conn_id", p.Conn.ID).
		Str("event", ev.Kind.String()).
		Str("code", code).
		Msg("delivery failed")
}

func (r *Relay) notify(fn func(Observer)) {
	if r.observer != nil {
		fn(r.observer)
	}
}
