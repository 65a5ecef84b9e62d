package core

import "time"

// Room groups the participants sharing one code buffer and chat.
// Rooms are owned by Relay and only touched under its lock.
type Room struct {
	Name      string
	CreatedAt time.Time
	members   map[*Conn]Participant
}

// NewRoom constructs a room with no members.
func NewRoom(name string, now time.Time) *Room {
	return &Room{
		Name:      name,
		CreatedAt: now,
		members:   make(map[*Conn]Participant),
	}
}

// add inserts or overwrites a member. Returns true if newly added.
func (r *Room) add(p Participant) bool {
	_, exists := r.members[p.Conn]
	r.members[p.Conn] = p
	return !exists
}

// remove deletes a member. Returns the removed participant and whether it was present.
func (r *Room) remove(c *Conn) (Participant, bool) {
	p, exists := r.members[c]
	if !exists {
		return Participant{}, false
	}
	delete(r.members, c)
	return p, true
}

func (r *Room) member(c *Conn) (Participant, bool) {
	p, ok := r.members[c]
	return p, ok
}

// Size returns the number of members.
func (r *Room) Size() int {
	return len(r.members)
}

// Empty returns true if no participants are in the room.
func (r *Room) Empty() bool {
	return len(r.members) == 0
}

// broadcast delivers ev to every member except the one holding exclude.
// A nil exclude reaches everyone. Failures are per recipient and reported
// through onFail; they never stop the fan-out.
func (r *Room) broadcast(ev *Event, exclude *Conn, onFail func(Participant, error)) int {
	delivered := 0
	for c, p := range r.members {
		if c == exclude {
			continue
		}
		if err := c.deliver(ev); err != nil {
			onFail(p, err)
			continue
		}
		delivered++
	}
	return delivered
}
