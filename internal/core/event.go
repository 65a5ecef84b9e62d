package core

import "time"

// EventKind is a notification the relay emits to connections.
type EventKind int

const (
	// EventRoomInfo acknowledges a join to the joiner only.
	EventRoomInfo EventKind = iota
	// EventUserJoined notifies existing members about a new participant.
	EventUserJoined
	// EventUserLeft notifies remaining members about a departure.
	EventUserLeft
	// EventCodeUpdate carries the latest editor state from one participant.
	EventCodeUpdate
	// EventChatMessage carries a chat line, delivered to the author as well.
	EventChatMessage
)

var eventKindNames = [...]string{
	EventRoomInfo:    "room_info",
	EventUserJoined:  "user_joined",
	EventUserLeft:    "user_left",
	EventCodeUpdate:  "code_update",
	EventChatMessage: "chat_message",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// Event is sent to connections to describe what happened in a room.
// Fields not relevant to Kind are left zero.
type Event struct {
	Kind      EventKind
	Room      string
	UserID    string
	Username  string
	UserCount int
	Code      string
	Language  string
	Message   string
	Timestamp time.Time
}

// CodePayload is the editor state carried by a code update.
type CodePayload struct {
	Code     string
	Language string
}
