package proto

import "time"

const (
	InboundTypeJoin        = "join"
	InboundTypeCodeUpdate  = "code_update"
	InboundTypeChatMessage = "chat_message"

	OutboundTypeRoomInfo    = "room_info"
	OutboundTypeUserJoined  = "user_joined"
	OutboundTypeUserLeft    = "user_left"
	OutboundTypeCodeUpdate  = "code_update"
	OutboundTypeChatMessage = "chat_message"
)

// Inbound is the envelope for messages coming from the client.
// Which fields are meaningful depends on Type.
type Inbound struct {
	Type     string `json:"type" validate:"required,oneof=join code_update chat_message"`
	RoomID   string `json:"roomId" validate:"required,max=128"`
	UserID   UserID `json:"userId" validate:"required_if=Type join,max=128"`
	Username string `json:"username,omitempty" validate:"required_if=Type join,max=64"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty" validate:"max=32"`
	Message  string `json:"message,omitempty"`
}

// RoomInfo acknowledges a join to the joiner.
type RoomInfo struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"roomId"`
	UserCount int       `json:"userCount"`
	Timestamp Timestamp `json:"timestamp"`
}

// UserJoined notifies existing members that someone joined.
type UserJoined struct {
	Type      string    `json:"type"`
	UserID    UserID    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp Timestamp `json:"timestamp"`
}

// UserLeft notifies remaining members that someone left.
type UserLeft struct {
	Type      string    `json:"type"`
	UserID    UserID    `json:"userId"`
	Timestamp Timestamp `json:"timestamp"`
}

// CodeUpdate carries another member's editor state.
type CodeUpdate struct {
	Type      string    `json:"type"`
	Code      string    `json:"code"`
	Language  string    `json:"language"`
	UserID    UserID    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp Timestamp `json:"timestamp"`
}

// ChatMessage carries a chat line.
type ChatMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	UserID    UserID    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp Timestamp `json:"timestamp"`
}

// Timestamp marshals as RFC 3339 UTC with millisecond precision.
type Timestamp time.Time

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(timestampLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var parsed time.Time
	if err := parsed.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.
func (t Timestamp) Time() time.Time { return time.Time(t) }
