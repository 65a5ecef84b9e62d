package voice

import (
	"context"
	"errors"
)

// ErrDisabled is returned when no voice backend is configured.
var ErrDisabled = errors.New("voice is not enabled")

// JoinInfo contains what a client needs to join a room's voice channel.
type JoinInfo struct {
	URL      string `json:"url"`       // media server WebSocket URL
	Token    string `json:"token"`     // access token for the media server
	RoomName string `json:"room_name"` // media-side room name
	Identity string `json:"identity"`  // participant identity in the room
}

// Engine abstracts the media backend behind code-room voice channels.
type Engine interface {
	// JoinInfo issues credentials for userID to join the voice channel of roomID.
	JoinInfo(ctx context.Context, roomID, userID, username string) (*JoinInfo, error)
}

// Disabled is the Engine used when voice is turned off.
type Disabled struct{}

func (Disabled) JoinInfo(context.Context, string, string, string) (*JoinInfo, error) {
	return nil, ErrDisabled
}
