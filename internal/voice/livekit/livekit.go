package livekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/vovakirdan/coderoom-server/internal/voice"
)

const tokenTTL = time.Hour

// Engine implements voice.Engine with LiveKit. Media rooms are created by
// LiveKit on first join, so issuing a token is all that is needed.
type Engine struct {
	apiKey    string
	apiSecret string
	wsURL     string
}

// New creates a new LiveKit engine.
func New(apiKey, apiSecret, wsURL string) *Engine {
	return &Engine{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
	}
}

// RoomName maps a code room to its LiveKit room.
func RoomName(roomID string) string {
	return "coderoom-" + roomID
}

// JoinInfo creates join credentials for a user.
func (e *Engine) JoinInfo(_ context.Context, roomID, userID, username string) (*voice.JoinInfo, error) {
	if roomID == "" || userID == "" {
		return nil, errors.New("room and user are required")
	}

	roomName := RoomName(roomID)
	identity := "user-" + userID

	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomName,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(username).
		SetValidFor(tokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &voice.JoinInfo{
		URL:      e.wsURL,
		Token:    token,
		RoomName: roomName,
		Identity: identity,
	}, nil
}

var _ voice.Engine = (*Engine)(nil)
