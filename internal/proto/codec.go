package proto

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/coderoom-server/internal/core"
)

var (
	// ErrMalformed is returned for frames that are not valid JSON envelopes.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for envelopes with an unsupported type.
	ErrUnknownType = errors.New("unknown message type")
	// ErrInvalid is returned when required fields are missing or too long.
	ErrInvalid = errors.New("invalid message")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses and validates one inbound frame.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch in.Type {
	case InboundTypeJoin, InboundTypeCodeUpdate, InboundTypeChatMessage:
	default:
		return in, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
	if err := validate.Struct(in); err != nil {
		return in, fmt.Errorf("%w: %v", ErrInvalid, describe(err))
	}
	return in, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// Outbound converts a relay event to its wire form.
func Outbound(ev *core.Event) (any, error) {
	ts := Timestamp(ev.Timestamp)
	switch ev.Kind {
	case core.EventRoomInfo:
		return RoomInfo{
			Type:      OutboundTypeRoomInfo,
			RoomID:    ev.Room,
			UserCount: ev.UserCount,
			Timestamp: ts,
		}, nil
	case core.EventUserJoined:
		return UserJoined{
			Type:      OutboundTypeUserJoined,
			UserID:    UserID(ev.UserID),
			Username:  ev.Username,
			Timestamp: ts,
		}, nil
	case core.EventUserLeft:
		return UserLeft{
			Type:      OutboundTypeUserLeft,
			UserID:    UserID(ev.UserID),
			Timestamp: ts,
		}, nil
	case core.EventCodeUpdate:
		return CodeUpdate{
			Type:      OutboundTypeCodeUpdate,
			Code:      ev.Code,
			Language:  ev.Language,
			UserID:    UserID(ev.UserID),
			Username:  ev.Username,
			Timestamp: ts,
		}, nil
	case core.EventChatMessage:
		return ChatMessage{
			Type:      OutboundTypeChatMessage,
			Message:   ev.Message,
			UserID:    UserID(ev.UserID),
			Username:  ev.Username,
			Timestamp: ts,
		}, nil
	default:
		return nil, fmt.Errorf("outbound: unsupported event kind %d", ev.Kind)
	}
}
