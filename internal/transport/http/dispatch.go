package http

import (
	"errors"

	"github.com/vovakirdan/coderoom-server/internal/core"
	"github.com/vovakirdan/coderoom-server/internal/proto"
	"github.com/vovakirdan/coderoom-server/internal/store"
)

// dispatch applies one decoded frame to the relay. Relay errors are
// returned for logging only; nothing is sent back to the client.
func (h *WSHandler) dispatch(c *core.Conn, in proto.Inbound) error {
	switch in.Type {
	case proto.InboundTypeJoin:
		prev, _ := h.relay.RoomOf(c)
		p := core.Participant{
			Conn:     c,
			UserID:   string(in.UserID),
			Username: in.Username,
		}
		if err := h.relay.Join(in.RoomID, p); err != nil {
			return err
		}
		// A conn closed mid-join is evicted by the relay and must not
		// leave an open session behind.
		if prev != in.RoomID && h.recorder != nil && !c.Closed() {
			h.recorder.Joined(store.Session{
				RoomID:   in.RoomID,
				ConnID:   c.ID,
				UserID:   p.UserID,
				Username: p.Username,
				JoinedAt: h.now(),
			})
		}
		return nil
	case proto.InboundTypeCodeUpdate:
		return h.relay.RelayCodeUpdate(in.RoomID, c, core.CodePayload{
			Code:     in.Code,
			Language: in.Language,
		})
	case proto.InboundTypeChatMessage:
		return h.relay.RelayChatMessage(in.RoomID, c, in.Message)
	default:
		return proto.ErrUnknownType
	}
}

// frameResult is the metrics label for a dispatch outcome.
func frameResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, proto.ErrUnknownType), errors.Is(err, proto.ErrMalformed), errors.Is(err, proto.ErrInvalid):
		return "malformed"
	default:
		return core.Code(err)
	}
}
