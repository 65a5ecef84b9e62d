package core

import "errors"

// Error codes attached to relay errors in structured logs.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotInRoom    = "not_in_room"
	ErrCodeConnClosed   = "conn_closed"
	ErrCodeSlowConsumer = "slow_consumer"
	ErrCodeUnknown      = "unknown"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotInRoom    = errors.New("not in room")
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("slow consumer")
)

// Code maps a relay error to its stable code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBadRequest):
		return ErrCodeBadRequest
	case errors.Is(err, ErrNotInRoom):
		return ErrCodeNotInRoom
	case errors.Is(err, ErrConnClosed):
		return ErrCodeConnClosed
	case errors.Is(err, ErrSlowConsumer):
		return ErrCodeSlowConsumer
	default:
		return ErrCodeUnknown
	}
}
