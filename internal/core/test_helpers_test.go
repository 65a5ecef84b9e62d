package core

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRelay() *Relay {
	return NewRelay(WithClock(func() time.Time { return fixedNow }))
}

func newParticipant(id, userID, name string) Participant {
	return Participant{Conn: NewConn(id, 16), UserID: userID, Username: name}
}

// drain returns every event currently queued on c without blocking.
func drain(c *Conn) []*Event {
	var out []*Event
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func mustJoin(t *testing.T, r *Relay, room string, p Participant) {
	t.Helper()
	if err := r.Join(room, p); err != nil {
		t.Fatalf("join %s: %v", p.UserID, err)
	}
}

func kinds(events []*Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

type recordingObserver struct {
	created, deleted, joined, left int
	relayed                        map[EventKind]int
	failed                         map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{relayed: map[EventKind]int{}, failed: map[string]int{}}
}

func (o *recordingObserver) RoomCreated(string)  { o.created++ }
func (o *recordingObserver) RoomDeleted(string)  { o.deleted++ }
func (o *recordingObserver) MemberJoined(string) { o.joined++ }
func (o *recordingObserver) MemberLeft(string)   { o.left++ }
func (o *recordingObserver) EventRelayed(kind EventKind, n int) {
	o.relayed[kind] += n
}
func (o *recordingObserver) DeliveryFailed(_ EventKind, code string) {
	o.failed[code]++
}
