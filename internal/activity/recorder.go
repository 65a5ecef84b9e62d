// Package activity records who was in which code room, off the relay's
// critical path.
package activity

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/coderoom-server/internal/store"
)

const writeTimeout = 5 * time.Second

type recordKind int

const (
	recordJoin recordKind = iota
	recordLeave
)

type record struct {
	kind    recordKind
	session store.Session
	connID  string
	at      time.Time
}

// Recorder queues join/leave records and writes them from a single
// goroutine. Enqueueing never blocks; a full queue drops the record.
type Recorder struct {
	store store.SessionStore
	queue chan record
	log   *zerolog.Logger
	done  chan struct{}
}

// NewRecorder creates a recorder with the given queue size.
func NewRecorder(st store.SessionStore, buffer int, logger *zerolog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Recorder{
		store: st,
		queue: make(chan record, buffer),
		log:   logger,
		done:  make(chan struct{}),
	}
}

// Joined queues the start of a session.
func (r *Recorder) Joined(s store.Session) bool {
	return r.enqueue(record{kind: recordJoin, session: s, connID: s.ConnID, at: s.JoinedAt})
}

// Left queues the end of the open session of connID.
func (r *Recorder) Left(connID string, at time.Time) bool {
	return r.enqueue(record{kind: recordLeave, connID: connID, at: at})
}

func (r *Recorder) enqueue(rec record) bool {
	select {
	case r.queue <- rec:
		return true
	default:
		r.log.Warn().Str("conn_id", rec.connID).Msg("activity queue full, dropping record")
		return false
	}
}

// Run writes queued records until ctx is cancelled, then flushes what is
// already queued.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case rec := <-r.queue:
			r.write(writeCtx, rec)
		case <-ctx.Done():
			r.flush(writeCtx)
			return
		}
	}
}

// Done is closed when Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) flush(ctx context.Context) {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec record) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var err error
	switch rec.kind {
	case recordJoin:
		s := rec.session
		err = r.store.OpenSession(ctx, &s)
	case recordLeave:
		err = r.store.CloseSession(ctx, rec.connID, rec.at)
		if errors.Is(err, store.ErrNotFound) {
			// The connection never joined a room.
			err = nil
		}
	}
	if err != nil {
		r.log.Error().Err(err).Str("conn_id", rec.connID).Msg("failed to record activity")
	}
}
