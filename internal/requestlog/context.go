package requestlog

import (
	"context"
	"sync"
	"time"
)

// LogFunc emits one edge of a request log. Logger.LogIncoming and
// Logger.LogOutgoing are the two implementations.
type LogFunc func(ctx context.Context, rec *Record)

// LogContext tracks one request between its START and END edges.
type LogContext struct {
	fn LogFunc

	mu       sync.Mutex
	rec      Record
	finished bool
}

// Begin logs the START edge of rec and returns the context used to log its
// END edge. A zero rec.Start is set to the current time.
func Begin(ctx context.Context, fn LogFunc, rec Record) *LogContext {
	if rec.Start.IsZero() {
		rec.Start = time.Now()
	}
	rec.Edge = EdgeStart
	rec.End = time.Time{}
	rec.Response = nil
	rec.Err = nil

	start := rec
	fn(ctx, &start)

	return &LogContext{fn: fn, rec: rec}
}

// SetIncoming sets the incoming request logged on END.
func (lc *LogContext) SetIncoming(req *IncomingRequest) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.rec.Incoming = req
}

// SetOutgoing sets the outgoing request logged on END.
func (lc *LogContext) SetOutgoing(req *OutgoingRequest) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.rec.Outgoing = req
}

// SetResponse sets the response logged on END.
func (lc *LogContext) SetResponse(resp *Response) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.rec.Response = resp
}

// SetNotes replaces the notes attached to the END event.
func (lc *LogContext) SetNotes(notes any) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.rec.Notes = notes
}

// AddMasks adds processor names applied on END.
func (lc *LogContext) AddMasks(names ...string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.rec.Masks = append(lc.rec.Masks, names...)
}

// Record returns a copy of the current record.
func (lc *LogContext) Record() Record {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.rec
}

// Finish logs the END edge. err, when not nil, raises the event to error
// level. Only the first call logs.
func (lc *LogContext) Finish(ctx context.Context, err error) {
	lc.mu.Lock()
	if lc.finished {
		lc.mu.Unlock()
		return
	}
	lc.finished = true
	end := lc.rec
	lc.mu.Unlock()

	end.Edge = EdgeEnd
	end.End = time.Now()
	end.Err = err
	lc.fn(ctx, &end)
}
