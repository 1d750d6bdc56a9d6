// Package requestlog builds request log events for incoming and outgoing
// HTTP calls and emits them through log/slog.
//
// A call is logged twice: once on the START edge, before the request is
// handled or sent, and once on the END edge with the response and timing.
// Every payload is masked with the masking package before it is attached to
// an event.
package requestlog

import (
	"log/slog"
	"time"
)

// EventKey is the attribute key request events are attached under.
const EventKey = "request_event"

// TimeFormat is the layout of start_time and end_time.
const TimeFormat = "2006-01-02 15:04:05.000000"

// Direction tells whether a call was received or made by this process.
type Direction int

const (
	Incoming Direction = iota + 1
	Outgoing
)

func (d Direction) String() string {
	switch d {
	case Incoming:
		return "INCOMING"
	case Outgoing:
		return "OUTGOING"
	default:
		return "UNKNOWN"
	}
}

// Edge is the point in the request lifecycle an event was logged at.
type Edge int

const (
	EdgeStart Edge = iota + 1
	EdgeEnd
)

func (e Edge) String() string {
	switch e {
	case EdgeStart:
		return "START"
	case EdgeEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// Event is a fully sanitized request log event.
type Event struct {
	Direction Direction
	Edge      Edge
	Start     time.Time
	End       time.Time

	// Request and Response hold masked, JSON-like data. Response is an
	// empty map when there is no response yet.
	Request  map[string]any
	Response map[string]any

	Notes any
	Err   error
}

// ResponseTimeMS returns the elapsed milliseconds between Start and End,
// or -1 when the event has no end time.
func (e *Event) ResponseTimeMS() int64 {
	if e.End.IsZero() {
		return -1
	}
	return e.End.Sub(e.Start).Milliseconds()
}

// StartTime returns Start formatted with TimeFormat.
func (e *Event) StartTime() string {
	return e.Start.Format(TimeFormat)
}

// EndTime returns End formatted with TimeFormat, or "" when unset.
func (e *Event) EndTime() string {
	if e.End.IsZero() {
		return ""
	}
	return e.End.Format(TimeFormat)
}

// LogValue renders the event as a group so that handlers unaware of
// request events still print every field.
func (e *Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("direction", e.Direction.String()),
		slog.String("edge", e.Edge.String()),
		slog.String("start_time", e.StartTime()),
		slog.String("end_time", e.EndTime()),
		slog.Int64("response_time_ms", e.ResponseTimeMS()),
		slog.Any("request", e.Request),
		slog.Any("response", e.Response),
	}
	if e.Notes != nil {
		attrs = append(attrs, slog.Any("notes", e.Notes))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

// FromRecord returns the request event attached to r, if any.
func FromRecord(r slog.Record) (*Event, bool) {
	var ev *Event
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != EventKey {
			return true
		}
		ev, _ = a.Value.Any().(*Event)
		return ev == nil
	})
	return ev, ev != nil
}

// IsEventAttr reports whether a is the request event attribute.
func IsEventAttr(a slog.Attr) bool {
	if a.Key != EventKey {
		return false
	}
	_, ok := a.Value.Any().(*Event)
	return ok
}
