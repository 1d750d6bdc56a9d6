package requestlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogContext(t *testing.T) {
	var got []Record
	fn := func(_ context.Context, rec *Record) {
		got = append(got, *rec)
	}

	lc := Begin(context.Background(), fn, Record{
		Method: "GET",
		URL:    "https://example.com",
		Notes:  "first",
	})

	require.Len(t, got, 1)
	assert.Equal(t, EdgeStart, got[0].Edge)
	assert.False(t, got[0].Start.IsZero())
	assert.True(t, got[0].End.IsZero())

	lc.SetOutgoing(&OutgoingRequest{Method: "GET", URL: "https://example.com"})
	lc.SetResponse(&Response{StatusCode: 204})
	lc.SetNotes("second")
	lc.AddMasks("Extra")

	lc.Finish(context.Background(), nil)
	require.Len(t, got, 2)

	end := got[1]
	assert.Equal(t, EdgeEnd, end.Edge)
	assert.Equal(t, got[0].Start, end.Start)
	assert.False(t, end.End.Before(end.Start))
	assert.Equal(t, 204, end.Response.StatusCode)
	assert.Equal(t, "second", end.Notes)
	assert.Equal(t, []string{"Extra"}, end.Masks)
	assert.NoError(t, end.Err)

	// Only the first Finish logs.
	lc.Finish(context.Background(), errors.New("late"))
	assert.Len(t, got, 2)
}

func TestLogContextKeepsGivenStart(t *testing.T) {
	start := time.Now().Add(-time.Second)

	var got []Record
	lc := Begin(context.Background(), func(_ context.Context, rec *Record) {
		got = append(got, *rec)
	}, Record{Start: start, Response: &Response{StatusCode: 200}})

	// A response set before START is not logged on START.
	assert.Nil(t, got[0].Response)
	assert.Equal(t, start, got[0].Start)

	lc.Finish(context.Background(), errors.New("boom"))
	assert.EqualError(t, got[1].Err, "boom")
	assert.GreaterOrEqual(t, got[1].End.Sub(start), time.Second)
}

func TestLogContextWithLogger(t *testing.T) {
	l, h := newTestLogger(t, Options{})

	lc := Begin(context.Background(), l.LogOutgoing, Record{Method: "delete", URL: "https://x.test/items/1"})
	lc.SetOutgoing(&OutgoingRequest{Method: "DELETE", URL: "https://x.test/items/1", Path: "/items/1"})
	lc.SetResponse(&Response{StatusCode: 204})
	lc.Finish(context.Background(), nil)

	recs := h.all()
	require.Len(t, recs, 2)
	assert.Equal(t, "OUTGOING (start): DELETE https://x.test/items/1", recs[0].msg)
	assert.Equal(t, "OUTGOING (end): DELETE https://x.test/items/1 (204)", recs[1].msg)
	assert.GreaterOrEqual(t, recs[1].event.ResponseTimeMS(), int64(0))
}
