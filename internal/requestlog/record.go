package requestlog

import (
	"net/http"
	"net/url"
	"time"
)

// Record is the raw, unmasked input to a LogFunc.
type Record struct {
	Edge  Edge
	Start time.Time
	End   time.Time

	// Method and URL describe the call when no request object is available,
	// which is always the case on the outgoing START edge.
	Method string
	URL    string

	Incoming *IncomingRequest
	Outgoing *OutgoingRequest
	Response *Response

	Notes any
	Err   error

	// Masks are processor names applied to this call in addition to the
	// global ones and those active in the context.
	Masks []string
}

// IncomingRequest is what is logged about a request received by a server.
type IncomingRequest struct {
	Method     string
	RemoteAddr string
	Scheme     string
	Path       string

	// Query holds URL query parameters and Form the urlencoded body.
	Query url.Values
	Form  url.Values

	// Data is the decoded body: a JSON tree, a file list or a raw body
	// wrapper.
	Data any

	Header http.Header
}

// OutgoingRequest is what is logged about a request sent by a client.
type OutgoingRequest struct {
	Method string
	URL    string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is what is logged about a response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// SkipData drops the response body from the log.
	SkipData bool
}
