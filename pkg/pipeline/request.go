package pipeline

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Request wraps http.Request with a rewindable body so the retry policy can
// resend the identical bytes on every attempt.
type Request struct {
	*http.Request

	body io.ReadSeeker
}

// NewRequest builds a request whose body, if any, must be seekable. A nil
// body is valid for bodiless methods. The body length is captured eagerly so
// Content-Length survives retries.
func NewRequest(method string, u url.URL, body io.ReadSeeker) (*Request, error) {
	req := &Request{
		Request: &http.Request{
			Method:     method,
			URL:        &u,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     http.Header{},
			Host:       u.Host,
		},
		body: body,
	}
	if body != nil {
		size, err := body.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to measure request body: %w", err)
		}
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		req.ContentLength = size
		// The header copy is what signing stages canonicalize; the transport
		// itself writes the wire value from ContentLength.
		req.Header.Set("Content-Length", strconv.FormatInt(size, 10))
		req.Body = io.NopCloser(body)
	}
	return req, nil
}

// Copy clones the mutable parts of the request (URL, headers) for one retry
// attempt. The body seeker is shared; attempts are strictly sequential, so
// RewindBody before each send is sufficient.
func (r *Request) Copy() *Request {
	u := *r.URL
	hr := new(http.Request)
	*hr = *r.Request
	hr.URL = &u
	hr.Header = r.Header.Clone()
	return &Request{Request: hr, body: r.body}
}

// RewindBody seeks the body back to the start so the next attempt replays
// the same payload.
func (r *Request) RewindBody() error {
	if r.body == nil {
		return nil
	}
	if _, err := r.body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind request body: %w", err)
	}
	r.Body = io.NopCloser(r.body)
	return nil
}

// Response wraps http.Response; policies and callers use the embedded fields
// (StatusCode, Header, Body) directly.
type Response struct {
	*http.Response
}

// NewResponse wraps an http.Response. A nil argument yields a nil Response.
func NewResponse(res *http.Response) *Response {
	if res == nil {
		return nil
	}
	return &Response{Response: res}
}
