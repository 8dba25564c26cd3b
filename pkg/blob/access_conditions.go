package blob

import (
	"net/http"
	"time"
)

// ETag is an explicit three-state matcher: unset (match nothing special),
// any ("*"), or a specific validator. The explicit variant avoids sentinel
// string comparisons when deciding whether to emit a conditional header.
type ETag struct {
	kind  etagKind
	value string
}

type etagKind int

const (
	etagNone etagKind = iota
	etagAny
	etagSpecific
)

// ETagAny matches every entity ("If-Match: *" / "If-None-Match: *").
func ETagAny() ETag { return ETag{kind: etagAny} }

// ETagOf matches the given validator exactly.
func ETagOf(value string) ETag { return ETag{kind: etagSpecific, value: value} }

// IsNone reports whether the matcher is unset; no header is emitted.
func (e ETag) IsNone() bool { return e.kind == etagNone }

// String renders the header value; empty when unset.
func (e ETag) String() string {
	switch e.kind {
	case etagAny:
		return "*"
	case etagSpecific:
		return e.value
	default:
		return ""
	}
}

// ModifiedAccessConditions gate an operation on blob state.
type ModifiedAccessConditions struct {
	IfModifiedSince   time.Time
	IfUnmodifiedSince time.Time
	IfMatch           ETag
	IfNoneMatch       ETag
}

func (c ModifiedAccessConditions) apply(h http.Header) {
	if !c.IfModifiedSince.IsZero() {
		h.Set(headerIfModifiedSince, c.IfModifiedSince.UTC().Format(http.TimeFormat))
	}
	if !c.IfUnmodifiedSince.IsZero() {
		h.Set(headerIfUnmodifiedSince, c.IfUnmodifiedSince.UTC().Format(http.TimeFormat))
	}
	if !c.IfMatch.IsNone() {
		h.Set(headerIfMatch, c.IfMatch.String())
	}
	if !c.IfNoneMatch.IsNone() {
		h.Set(headerIfNoneMatch, c.IfNoneMatch.String())
	}
}

// LeaseAccessConditions gate an operation on holding a lease.
type LeaseAccessConditions struct {
	LeaseID string
}

func (c LeaseAccessConditions) apply(h http.Header) {
	if c.LeaseID != "" {
		h.Set("x-ms-lease-id", c.LeaseID)
	}
}

// BlobAccessConditions combines both condition kinds for blob operations.
type BlobAccessConditions struct {
	ModifiedAccessConditions
	LeaseAccessConditions
}

func (c BlobAccessConditions) apply(h http.Header) {
	c.ModifiedAccessConditions.apply(h)
	c.LeaseAccessConditions.apply(h)
}

// Metadata is the user metadata set stored with a container or blob,
// serialized as x-ms-meta-* headers.
type Metadata map[string]string

func (m Metadata) apply(h http.Header) {
	for k, v := range m {
		h.Set("x-ms-meta-"+k, v)
	}
}

// BlobHTTPHeaders are the cached standard headers served back with a blob.
type BlobHTTPHeaders struct {
	ContentType        string
	ContentEncoding    string
	ContentLanguage    string
	ContentDisposition string
	CacheControl       string
	ContentMD5         []byte
}
