package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// Service headers participating in shared-key canonicalization.
const (
	headerAuthorization     = "Authorization"
	headerContentEncoding   = "Content-Encoding"
	headerContentLanguage   = "Content-Language"
	headerContentLength     = "Content-Length"
	headerContentMD5        = "Content-MD5"
	headerContentType       = "Content-Type"
	headerIfMatch           = "If-Match"
	headerIfModifiedSince   = "If-Modified-Since"
	headerIfNoneMatch       = "If-None-Match"
	headerIfUnmodifiedSince = "If-Unmodified-Since"
	headerRange             = "Range"
	headerXMSDate           = "x-ms-date"
	headerXMSVersion        = "x-ms-version"
)

// customHeaderPrefix is the service's extension-header namespace; all such
// headers are folded into the canonicalized header block.
const customHeaderPrefix = "x-ms-"

// Credential produces the authentication stage of a pipeline. Exactly one
// credential governs signing per pipeline instance; dispatch happens once at
// build time, not per request.
type Credential interface {
	credentialPolicy() pipeline.Policy
}

// SharedKeyCredential signs each request with HMAC-SHA256 over the canonical
// string-to-sign, using the account key. It is immutable and safe for
// concurrent use; each signature uses a fresh MAC context.
type SharedKeyCredential struct {
	accountName string
	accountKey  []byte
}

// NewSharedKeyCredential decodes the base64 account key. A key that does not
// decode is rejected up front with InvalidKeyError.
func NewSharedKeyCredential(accountName, accountKey string) (*SharedKeyCredential, error) {
	key, err := base64.StdEncoding.DecodeString(accountKey)
	if err != nil {
		return nil, &InvalidKeyError{AccountName: accountName, Err: err}
	}
	if len(key) == 0 {
		return nil, &InvalidKeyError{AccountName: accountName, Err: errInvalidArg("accountKey", "key is empty")}
	}
	return &SharedKeyCredential{accountName: accountName, accountKey: key}, nil
}

// AccountName returns the storage account this credential signs for.
func (c *SharedKeyCredential) AccountName() string { return c.accountName }

// ComputeHMACSHA256 signs the string with the account key and returns the
// base64 signature. Pure function of its inputs.
func (c *SharedKeyCredential) ComputeHMACSHA256(stringToSign string) string {
	h := hmac.New(sha256.New, c.accountKey)
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (c *SharedKeyCredential) credentialPolicy() pipeline.Policy {
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		// Each attempt must carry a fresh date; the date policy normally set
		// one already, this is the fallback for bare pipelines.
		if req.Header.Get(headerXMSDate) == "" {
			req.Header.Set(headerXMSDate, time.Now().UTC().Format(http.TimeFormat))
		}
		stringToSign := c.buildStringToSign(req)
		req.Header.Set(headerAuthorization, "SharedKey "+c.accountName+":"+c.ComputeHMACSHA256(stringToSign))

		resp, err := next(ctx, req)
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			// Signature mismatch debugging: log what we signed, never the key.
			logrus.WithFields(logrus.Fields{
				"account":        c.accountName,
				"url":            redactedURL(req.URL),
				"string_to_sign": stringToSign,
			}).Debug("request was forbidden; string-to-sign logged for diagnosis")
		}
		return resp, err
	})
}

// buildStringToSign renders the request in the service's canonical form. The
// line count is constant: a missing header contributes an empty line, never
// an omitted one.
func (c *SharedKeyCredential) buildStringToSign(req *pipeline.Request) string {
	h := req.Header
	contentLength := h.Get(headerContentLength)
	if contentLength == "0" {
		contentLength = ""
	}
	return strings.Join([]string{
		req.Method,
		h.Get(headerContentEncoding),
		h.Get(headerContentLanguage),
		contentLength,
		h.Get(headerContentMD5),
		h.Get(headerContentType),
		"", // Date slot stays empty; the date travels in x-ms-date to avoid double-signing
		h.Get(headerIfModifiedSince),
		h.Get(headerIfMatch),
		h.Get(headerIfNoneMatch),
		h.Get(headerIfUnmodifiedSince),
		h.Get(headerRange),
		canonicalizedHeaders(h),
		c.canonicalizedResource(req.URL),
	}, "\n")
}

// canonicalizedHeaders renders every x-ms-* header, lower-cased and sorted
// ascending by name, as newline-joined name:value lines. Duplicate values
// are comma-joined in their original order.
func canonicalizedHeaders(h http.Header) string {
	var names []string
	for name := range h {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, customHeaderPrefix) {
			names = append(names, lower)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(strings.Join(h.Values(name), ","))
	}
	return sb.String()
}

// canonicalizedResource is "/account" + the escaped URL path ("/" when
// empty), then each query parameter sorted by key with its values sorted and
// comma-joined, one "\nkey:v1,v2" entry per key. Comparison is ordinal.
func (c *SharedKeyCredential) canonicalizedResource(u *url.URL) string {
	var sb strings.Builder
	sb.WriteByte('/')
	sb.WriteString(c.accountName)
	if len(u.Path) > 0 {
		// Path bytes are signed exactly as they appear on the wire.
		sb.WriteString(u.EscapedPath())
	} else {
		sb.WriteByte('/')
	}

	params, err := url.ParseQuery(u.RawQuery)
	if err != nil || len(params) == 0 {
		return sb.String()
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := params[k]
		sort.Strings(values)
		sb.WriteByte('\n')
		sb.WriteString(strings.ToLower(k))
		sb.WriteByte(':')
		sb.WriteString(strings.Join(values, ","))
	}
	return sb.String()
}
