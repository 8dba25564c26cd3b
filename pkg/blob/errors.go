// Package blob is a client for an Azure-compatible blob storage service:
// credentials and request signing, a policy pipeline with retry and
// secondary-host failover, SAS generation, and thin wrappers over the
// container/blob REST operations.
package blob

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// InvalidKeyError indicates the account key could not be used as HMAC key
// material (typically malformed base64). Requests signed with a bad key are
// never retried; retrying cannot fix the key.
type InvalidKeyError struct {
	AccountName string
	Err         error
}

// Error implements the error interface.
func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid account key for %q: %v", e.AccountName, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvalidKeyError) Unwrap() error { return e.Err }

// InvalidArgumentError indicates a caller-supplied value is malformed or out
// of range: bad SAS inputs, token use over a non-HTTPS URL, retry options
// outside their valid range.
type InvalidArgumentError struct {
	Arg    string
	Reason string
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Arg, e.Reason)
}

func errInvalidArg(arg, reason string) error {
	return &InvalidArgumentError{Arg: arg, Reason: reason}
}

// StorageError is a non-2xx response from the service, surfaced with its
// original status code and service error code so callers can branch on them
// (e.g. detect 409 already-exists).
type StorageError struct {
	Op          string // operation that failed, e.g. "container create"
	StatusCode  int
	Status      string
	ServiceCode string // x-ms-error-code header, when present
	RequestID   string // x-ms-request-id header, when present
	Details     string // short snippet of the error body, when captured

	response *pipeline.Response
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.ServiceCode != "" {
		return fmt.Sprintf("%s failed: %s (%s)", e.Op, e.Status, e.ServiceCode)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Status)
}

// Response returns the raw response that produced this error. The body has
// already been consumed.
func (e *StorageError) Response() *pipeline.Response { return e.response }

// Temporary reports whether the failure is transient per the retry
// classification: HTTP 500 and 503 are retryable, everything else is an
// application error.
func (e *StorageError) Temporary() bool {
	return e.StatusCode == http.StatusInternalServerError ||
		e.StatusCode == http.StatusServiceUnavailable
}

// IsStorageError extracts a StorageError from an error chain.
func IsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsInvalidKey reports whether err stems from unusable account key material.
func IsInvalidKey(err error) bool {
	var ke *InvalidKeyError
	return errors.As(err, &ke)
}

// IsInvalidArgument reports whether err stems from a malformed caller input.
func IsInvalidArgument(err error) bool {
	var ae *InvalidArgumentError
	return errors.As(err, &ae)
}
