package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// urlTarget is the shared core of every resource handle: an immutable URL
// plus the pipeline that sends its requests. Handles are plain values; With*
// methods return modified copies.
type urlTarget struct {
	u url.URL
	p pipeline.Pipeline
}

// URL returns a copy of the resource URL.
func (t urlTarget) URL() url.URL { return t.u }

// String renders the resource URL.
func (t urlTarget) String() string { return t.u.String() }

// execute sends a bodiless or bodied request and maps unexpected statuses to
// StorageError, keeping the original status code and service error code.
func (t urlTarget) execute(ctx context.Context, op, method string, u url.URL, body io.ReadSeeker,
	prepare func(*pipeline.Request), okCodes ...int) (*pipeline.Response, error) {
	req, err := pipeline.NewRequest(method, u, body)
	if err != nil {
		return nil, err
	}
	if prepare != nil {
		prepare(req)
	}
	resp, err := t.p.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, code := range okCodes {
		if resp.StatusCode == code {
			return resp, nil
		}
	}
	return nil, newStorageError(op, resp)
}

// newStorageError captures status, service code and a short body snippet.
// The error-body stage already buffered the (bounded) body, so reading it
// here cannot block on the network.
func newStorageError(op string, resp *pipeline.Response) *StorageError {
	se := &StorageError{
		Op:          op,
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		ServiceCode: resp.Header.Get("x-ms-error-code"),
		RequestID:   resp.Header.Get("x-ms-request-id"),
		response:    resp,
	}
	if resp.Body != nil {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		se.Details = strings.TrimSpace(string(snippet))
	}
	return se
}

// withQuery returns the URL with extra query parameters merged in.
func withQuery(u url.URL, kv ...string) url.URL {
	q := u.Query()
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	u.RawQuery = q.Encode()
	return u
}

// ServiceURL addresses the storage account endpoint.
type ServiceURL struct {
	urlTarget
}

// NewServiceURL wraps the account endpoint with a pipeline.
func NewServiceURL(u url.URL, p pipeline.Pipeline) ServiceURL {
	return ServiceURL{urlTarget{u: u, p: p}}
}

// WithPipeline returns the same endpoint sending through a different
// pipeline.
func (s ServiceURL) WithPipeline(p pipeline.Pipeline) ServiceURL {
	return NewServiceURL(s.u, p)
}

// NewContainerURL scopes the account URL down to one container.
func (s ServiceURL) NewContainerURL(containerName string) ContainerURL {
	u := s.u
	u.Path = joinPath(u.Path, containerName)
	return ContainerURL{urlTarget{u: u, p: s.p}}
}

func joinPath(base, elem string) string {
	if base == "" || base == "/" {
		return "/" + elem
	}
	return strings.TrimSuffix(base, "/") + "/" + elem
}
