package blob

import (
	"io"
	"net/url"
	"testing"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

func mustParseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return *u
}

func newPipelineRequest(t *testing.T, method string, u url.URL, body io.ReadSeeker) *pipeline.Request {
	t.Helper()
	req, err := pipeline.NewRequest(method, u, body)
	if err != nil {
		t.Fatal(err)
	}
	return req
}
