package blob

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// Version is the library version stamped into the User-Agent.
const Version = "0.3.0"

// TelemetryOptions configures the User-Agent decoration.
type TelemetryOptions struct {
	// Value is prepended to the generated platform string, e.g. "myapp/1.2".
	Value string
}

// newTelemetryPolicy is the outermost stage so it decorates every request,
// including retried ones, exactly once.
func newTelemetryPolicy(o TelemetryOptions) pipeline.Policy {
	var sb strings.Builder
	if o.Value != "" {
		sb.WriteString(o.Value)
		sb.WriteByte(' ')
	}
	fmt.Fprintf(&sb, "blobstore-go/%s (%s; %s; %s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	userAgent := sb.String()
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		req.Header.Set("User-Agent", userAgent)
		return next(ctx, req)
	})
}

// newUniqueRequestIDPolicy stamps a client request id so a logical operation
// can be correlated across retries and in service-side logs.
func newUniqueRequestIDPolicy() pipeline.Policy {
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		const header = "x-ms-client-request-id"
		if req.Header.Get(header) == "" {
			req.Header.Set(header, uuid.NewString())
		}
		return next(ctx, req)
	})
}
