package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// newDatePolicy runs inside the retry stage so every attempt is stamped with
// a fresh RFC1123 GMT date, keeping retried signatures valid. The service
// API version rides along since both headers are signed together.
func newDatePolicy() pipeline.Policy {
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		req.Header.Set(headerXMSDate, time.Now().UTC().Format(http.TimeFormat))
		req.Header.Set(headerXMSVersion, ServiceVersion)
		return next(ctx, req)
	})
}

// newRateLimitPolicy applies client-side throttling per attempt. A nil
// limiter disables the stage's wait.
func newRateLimitPolicy(limiter *rate.Limiter) pipeline.Policy {
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return next(ctx, req)
	})
}

// maxErrorBody bounds how much of a failed response we buffer for
// diagnostics.
const maxErrorBody = 2 << 10

// newErrorBodyPolicy buffers small error bodies so StorageError can carry a
// snippet of the service message even after the retry stage drains the
// stream. Successful responses pass through untouched.
func newErrorBodyPolicy() pipeline.Policy {
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		resp, err := next(ctx, req)
		if err != nil || resp == nil || resp.StatusCode < http.StatusBadRequest || resp.Body == nil {
			return resp, err
		}
		buf, rerr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		if rerr != nil {
			return resp, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(buf))
		return resp, err
	})
}
