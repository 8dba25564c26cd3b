package blob

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// LogOptions tunes the innermost logging stage, which sits next to the
// transport and therefore sees actual wire attempts, not logical operations.
type LogOptions struct {
	// Logger to write to; logrus.StandardLogger() when nil.
	Logger *logrus.Logger

	// SlowTryThreshold marks tries slower than this as warnings. Default 3s.
	SlowTryThreshold time.Duration
}

func newRequestLogPolicy(o LogOptions) pipeline.Policy {
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.SlowTryThreshold == 0 {
		o.SlowTryThreshold = 3 * time.Second
	}
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start)

		fields := logrus.Fields{
			"method":     req.Method,
			"url":        redactedURL(req.URL),
			"elapsed_ms": elapsed.Milliseconds(),
		}
		entry := o.Logger.WithFields(fields)
		switch {
		case err != nil:
			entry.WithError(err).Warn("request attempt failed")
		case resp.StatusCode >= http.StatusInternalServerError:
			entry.WithField("status", resp.StatusCode).Warn("request attempt returned server error")
		case elapsed > o.SlowTryThreshold:
			entry.WithField("status", resp.StatusCode).Warn("request attempt was slow")
		default:
			entry.WithField("status", resp.StatusCode).Debug("request attempt completed")
		}
		return resp, err
	})
}

// redactedURL masks the SAS signature so credentials never reach logs.
func redactedURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	if q.Get("sig") == "" {
		return u.String()
	}
	q.Set("sig", "REDACTED")
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}
