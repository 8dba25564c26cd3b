package blob

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// RetryPolicyType selects the backoff schedule for primary-host retries.
type RetryPolicyType int

const (
	// RetryPolicyExponential delays (2^(n-1)-1)*RetryDelay before primary
	// try n, capped at MaxRetryDelay.
	RetryPolicyExponential RetryPolicyType = iota
	// RetryPolicyFixed delays a constant RetryDelay before every primary
	// retry.
	RetryPolicyFixed
)

// RetryOptions tunes the retry stage. The zero value selects the defaults
// noted per field.
type RetryOptions struct {
	Policy RetryPolicyType

	// MaxTries bounds total attempts, first try included. Default 4.
	MaxTries int32

	// TryTimeout cancels a single attempt, not the whole operation.
	// Default 1 minute.
	TryTimeout time.Duration

	// RetryDelay is the backoff base for primary retries. Default 4s.
	RetryDelay time.Duration

	// MaxRetryDelay caps the computed backoff. Default 2 minutes.
	MaxRetryDelay time.Duration

	// RetryReadsFromSecondaryHost, when set, lets GET/HEAD retries alternate
	// to this read-only replica host.
	RetryReadsFromSecondaryHost string

	// OnRetry, when set, observes every attempt after the first. Used to
	// feed retry counters without coupling this package to a metrics stack.
	OnRetry func(try int32, host string)
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxTries == 0 {
		o.MaxTries = 4
	}
	if o.TryTimeout == 0 {
		o.TryTimeout = time.Minute
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 4 * time.Second
	}
	if o.MaxRetryDelay == 0 {
		o.MaxRetryDelay = 2 * time.Minute
	}
	return o
}

func (o RetryOptions) validate() error {
	if o.MaxTries < 0 {
		return errInvalidArg("RetryOptions.MaxTries", "must be at least 1")
	}
	if o.TryTimeout < 0 || o.RetryDelay < 0 || o.MaxRetryDelay < 0 {
		return errInvalidArg("RetryOptions", "durations must not be negative")
	}
	if o.RetryDelay > o.MaxRetryDelay && o.MaxRetryDelay != 0 {
		return errInvalidArg("RetryOptions.RetryDelay", "must not exceed MaxRetryDelay")
	}
	return nil
}

// backoff computes the pre-attempt delay for primary try n (n >= 1). The
// first try is never delayed.
func (o RetryOptions) backoff(primaryTry int32) time.Duration {
	if primaryTry <= 1 {
		return 0
	}
	switch o.Policy {
	case RetryPolicyFixed:
		return o.RetryDelay
	default:
		d := time.Duration((int64(1)<<uint(primaryTry-1))-1) * o.RetryDelay
		if d > o.MaxRetryDelay {
			d = o.MaxRetryDelay
		}
		return d
	}
}

// secondaryJitter desynchronizes clients hammering the replica: uniform in
// [0.8s, 1.3s), independent of the primary backoff schedule.
func secondaryJitter() time.Duration {
	return time.Duration((rand.Float64()/2 + 0.8) * float64(time.Second))
}

// newRetryPolicy wraps the inner pipeline stages (date stamping, signing,
// logging, transport) so every attempt re-runs them against a fresh copy of
// the buffered request.
func newRetryPolicy(o RetryOptions) pipeline.Policy {
	o = o.withDefaults()
	return &retryPolicy{o: o}
}

type retryPolicy struct {
	o RetryOptions
}

func (p *retryPolicy) Do(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
	// Secondary reads are only safe for idempotent methods, and only until
	// the replica 404s (the object may not have replicated yet).
	considerSecondary := p.o.RetryReadsFromSecondaryHost != "" &&
		(req.Method == http.MethodGet || req.Method == http.MethodHead)

	var (
		resp       *pipeline.Response
		err        error
		primaryTry int32
	)
	for try := int32(1); try <= p.o.MaxTries; try++ {
		// Odd tries hit primary, even tries hit secondary while eligible.
		tryingPrimary := !considerSecondary || try%2 == 1

		var wait time.Duration
		if tryingPrimary {
			primaryTry++
			wait = p.o.backoff(primaryTry)
		} else {
			wait = secondaryJitter()
		}
		if !sleepCtx(ctx, wait) {
			return lastOutcome(resp, err, ctx.Err())
		}
		if try > 1 && p.o.OnRetry != nil {
			host := req.URL.Host
			if !tryingPrimary {
				host = p.o.RetryReadsFromSecondaryHost
			}
			p.o.OnRetry(try, host)
		}

		attempt := req.Copy()
		if rerr := attempt.RewindBody(); rerr != nil {
			return nil, rerr
		}
		if !tryingPrimary {
			attempt.URL.Host = p.o.RetryReadsFromSecondaryHost
			attempt.Host = p.o.RetryReadsFromSecondaryHost
		}

		tryCtx, tryCancel := context.WithTimeout(ctx, p.o.TryTimeout)
		resp, err = next(tryCtx, attempt)

		if ctx.Err() != nil {
			// The caller's deadline or cancellation wins over any per-try
			// outcome; no further attempts may start.
			tryCancel()
			return lastOutcome(resp, err, ctx.Err())
		}

		switch {
		case err != nil && isTransientError(err):
			tryCancel()
			continue
		case err != nil:
			// Signing failures, argument errors and other non-transport
			// errors propagate immediately; retrying cannot fix them.
			tryCancel()
			return nil, err
		case resp.StatusCode == http.StatusInternalServerError,
			resp.StatusCode == http.StatusServiceUnavailable:
			drain(resp)
			tryCancel()
			continue
		case resp.StatusCode == http.StatusNotFound && !tryingPrimary:
			// Replica has not seen this object; stop asking it.
			considerSecondary = false
			drain(resp)
			tryCancel()
			continue
		default:
			// Terminal: hand the response back exactly as received. The
			// per-try context stays alive until the caller closes the body.
			if resp.Body == nil {
				tryCancel()
			} else {
				resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: tryCancel}
			}
			return resp, nil
		}
	}
	return lastOutcome(resp, err, nil)
}

// lastOutcome surfaces the most recent response or error without wrapping,
// so callers keep the original status code or cause.
func lastOutcome(resp *pipeline.Response, err error, ctxErr error) (*pipeline.Response, error) {
	if ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// isTransientError classifies transport-level failures: network errors and a
// per-try deadline are retryable; anything else is terminal.
func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// sleepCtx waits d without leaking a timer if the context is cancelled
// first. Reports false when the wait was aborted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain discards a retryable response's body so the connection can be
// reused for the next attempt.
func drain(resp *pipeline.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// cancelOnClose releases the per-try context when the caller finishes the
// body, so a winning attempt's timer is not orphaned.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
