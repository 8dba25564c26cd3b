package blob

import (
	"context"
	"sync/atomic"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// TokenCredential authenticates with a bearer token. The token is
// hot-swappable: SetToken may be called at any time (e.g. from a refresh
// goroutine) while sends are in flight; readers always observe a complete
// previously-set value.
type TokenCredential struct {
	token atomic.Value // string
}

// NewTokenCredential creates a credential holding the initial token.
func NewTokenCredential(initialToken string) *TokenCredential {
	c := &TokenCredential{}
	c.token.Store(initialToken)
	return c
}

// Token returns the current token.
func (c *TokenCredential) Token() string { return c.token.Load().(string) }

// SetToken atomically replaces the token used by subsequent requests.
func (c *TokenCredential) SetToken(token string) { c.token.Store(token) }

func (c *TokenCredential) credentialPolicy() pipeline.Policy {
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		// Bearer tokens must never travel in the clear; fail before the
		// request reaches the transport.
		if req.URL.Scheme != "https" {
			return nil, errInvalidArg("url", "bearer token authentication requires an https URL")
		}
		req.Header.Set(headerAuthorization, "Bearer "+c.Token())
		return next(ctx, req)
	})
}

// AnonymousCredential is the pass-through credential for public resources or
// URLs that already carry a SAS.
type AnonymousCredential struct{}

// NewAnonymousCredential returns a credential that adds no authentication.
func NewAnonymousCredential() AnonymousCredential { return AnonymousCredential{} }

func (AnonymousCredential) credentialPolicy() pipeline.Policy {
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		return next(ctx, req)
	})
}
