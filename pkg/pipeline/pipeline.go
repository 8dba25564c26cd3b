// Package pipeline implements a composable HTTP request pipeline: an ordered
// list of policies terminating in a transport. Policies see every request and
// response and may short-circuit, mutate, or replay the request via the next
// continuation they are handed.
package pipeline

import (
	"context"
	"fmt"
)

// Next resumes the pipeline from the stage after the current one. A policy
// may invoke it any number of times (the retry policy calls it once per
// attempt) or not at all to short-circuit.
type Next func(ctx context.Context, req *Request) (*Response, error)

// Policy is a single pipeline stage. Implementations hold configuration
// only; any per-request state (try counters, timers) must live in locals or
// on the context, because one policy instance serves arbitrarily many
// concurrent requests.
type Policy interface {
	Do(ctx context.Context, req *Request, next Next) (*Response, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, req *Request, next Next) (*Response, error)

// Do implements Policy.
func (f PolicyFunc) Do(ctx context.Context, req *Request, next Next) (*Response, error) {
	return f(ctx, req, next)
}

// Transport executes the request against the network. It is the innermost
// stage of every pipeline.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Pipeline is an immutable ordered policy chain. Build once, share across
// any number of concurrent requests.
type Pipeline struct {
	policies  []Policy
	transport Transport
}

// New assembles a pipeline from policies (outermost first) and a transport.
func New(transport Transport, policies ...Policy) Pipeline {
	ps := make([]Policy, len(policies))
	copy(ps, policies)
	return Pipeline{policies: ps, transport: transport}
}

// Send runs the request through every policy and the transport. The context
// governs the whole logical operation; cancelling it stops whichever stage
// is in flight.
func (p Pipeline) Send(ctx context.Context, req *Request) (*Response, error) {
	if p.transport == nil {
		return nil, fmt.Errorf("pipeline has no transport")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.sendFrom(ctx, req, 0)
}

// sendFrom dispatches by index so policies form an explicit list rather than
// a tower of closures captured at build time.
func (p Pipeline) sendFrom(ctx context.Context, req *Request, i int) (*Response, error) {
	if i >= len(p.policies) {
		return p.transport.Send(ctx, req)
	}
	next := func(ctx context.Context, req *Request) (*Response, error) {
		return p.sendFrom(ctx, req, i+1)
	}
	return p.policies[i].Do(ctx, req, next)
}
