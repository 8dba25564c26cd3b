package blob

import (
	"golang.org/x/time/rate"

	"github.com/einyx/blobstore-go/internal/transport"
	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// PipelineOptions configures every stage of a client pipeline.
type PipelineOptions struct {
	Retry     RetryOptions
	Telemetry TelemetryOptions
	Log       LogOptions

	// RateLimit throttles attempts client-side; nil means unlimited.
	RateLimit *rate.Limiter

	// Instrumentation, when set, is installed as the outermost stage so it
	// observes whole logical operations including all retries. See
	// internal/metrics for the Prometheus implementation.
	Instrumentation pipeline.Policy

	// Transport overrides the default tuned HTTP sender.
	Transport pipeline.Transport
}

// NewPipeline composes the policy chain in its fixed order:
//
//	instrumentation → telemetry → request-id → retry →
//	rate-limit → date → credential → error-body → logging → transport
//
// Everything inside retry re-runs per attempt, so each try gets a fresh
// date, a fresh signature, and its own log line. The pipeline is immutable
// and safe for concurrent use.
func NewPipeline(c Credential, o PipelineOptions) (pipeline.Pipeline, error) {
	if c == nil {
		return pipeline.Pipeline{}, errInvalidArg("credential", "must not be nil")
	}
	if err := o.Retry.validate(); err != nil {
		return pipeline.Pipeline{}, err
	}

	policies := make([]pipeline.Policy, 0, 9)
	if o.Instrumentation != nil {
		policies = append(policies, o.Instrumentation)
	}
	policies = append(policies,
		newTelemetryPolicy(o.Telemetry),
		newUniqueRequestIDPolicy(),
		newRetryPolicy(o.Retry),
		newRateLimitPolicy(o.RateLimit),
		newDatePolicy(),
		c.credentialPolicy(),
		newErrorBodyPolicy(),
		newRequestLogPolicy(o.Log),
	)

	t := o.Transport
	if t == nil {
		t = transport.NewSender()
	}
	return pipeline.New(t, policies...), nil
}
