package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// One metric set for the whole package; promauto registers on the default
// registerer, which rejects duplicate names.
var testMetrics = New("metricstest")

func sendThrough(t *testing.T, code int, sendErr error) {
	t.Helper()
	p := pipeline.New(pipeline.TransportFunc(func(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
		if sendErr != nil {
			return nil, sendErr
		}
		return pipeline.NewResponse(&http.Response{StatusCode: code, Request: req.Request}), nil
	}), testMetrics.Policy())

	req, err := pipeline.NewRequest(http.MethodGet, url.URL{Scheme: "https", Host: "acct.blob.example.com", Path: "/c/b"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = p.Send(context.Background(), req)
}

func TestPolicyCountsOutcomes(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.RequestsTotal.WithLabelValues(http.MethodGet, "200"))
	sendThrough(t, http.StatusOK, nil)
	after := testutil.ToFloat64(testMetrics.RequestsTotal.WithLabelValues(http.MethodGet, "200"))
	if after != before+1 {
		t.Fatalf("requests_total went %v -> %v, want +1", before, after)
	}

	errBefore := testutil.ToFloat64(testMetrics.RequestErrors.WithLabelValues(http.MethodGet))
	sendThrough(t, 0, errors.New("boom"))
	errAfter := testutil.ToFloat64(testMetrics.RequestErrors.WithLabelValues(http.MethodGet))
	if errAfter != errBefore+1 {
		t.Fatalf("request_errors_total went %v -> %v, want +1", errBefore, errAfter)
	}

	if got := testutil.ToFloat64(testMetrics.RequestsInFlight); got != 0 {
		t.Fatalf("requests_in_flight = %v after completion", got)
	}
}

func TestOnRetryCountsPerHost(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.RetriesTotal.WithLabelValues("primary.example.com"))
	testMetrics.OnRetry(2, "primary.example.com")
	testMetrics.OnRetry(3, "primary.example.com")
	after := testutil.ToFloat64(testMetrics.RetriesTotal.WithLabelValues("primary.example.com"))
	if after != before+2 {
		t.Fatalf("retries_total went %v -> %v, want +2", before, after)
	}
}
