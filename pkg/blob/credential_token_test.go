package blob

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

func countingOKTransport(calls *int) pipeline.Transport {
	return pipeline.TransportFunc(func(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
		*calls++
		return pipeline.NewResponse(&http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: http.NoBody}), nil
	})
}

func TestTokenCredentialRequiresHTTPS(t *testing.T) {
	var calls int
	p, err := NewPipeline(NewTokenCredential("tok"), PipelineOptions{
		Retry:     fastRetryOptions(4, ""),
		Log:       quietLog(),
		Transport: countingOKTransport(&calls),
	})
	if err != nil {
		t.Fatal(err)
	}

	req := newPipelineRequest(t, http.MethodGet, mustParseURL(t, "http://acct.example.com/c/b"), nil)
	_, err = p.Send(context.Background(), req)
	if !IsInvalidArgument(err) {
		t.Fatalf("err = %v, want InvalidArgumentError", err)
	}
	if calls != 0 {
		t.Fatalf("transport calls = %d; scheme check must fail before any network call", calls)
	}
}

func TestTokenCredentialSetsBearerHeader(t *testing.T) {
	var authz string
	transport := pipeline.TransportFunc(func(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
		authz = req.Header.Get("Authorization")
		return pipeline.NewResponse(&http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: http.NoBody}), nil
	})
	p, err := NewPipeline(NewTokenCredential("initial-token"), PipelineOptions{
		Log:       quietLog(),
		Transport: transport,
	})
	if err != nil {
		t.Fatal(err)
	}

	req := newPipelineRequest(t, http.MethodGet, mustParseURL(t, "https://acct.example.com/c/b"), nil)
	resp, err := p.Send(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if authz != "Bearer initial-token" {
		t.Fatalf("Authorization = %q, want %q", authz, "Bearer initial-token")
	}
}

func TestTokenCredentialHotSwap(t *testing.T) {
	cred := NewTokenCredential("v1")

	// Concurrent rotation and reads must always observe a complete value.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				cred.SetToken("v2")
				if got := cred.Token(); got != "v1" && got != "v2" {
					t.Errorf("torn token read: %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()

	cred.SetToken("v3")
	if cred.Token() != "v3" {
		t.Fatalf("Token() = %q, want v3", cred.Token())
	}
}
