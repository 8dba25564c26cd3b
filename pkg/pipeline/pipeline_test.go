package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func mustURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return *u
}

func okTransport(calls *int) Transport {
	return TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		*calls++
		return NewResponse(&http.Response{StatusCode: http.StatusOK, Header: http.Header{}}), nil
	})
}

func TestPipelinePolicyOrder(t *testing.T) {
	var order []string
	tag := func(name string) Policy {
		return PolicyFunc(func(ctx context.Context, req *Request, next Next) (*Response, error) {
			order = append(order, name+" in")
			resp, err := next(ctx, req)
			order = append(order, name+" out")
			return resp, err
		})
	}

	var calls int
	p := New(okTransport(&calls), tag("outer"), tag("middle"), tag("inner"))
	req, err := NewRequest(http.MethodGet, mustURL(t, "https://acct.example.com/c/b"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Send(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	want := []string{"outer in", "middle in", "inner in", "inner out", "middle out", "outer out"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("stage %d: got %q, want %q", i, order[i], want[i])
		}
	}
	if calls != 1 {
		t.Fatalf("transport called %d times, want 1", calls)
	}
}

func TestPipelinePolicyMayReplay(t *testing.T) {
	replay := PolicyFunc(func(ctx context.Context, req *Request, next Next) (*Response, error) {
		// Invoke the continuation twice: inner stages must run per call.
		if _, err := next(ctx, req.Copy()); err != nil {
			return nil, err
		}
		return next(ctx, req.Copy())
	})
	var calls int
	p := New(okTransport(&calls), replay)
	req, err := NewRequest(http.MethodGet, mustURL(t, "https://acct.example.com/c"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Send(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("transport called %d times, want 2", calls)
	}
}

func TestPipelineCancelledContext(t *testing.T) {
	var calls int
	p := New(okTransport(&calls))
	req, err := NewRequest(http.MethodGet, mustURL(t, "https://acct.example.com/c"), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Send(ctx, req); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if calls != 0 {
		t.Fatalf("transport called %d times, want 0", calls)
	}
}

func TestRequestBody(t *testing.T) {
	body := strings.NewReader("payload")
	req, err := NewRequest(http.MethodPut, mustURL(t, "https://acct.example.com/c/b"), body)
	if err != nil {
		t.Fatal(err)
	}
	if req.ContentLength != int64(len("payload")) {
		t.Fatalf("ContentLength = %d, want %d", req.ContentLength, len("payload"))
	}

	// Drain, then rewind and make sure the identical bytes come back.
	first, _ := io.ReadAll(req.Body)
	if err := req.RewindBody(); err != nil {
		t.Fatal(err)
	}
	second, _ := io.ReadAll(req.Body)
	if string(first) != "payload" || string(second) != "payload" {
		t.Fatalf("bodies differ: %q vs %q", first, second)
	}
}

func TestRequestCopyIsolatesHeadersAndURL(t *testing.T) {
	req, err := NewRequest(http.MethodGet, mustURL(t, "https://primary.example.com/c/b"), nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("x-test", "original")

	cp := req.Copy()
	cp.Header.Set("x-test", "copy")
	cp.URL.Host = "secondary.example.com"

	if got := req.Header.Get("x-test"); got != "original" {
		t.Fatalf("original header mutated: %q", got)
	}
	if req.URL.Host != "primary.example.com" {
		t.Fatalf("original URL mutated: %q", req.URL.Host)
	}
}
