// Package transport provides the default HTTP sender used as the innermost
// pipeline stage: a tuned http.Transport with DNS caching and TLS session
// reuse, sized for many concurrent blob transfers.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

const (
	dnsCacheSize = 512
	dnsCacheTTL  = 5 * time.Minute
)

type dnsCacheEntry struct {
	ips    []net.IP
	expiry time.Time
}

// dnsCache memoizes lookups so retry storms do not multiply resolver load.
// Bounded by an LRU so long-running processes cannot grow it unbounded.
type dnsCache struct {
	cache *lru.TwoQueueCache[string, dnsCacheEntry]
}

func newDNSCache() *dnsCache {
	c, _ := lru.New2Q[string, dnsCacheEntry](dnsCacheSize)
	return &dnsCache{cache: c}
}

func (d *dnsCache) resolve(ctx context.Context, host string) ([]net.IP, error) {
	if entry, ok := d.cache.Get(host); ok && time.Now().Before(entry.expiry) {
		return entry.ips, nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	d.cache.Add(host, dnsCacheEntry{ips: ips, expiry: time.Now().Add(dnsCacheTTL)})
	return ips, nil
}

// cachingDialer resolves through the DNS cache before dialing.
type cachingDialer struct {
	*net.Dialer
	dns *dnsCache
}

func (d *cachingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return d.Dialer.DialContext(ctx, network, addr)
	}
	if ips, err := d.dns.resolve(ctx, host); err == nil && len(ips) > 0 {
		addr = net.JoinHostPort(ips[0].String(), port)
	}
	return d.Dialer.DialContext(ctx, network, addr)
}

// NewHTTPTransport builds the tuned transport shared by all senders.
func NewHTTPTransport() *http.Transport {
	dialer := &cachingDialer{
		Dialer: &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   setTCPOptions,
		},
		dns: newDNSCache(),
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(256),
		},
	}
}

// Sender is the default pipeline.Transport.
type Sender struct {
	client *http.Client
}

// NewSender builds a sender on the tuned transport. Timeouts are owned by
// the retry stage's per-try context, so the client itself sets none.
func NewSender() *Sender {
	return &Sender{client: &http.Client{Transport: NewHTTPTransport()}}
}

// NewSenderWithClient wraps an existing client (tests, custom proxies).
func NewSenderWithClient(client *http.Client) *Sender {
	return &Sender{client: client}
}

// Send implements pipeline.Transport.
func (s *Sender) Send(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	resp, err := s.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return pipeline.NewResponse(resp), nil
}
