package bakong

import (
	"context"
	"net"
	"net/http"
	"time"
)

// newTransport returns an http.Transport whose dialer falls back to
// IPv4-only when the dual-stack dial fails. The provider's API host
// advertises an AAAA record that is unreachable from some networks; a
// plain dial then burns the whole attempt timeout on IPv6.
func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err == nil || network != "tcp" {
				return conn, err
			}
			if ctx.Err() != nil {
				return nil, err
			}
			if v4conn, v4err := dialer.DialContext(ctx, "tcp4", addr); v4err == nil {
				return v4conn, nil
			}
			return nil, err
		},
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}
