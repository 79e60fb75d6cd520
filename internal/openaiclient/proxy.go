package openaiclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// NewSocksClient routes all API traffic through a SOCKS5 proxy at socksAddr.
// headerTimeout bounds the wait for response headers, not the body.
func NewSocksClient(socksAddr string, headerTimeout time.Duration) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks proxy %s: %w", socksAddr, err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
		ResponseHeaderTimeout: headerTimeout,
	}

	return &http.Client{Transport: transport}, nil
}
