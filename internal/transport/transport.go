// Package transport builds the HTTP round trippers used to reach the
// commerce API: a Chrome-fingerprinted TLS transport and a circuit breaker
// that sheds load while the upstream is failing.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Storefront domains sit behind a CDN that rate-limits clients by JA3
// fingerprint, and Go's crypto/tls ClientHello is easy to single out.
//
// The transport dials with uTLS using HelloChrome_Auto, lets ALPN pick the
// protocol, and hands the connection to x/net/http2 when h2 was negotiated.
// Plain HTTP requests (local proxies, tests) use an ordinary transport.
//
// =============================================================================

// Options configures New.
type Options struct {
	// Timeout bounds dialing and the TLS handshake.
	Timeout time.Duration

	// Fingerprint enables the Chrome TLS fingerprint. When false the stdlib
	// transport is used for every scheme.
	Fingerprint bool

	// Breaker wraps the transport in a circuit breaker when non-nil.
	Breaker *BreakerSettings

	Logger *slog.Logger
}

// New assembles the upstream round tripper described by opts.
func New(opts Options) http.RoundTripper {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	var rt http.RoundTripper
	if opts.Fingerprint {
		rt = NewChromeTransport(opts.Timeout)
	} else {
		rt = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: opts.Timeout}).DialContext,
			TLSHandshakeTimeout: opts.Timeout,
			ForceAttemptHTTP2:   true,
		}
	}

	if opts.Breaker != nil {
		rt = NewBreakerTransport(rt, *opts.Breaker, opts.Logger)
	}
	return rt
}

// NewChromeTransport returns a round tripper that presents Chrome's TLS
// fingerprint on https requests, speaking HTTP/2 or HTTP/1.1 as negotiated.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	return &chromeTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialChromeTLS(ctx, dialer, network, addr)
			},
			ReadIdleTimeout: timeout,
		},
		h1: &http.Transport{
			DialContext: dialer.DialContext,
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialChromeTLS(ctx, dialer, network, addr)
			},
			ForceAttemptHTTP2: false,
			IdleConnTimeout:   90 * time.Second,
		},
	}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip implements http.RoundTripper.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	// server refused h2 during ALPN
	return t.h1.RoundTrip(req)
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}

	return tlsConn, nil
}
