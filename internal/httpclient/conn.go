// Package httpclient is a minimal, hand-rolled HTTP/1.1 client built
// as a typed state machine over a single connection. It exists
// because the remote cache needs exactly three request shapes (no
// body, fixed-length body, chunked body) and the generality of
// net/http's transport, connection pooling, and redirect handling
// buys nothing for that: one request, one connection, one response,
// then close.
package httpclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"

	"github.com/jgosmann/btdt/internal/btdterr"
)

// Version is reported in every request's User-Agent header.
const Version = "0.1.0"

type conn struct {
	nc net.Conn
	br *bufio.Reader
	bw *bufio.Writer
}

// Open dials target (scheme must be http or https), writes the
// request line, and returns the AwaitingRequestHeaders state. The
// caller is expected to add headers and then choose exactly one of
// NoBody, FixedBody, or ChunkedBody to advance the state machine.
//
// tlsConfig is only consulted for https:// targets; nil validates
// against the platform trust store, matching crypto/tls's default.
// A caller-supplied config's RootCAs let a client pin to a specific
// CA bundle instead.
//
// Userinfo in the URL (user:pass@host) is rejected: btdt carries
// authorization exclusively via bearer tokens, never URL-embedded
// credentials.
func Open(ctx context.Context, method string, target *url.URL, tlsConfig *tls.Config) (*RequestHeaders, error) {
	if target.User != nil {
		return nil, fmt.Errorf("%w: userinfo in URL is not supported", btdterr.ErrUnsupported)
	}

	var network, addr string
	var useTLS bool
	switch target.Scheme {
	case "http":
		useTLS = false
	case "https":
		useTLS = true
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme %q", btdterr.ErrUnsupported, target.Scheme)
	}
	network = "tcp"
	addr = target.Host
	if target.Port() == "" {
		if useTLS {
			addr = net.JoinHostPort(target.Hostname(), "443")
		} else {
			addr = net.JoinHostPort(target.Hostname(), "80")
		}
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", btdterr.ErrTransport, addr, err)
	}
	if useTLS {
		cfg := tlsConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = target.Hostname()
		}
		tc := tls.Client(nc, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("%w: TLS handshake with %s: %v", btdterr.ErrTransport, addr, err)
		}
		nc = tc
	}

	c := &conn{nc: nc, br: bufio.NewReader(nc), bw: bufio.NewWriter(nc)}
	requestTarget := target.RequestURI()
	if _, err := fmt.Fprintf(c.bw, "%s %s HTTP/1.1\r\n", method, requestTarget); err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: writing request line: %v", btdterr.ErrTransport, err)
	}
	rh := &RequestHeaders{c: c}
	rh.Header("Host", target.Host)
	rh.Header("Connection", "close")
	rh.Header("User-Agent", "btdt/"+Version)
	return rh, nil
}
