package email

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"github.com/brandon/mail-client/internal/config"
)

// TransportOptions controls how sessions reach the mail servers.
type TransportOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// RequireTLS refuses to continue in plaintext when STARTTLS is unavailable or fails.
	RequireTLS bool
	// TLSConfig is cloned per connection; ServerName is filled from the account.
	TLSConfig *tls.Config
}

// OptionsFromConfig builds transport options from the application config
func OptionsFromConfig(cfg *config.Config) TransportOptions {
	return TransportOptions{
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		RequireTLS:     cfg.RequireTLS,
		TLSConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify, //nolint:gosec
		},
	}
}

func (o TransportOptions) tlsConfig(serverName string) *tls.Config {
	var cfg *tls.Config
	if o.TLSConfig != nil {
		cfg = o.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	return cfg
}

// timeoutConn remembers whether any read or write hit its deadline. The IMAP
// client reports an expired deadline as a closed connection.
type timeoutConn struct {
	net.Conn
	timedOut atomic.Bool
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if err != nil && isNetTimeout(err) {
		c.timedOut.Store(true)
	}
	return n, err
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if err != nil && isNetTimeout(err) {
		c.timedOut.Store(true)
	}
	return n, err
}

func (c *timeoutConn) TimedOut() bool {
	return c.timedOut.Load()
}

// dial opens a TCP connection and, for implicit TLS, completes the handshake.
func dial(ctx context.Context, protocol, addr, serverName string, implicitTLS bool, opts TransportOptions) (*timeoutConn, net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, classifyNetError(protocol, "connect", err, func(err error) error {
			return &ConnectionError{Protocol: protocol, Addr: addr, Err: err}
		})
	}

	tc := &timeoutConn{Conn: raw}
	if !implicitTLS {
		return tc, tc, nil
	}

	tlsConn := tls.Client(tc, opts.tlsConfig(serverName))
	hsCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		raw.Close() //nolint:errcheck
		return nil, nil, classifyNetError(protocol, "tls handshake", err, func(err error) error {
			return &ConnectionError{Protocol: protocol, Addr: addr, Err: err}
		})
	}
	return tc, tlsConn, nil
}
