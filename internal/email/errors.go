package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

var (
	// ErrNoActiveAccount is returned when an operation needs an active account and none is set
	ErrNoActiveAccount = errors.New("no active account")
	// ErrAccountNotFound is returned for operations naming an unknown account
	ErrAccountNotFound = errors.New("account not found")
	// ErrOperationInProgress is returned when the account already has a network operation running
	ErrOperationInProgress = errors.New("another operation is in progress for this account")
	// ErrTLSRequired is returned when the server cannot upgrade to TLS and plaintext is disallowed
	ErrTLSRequired = errors.New("server does not support STARTTLS and TLS is required")
)

// StoreIOError indicates the account file could not be read or written.
type StoreIOError struct {
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("failed to persist accounts: %v", e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// ValidationError reports user input that was rejected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// AuthenticationError means the server rejected the account credentials.
type AuthenticationError struct {
	Protocol string
	Server   string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed on %s: %v", e.Protocol, e.Server, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ProtocolError means a protocol command failed after the session was established.
type ProtocolError struct {
	Protocol string
	Op       string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Protocol, e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ConnectionError means the server could not be reached or the TLS handshake failed.
type ConnectionError struct {
	Protocol string
	Addr     string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s server %s: %v", e.Protocol, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means a connect or command deadline elapsed.
type TimeoutError struct {
	Protocol string
	Op       string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s timed out: %v", e.Protocol, e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// PartialDeliveryError lists recipients the SMTP server refused.
// Accepted is empty when no DATA was sent.
type PartialDeliveryError struct {
	Accepted []string
	Rejected map[string]error
}

func (e *PartialDeliveryError) Error() string {
	addrs := make([]string, 0, len(e.Rejected))
	for addr := range e.Rejected {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		parts = append(parts, fmt.Sprintf("%s (%v)", addr, e.Rejected[addr]))
	}
	if len(e.Accepted) == 0 {
		return "all recipients rejected: " + strings.Join(parts, ", ")
	}
	return fmt.Sprintf("delivered to %d recipient(s), rejected: %s", len(e.Accepted), strings.Join(parts, ", "))
}

// IsAuthError reports whether err is an authentication failure
func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// IsTimeout reports whether err is a timeout
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

func isNetTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyNetError turns a transport failure into a TimeoutError when a deadline fired,
// otherwise into the error produced by fallback.
func classifyNetError(protocol, op string, err error, fallback func(error) error) error {
	if isNetTimeout(err) {
		return &TimeoutError{Protocol: protocol, Op: op, Err: err}
	}
	return fallback(err)
}
