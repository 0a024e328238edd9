package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationPending means the user has not approved the code yet.
	ErrAuthorizationPending = errors.New("provider: authorization pending")
	// ErrSlowDown means the client polls too often; the flow is still pending.
	ErrSlowDown = errors.New("provider: slow down")
	// ErrExpiredToken means the device code expired before approval.
	ErrExpiredToken = errors.New("provider: device code expired")
	// ErrAccessDenied means the user declined the authorization request.
	ErrAccessDenied = errors.New("provider: access denied")
)

// TransportError is a network or timeout failure talking to the provider.
// It is always retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is an unexpected status or response shape from the provider.
type ProtocolError struct {
	Op          string
	StatusCode  int
	Code        string
	Description string
	Body        string
	Err         error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: protocol error (status %d)", e.Op, e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
		if e.Description != "" {
			msg += " (" + e.Description + ")"
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Code == "" && e.Err == nil && e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsPending reports whether err keeps a flow waiting for the user.
func IsPending(err error) bool {
	return errors.Is(err, ErrAuthorizationPending) || errors.Is(err, ErrSlowDown)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// truncate keeps provider bodies short enough for logs and error messages.
func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
