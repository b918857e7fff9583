// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure classes surfaced to the console
type ErrorKind int

const (
	// KindUnknown is never produced by this module; it classifies foreign errors.
	KindUnknown ErrorKind = iota
	// KindConnection is a refused or timed out connect.
	KindConnection
	// KindProtocolRejection is a transfer header the device did not ACK.
	KindProtocolRejection
	// KindTransport is a socket failure during a transfer.
	KindTransport
	// KindReconnect is a failed post-reboot reconnect or version query.
	KindReconnect
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindProtocolRejection:
		return "protocol rejection"
	case KindTransport:
		return "transport"
	case KindReconnect:
		return "reconnect"
	default:
		return "unknown"
	}
}

// OpError is returned by connect, transfer and reboot-verification operations
type OpError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError creates an OpError
func NewOpError(kind ErrorKind, op string, err error) *OpError {
	return &OpError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first OpError in err's chain
func KindOf(err error) ErrorKind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// RejectedError carries the reply that refused a transfer header
type RejectedError struct {
	Header TransferHeader
	Ack    Ack
}

func (e *RejectedError) Error() string {
	if e.Ack.Raw == "" {
		return fmt.Sprintf("header %q rejected: empty reply", e.Header.String())
	}
	return fmt.Sprintf("header %q rejected: device replied %q", e.Header.String(), e.Ack.Raw)
}
