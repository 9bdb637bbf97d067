package device

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ConnKind classifies a connection failure for retry decisions upstream.
type ConnKind string

const (
	ConnTimeout ConnKind = "TIMEOUT"
	ConnRefused ConnKind = "REFUSED"
	ConnReset   ConnKind = "RESET"
)

// ConnectionError is a retryable transport failure against one terminal.
type ConnectionError struct {
	Kind ConnKind
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("device %s: connection %s: %v", e.Addr, e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is (or wraps) a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

func classifyConnErr(addr string, err error) *ConnectionError {
	kind := ConnReset
	var nerr net.Error
	switch {
	case errors.As(err, &nerr) && nerr.Timeout():
		kind = ConnTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = ConnRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		kind = ConnReset
	}
	return &ConnectionError{Kind: kind, Addr: addr, Err: err}
}
