package ipc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrAlreadyConnected is wrapped by Connect on a connected node.
	ErrAlreadyConnected = errors.New("node is already connected")
	// ErrNotConnected is wrapped by network operations on a disconnected node.
	ErrNotConnected = errors.New("node is not connected")
	// ErrDisconnected is wrapped by calls interrupted by Disconnect.
	ErrDisconnected = errors.New("node disconnected during the call")
)

// ConnectionError reports that the transport is unreachable or was lost.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("Connection error to %v: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("Connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that no reply arrived in time.
type TimeoutError struct {
	Target  string
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Call to %v.%v timed out after %v seconds", e.Target, e.Method,
		strconv.FormatFloat(e.Timeout.Seconds(), 'f', -1, 64))
}

// RemoteError carries the description of a failure on the callee side.
type RemoteError struct {
	Target  string
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("Remote error in %v.%v: %v", e.Target, e.Method, e.Message)
}

// SerializationError reports a value the codec could not encode or decode.
type SerializationError struct {
	DataType string
	Err      error
}

func (e *SerializationError) Error() string {
	if e.DataType != "" {
		return fmt.Sprintf("Serialization error for type %v: %v", e.DataType, e.Err)
	}
	return fmt.Sprintf("Serialization error: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// MethodNotFoundError reports a call to a method the target does not have.
type MethodNotFoundError struct {
	Method string
	NodeID string
}

func (e *MethodNotFoundError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("Method '%v' not found on node %v", e.Method, e.NodeID)
	}
	return fmt.Sprintf("Method '%v' not found", e.Method)
}

// InvalidRequestError reports a malformed request or an illegal name.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("Invalid request format: %v", e.Reason)
}

func invalidRequestf(format string, args ...interface{}) error {
	return errors.WithStack(&InvalidRequestError{Reason: fmt.Sprintf(format, args...)})
}

// IsTransient reports whether err may go away if the call is repeated:
// timeouts and connection failures.
func IsTransient(err error) bool {
	var te *TimeoutError
	var ce *ConnectionError
	return errors.As(err, &te) || errors.As(err, &ce)
}

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}
