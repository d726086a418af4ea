package call

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceFailure means capture was denied or no usable device exists.
	// Fatal to the session; never retried.
	ErrDeviceFailure = errors.New("media device unavailable")

	// ErrRoomFull means the broker rejected the join because the room
	// already has two members.
	ErrRoomFull = errors.New("room is full")

	// ErrSignalingTransport means the broker is unreachable or the
	// connection dropped mid-handshake. Fatal; the room assignment is no
	// longer valid, so no retry.
	ErrSignalingTransport = errors.New("signaling connection lost")

	// ErrConnectionFailed means the media transport never established or
	// failed before the call connected.
	ErrConnectionFailed = errors.New("connection failed")
)

// CallError wraps a failure with the operation that produced it.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}
