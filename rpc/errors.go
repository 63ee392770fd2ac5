package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrRemote matches every error reported by the device.
	ErrRemote = errors.New("remote error")
	ErrClosed = errors.New("rpc engine closed")
)

// CallError device reported an error for the call. Message is set when the
// error value is a text string, Value holds any other decoded value.
type CallError struct {
	Method  string
	Message string
	Value   any
}

func (e *CallError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("call %s: remote error value: %v", e.Method, e.Value)
	}
	return fmt.Sprintf("call %s: remote error: %s", e.Method, e.Message)
}

func (e *CallError) Is(target error) bool { return target == ErrRemote }

// DecodeError result does not match the requested type.
type DecodeError struct {
	Method string
	Raw    []byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("call %s: decode result %x: %v", e.Method, e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type EncodeError struct {
	Method string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("call %s: encode request: %v", e.Method, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
