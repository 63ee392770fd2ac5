package transport

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("transport closed")
	ErrVersionMismatch = errors.New("protocol version mismatch")
)

type VersionError struct {
	Expected uint8
	Got      uint8
}

func (e VersionError) Error() string {
	return fmt.Sprintf("protocol version mismatch: expected %d, got %d", e.Expected, e.Got)
}

func (e VersionError) Unwrap() error { return ErrVersionMismatch }

// LoopError fatal error of the outbound or inbound loop.
type LoopError struct {
	Loop string
	Err  error
}

func (e LoopError) Error() string { return e.Loop + " loop: " + e.Err.Error() }
func (e LoopError) Unwrap() error { return e.Err }
