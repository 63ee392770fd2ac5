// Package report collects results of RPC calls made by the bench command.
package report

import (
	"context"
	"errors"

	"github.com/ozontech/bulkrpc/rpc"
)

type Reporter interface {
	Acquire(method string) CallState
	Run() error
	Close() error
}

type CallState interface {
	Error(err error) // вызов завершился ошибкой
	End()            // завершение вызова. отправляет результат в отчет
}

// Code класс результата вызова.
type Code string

const (
	CodeOK      Code = "ok"
	CodeRemote  Code = "remote"
	CodeTimeout Code = "timeout"
	CodeClosed  Code = "closed"
	CodeCodec   Code = "codec"
	CodeFailed  Code = "failed"
)

func Classify(err error) Code {
	var (
		decodeErr *rpc.DecodeError
		encodeErr *rpc.EncodeError
	)
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, rpc.ErrRemote):
		return CodeRemote
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeTimeout
	case errors.Is(err, rpc.ErrClosed):
		return CodeClosed
	case errors.As(err, &decodeErr), errors.As(err, &encodeErr):
		return CodeCodec
	}
	return CodeFailed
}
