package phout

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"syscall"
	"time"

	"github.com/ozontech/bulkrpc/report"
	"github.com/ozontech/bulkrpc/rpc"
	"github.com/ozontech/bulkrpc/utils/pool"
)

var now = time.Now

// Reporter пишет результат каждого вызова строкой в формате phout
// (yandex-tank/pandora).
type Reporter struct {
	w       *bufio.Writer
	ch      chan *callState
	pool    *pool.SlicePool[*callState]
	timeout time.Duration
}

func New(w io.Writer, timeout time.Duration) *Reporter {
	return &Reporter{
		bufio.NewWriter(w),
		make(chan *callState, 256),
		pool.NewSlicePoolSize[*callState](256),
		timeout,
	}
}

func (r *Reporter) Run() error {
	for s := range r.ch {
		_, err := r.w.Write(s.result())
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		r.pool.Release(s)
	}
	return r.w.Flush()
}

func (r *Reporter) Close() error {
	close(r.ch)
	return nil
}

func (r *Reporter) Acquire(method string) report.CallState {
	ss, ok := r.pool.Acquire()
	if !ok {
		ss = &callState{
			reportLine: make([]byte, 128),
			reporter:   r,
			timeout:    r.timeout,
		}
	}
	ss.reset(method)
	return ss
}

func (r *Reporter) accept(s *callState) {
	r.ch <- s
}

type callState struct {
	reportLine []byte

	reporter *Reporter
	timeout  time.Duration

	err       error
	startTime time.Time
	endTime   time.Time
	method    string
}

func (s *callState) reset(method string) {
	s.method = method
	s.startTime = now()
	s.err = nil
}

func (s *callState) Error(err error) {
	s.err = err
}

const tabChar = '\t'

func (s *callState) result() []byte {
	s.reportLine = s.reportLine[:0]
	s.reportLine = strconv.AppendInt(s.reportLine, s.startTime.Unix(), 10)
	s.reportLine = append(s.reportLine, '.')
	s.reportLine = strconv.AppendInt(s.reportLine, int64(s.startTime.Nanosecond()/1e6), 10)
	s.reportLine = append(s.reportLine, tabChar)
	s.reportLine = append(s.reportLine, s.method...)
	s.reportLine = append(s.reportLine, tabChar)

	// keyRTTMicro
	rtt := s.endTime.Sub(s.startTime).Microseconds()
	s.reportLine = strconv.AppendInt(s.reportLine, rtt, 10)
	s.reportLine = append(s.reportLine, tabChar)

	// keyConnectMicro, keySendMicro, keyLatencyMicro, keyReceiveMicro,
	// keyIntervalEventMicro, keyRequestBytes, keyResponseBytes
	for i := 0; i < 7; i++ {
		s.reportLine = append(s.reportLine, '0', tabChar)
	}

	// keyErrno: только для ошибок ввода/вывода
	code := report.Classify(s.err)
	var errNo syscall.Errno
	if code == report.CodeFailed || code == report.CodeClosed {
		if !errors.As(s.err, &errNo) {
			errNo = 999
		}
		s.reportLine = strconv.AppendInt(s.reportLine, int64(errNo), 10)
		s.reportLine = append(s.reportLine, tabChar)
	} else {
		s.reportLine = append(s.reportLine, '0', tabChar)
	}

	// keyProtoCode
	var callErr *rpc.CallError
	switch {
	case code == report.CodeOK && s.timeout > 0 && s.endTime.Sub(s.startTime) > s.timeout:
		s.reportLine = append(s.reportLine, "timeout"...)
	case errors.As(s.err, &callErr) && callErr.Message != "":
		s.reportLine = append(s.reportLine, "remote_"...)
		s.reportLine = appendCodeText(s.reportLine, callErr.Message)
	default:
		s.reportLine = append(s.reportLine, string(code)...)
	}
	s.reportLine = append(s.reportLine, '\n')
	return s.reportLine
}

// appendCodeText заменяет пробельные символы, ломающие формат строки.
func appendCodeText(b []byte, text string) []byte {
	for _, c := range []byte(text) {
		if c == ' ' || c == tabChar || c == '\n' {
			c = '_'
		}
		b = append(b, c)
	}
	return b
}

func (s *callState) End() {
	s.endTime = now()
	s.reporter.accept(s)
}
