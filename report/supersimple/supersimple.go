package supersimple

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ozontech/bulkrpc/report"
	"github.com/ozontech/bulkrpc/utils/pool"
)

var now = time.Now

// Reporter раз в секунду печатает количество вызовов и их частоту.
// Вызов дольше timeout считается неуспешным.
type Reporter struct {
	w       io.Writer
	pool    *pool.SlicePool[*callState]
	closeCh chan struct{}
	period  time.Duration

	timeout time.Duration

	start time.Time
	ok    atomic.Uint64
	nook  atomic.Uint64
	req   atomic.Uint64

	lastOk   uint64
	lastNook uint64
	lastReq  uint64
	lastTime time.Time
}

func New(w io.Writer, timeout time.Duration) *Reporter {
	start := now()
	return &Reporter{
		w:        w,
		pool:     pool.NewSlicePoolSize[*callState](100),
		closeCh:  make(chan struct{}),
		period:   time.Second,
		start:    start,
		lastTime: start,
		timeout:  timeout,
	}
}

func (a *Reporter) Run() error {
	t := time.NewTicker(a.period)
	defer t.Stop()
	defer a.total()
	for {
		select {
		case <-t.C:
			a.report(now())
		case <-a.closeCh:
			return nil
		}
	}
}

func (a *Reporter) Close() error {
	close(a.closeCh)
	return nil
}

func (a *Reporter) Acquire(string) report.CallState {
	a.req.Add(1)
	cs, ok := a.pool.Acquire()
	if !ok {
		cs = &callState{reporter: a}
	}
	cs.reset()
	return cs
}

func (a *Reporter) accept(s *callState) {
	if s.result() {
		a.ok.Add(1)
	} else {
		a.nook.Add(1)
	}

	a.pool.Release(s)
}

func (a *Reporter) write(ok, nook, req uint64, d time.Duration) {
	total := ok + nook
	miliSeconds := d.Milliseconds()
	if miliSeconds > 0 {
		fmt.Fprintf(a.w,
			"total=%s ok=%s nook=%s req=%s req/s=%s resp/s=%s\n",
			humanize.Comma(int64(total)), humanize.Comma(int64(ok)),
			humanize.Comma(int64(nook)), humanize.Comma(int64(req)),
			humanize.CommafWithDigits(float64(req)*1000/float64(miliSeconds), 2),
			humanize.CommafWithDigits(float64(total)*1000/float64(miliSeconds), 2),
		)
	} else {
		fmt.Fprintf(a.w, "total=%d ok=%d nook=%d req=%d\n", total, ok, nook, req)
	}
}

func (a *Reporter) total() {
	fmt.Fprintln(a.w, "total")
	a.write(a.ok.Load(), a.nook.Load(), a.req.Load(), now().Sub(a.start))
}

func (a *Reporter) report(t time.Time) {
	ok, nook, req, period := a.ok.Load(), a.nook.Load(), a.req.Load(), t.Sub(a.lastTime)
	a.write(ok-a.lastOk, nook-a.lastNook, req-a.lastReq, period)
	a.lastOk, a.lastNook, a.lastTime, a.lastReq = ok, nook, t, req
}

type callState struct {
	reporter *Reporter
	start    time.Time
	err      error
}

func (s *callState) reset() {
	s.start = now()
	s.err = nil
}

func (s *callState) Error(err error) { s.err = err }

func (s *callState) result() (ok bool) {
	if s.err != nil {
		return false
	}
	return s.reporter.timeout <= 0 || now().Sub(s.start) <= s.reporter.timeout
}

func (s *callState) End() {
	s.reporter.accept(s)
}
