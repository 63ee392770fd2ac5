package multi

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/bulkrpc/report"
	"github.com/ozontech/bulkrpc/report/noop"
)

type countingReporter struct {
	closeCh chan struct{}

	mu    sync.Mutex
	codes map[report.Code]int
}

func newCountingReporter() *countingReporter {
	return &countingReporter{closeCh: make(chan struct{}), codes: map[report.Code]int{}}
}

func (r *countingReporter) Run() error   { <-r.closeCh; return nil }
func (r *countingReporter) Close() error { close(r.closeCh); return nil }

func (r *countingReporter) Acquire(string) report.CallState {
	return &countingState{r: r}
}

type countingState struct {
	r   *countingReporter
	err error
}

func (s *countingState) Error(err error) { s.err = err }

func (s *countingState) End() {
	s.r.mu.Lock()
	s.r.codes[report.Classify(s.err)]++
	s.r.mu.Unlock()
}

func TestMulti(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	r1, r2 := newCountingReporter(), newCountingReporter()
	n := noop.New()
	m := New(r1, n, r2)

	var g errgroup.Group
	g.Go(m.Run)

	for i := 0; i < 1000; i++ {
		st := m.Acquire("version")
		if i%10 == 0 {
			st.Error(errors.New("brand error"))
		}
		st.End()
	}

	a.NoError(m.Close())
	a.NoError(g.Wait())

	want := map[report.Code]int{report.CodeOK: 900, report.CodeFailed: 100}
	a.Equal(want, r1.codes)
	a.Equal(want, r2.codes)
	a.Equal(uint64(1000), n.Calls())
}
