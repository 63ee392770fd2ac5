package multi

import (
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/bulkrpc/report"
	"github.com/ozontech/bulkrpc/utils/pool"
)

type Multi struct {
	nested []report.Reporter
	pool   *pool.SlicePool[*multiState]
}

func New(nested ...report.Reporter) *Multi {
	return &Multi{
		nested,
		pool.NewSlicePoolSize[*multiState](128),
	}
}

func (m *Multi) Run() error {
	g := new(errgroup.Group)
	for _, r := range m.nested {
		g.Go(r.Run)
	}
	return g.Wait()
}

func (m *Multi) Close() error {
	g := new(errgroup.Group)
	for _, r := range m.nested {
		g.Go(r.Close)
	}
	return g.Wait()
}

func (m *Multi) Acquire(method string) report.CallState {
	ms, ok := m.pool.Acquire()
	if !ok {
		ms = &multiState{m, make([]report.CallState, len(m.nested))}
	}

	for i, r := range m.nested {
		ms.states[i] = r.Acquire(method)
	}
	return ms
}

type multiState struct {
	m      *Multi
	states []report.CallState
}

func (s *multiState) Error(err error) {
	for _, s := range s.states {
		s.Error(err)
	}
}

func (s *multiState) End() {
	for i, st := range s.states {
		st.End()
		s.states[i] = nil
	}
	s.m.pool.Release(s)
}
