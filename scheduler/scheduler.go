// Package scheduler paces calls of the bench command.
package scheduler

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"
)

// Scheduler returns the offset from the start of the run at which the call
// number n (starting at 1) is due.
type Scheduler interface {
	Next(n int64) (at time.Duration, ok bool)
}

// CountLimiter stops s after limit calls.
type CountLimiter struct {
	s     Scheduler
	limit int64
}

func NewCountLimiter(s Scheduler, limit int64) CountLimiter {
	return CountLimiter{s, limit}
}

func (cl CountLimiter) Next(n int64) (time.Duration, bool) {
	if n > cl.limit {
		return 0, false
	}
	return cl.s.Next(n)
}

// DurationLimiter stops s once calls are due after d.
type DurationLimiter struct {
	s Scheduler
	d time.Duration
}

func NewDurationLimiter(s Scheduler, d time.Duration) DurationLimiter {
	return DurationLimiter{s, d}
}

func (dl DurationLimiter) Next(n int64) (time.Duration, bool) {
	at, ok := dl.s.Next(n)
	if !ok || at > dl.d {
		return 0, false
	}
	return at, true
}

// Constant issues freq calls per second.
type Constant struct {
	interval time.Duration
}

func NewConstant(freq uint64) (Constant, error) {
	if freq == 0 {
		return Constant{}, errors.New("freq must be positive")
	}
	return Constant{time.Second / time.Duration(freq)}, nil
}

func (c Constant) Next(n int64) (time.Duration, bool) {
	return time.Duration(n-1) * c.interval, true
}

// Unlimited issues calls as fast as the workers take them.
type Unlimited struct{}

func (Unlimited) Next(int64) (time.Duration, bool) {
	return 0, true
}

// Line changes the rate linearly from "from" to "to" calls per second over d.
// The rate keeps changing after d unless the scheduler is limited.
type Line struct {
	from float64
	a    float64
}

func NewLine(from, to float64, d time.Duration) (Line, error) {
	if from < 0 || to < 0 || from == 0 && to == 0 {
		return Line{}, errors.New("rates must be non-negative and not both zero")
	}
	if d <= 0 {
		return Line{}, errors.New("duration must be positive")
	}
	return Line{from: from, a: (to - from) / d.Seconds()}, nil
}

// Next solves from*t + a*t²/2 = n-1 for t.
func (l Line) Next(n int64) (time.Duration, bool) {
	calls := float64(n - 1)
	if l.a == 0 {
		return time.Duration(calls / l.from * float64(time.Second)), true
	}
	disc := l.from*l.from + 2*l.a*calls
	if disc < 0 {
		// убывающая прямая дошла до нуля
		return 0, false
	}
	t := (math.Sqrt(disc) - l.from) / l.a
	return time.Duration(t * float64(time.Second)), true
}

// Pacer hands out call slots of a Scheduler to concurrent workers.
type Pacer struct {
	s     Scheduler
	n     atomic.Int64
	begin time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPacer(s Scheduler) *Pacer {
	return &Pacer{s: s, begin: time.Now(), sleep: sleep}
}

// Wait blocks until the next call is due. It returns false when the
// scheduler is exhausted or ctx is done.
func (p *Pacer) Wait(ctx context.Context) bool {
	at, ok := p.s.Next(p.n.Add(1))
	if !ok {
		return false
	}
	if d := at - time.Since(p.begin); d > 0 {
		if p.sleep(ctx, d) != nil {
			return false
		}
	}
	return ctx.Err() == nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
