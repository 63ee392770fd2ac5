package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstant(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	_, err := NewConstant(0)
	a.Error(err)

	s, err := NewConstant(4)
	require.NoError(t, err)
	for n, want := range map[int64]time.Duration{1: 0, 2: 250 * time.Millisecond, 5: time.Second} {
		at, ok := s.Next(n)
		a.True(ok)
		a.Equal(want, at, n)
	}
}

func TestLine(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	for _, args := range [][2]float64{{0, 0}, {-1, 5}} {
		_, err := NewLine(args[0], args[1], time.Second)
		a.Error(err, args)
	}
	_, err := NewLine(1, 2, 0)
	a.Error(err)

	up, err := NewLine(0, 10, 10*time.Second)
	require.NoError(t, err)
	at, ok := up.Next(1)
	a.True(ok)
	a.Zero(at)
	at, ok = up.Next(3)
	a.True(ok)
	a.Equal(2*time.Second, at)

	flat, err := NewLine(5, 5, time.Minute)
	require.NoError(t, err)
	at, ok = flat.Next(11)
	a.True(ok)
	a.Equal(2*time.Second, at)

	down, err := NewLine(10, 0, 10*time.Second)
	require.NoError(t, err)
	at, ok = down.Next(51)
	a.True(ok)
	a.Equal(10*time.Second, at)
	_, ok = down.Next(52)
	a.False(ok)
}

func TestLimiters(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	cl := NewCountLimiter(Unlimited{}, 3)
	_, ok := cl.Next(3)
	a.True(ok)
	_, ok = cl.Next(4)
	a.False(ok)

	c, err := NewConstant(1)
	require.NoError(t, err)
	dl := NewDurationLimiter(c, 2*time.Second)
	at, ok := dl.Next(3)
	a.True(ok)
	a.Equal(2*time.Second, at)
	_, ok = dl.Next(4)
	a.False(ok)
}

func TestPacerCount(t *testing.T) {
	t.Parallel()

	p := NewPacer(NewCountLimiter(Unlimited{}, 100))
	var (
		wg     sync.WaitGroup
		issued atomic.Int64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p.Wait(context.Background()) {
				issued.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), issued.Load())
}

func TestPacerSleep(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	c, err := NewConstant(1)
	require.NoError(t, err)
	p := NewPacer(c)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.True(p.Wait(ctx))
	a.True(p.Wait(ctx))
	if a.Len(slept, 1) {
		a.InDelta(time.Second, slept[0], float64(100*time.Millisecond))
	}

	cancel()
	a.False(p.Wait(ctx))
}
