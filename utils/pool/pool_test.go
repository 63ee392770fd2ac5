package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlicePool(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	p := NewSlicePoolSize[int](2)
	_, ok := p.Acquire()
	a.False(ok)

	p.Release(1)
	p.Release(2)
	v, ok := p.Acquire()
	a.True(ok)
	a.Equal(2, v)
}

func TestBytes(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	p := NewBytes(8, 1)
	buf := p.Copy([]byte("abc"))
	a.Equal([]byte("abc"), buf)
	a.Equal(8, cap(buf))
	p.Put(buf)

	reused := p.Get()
	a.Empty(reused)
	a.Equal(8, cap(reused))

	big := p.Copy(make([]byte, 9))
	a.Len(big, 9)
	p.Put(big)
	_, ok := p.p.Acquire()
	a.False(ok, "oversized buffers are not pooled")
}
