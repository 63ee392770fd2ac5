package pool

import "sync"

// SlicePool стек переиспользуемых объектов. В отличие от sync.Pool не
// очищается сборщиком мусора.
type SlicePool[T any] struct {
	mu sync.Mutex
	s  []T
}

func NewSlicePool[T any]() *SlicePool[T] {
	return new(SlicePool[T])
}

func NewSlicePoolSize[T any](size int) *SlicePool[T] {
	return &SlicePool[T]{s: make([]T, 0, size)}
}

func (p *SlicePool[T]) Acquire() (v T, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := len(p.s)
	if l == 0 {
		return v, false
	}

	v = p.s[l-1]
	p.s = p.s[:l-1]
	return v, true
}

func (p *SlicePool[T]) Release(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.s = append(p.s, v)
}

// Bytes пул байтовых буферов одинаковой емкости.
type Bytes struct {
	size int
	p    *SlicePool[[]byte]
}

func NewBytes(size, prealloc int) *Bytes {
	return &Bytes{size, NewSlicePoolSize[[]byte](prealloc)}
}

// Get returns an empty buffer with capacity of at least size bytes.
func (b *Bytes) Get() []byte {
	buf, ok := b.p.Acquire()
	if !ok {
		return make([]byte, 0, b.size)
	}
	return buf[:0]
}

// Copy returns a pooled copy of data. Data longer than the pool size gets a
// dedicated buffer which Put later drops.
func (b *Bytes) Copy(data []byte) []byte {
	if len(data) > b.size {
		return append([]byte(nil), data...)
	}
	return append(b.Get(), data...)
}

func (b *Bytes) Put(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	b.p.Release(buf[:0])
}
