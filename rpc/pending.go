package rpc

import (
	"math/bits"
	"sync"
)

// PendingStore хранилище ожидающих ответа вызовов по sequence number.
// Каждая запись добавляется и удаляется ровно один раз.
type PendingStore[T any] interface {
	Set(seq uint64, v T)
	GetAndDelete(seq uint64) (T, bool)
	Delete(seq uint64)
	Len() int
	Each(fn func(seq uint64, v T))
}

type pendingMapUnlocked[T any] map[uint64]T

func (m pendingMapUnlocked[T]) GetAndDelete(seq uint64) (T, bool) {
	v, ok := m[seq]
	if ok {
		delete(m, seq)
	}
	return v, ok
}

// PendingMap имплементация хранилища используя map
type PendingMap[T any] struct {
	m  pendingMapUnlocked[T]
	mu sync.RWMutex
}

func NewPendingMap[T any](size int) *PendingMap[T] {
	return &PendingMap[T]{m: make(pendingMapUnlocked[T], size)}
}

func (s *PendingMap[T]) Set(seq uint64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[seq] = v
}

func (s *PendingMap[T]) GetAndDelete(seq uint64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.m.GetAndDelete(seq)
}

func (s *PendingMap[T]) Delete(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, seq)
}

func (s *PendingMap[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.m)
}

func (s *PendingMap[T]) Each(fn func(uint64, T)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for seq, v := range s.m {
		fn(seq, v)
	}
}

// ShardedPendingMap имплементация хранилища используя шардированный map.
// Последовательные sequence number попадают в разные шарды.
type ShardedPendingMap[T any] struct {
	shards []PendingStore[T]
	mask   uint64
}

// NewShardedPendingMap rounds size up to a power of two.
func NewShardedPendingMap[T any](size int, build func() PendingStore[T]) *ShardedPendingMap[T] {
	if size < 1 {
		size = 1
	}
	size = 1 << bits.Len(uint(size-1))

	shards := make([]PendingStore[T], size)
	for i := range shards {
		shards[i] = build()
	}
	return &ShardedPendingMap[T]{shards, uint64(size - 1)}
}

func (s *ShardedPendingMap[T]) shard(seq uint64) PendingStore[T] {
	return s.shards[seq&s.mask]
}

func (s *ShardedPendingMap[T]) Set(seq uint64, v T) { s.shard(seq).Set(seq, v) }

func (s *ShardedPendingMap[T]) GetAndDelete(seq uint64) (T, bool) {
	return s.shard(seq).GetAndDelete(seq)
}

func (s *ShardedPendingMap[T]) Delete(seq uint64) { s.shard(seq).Delete(seq) }

func (s *ShardedPendingMap[T]) Len() (n int) {
	for _, shard := range s.shards {
		n += shard.Len()
	}
	return n
}

func (s *ShardedPendingMap[T]) Each(fn func(uint64, T)) {
	for _, shard := range s.shards {
		shard.Each(fn)
	}
}
