package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_GetPut(t *testing.T) {
	p := NewPool(func() []int { return make([]int, 0, 8) }, func(s *[]int) bool {
		*s = (*s)[:0]
		return true
	})

	s := p.Get()
	s = append(s, 1, 2, 3)
	p.Put(s)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Gets)
	assert.Equal(t, int64(1), stats.Puts)
	assert.Equal(t, int64(1), stats.News)
	assert.Zero(t, stats.Dropped)
}

func TestPool_ResetCanDrop(t *testing.T) {
	p := NewPool(func() int { return 0 }, func(v *int) bool { return *v < 10 })
	p.Put(42)
	p.Put(1)
	assert.Equal(t, int64(1), p.Stats().Dropped)
}

func TestByteBufferPool(t *testing.T) {
	buf := ByteBufferPool.Get()
	buf.WriteString("hello")
	ByteBufferPool.Put(buf)

	again := ByteBufferPool.Get()
	assert.Zero(t, again.Len())
	ByteBufferPool.Put(again)

	before := ByteBufferPool.Stats().Dropped
	ByteBufferPool.Put(bytes.NewBuffer(make([]byte, 0, maxRetainedBuffer+1)))
	assert.Equal(t, before+1, ByteBufferPool.Stats().Dropped)
}

func TestPoolStats_HitRate(t *testing.T) {
	assert.Zero(t, PoolStats{}.HitRate())
	assert.InDelta(t, 0.75, PoolStats{Gets: 4, News: 1}.HitRate(), 1e-9)
}
