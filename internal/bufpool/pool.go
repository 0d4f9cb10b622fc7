// Package bufpool provides reusable fixed-size copy buffers for chunk
// transfers, reducing allocations when many workers stream ranges
// concurrently.
package bufpool

import "sync"

// Pool hands out byte buffers of a fixed size.
type Pool struct {
	size int
	pool sync.Pool
}

// New creates a pool of buffers of exactly size bytes.
func New(size int) *Pool {
	if size <= 0 {
		size = 4 * 1024 * 1024
	}
	p := &Pool{size: size}
	p.pool.New = func() any { return make([]byte, size) }
	return p
}

// Get returns a buffer of exactly the pool's size.
func (p *Pool) Get() []byte {
	buf := p.pool.Get().([]byte)
	if cap(buf) < p.size {
		return make([]byte, p.size)
	}
	return buf[:p.size]
}

// Put returns a buffer for reuse. Undersized buffers are discarded.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	p.pool.Put(buf[:cap(buf)])
}

// Size returns the buffer size handed out by this pool.
func (p *Pool) Size() int {
	return p.size
}
