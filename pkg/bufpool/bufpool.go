// Package bufpool provides a tiered buffer pool for I/O copy loops.
//
// File bodies stream through reusable byte slices instead of fresh
// allocations, which keeps GC pressure flat when many sessions transfer
// at once. Three size tiers cover the common cases:
//   - Small (4KB): command replies and tiny files
//   - Medium (64KB): typical file bodies
//   - Large (1MB): bulk transfers
//
// Requests above the large tier are allocated directly and never pooled,
// so occasional huge transfers do not pin memory.
package bufpool

import (
	"sync"
)

// Buffer size classes.
const (
	DefaultSmallSize  = 4 << 10
	DefaultMediumSize = 64 << 10
	DefaultLargeSize  = 1 << 20
)

// Pool manages byte slice pools organized by size class. Safe for
// concurrent use.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config holds configuration for creating a custom buffer pool. Zero
// fields fall back to the default sizes.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// NewPool creates a buffer pool with the given configuration. A nil
// config uses the defaults.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		cfg = &Config{}
	}

	p := &Pool{
		smallSize:  cfg.SmallSize,
		mediumSize: cfg.MediumSize,
		largeSize:  cfg.LargeSize,
	}
	if p.smallSize <= 0 {
		p.smallSize = DefaultSmallSize
	}
	if p.mediumSize <= 0 {
		p.mediumSize = DefaultMediumSize
	}
	if p.largeSize <= 0 {
		p.largeSize = DefaultLargeSize
	}

	p.small = sync.Pool{
		New: func() any {
			buf := make([]byte, p.smallSize)
			return &buf
		},
	}
	p.medium = sync.Pool{
		New: func() any {
			buf := make([]byte, p.mediumSize)
			return &buf
		},
	}
	p.large = sync.Pool{
		New: func() any {
			buf := make([]byte, p.largeSize)
			return &buf
		},
	}

	return p
}

// Get returns a byte slice of at least the requested size. The slice is
// backed by a pooled buffer from the smallest tier that fits, so its
// capacity may exceed size. Callers must Put the buffer back when done.
//
// Sizes above the large tier are allocated directly and not pooled.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}

	buf := *bufPtr
	return buf[:size]
}

// Put returns a buffer to the pool. Buffers that did not come from a
// tier (oversized allocations) are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}

	switch cap(buf) {
	case p.smallSize:
		fullBuf := buf[:cap(buf)]
		p.small.Put(&fullBuf)
	case p.mediumSize:
		fullBuf := buf[:cap(buf)]
		p.medium.Put(&fullBuf)
	case p.largeSize:
		fullBuf := buf[:cap(buf)]
		p.large.Put(&fullBuf)
	}
}

// globalPool is the package-level pool shared by all callers.
var globalPool = NewPool(nil)

// Get returns a byte slice of at least the requested size from the
// global pool. Pair with Put.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer to the global pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
