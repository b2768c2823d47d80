package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSizeClasses(t *testing.T) {
	t.Run("Small", func(t *testing.T) {
		buf := Get(100)
		defer Put(buf)

		assert.GreaterOrEqual(t, len(buf), 100)
		assert.Equal(t, DefaultSmallSize, cap(buf))
	})

	t.Run("Medium", func(t *testing.T) {
		buf := Get(10 * 1024)
		defer Put(buf)

		assert.Equal(t, DefaultMediumSize, cap(buf))
	})

	t.Run("Large", func(t *testing.T) {
		buf := Get(100 * 1024)
		defer Put(buf)

		assert.Equal(t, DefaultLargeSize, cap(buf))
	})

	t.Run("OversizedNotPooled", func(t *testing.T) {
		buf := Get(2 * 1024 * 1024)
		defer Put(buf)

		assert.GreaterOrEqual(t, len(buf), 2*1024*1024)
		assert.Equal(t, len(buf), cap(buf))
	})

	t.Run("TierBoundaries", func(t *testing.T) {
		small := Get(DefaultSmallSize)
		assert.Equal(t, DefaultSmallSize, cap(small))
		Put(small)

		justAbove := Get(DefaultSmallSize + 1)
		assert.Equal(t, DefaultMediumSize, cap(justAbove))
		Put(justAbove)
	})
}

func TestPutEdgeCases(t *testing.T) {
	require.NotPanics(t, func() { Put(nil) })
	require.NotPanics(t, func() { Put([]byte{}) })

	// A foreign buffer that happens to match a tier size is accepted.
	require.NotPanics(t, func() { Put(make([]byte, DefaultSmallSize)) })
}

func TestCustomPool(t *testing.T) {
	pool := NewPool(&Config{
		SmallSize:  1024,
		MediumSize: 8192,
		LargeSize:  65536,
	})

	small := pool.Get(500)
	assert.Equal(t, 1024, cap(small))
	pool.Put(small)

	medium := pool.Get(2000)
	assert.Equal(t, 8192, cap(medium))
	pool.Put(medium)

	large := pool.Get(10000)
	assert.Equal(t, 65536, cap(large))
	pool.Put(large)
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	pool := NewPool(&Config{})

	buf := pool.Get(100)
	assert.Equal(t, DefaultSmallSize, cap(buf))
	pool.Put(buf)
}

func TestConcurrentGetAndPut(t *testing.T) {
	const numGoroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			for j := 0; j < iterations; j++ {
				size := (id*100 + j) % (500 * 1024)
				buf := Get(size)

				if len(buf) > 0 {
					buf[0] = byte(id)
				}

				Put(buf)
			}
		}(i)
	}

	wg.Wait()
}

func BenchmarkGet(b *testing.B) {
	b.Run("Small", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := Get(1024)
			Put(buf)
		}
	})

	b.Run("Large", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := Get(512 * 1024)
			Put(buf)
		}
	})
}
