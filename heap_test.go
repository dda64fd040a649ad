package mheap

import (
	"errors"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mheap/internal/arena"
	"github.com/hupe1980/mheap/internal/conv"
	"github.com/hupe1980/mheap/internal/mmap"
	"github.com/hupe1980/mheap/resource"
)

const testPage = 64 * 1024

// seedSize is the data size of the single block a fresh arena starts with.
const seedSize = testPage - arena.HeaderSize - BlockHeaderSize

func newTestHeap(t *testing.T, opts ...Option) *Heap {
	t.Helper()
	h, err := New(append([]Option{WithPageSize(testPage)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func mustAlloc(t *testing.T, h *Heap, size int) Ptr {
	t.Helper()
	p, err := h.Alloc(size)
	require.NoError(t, err)
	require.False(t, p.IsNil())
	return p
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		h, err := New()
		require.NoError(t, err)
		defer h.Close()

		assert.Equal(t, arena.DefaultPageSize, h.opts.pageSize)
		assert.Equal(t, 0, h.Stats().Arenas)
	})

	t.Run("page size rounded to os page", func(t *testing.T) {
		h := newTestHeap(t, WithPageSize(1000))
		mustAlloc(t, h, 1)

		snap := h.Snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, mmap.PageSize(), snap[0].MappedSize)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := New(WithPageSize(-1))
		assert.ErrorIs(t, err, ErrInvalidConfig)

		_, err = New(WithPageSize(testPage), WithMaxArenaSize(testPage/2))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestHeap_ZeroSize(t *testing.T) {
	h := newTestHeap(t)

	p, err := h.Alloc(0)
	assert.ErrorIs(t, err, ErrZeroSize)
	assert.True(t, p.IsNil())
	assert.Equal(t, 0, h.Stats().Arenas)

	_, err = h.Alloc(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestHeap_FreeNil(t *testing.T) {
	h := newTestHeap(t)
	mustAlloc(t, h, 32)
	before := h.Stats()

	require.NoError(t, h.Free(Nil))
	assert.Equal(t, before, h.Stats())
	require.NoError(t, h.Check())
}

func TestHeap_RoundTrip(t *testing.T) {
	h := newTestHeap(t)

	p := mustAlloc(t, h, 100)
	buf, err := h.Bytes(p)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(buf), 100)

	for i := range 100 {
		buf[i] = byte(i)
	}
	again, err := h.Bytes(p)
	require.NoError(t, err)
	for i := range 100 {
		assert.Equal(t, byte(i), again[i])
	}
	require.NoError(t, h.Check())

	require.NoError(t, h.Free(p))
	s := h.Stats()
	assert.Equal(t, 0, s.Arenas)
	assert.Equal(t, uint64(1), s.ArenasReleased)
	require.NoError(t, h.Check())
}

func TestHeap_Reuse(t *testing.T) {
	h := newTestHeap(t)

	a := mustAlloc(t, h, 64)
	mustAlloc(t, h, 64) // pin keeps the arena alive

	require.NoError(t, h.Free(a))
	b := mustAlloc(t, h, 64)
	assert.Equal(t, a, b)

	require.NoError(t, h.Free(b))
	c := mustAlloc(t, h, 40)
	assert.Equal(t, a, c, "smaller request reuses the first fitting block")
	assert.Equal(t, 1, h.Stats().Arenas)
	require.NoError(t, h.Check())
}

func TestHeap_Coalescing(t *testing.T) {
	h := newTestHeap(t)

	a := mustAlloc(t, h, 64)
	b := mustAlloc(t, h, 64)
	c := mustAlloc(t, h, 64)
	d := mustAlloc(t, h, 64)

	require.NoError(t, h.Free(a))
	require.NoError(t, h.Free(c))
	require.NoError(t, h.Check())
	require.NoError(t, h.Free(b))
	require.NoError(t, h.Check())

	merged := 3*64 + 2*BlockHeaderSize
	snap := h.Snapshot()
	require.Len(t, snap, 1)
	require.Len(t, snap[0].Blocks, 3)
	assert.Equal(t, BlockInfo{Offset: arena.HeaderSize, Size: merged, Free: true, Ptr: a}, snap[0].Blocks[0])
	assert.Equal(t, d, snap[0].Blocks[1].Ptr)
	assert.False(t, snap[0].Blocks[1].Free)
	assert.True(t, snap[0].Blocks[2].Free)
	assert.Equal(t, uint64(2), h.Stats().Merges)

	e := mustAlloc(t, h, merged)
	assert.Equal(t, a, e)
	require.NoError(t, h.Check())
}

func TestHeap_ArenaRelease(t *testing.T) {
	t.Run("exact fit", func(t *testing.T) {
		h := newTestHeap(t)

		p := mustAlloc(t, h, seedSize)
		s := h.Stats()
		assert.Equal(t, 1, s.Arenas)
		assert.Equal(t, int64(testPage), s.MappedBytes)
		assert.Equal(t, 1, s.BlocksInUse)
		assert.Equal(t, 0, s.BlocksFree)

		require.NoError(t, h.Free(p))
		assert.Equal(t, 0, h.Stats().Arenas)
		assert.Empty(t, h.Snapshot())
		require.NoError(t, h.Check())
	})

	t.Run("split arena", func(t *testing.T) {
		h := newTestHeap(t)

		p := mustAlloc(t, h, 100)
		require.NoError(t, h.Free(p))
		assert.Equal(t, 0, h.Stats().Arenas)
	})

	t.Run("only the emptied arena", func(t *testing.T) {
		h := newTestHeap(t)

		first := mustAlloc(t, h, seedSize)
		second := mustAlloc(t, h, seedSize)
		third := mustAlloc(t, h, seedSize)
		require.Equal(t, 3, h.Stats().Arenas)

		require.NoError(t, h.Free(second))
		require.NoError(t, h.Check())

		snap := h.Snapshot()
		require.Len(t, snap, 2)
		assert.Equal(t, []uint32{1, 3}, []uint32{snap[0].ID, snap[1].ID})

		// released IDs are not handed out again
		fourth := mustAlloc(t, h, seedSize)
		assert.Equal(t, "4:0x50", fourth.String())

		for _, p := range []Ptr{first, third, fourth} {
			require.NoError(t, h.Free(p))
			require.NoError(t, h.Check())
		}
		assert.Equal(t, 0, h.Stats().Arenas)
	})
}

func TestHeap_Exhaustion(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		opts  []Option
		warm  int
		size  int
		cause error
	}{
		{
			name:  "size overflow",
			size:  math.MaxInt,
			cause: conv.ErrOverflow,
		},
		{
			name:  "above max arena size",
			opts:  []Option{WithMaxArenaSize(2 * testPage)},
			size:  2 * testPage,
			cause: arena.ErrTooLarge,
		},
		{
			name:  "memory limit",
			opts:  []Option{WithMemoryLimit(testPage)},
			warm:  100,
			size:  seedSize,
			cause: resource.ErrMemoryLimitExceeded,
		},
		{
			name: "growth rate limit",
			opts: []Option{WithResourceController(resource.NewController(resource.Config{
				GrowthLimitBytesPerSec: 1,
				GrowthBurstBytes:       testPage,
			}))},
			warm:  100,
			size:  seedSize,
			cause: resource.ErrRateLimited,
		},
		{
			name: "mapping refused",
			opts: []Option{withMapper(arena.MapperFunc(func(int) (*mmap.Mapping, error) {
				return nil, boom
			}))},
			size:  100,
			cause: arena.ErrMapFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHeap(t, tt.opts...)
			if tt.warm > 0 {
				mustAlloc(t, h, tt.warm)
			}
			before := h.Snapshot()

			p, err := h.Alloc(tt.size)
			require.Error(t, err)
			assert.True(t, p.IsNil())
			assert.ErrorIs(t, err, ErrOutOfMemory)
			assert.ErrorIs(t, err, tt.cause)

			assert.Equal(t, before, h.Snapshot(), "failed alloc must not change the heap")
			require.NoError(t, h.Check())
		})
	}
}

func TestHeap_Alignment(t *testing.T) {
	h := newTestHeap(t)

	sizes := []int{1, 7, 15, 16, 17, 31, 33, 48, 63, 100, 255, 1000, 4097, seedSize, testPage}
	for _, size := range sizes {
		p := mustAlloc(t, h, size)
		assert.Zero(t, p.Offset()%Alignment, "offset of %d-byte block", size)

		buf, err := h.Bytes(p)
		require.NoError(t, err)
		addr := uintptr(unsafe.Pointer(&buf[0]))
		assert.Zero(t, addr%Alignment, "address of %d-byte block", size)

		usable, err := h.UsableSize(p)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, usable, size)
		assert.Zero(t, usable%Alignment)
	}
	require.NoError(t, h.Check())
}

func TestHeap_NoMergeAcrossArenas(t *testing.T) {
	h := newTestHeap(t)

	// Leave a 64-byte free block at the very end of arena 1.
	pin := mustAlloc(t, h, seedSize-64-BlockHeaderSize)
	x := mustAlloc(t, h, 128)
	mustAlloc(t, h, 128)

	require.Equal(t, 2, h.Stats().Arenas)
	require.NotEqual(t, pin.arena, x.arena)

	require.NoError(t, h.Free(x))
	require.NoError(t, h.Check())

	snap := h.Snapshot()
	require.Len(t, snap, 2)
	require.Len(t, snap[0].Blocks, 2)
	assert.Equal(t, BlockInfo{Offset: testPage - 64 - BlockHeaderSize, Size: 64, Free: true,
		Ptr: Ptr{arena: 1, off: testPage - 64}}, snap[0].Blocks[1])
	assert.Equal(t, BlockInfo{Offset: arena.HeaderSize, Size: 128, Free: true, Ptr: x}, snap[1].Blocks[0])
	assert.Equal(t, uint64(0), h.Stats().Merges)
}

func TestHeap_InvalidFree(t *testing.T) {
	t.Run("double free", func(t *testing.T) {
		h := newTestHeap(t)
		a := mustAlloc(t, h, 64)
		mustAlloc(t, h, 64)

		require.NoError(t, h.Free(a))
		assert.ErrorIs(t, h.Free(a), ErrDoubleFree)
		require.NoError(t, h.Check())
	})

	t.Run("stale after release", func(t *testing.T) {
		h := newTestHeap(t)
		a := mustAlloc(t, h, 64)

		require.NoError(t, h.Free(a))
		assert.ErrorIs(t, h.Free(a), ErrInvalidPointer)
	})

	t.Run("absorbed by neighbour", func(t *testing.T) {
		h := newTestHeap(t)
		a := mustAlloc(t, h, 64)
		b := mustAlloc(t, h, 64)
		mustAlloc(t, h, 64)

		require.NoError(t, h.Free(a))
		require.NoError(t, h.Free(b))
		assert.ErrorIs(t, h.Free(b), ErrInvalidPointer)
	})

	t.Run("bad references", func(t *testing.T) {
		h := newTestHeap(t)
		a := mustAlloc(t, h, 64)
		mustAlloc(t, h, 64)

		for name, p := range map[string]Ptr{
			"unknown arena": {arena: 99, off: a.off},
			"misaligned":    {arena: a.arena, off: a.off + 8},
			"inside data":   {arena: a.arena, off: a.off + 64},
			"below header":  {arena: a.arena, off: 0},
			"past the end":  {arena: a.arena, off: testPage},
		} {
			assert.ErrorIs(t, h.Free(p), ErrInvalidPointer, name)
		}
		require.NoError(t, h.Check())
	})
}

func TestHeap_Close(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 4 * testPage})
	h := newTestHeap(t, WithResourceController(rc))

	mustAlloc(t, h, 100)
	mustAlloc(t, h, seedSize)
	assert.Equal(t, int64(2*testPage), rc.MemoryUsage())

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, int64(0), rc.MemoryUsage())

	_, err := h.Alloc(1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.Free(Ptr{arena: 1, off: 80}), ErrClosed)
	assert.ErrorIs(t, h.Check(), ErrClosed)
	assert.Nil(t, h.Snapshot())
	assert.Equal(t, uint64(2), h.Stats().ArenasReleased)
}

func TestHeap_SharedController(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 2 * testPage})
	h1 := newTestHeap(t, WithResourceController(rc))
	h2 := newTestHeap(t, WithResourceController(rc))

	p := mustAlloc(t, h1, seedSize)
	mustAlloc(t, h2, seedSize)

	_, err := h2.Alloc(seedSize)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)

	require.NoError(t, h1.Free(p))
	mustAlloc(t, h2, seedSize)
}
