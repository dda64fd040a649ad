package mheap

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newTestHeap(t, WithLogger(logger))

	p := mustAlloc(t, h, 100)
	require.NoError(t, h.Free(p))
	assert.ErrorIs(t, h.Free(p), ErrInvalidPointer)

	_, err := h.Alloc(math.MaxInt)
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"arena acquired"`)
	assert.Contains(t, out, `"msg":"arena released"`)
	assert.Contains(t, out, `"msg":"invalid heap operation"`)
	assert.Contains(t, out, `"op":"free"`)
	assert.Contains(t, out, `"msg":"allocation failed"`)
}

func TestNoopLogger(t *testing.T) {
	h := newTestHeap(t, WithLogger(nil))
	p := mustAlloc(t, h, 10)
	require.NoError(t, h.Free(p))
	assert.False(t, h.opts.logger.Enabled(t.Context(), slog.LevelError))
}

func TestBasicMetricsCollector(t *testing.T) {
	mc := &BasicMetricsCollector{}
	h := newTestHeap(t, WithMetricsCollector(mc))

	a := mustAlloc(t, h, 100)
	b := mustAlloc(t, h, 60)
	_, err := h.Alloc(0)
	require.ErrorIs(t, err, ErrZeroSize)

	require.NoError(t, h.Free(a))
	require.ErrorIs(t, h.Free(a), ErrDoubleFree)
	require.NoError(t, h.Free(b))

	s := mc.GetStats()
	assert.Equal(t, int64(3), s.AllocCount)
	assert.Equal(t, int64(1), s.AllocErrors)
	assert.Equal(t, int64(1), s.AllocGrowCount)
	assert.Equal(t, int64(160), mc.AllocBytes.Load())
	assert.Equal(t, int64(80), s.AllocAvgBytes)
	assert.Equal(t, int64(3), s.FreeCount)
	assert.Equal(t, int64(1), s.FreeErrors)
	assert.Equal(t, int64(1), s.ArenaAcquireCount)
	assert.Equal(t, int64(1), s.ArenaReleaseCount)
	assert.Equal(t, int64(0), s.MappedBytes)

	hs := h.Stats()
	assert.Equal(t, uint64(2), hs.Allocs)
	assert.Equal(t, uint64(2), hs.Frees)
}
