package mheap

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/mheap/internal/arena"
	"github.com/hupe1980/mheap/internal/conv"
	"github.com/hupe1980/mheap/internal/mmap"
)

// Heap is a first-fit allocator over OS-mapped arenas.
//
// The zero value is not usable; create heaps with New. A Heap is not safe
// for concurrent use.
type Heap struct {
	opts   options
	arenas *arena.Manager

	// head and tail of the block list, threaded across all arenas.
	head, tail blockRef

	stats  heapStats
	closed bool
}

// heapStats holds counters that cannot be derived by walking the lists.
type heapStats struct {
	allocs uint64
	frees  uint64
	splits uint64
	merges uint64
}

// New creates an empty heap. No memory is mapped until the first Alloc.
func New(optFns ...Option) (*Heap, error) {
	o := applyOptions(optFns)

	if o.pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size %d", ErrInvalidConfig, o.pageSize)
	}
	pageSize, err := conv.AlignUp(o.pageSize, mmap.PageSize())
	if err != nil {
		return nil, fmt.Errorf("%w: page size %d: %w", ErrInvalidConfig, o.pageSize, err)
	}
	if o.maxArenaSize < int64(pageSize) {
		return nil, fmt.Errorf("%w: max arena size %d below page size %d", ErrInvalidConfig, o.maxArenaSize, pageSize)
	}
	o.pageSize = pageSize

	arenaOpts := []arena.Option{
		arena.WithOverhead(BlockHeaderSize),
		arena.WithMaxSize(o.maxArenaSize),
	}
	if o.controller != nil {
		arenaOpts = append(arenaOpts, arena.WithMemoryAcquirer(o.controller))
	}
	if o.mapper != nil {
		arenaOpts = append(arenaOpts, arena.WithMapper(o.mapper))
	}

	return &Heap{
		opts:   o,
		arenas: arena.NewManager(pageSize, arenaOpts...),
	}, nil
}

// Alloc reserves size bytes and returns a reference to them.
//
// The data region is at least size bytes long, starts on an Alignment
// boundary and is not zeroed when a block is reused. Alloc returns Nil with
// ErrZeroSize for size 0 and Nil with an error wrapping ErrOutOfMemory when
// no arena can be mapped. A failed Alloc leaves the heap unchanged.
func (h *Heap) Alloc(size int) (Ptr, error) {
	if h.closed {
		return Nil, ErrClosed
	}

	p, grew, err := h.alloc(size)
	h.opts.metricsCollector.RecordAlloc(size, grew, err)
	if errors.Is(err, ErrOutOfMemory) {
		h.opts.logger.LogAllocFailed(context.Background(), size, err)
	}
	return p, err
}

func (h *Heap) alloc(size int) (Ptr, bool, error) {
	switch {
	case size == 0:
		return Nil, false, ErrZeroSize
	case size < 0:
		return Nil, false, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	aligned, err := conv.AlignUp(size, Alignment)
	if err != nil {
		return Nil, false, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	if b, ok := h.firstFit(aligned); ok {
		return h.place(b, aligned), false, nil
	}

	a, err := h.grow(aligned)
	if err != nil {
		return Nil, false, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	b := initBlock(a, arena.HeaderSize, a.UsableSize-BlockHeaderSize, true, blockRef{}, blockRef{})
	h.appendBlock(b)

	return h.place(b, aligned), true, nil
}

// grow maps a new arena able to hold size bytes and links it at the tail
// of the arena list. Nothing is linked when mapping fails.
func (h *Heap) grow(size int) (*arena.Arena, error) {
	a, err := h.arenas.Acquire(size)
	if err != nil {
		h.opts.metricsCollector.RecordArenaAcquire(0, err)
		return nil, err
	}
	h.arenas.Append(a)

	h.opts.metricsCollector.RecordArenaAcquire(a.MappedSize(), nil)
	h.opts.logger.LogArenaAcquired(context.Background(), a.ID, a.MappedSize(), size)
	return a, nil
}

// place hands out b for a request of size bytes, splitting off the tail
// when it is large enough to form a block of its own.
func (h *Heap) place(b block, size int) Ptr {
	if canSplit(b.size(), size) {
		h.split(b, size)
	}
	b.setFree(false)
	h.stats.allocs++
	return b.ptr()
}

// Free releases the block referenced by p. Free(Nil) is a no-op.
//
// The block is coalesced with free neighbours in the same arena; when the
// result spans its whole arena the arena is unmapped. Free reports
// ErrInvalidPointer or ErrDoubleFree for references it can tell are not
// live; other misuse is undefined.
func (h *Heap) Free(p Ptr) error {
	if p.IsNil() {
		return nil
	}
	if h.closed {
		return ErrClosed
	}

	err := h.free(p)
	h.opts.metricsCollector.RecordFree(err)
	if errors.Is(err, ErrInvalidPointer) || errors.Is(err, ErrDoubleFree) {
		h.opts.logger.LogMisuse(context.Background(), "free", p, err)
	}
	return err
}

func (h *Heap) free(p Ptr) error {
	b, err := h.resolve(p)
	if err != nil {
		return err
	}
	if b.isFree() {
		return fmt.Errorf("%w: %s", ErrDoubleFree, p)
	}

	b.setFree(true)
	h.stats.frees++

	if prev := b.prev(); !prev.isNil() {
		if left := h.at(prev); canMerge(left, b) {
			h.merge(left, b)
			b = left
		}
	}
	if next := b.next(); !next.isNil() {
		if right := h.at(next); canMerge(b, right) {
			h.merge(b, right)
		}
	}

	if soleBlock(b) {
		return h.release(b)
	}
	return nil
}

// release unlinks the sole block of an arena, then the arena, and unmaps it.
func (h *Heap) release(b block) error {
	a := b.a
	mapped := a.MappedSize()

	h.unlink(b)
	h.arenas.Unlink(a)
	err := h.arenas.Release(a)

	h.opts.metricsCollector.RecordArenaRelease(mapped)
	h.opts.logger.LogArenaReleased(context.Background(), a.ID, mapped, err)
	return err
}

// resolve validates p and returns the header of the block it references.
func (h *Heap) resolve(p Ptr) (block, error) {
	a, ok := h.arenas.Lookup(p.arena)
	if !ok {
		return block{}, fmt.Errorf("%w: %s: no such arena", ErrInvalidPointer, p)
	}

	off := p.off - BlockHeaderSize
	if off < arena.HeaderSize || off%Alignment != 0 || off+BlockHeaderSize > a.MappedSize() {
		return block{}, fmt.Errorf("%w: %s: offset out of range", ErrInvalidPointer, p)
	}

	b := view(a, off)
	if !b.valid() {
		return block{}, fmt.Errorf("%w: %s: no block header", ErrInvalidPointer, p)
	}
	if size := b.size(); size < 0 || size%Alignment != 0 || b.end() > a.MappedSize() {
		return block{}, fmt.Errorf("%w: %s: corrupt block header", ErrInvalidPointer, p)
	}
	return b, nil
}

// Close unmaps every arena. Every Ptr handed out by the heap becomes
// invalid and later calls fail with ErrClosed. Close is idempotent.
func (h *Heap) Close() error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	h.head, h.tail = blockRef{}, blockRef{}

	var firstErr error
	for a := h.arenas.Head(); a != nil; a = h.arenas.Head() {
		mapped := a.MappedSize()
		h.arenas.Unlink(a)
		err := h.arenas.Release(a)

		h.opts.metricsCollector.RecordArenaRelease(mapped)
		h.opts.logger.LogArenaReleased(context.Background(), a.ID, mapped, err)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
