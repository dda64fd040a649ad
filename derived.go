package mheap

import (
	"fmt"

	"github.com/hupe1980/mheap/internal/conv"
)

// Calloc allocates room for count elements of elemSize bytes each and
// zeroes the whole data region. An overflowing product fails with
// ErrOutOfMemory.
func (h *Heap) Calloc(count, elemSize int) (Ptr, error) {
	if h.closed {
		return Nil, ErrClosed
	}
	if count < 0 || elemSize < 0 {
		return Nil, fmt.Errorf("%w: calloc(%d, %d)", ErrInvalidSize, count, elemSize)
	}

	size, err := conv.MulInt(count, elemSize)
	if err != nil {
		return Nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	p, err := h.Alloc(size)
	if err != nil {
		return Nil, err
	}

	// Reused blocks keep whatever the previous owner wrote.
	clear(h.at(blockRef{arena: p.arena, off: p.off - BlockHeaderSize}).data())
	return p, nil
}

// Realloc resizes the block referenced by p to at least size bytes and
// returns the reference to use from now on.
//
// Realloc(Nil, n) behaves like Alloc(n) and Realloc(p, 0) like Free(p),
// returning Nil. Shrinking and growing into a free right neighbour happen
// in place; otherwise the contents are copied into a new block and p is
// freed. On error p is left untouched.
func (h *Heap) Realloc(p Ptr, size int) (Ptr, error) {
	if h.closed {
		return Nil, ErrClosed
	}
	switch {
	case p.IsNil():
		return h.Alloc(size)
	case size == 0:
		return Nil, h.Free(p)
	case size < 0:
		return Nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	b, err := h.live(p)
	if err != nil {
		return Nil, err
	}

	aligned, err := conv.AlignUp(size, Alignment)
	if err != nil {
		return Nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	if aligned <= b.size() {
		h.shrink(b, aligned)
		return p, nil
	}

	if next := b.next(); !next.isNil() {
		right := h.at(next)
		if right.isFree() && right.a == b.a && right.off == b.end() &&
			b.size()+BlockHeaderSize+right.size() >= aligned {
			h.merge(b, right)
			h.shrink(b, aligned)
			return p, nil
		}
	}

	np, err := h.Alloc(size)
	if err != nil {
		return Nil, err
	}
	nb := h.at(blockRef{arena: np.arena, off: np.off - BlockHeaderSize})
	copy(nb.data(), b.data())

	if err := h.Free(p); err != nil {
		return Nil, err
	}
	return np, nil
}

// shrink cuts an in-use block down to size bytes when the tail is large
// enough to stand alone, folding the tail into a free right neighbour.
func (h *Heap) shrink(b block, size int) {
	if !canSplit(b.size(), size) {
		return
	}
	rest := h.split(b, size)
	if next := rest.next(); !next.isNil() {
		if right := h.at(next); canMerge(rest, right) {
			h.merge(rest, right)
		}
	}
}

// Bytes returns the data region of the in-use block referenced by p.
//
// The slice is at least as long as the size that was requested and aliases
// heap memory: it must not be used after the block is freed or the heap is
// closed.
func (h *Heap) Bytes(p Ptr) ([]byte, error) {
	if h.closed {
		return nil, ErrClosed
	}
	b, err := h.live(p)
	if err != nil {
		return nil, err
	}
	return b.data(), nil
}

// UsableSize returns the length of the data region referenced by p.
func (h *Heap) UsableSize(p Ptr) (int, error) {
	if h.closed {
		return 0, ErrClosed
	}
	b, err := h.live(p)
	if err != nil {
		return 0, err
	}
	return b.size(), nil
}

// live resolves p and rejects free blocks.
func (h *Heap) live(p Ptr) (block, error) {
	if p.IsNil() {
		return block{}, fmt.Errorf("%w: nil", ErrInvalidPointer)
	}
	b, err := h.resolve(p)
	if err != nil {
		return block{}, err
	}
	if b.isFree() {
		return block{}, fmt.Errorf("%w: %s: block is free", ErrInvalidPointer, p)
	}
	return b, nil
}
