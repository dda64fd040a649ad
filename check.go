package mheap

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/mheap/internal/arena"
	"github.com/hupe1980/mheap/internal/conv"
)

// Check walks the arena list and the block list and verifies the structural
// invariants of the heap. It returns nil or an error wrapping ErrCorrupt.
//
// Checked invariants:
//   - every arena header matches its record and arena IDs increase along the list
//   - every block header carries the magic tag, an aligned size and a correct back link
//   - blocks of one arena are contiguous, start right after the arena header
//     and end exactly at the end of the mapping
//   - arenas appear in the block list in arena list order
//   - no two address-contiguous free blocks exist
//   - no arena consists of a single free block
//   - the list has no cycles and the tail is the last block
func (h *Heap) Check() error {
	if h.closed {
		return ErrClosed
	}

	var (
		count  int
		lastID uint32
	)
	for a := h.arenas.Head(); a != nil; a = a.Next() {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if a.ID <= lastID {
			return corruptf("arena %d follows arena %d", a.ID, lastID)
		}
		if got, ok := h.arenas.Lookup(a.ID); !ok || got != a {
			return corruptf("arena %d is not registered", a.ID)
		}
		lastID = a.ID
		count++
	}
	if count != h.arenas.Len() {
		return corruptf("arena list has %d entries, manager reports %d", count, h.arenas.Len())
	}

	w := walker{h: h, seen: make(map[uint32]*roaring.Bitmap, count)}
	for r := h.head; !r.isNil(); {
		b, err := w.visit(r)
		if err != nil {
			return err
		}
		r = b.next()
	}
	return w.finish()
}

// walker carries the state of one pass over the block list.
type walker struct {
	h    *Heap
	seen map[uint32]*roaring.Bitmap

	// cur is the arena of the previous block; want is the offset at which
	// the next block of cur must start.
	cur     *arena.Arena
	want    int
	prev    blockRef
	prevBlk block
}

func (w *walker) visit(r blockRef) (block, error) {
	a, ok := w.h.arenas.Lookup(r.arena)
	if !ok {
		return block{}, corruptf("block %s references unknown arena", refString(r))
	}
	if r.off < arena.HeaderSize || r.off%Alignment != 0 || r.off+BlockHeaderSize > a.MappedSize() {
		return block{}, corruptf("block %s out of bounds", refString(r))
	}

	slot, err := conv.IntToUint32(r.off / Alignment)
	if err != nil {
		return block{}, fmt.Errorf("%w: block %s: %w", ErrCorrupt, refString(r), err)
	}
	bm := w.seen[r.arena]
	if bm == nil {
		bm = roaring.New()
		w.seen[r.arena] = bm
	}
	if !bm.CheckedAdd(slot) {
		return block{}, corruptf("block %s visited twice", refString(r))
	}

	b := view(a, r.off)
	if !b.valid() {
		return block{}, corruptf("block %s has no magic", refString(r))
	}
	if size := b.size(); size < 0 || size%Alignment != 0 || b.end() > a.MappedSize() {
		return block{}, corruptf("block %s has bad size %d", refString(r), size)
	}
	if got := b.prev(); got != w.prev {
		return block{}, corruptf("block %s links back to %s, want %s", refString(r), refString(got), refString(w.prev))
	}

	if a != w.cur {
		if err := w.closeArena(); err != nil {
			return block{}, err
		}
		wantArena := w.h.arenas.Head()
		if w.cur != nil {
			wantArena = w.cur.Next()
		}
		if a != wantArena {
			return block{}, corruptf("block %s: arena %d out of list order", refString(r), a.ID)
		}
		if r.off != arena.HeaderSize {
			return block{}, corruptf("arena %d: first block at %#x", a.ID, r.off)
		}
		w.cur = a
	} else {
		if r.off != w.want {
			return block{}, corruptf("block %s not contiguous, want offset %#x", refString(r), w.want)
		}
		if b.isFree() && w.prevBlk.isFree() {
			return block{}, corruptf("blocks %s and %s are both free", refString(w.prev), refString(r))
		}
	}

	if soleBlock(b) && b.isFree() {
		return block{}, corruptf("arena %d holds a single free block", a.ID)
	}

	w.want = b.end()
	w.prev = r
	w.prevBlk = b
	return b, nil
}

// closeArena verifies that the blocks of the current arena cover it.
func (w *walker) closeArena() error {
	if w.cur == nil {
		return nil
	}
	if w.want != w.cur.MappedSize() {
		return corruptf("arena %d: blocks end at %#x, mapping ends at %#x", w.cur.ID, w.want, w.cur.MappedSize())
	}
	return nil
}

func (w *walker) finish() error {
	if err := w.closeArena(); err != nil {
		return err
	}
	if w.cur == nil {
		if w.h.arenas.Head() != nil {
			return corruptf("arenas mapped but block list is empty")
		}
	} else if w.cur.Next() != nil {
		return corruptf("arena %d has no blocks", w.cur.Next().ID)
	}
	if w.h.tail != w.prev {
		return corruptf("tail is %s, last block is %s", refString(w.h.tail), refString(w.prev))
	}
	return nil
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

func refString(r blockRef) string {
	return Ptr{arena: r.arena, off: r.off}.String()
}
