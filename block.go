package mheap

import (
	"encoding/binary"

	"github.com/hupe1980/mheap/internal/arena"
	"github.com/hupe1980/mheap/internal/conv"
)

const (
	// Alignment is the alignment of every block header, every data region
	// and every block size.
	Alignment = 16

	// BlockHeaderSize is the per-block bookkeeping overhead in bytes.
	BlockHeaderSize = 48

	// minBlockSize is the smallest remainder worth splitting off: one header
	// plus one alignment unit of payload.
	minBlockSize = BlockHeaderSize + Alignment
)

// blockMagic tags a live block header ("HBLK").
const blockMagic uint32 = 0x4B4C4248

const flagFree uint32 = 1

// Block header layout (little endian).
const (
	hdrMagic      = 0  // uint32
	hdrFlags      = 4  // uint32
	hdrSize       = 8  // uint64
	hdrNextArena  = 16 // uint32
	hdrNextOffset = 24 // uint64
	hdrPrevArena  = 32 // uint32
	hdrPrevOffset = 40 // uint64
)

// blockRef names a block header by arena ID and header offset.
// The zero value means "none".
type blockRef struct {
	arena uint32
	off   int
}

func (r blockRef) isNil() bool { return r.arena == 0 }

// block is a typed view of one header inside its arena.
type block struct {
	a   *arena.Arena
	off int
	hdr []byte
}

func (b block) ref() blockRef {
	return blockRef{arena: b.a.ID, off: b.off}
}

func (b block) valid() bool {
	return binary.LittleEndian.Uint32(b.hdr[hdrMagic:]) == blockMagic
}

func (b block) isFree() bool {
	return binary.LittleEndian.Uint32(b.hdr[hdrFlags:])&flagFree != 0
}

func (b block) setFree(free bool) {
	var flags uint32
	if free {
		flags = flagFree
	}
	binary.LittleEndian.PutUint32(b.hdr[hdrFlags:], flags)
}

func (b block) size() int {
	n, err := conv.Uint64ToInt(binary.LittleEndian.Uint64(b.hdr[hdrSize:]))
	if err != nil {
		return -1
	}
	return n
}

func (b block) setSize(n int) {
	binary.LittleEndian.PutUint64(b.hdr[hdrSize:], uint64(n)) //nolint:gosec // n >= 0 by construction
}

func (b block) next() blockRef {
	return getRef(b.hdr[hdrNextArena:], b.hdr[hdrNextOffset:])
}

func (b block) setNext(r blockRef) {
	putRef(b.hdr[hdrNextArena:], b.hdr[hdrNextOffset:], r)
}

func (b block) prev() blockRef {
	return getRef(b.hdr[hdrPrevArena:], b.hdr[hdrPrevOffset:])
}

func (b block) setPrev(r blockRef) {
	putRef(b.hdr[hdrPrevArena:], b.hdr[hdrPrevOffset:], r)
}

// dataOff is the arena offset of the first data byte.
func (b block) dataOff() int {
	return b.off + BlockHeaderSize
}

// end is the arena offset just past the data region.
func (b block) end() int {
	return b.dataOff() + b.size()
}

func (b block) data() []byte {
	lo, hi := b.dataOff(), b.end()
	return b.a.Bytes()[lo:hi:hi]
}

func (b block) ptr() Ptr {
	return Ptr{arena: b.a.ID, off: b.dataOff()}
}

// clear wipes the header so the absorbed span no longer looks like a block.
func (b block) clear() {
	clear(b.hdr)
}

func getRef(arenaField, offField []byte) blockRef {
	id := binary.LittleEndian.Uint32(arenaField)
	if id == 0 {
		return blockRef{}
	}
	off, err := conv.Uint64ToInt(binary.LittleEndian.Uint64(offField))
	if err != nil {
		return blockRef{}
	}
	return blockRef{arena: id, off: off}
}

func putRef(arenaField, offField []byte, r blockRef) {
	binary.LittleEndian.PutUint32(arenaField, r.arena)
	binary.LittleEndian.PutUint64(offField, uint64(r.off)) //nolint:gosec // offsets are non-negative
}

// view returns the header at off in a without validating it.
func view(a *arena.Arena, off int) block {
	return block{a: a, off: off, hdr: a.Bytes()[off : off+BlockHeaderSize : off+BlockHeaderSize]}
}

// initBlock writes a fresh header at off in a.
func initBlock(a *arena.Arena, off, size int, free bool, prev, next blockRef) block {
	b := view(a, off)
	clear(b.hdr)
	binary.LittleEndian.PutUint32(b.hdr[hdrMagic:], blockMagic)
	b.setFree(free)
	b.setSize(size)
	b.setPrev(prev)
	b.setNext(next)
	return b
}

// at resolves a reference taken from the list. List references are
// always valid; a miss means the list itself is corrupt.
func (h *Heap) at(r blockRef) block {
	a, ok := h.arenas.Lookup(r.arena)
	if !ok || r.off < arena.HeaderSize || r.off+BlockHeaderSize > a.MappedSize() {
		panic("mheap: corrupt block list: dangling reference " + Ptr{arena: r.arena, off: r.off}.String())
	}
	return view(a, r.off)
}

// firstFit returns the earliest free block in list order with at least
// minSize data bytes.
func (h *Heap) firstFit(minSize int) (block, bool) {
	for r := h.head; !r.isNil(); {
		b := h.at(r)
		if b.isFree() && b.size() >= minSize {
			return b, true
		}
		r = b.next()
	}
	return block{}, false
}

// canSplit reports whether a block of size bytes can give up requested
// bytes and still leave a remainder with at least one alignment unit of data.
func canSplit(size, requested int) bool {
	return size-requested >= minBlockSize
}

// split truncates b to requested bytes and links a new free block holding
// the remainder right behind it. The caller guarantees canSplit.
func (h *Heap) split(b block, requested int) block {
	next := b.next()
	nb := initBlock(b.a, b.dataOff()+requested, b.size()-requested-BlockHeaderSize, true, b.ref(), next)

	if next.isNil() {
		h.tail = nb.ref()
	} else {
		h.at(next).setPrev(nb.ref())
	}

	b.setSize(requested)
	b.setNext(nb.ref())

	h.stats.splits++
	return nb
}

// canMerge reports whether right can be absorbed into left: list
// neighbours, both free, same arena and address-contiguous.
func canMerge(left, right block) bool {
	return left.next() == right.ref() &&
		left.isFree() && right.isFree() &&
		left.a == right.a &&
		left.end() == right.off
}

// merge absorbs right into left. right's header ceases to exist.
func (h *Heap) merge(left, right block) {
	next := right.next()

	left.setSize(left.size() + right.size() + BlockHeaderSize)
	left.setNext(next)

	if next.isNil() {
		h.tail = left.ref()
	} else {
		h.at(next).setPrev(left.ref())
	}

	right.clear()
	h.stats.merges++
}

// soleBlock reports whether b spans the whole usable space of its arena.
func soleBlock(b block) bool {
	return b.off == arena.HeaderSize && b.end() == b.a.MappedSize()
}

// unlink removes b from the block list.
func (h *Heap) unlink(b block) {
	prev, next := b.prev(), b.next()

	if prev.isNil() {
		h.head = next
	} else {
		h.at(prev).setNext(next)
	}
	if next.isNil() {
		h.tail = prev
	} else {
		h.at(next).setPrev(prev)
	}

	b.clear()
}

// appendBlock links b after the current tail.
func (h *Heap) appendBlock(b block) {
	b.setPrev(h.tail)
	b.setNext(blockRef{})
	if h.tail.isNil() {
		h.head = b.ref()
	} else {
		h.at(h.tail).setNext(b.ref())
	}
	h.tail = b.ref()
}
