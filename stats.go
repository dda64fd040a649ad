package mheap

import "fmt"

// Stats is a point-in-time summary of a heap.
type Stats struct {
	// Arenas is the number of arenas currently mapped.
	Arenas int
	// MappedBytes is the total length of those mappings.
	MappedBytes int64

	BlocksInUse int
	BlocksFree  int
	BytesInUse  int64 // data bytes of in-use blocks
	BytesFree   int64 // data bytes of free blocks

	Allocs uint64
	Frees  uint64
	Splits uint64
	Merges uint64

	ArenasAcquired uint64
	ArenasReleased uint64
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"Heap{arenas: %d, mapped: %d, blocks: %d used / %d free, bytes: %d used / %d free}",
		s.Arenas, s.MappedBytes, s.BlocksInUse, s.BlocksFree, s.BytesInUse, s.BytesFree,
	)
}

// ArenaInfo describes one arena and the blocks it holds, in list order.
type ArenaInfo struct {
	ID         uint32
	MappedSize int
	UsableSize int
	Blocks     []BlockInfo
}

// BlockInfo describes one block.
type BlockInfo struct {
	// Offset is the position of the header inside the arena.
	Offset int
	// Size is the length of the data region.
	Size int
	Free bool
	// Ptr references the data region. It is only valid for Free == false.
	Ptr Ptr
}

// Stats walks the block list and returns the current statistics.
func (h *Heap) Stats() Stats {
	as := h.arenas.Stats()
	s := Stats{
		Arenas:         as.Active,
		MappedBytes:    as.MappedBytes,
		Allocs:         h.stats.allocs,
		Frees:          h.stats.frees,
		Splits:         h.stats.splits,
		Merges:         h.stats.merges,
		ArenasAcquired: as.Acquired,
		ArenasReleased: as.Released,
	}
	if h.closed {
		return s
	}

	for r := h.head; !r.isNil(); {
		b := h.at(r)
		if b.isFree() {
			s.BlocksFree++
			s.BytesFree += int64(b.size())
		} else {
			s.BlocksInUse++
			s.BytesInUse += int64(b.size())
		}
		r = b.next()
	}
	return s
}

// Snapshot returns the arenas in list order with their blocks. The result
// is a copy and does not change with the heap.
func (h *Heap) Snapshot() []ArenaInfo {
	if h.closed {
		return nil
	}

	infos := make([]ArenaInfo, 0, h.arenas.Len())
	index := make(map[uint32]int, h.arenas.Len())
	for a := h.arenas.Head(); a != nil; a = a.Next() {
		index[a.ID] = len(infos)
		infos = append(infos, ArenaInfo{
			ID:         a.ID,
			MappedSize: a.MappedSize(),
			UsableSize: a.UsableSize,
		})
	}

	for r := h.head; !r.isNil(); {
		b := h.at(r)
		i := index[r.arena]
		infos[i].Blocks = append(infos[i].Blocks, BlockInfo{
			Offset: b.off,
			Size:   b.size(),
			Free:   b.isFree(),
			Ptr:    b.ptr(),
		})
		r = b.next()
	}
	return infos
}
