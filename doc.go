// Package mheap provides a general-purpose heap allocator backed by anonymous
// memory mappings obtained directly from the operating system.
//
// mheap is a malloc/free replacement for memory that should live outside the
// Go garbage collector: large buffers, long-lived caches, memory shared with
// foreign code. Allocations are carved from page-granular arenas with a
// first-fit search, split when larger than needed, coalesced with free
// neighbours when released, and whole arenas are unmapped as soon as their
// last block becomes free.
//
// # Quick Start
//
//	h, err := mheap.New()
//	if err != nil { ... }
//	defer h.Close()
//
//	p, err := h.Alloc(256)
//	if err != nil { ... }
//
//	buf, _ := h.Bytes(p) // 256 usable bytes, 16-byte aligned
//	copy(buf, "hello")
//
//	_ = h.Free(p)
//
// # References
//
// Alloc returns a Ptr, an opaque (arena, offset) pair rather than a raw
// address. Bytes resolves it to a bounds-checked slice of the arena. The zero
// Ptr is the null reference: Free(Nil) is a no-op. A Ptr into an arena that
// has since been released never resolves again, because arena IDs are not
// reused.
//
// # Layout
//
// Every arena starts with a 32-byte arena header followed by blocks. Every
// block starts with a 48-byte header followed by its data:
//
//	+-------+--------+------+--------+------------------+
//	| arena | header | data | header | data (free) ...  |
//	+-------+--------+------+--------+------------------+
//
// The block list is doubly linked in address order within an arena and in
// arena order across arenas. Blocks in different arenas are never merged.
//
// # Errors
//
// A failed Alloc returns Nil together with an error and leaves the heap
// unchanged. ErrZeroSize and ErrOutOfMemory are the expected outcomes;
// ErrInvalidPointer and ErrDoubleFree report detected caller misuse. Block
// headers carry a magic tag checked on Free, so most misuse is caught, but
// a crafted or corrupted Ptr can still defeat the check.
//
// # Thread Safety
//
// A Heap is not safe for concurrent use. Callers serialize access externally.
// A resource.Controller shared between heaps is safe for concurrent use.
package mheap
