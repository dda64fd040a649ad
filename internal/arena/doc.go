// Package arena manages the OS-backed regions a heap carves blocks from.
//
// Every arena is one anonymous mapping whose length is a multiple of the
// configured page size. The first HeaderSize bytes of the mapping hold the
// arena header; the rest is usable space handed to the block layer.
//
// # Features
//
//   - Off-heap memory via internal/mmap (no GC pressure)
//   - Page-granular sizing with overflow-checked arithmetic
//   - Optional MemoryAcquirer for process-wide limits
//   - Monotonic arena IDs so stale references never resolve
//
// # Safety
//
// Acquire never panics and never mutates the arena list; callers link the
// returned arena with Append once they have finished using it. Release must
// only be called on an arena that has already been unlinked.
package arena
