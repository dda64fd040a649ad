package mheap

import "errors"

var (
	// ErrZeroSize is returned when Alloc is called with size 0.
	ErrZeroSize = errors.New("mheap: zero-size allocation")

	// ErrInvalidSize is returned for negative sizes or counts.
	ErrInvalidSize = errors.New("mheap: invalid size")

	// ErrOutOfMemory indicates that the operating system, the configured
	// limits or the representable size range could not satisfy a request.
	// The underlying cause is wrapped and can be matched with errors.Is.
	ErrOutOfMemory = errors.New("mheap: out of memory")

	// ErrInvalidPointer indicates a reference that does not name a live block
	// of this heap.
	ErrInvalidPointer = errors.New("mheap: invalid pointer")

	// ErrDoubleFree indicates Free of a block that is already free.
	ErrDoubleFree = errors.New("mheap: double free")

	// ErrClosed is returned when the heap has been closed.
	ErrClosed = errors.New("mheap: heap is closed")

	// ErrCorrupt is returned by Check when a structural invariant is violated.
	ErrCorrupt = errors.New("mheap: heap corrupted")

	// ErrInvalidConfig is returned by New for unusable options.
	ErrInvalidConfig = errors.New("mheap: invalid configuration")
)
