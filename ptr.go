package mheap

import "fmt"

// Ptr references the data region of an allocated block.
//
// A Ptr is a value type made of an arena ID and the byte offset of the data
// inside that arena. The zero value is Nil.
type Ptr struct {
	arena uint32
	off   int
}

// Nil is the null reference.
var Nil Ptr

// IsNil reports whether p is the null reference.
func (p Ptr) IsNil() bool {
	return p.arena == 0
}

// Offset returns the byte offset of the data inside its arena. Because
// arenas are page aligned the offset has the same alignment as the address.
func (p Ptr) Offset() int {
	return p.off
}

func (p Ptr) String() string {
	if p.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%d:%#x", p.arena, p.off)
}
