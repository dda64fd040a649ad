package arena

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/mheap/internal/conv"
	"github.com/hupe1980/mheap/internal/mmap"
)

// HeaderSize is the number of bytes at the start of every mapping reserved
// for the arena header. It is a multiple of the block alignment.
const HeaderSize = 32

// headerMagic tags a live arena header ("RENA").
const headerMagic uint32 = 0x414E4552

// Arena header layout (little endian).
const (
	offMagic  = 0  // uint32
	offID     = 4  // uint32
	offUsable = 8  // uint64
	offNextID = 16 // uint32, 0 = none
)

// ErrBadHeader is returned by Validate when the on-memory header does not
// match the arena record.
var ErrBadHeader = errors.New("arena: bad header")

// Arena is one OS-backed memory region.
type Arena struct {
	// ID identifies the arena inside its Manager. IDs start at 1 and are never reused.
	ID uint32
	// UsableSize is the mapped length minus HeaderSize.
	UsableSize int

	next    *Arena
	mapping *mmap.Mapping
	data    []byte
}

// Next returns the following arena in list order, or nil.
func (a *Arena) Next() *Arena {
	return a.next
}

// MappedSize returns the total length of the underlying mapping.
func (a *Arena) MappedSize() int {
	return a.UsableSize + HeaderSize
}

// Bytes returns the whole mapping, header included. Block offsets are
// relative to the start of this slice.
func (a *Arena) Bytes() []byte {
	return a.data
}

// writeHeader stores the record fields into the first HeaderSize bytes.
func (a *Arena) writeHeader() {
	usable, _ := conv.IntToUint64(a.UsableSize) // UsableSize > 0 by construction
	var nextID uint32
	if a.next != nil {
		nextID = a.next.ID
	}
	binary.LittleEndian.PutUint32(a.data[offMagic:], headerMagic)
	binary.LittleEndian.PutUint32(a.data[offID:], a.ID)
	binary.LittleEndian.PutUint64(a.data[offUsable:], usable)
	binary.LittleEndian.PutUint32(a.data[offNextID:], nextID)
}

// clearHeader wipes the header so a stale view of the memory is never
// mistaken for a live arena.
func (a *Arena) clearHeader() {
	clear(a.data[:HeaderSize])
}

// Validate checks the on-memory header against the arena record.
func (a *Arena) Validate() error {
	if len(a.data) != a.MappedSize() {
		return fmt.Errorf("%w: arena %d maps %d bytes, expected %d", ErrBadHeader, a.ID, len(a.data), a.MappedSize())
	}
	if m := binary.LittleEndian.Uint32(a.data[offMagic:]); m != headerMagic {
		return fmt.Errorf("%w: arena %d magic %#x", ErrBadHeader, a.ID, m)
	}
	if id := binary.LittleEndian.Uint32(a.data[offID:]); id != a.ID {
		return fmt.Errorf("%w: arena %d stores id %d", ErrBadHeader, a.ID, id)
	}
	usable, err := conv.Uint64ToInt(binary.LittleEndian.Uint64(a.data[offUsable:]))
	if err != nil || usable != a.UsableSize {
		return fmt.Errorf("%w: arena %d stores usable size %d, expected %d", ErrBadHeader, a.ID, usable, a.UsableSize)
	}
	var wantNext uint32
	if a.next != nil {
		wantNext = a.next.ID
	}
	if next := binary.LittleEndian.Uint32(a.data[offNextID:]); next != wantNext {
		return fmt.Errorf("%w: arena %d stores next %d, expected %d", ErrBadHeader, a.ID, next, wantNext)
	}
	return nil
}
