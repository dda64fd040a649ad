package arena

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/mheap/internal/conv"
	"github.com/hupe1980/mheap/internal/mmap"
)

var (
	// ErrTooLarge is returned when the rounded arena length overflows or
	// exceeds the configured maximum.
	ErrTooLarge = errors.New("arena: requested size too large")
	// ErrMapFailed is returned when the OS refuses the mapping.
	ErrMapFailed = errors.New("arena: mapping failed")
	// ErrIDsExhausted is returned when the manager ran out of arena IDs.
	ErrIDsExhausted = errors.New("arena: arena ids exhausted")
)

const (
	// DefaultPageSize is the default arena granularity (128 KiB).
	DefaultPageSize = 128 * 1024
	// DefaultMaxSize caps a single arena mapping (64 GiB).
	DefaultMaxSize int64 = 64 << 30
)

// MemoryAcquirer is an interface for acquiring memory.
type MemoryAcquirer interface {
	AcquireMemory(amount int64) error
	ReleaseMemory(amount int64)
}

// Mapper is the OS mapping primitive.
type Mapper interface {
	Map(length int) (*mmap.Mapping, error)
}

// MapperFunc adapts a function to the Mapper interface.
type MapperFunc func(length int) (*mmap.Mapping, error)

// Map implements Mapper.
func (f MapperFunc) Map(length int) (*mmap.Mapping, error) {
	return f(length)
}

// Stats tracks arena usage.
//
// Note on semantics:
//   - Acquired/Released: historical counts of mappings created and unmapped
//   - Active: arenas currently linked into the list
//   - MappedBytes: bytes currently mapped by linked arenas
type Stats struct {
	Acquired    uint64
	Released    uint64
	Active      int
	MappedBytes int64
}

// Manager owns the arena list and the registry used to resolve arena IDs.
type Manager struct {
	pageSize int
	maxSize  int64
	overhead int
	mapper   Mapper
	acquirer MemoryAcquirer

	head, tail *Arena
	byID       map[uint32]*Arena
	lastID     uint32
	stats      Stats
}

// Option is a configuration option for Manager.
type Option func(*Manager)

// WithMemoryAcquirer sets the memory acquirer consulted before every mapping.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(m *Manager) {
		m.acquirer = acquirer
	}
}

// WithMapper replaces the OS mapping primitive.
func WithMapper(mapper Mapper) Option {
	return func(m *Manager) {
		m.mapper = mapper
	}
}

// WithMaxSize caps the length of a single mapping.
func WithMaxSize(n int64) Option {
	return func(m *Manager) {
		m.maxSize = n
	}
}

// WithOverhead sets the bytes every arena reserves on top of the requested
// payload besides its own header (the block header of the seed block).
func WithOverhead(n int) Option {
	return func(m *Manager) {
		m.overhead = n
	}
}

// NewManager creates a Manager that maps arenas in multiples of pageSize.
func NewManager(pageSize int, opts ...Option) *Manager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	m := &Manager{
		pageSize: pageSize,
		maxSize:  DefaultMaxSize,
		mapper:   MapperFunc(mmap.MapAnon),
		byID:     make(map[uint32]*Arena),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// PageSize returns the arena granularity.
func (m *Manager) PageSize() int {
	return m.pageSize
}

// Length returns the mapping length Acquire would request for minPayload.
func (m *Manager) Length(minPayload int) (int, error) {
	need, err := conv.AddInt(minPayload, m.overhead+HeaderSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	length, err := conv.AlignUp(need, m.pageSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	if int64(length) > m.maxSize {
		return 0, fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrTooLarge, length, m.maxSize)
	}
	return length, nil
}

// Acquire maps a new arena able to hold minPayload bytes plus overhead.
// The arena is not linked; call Append to make it visible.
func (m *Manager) Acquire(minPayload int) (*Arena, error) {
	length, err := m.Length(minPayload)
	if err != nil {
		return nil, err
	}
	if m.lastID == math.MaxUint32 {
		return nil, ErrIDsExhausted
	}

	if m.acquirer != nil {
		if err := m.acquirer.AcquireMemory(int64(length)); err != nil {
			return nil, err
		}
	}

	mapping, err := m.mapper.Map(length)
	if err != nil {
		if m.acquirer != nil {
			m.acquirer.ReleaseMemory(int64(length))
		}
		return nil, fmt.Errorf("%w: %d bytes: %w", ErrMapFailed, length, err)
	}
	if len(mapping.Bytes()) < length {
		_ = mapping.Close()
		if m.acquirer != nil {
			m.acquirer.ReleaseMemory(int64(length))
		}
		return nil, fmt.Errorf("%w: mapper returned %d bytes, want %d", ErrMapFailed, len(mapping.Bytes()), length)
	}

	m.lastID++
	a := &Arena{
		ID:         m.lastID,
		UsableSize: length - HeaderSize,
		mapping:    mapping,
		data:       mapping.Bytes()[:length:length],
	}
	a.writeHeader()

	m.stats.Acquired++

	return a, nil
}

// Append links a at the tail of the arena list and registers its ID.
func (m *Manager) Append(a *Arena) {
	a.next = nil
	if m.tail == nil {
		m.head = a
	} else {
		m.tail.next = a
		m.tail.writeHeader()
	}
	m.tail = a
	a.writeHeader()

	m.byID[a.ID] = a
	m.stats.Active++
	m.stats.MappedBytes += int64(a.MappedSize())
}

// Unlink removes a from the arena list. The list is singly linked, so the
// predecessor is found by walking from the head.
func (m *Manager) Unlink(a *Arena) {
	var prev *Arena
	for cur := m.head; cur != nil && cur != a; cur = cur.next {
		prev = cur
	}
	if prev == nil && m.head != a {
		return // not linked
	}

	if prev == nil {
		m.head = a.next
	} else {
		prev.next = a.next
		prev.writeHeader()
	}
	if m.tail == a {
		m.tail = prev
	}
	a.next = nil

	delete(m.byID, a.ID)
	m.stats.Active--
	m.stats.MappedBytes -= int64(a.MappedSize())
}

// Release unmaps exactly a.MappedSize() bytes and returns the reservation.
// a must already be unlinked.
func (m *Manager) Release(a *Arena) error {
	length := a.MappedSize()
	a.clearHeader()
	a.data = nil

	err := a.mapping.Close()
	if m.acquirer != nil {
		m.acquirer.ReleaseMemory(int64(length))
	}
	m.stats.Released++

	if err != nil {
		return fmt.Errorf("arena: release arena %d: %w", a.ID, err)
	}
	return nil
}

// Lookup resolves a linked arena by ID.
func (m *Manager) Lookup(id uint32) (*Arena, bool) {
	a, ok := m.byID[id]
	return a, ok
}

// Head returns the first arena, or nil.
func (m *Manager) Head() *Arena {
	return m.head
}

// Len returns the number of linked arenas.
func (m *Manager) Len() int {
	return m.stats.Active
}

// Stats returns the current arena statistics.
func (m *Manager) Stats() Stats {
	return m.stats
}

func (m *Manager) String() string {
	return fmt.Sprintf(
		"Arenas{active: %d, mapped: %.2f MB, acquired: %d, released: %d}",
		m.stats.Active,
		float64(m.stats.MappedBytes)/(1024*1024),
		m.stats.Acquired,
		m.stats.Released,
	)
}
