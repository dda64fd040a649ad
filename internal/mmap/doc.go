// Package mmap provides anonymous memory mappings obtained directly from the
// operating system.
//
// # Overview
//
// Mappings live outside the Go heap: the garbage collector never scans or
// moves them, and their memory is returned to the OS as soon as Close is
// called. The heap allocator uses them as arenas.
//
// # Usage
//
//	m, err := mmap.MapAnon(128 * 1024)
//	if err != nil { ... }
//	defer m.Close()
//
//	// Zero-filled, page-aligned, read/write
//	data := m.Bytes()
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, munmap(2)
//   - Windows: VirtualAlloc with MEM_RESERVE|MEM_COMMIT, VirtualFree
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers must ensure no
// goroutine touches Bytes() after Close() returns.
package mmap
