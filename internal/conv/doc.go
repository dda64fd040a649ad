// Package conv provides overflow-checked integer conversion and arithmetic.
//
// These functions perform bounds checking to prevent integer overflow/underflow
// when converting between signed/unsigned types or when computing sizes that
// are later handed to the operating system.
//
// Use cases:
//   - Decoding lengths and offsets stored in block and arena headers
//   - Rounding request sizes up to alignment and page granularity
//   - Multiplying element counts by element sizes for zeroed allocations
//
// For conversions that are provably safe by domain constraints (e.g., loop
// indices, bounded counters), use direct type casts instead to avoid overhead.
package conv
