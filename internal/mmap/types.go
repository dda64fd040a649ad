package mmap

import "errors"

// ErrInvalidSize is returned when the requested length is not positive.
var ErrInvalidSize = errors.New("mmap: invalid size")
