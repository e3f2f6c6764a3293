package emulator

import (
	"errors"
)

// Emulation (E) errors. Engine failures (invalid memory access, decode
// failure, hook registration) are wrapped at the call site with %w and
// surface alongside these sentinels. Shadow-memory divergence is not an
// error: it is an internal invariant violation and panics.
var (
	ErrENotLoaded       = errors.New("E1|NotLoaded: execution requested before a binary image was loaded.")
	ErrEBadPointerSize  = errors.New("E2|BadPointerSize: architecture pointer size must be 2, 4 or 8 bytes.")
	ErrEBadImage        = errors.New("E3|BadImage: binary image is not a loadable ELF for the configured architecture.")
	ErrENoLoadSegments  = errors.New("E4|NoLoadSegments: binary image has no PT_LOAD segments.")
	ErrEStackUnaligned  = errors.New("E5|StackUnaligned: configured stack region is not page aligned.")
	ErrEStackRegion     = errors.New("E6|StackRegion: a load segment overlaps the configured stack region.")
)
