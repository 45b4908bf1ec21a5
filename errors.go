package fontdiff

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss is returned by cache tiers that hold no entry for a key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrNoSharedSymbols is returned when two fonts have no symbol in
	// common, so there is nothing to align or compare.
	ErrNoSharedSymbols = errors.New("fonts share no symbols")

	// ErrSizeMismatch is returned when images of different dimensions are
	// scored against each other.
	ErrSizeMismatch = errors.New("image dimensions differ")
)

// FontLoadError reports a font file that could not be read or parsed.
// It is fatal for the reference font and recoverable for candidates.
type FontLoadError struct {
	Path string
	Err  error
}

func (e *FontLoadError) Error() string {
	return fmt.Sprintf("load font %s: %v", e.Path, e.Err)
}

func (e *FontLoadError) Unwrap() error { return e.Err }

// GlyphResolutionError reports a glyph whose outline could not be decoded.
// Symbol extraction fails open on it: the glyph is treated as drawable.
type GlyphResolutionError struct {
	Path  string
	Glyph GlyphID
	Err   error
}

func (e *GlyphResolutionError) Error() string {
	return fmt.Sprintf("resolve glyph %d in %s: %v", e.Glyph, e.Path, e.Err)
}

func (e *GlyphResolutionError) Unwrap() error { return e.Err }

// CacheCorruptionError reports a persisted cache entry that exists but
// cannot be decoded. Callers treat it as a miss and overwrite the entry.
type CacheCorruptionError struct {
	Path string
	Err  error
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("corrupt cache entry %s: %v", e.Path, e.Err)
}

func (e *CacheCorruptionError) Unwrap() error { return e.Err }

// InsufficientOverlapError explains why a candidate was skipped: it draws
// too few of the reference's symbols.
type InsufficientOverlapError struct {
	Shared int
	Wanted int
	Min    float64
}

func (e *InsufficientOverlapError) Error() string {
	return fmt.Sprintf("shares %d of %d symbols, need %.0f%%",
		e.Shared, e.Wanted, e.Min*100)
}
