package fontdiff

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SymbolSet is a sorted, duplicate-free set of codepoints. The zero value
// is the empty set.
type SymbolSet []rune

// NewSymbolSet builds a set from runes in any order.
func NewSymbolSet(runes ...rune) SymbolSet {
	s := slices.Clone(runes)
	slices.Sort(s)
	return SymbolSet(slices.Compact(s))
}

// SymbolSetFromString returns the set of distinct codepoints in text.
func SymbolSetFromString(text string) SymbolSet {
	return NewSymbolSet([]rune(text)...)
}

// Len returns the number of symbols.
func (s SymbolSet) Len() int { return len(s) }

// Runes returns the symbols in ascending order. The slice is shared.
func (s SymbolSet) Runes() []rune { return s }

// Contains reports whether r is in the set.
func (s SymbolSet) Contains(r rune) bool {
	_, ok := slices.BinarySearch(s, r)
	return ok
}

// Intersect returns the symbols present in both sets.
func (s SymbolSet) Intersect(o SymbolSet) SymbolSet {
	out := make(SymbolSet, 0, min(len(s), len(o)))
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			i++
		case s[i] > o[j]:
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	return out
}

// Union returns the symbols present in either set.
func (s SymbolSet) Union(o SymbolSet) SymbolSet {
	out := make(SymbolSet, 0, len(s)+len(o))
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			out = append(out, s[i])
			i++
		case s[i] > o[j]:
			out = append(out, o[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	out = append(out, s[i:]...)
	return append(out, o[j:]...)
}

// Difference returns the symbols of s that are not in o.
func (s SymbolSet) Difference(o SymbolSet) SymbolSet {
	out := make(SymbolSet, 0, len(s))
	j := 0
	for _, r := range s {
		for j < len(o) && o[j] < r {
			j++
		}
		if j < len(o) && o[j] == r {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Filter returns the symbols for which keep returns true.
func (s SymbolSet) Filter(keep func(rune) bool) SymbolSet {
	out := make(SymbolSet, 0, len(s))
	for _, r := range s {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s SymbolSet) String() string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		sb.WriteRune(r)
	}
	return sb.String()
}

// Extractor computes the set of codepoints a font actually draws. Results
// are cached in memory by path for the life of the Extractor and on disk
// by a hash of the path.
//
// The disk tier is keyed by path, not content: a font rewritten in place
// keeps its old symbol set until the cache directory is cleared.
type Extractor struct {
	fonts FontService
	disk  *DiskCache

	mu     sync.RWMutex
	mem    map[string]SymbolSet
	flight singleflight.Group

	hits, misses int
}

// NewExtractor creates an Extractor. disk may be nil to disable the
// persistent tier.
func NewExtractor(fonts FontService, disk *DiskCache) *Extractor {
	return &Extractor{
		fonts: fonts,
		disk:  disk,
		mem:   make(map[string]SymbolSet),
	}
}

// Symbols returns the non-empty symbols of the font at path. The returned
// set must not be modified.
func (e *Extractor) Symbols(path string) (SymbolSet, error) {
	e.mu.RLock()
	set, ok := e.mem[path]
	e.mu.RUnlock()
	if ok {
		e.mu.Lock()
		e.hits++
		e.mu.Unlock()
		return set, nil
	}

	v, err, _ := e.flight.Do(path, func() (interface{}, error) {
		return e.load(path)
	})
	if err != nil {
		return nil, err
	}
	return v.(SymbolSet), nil
}

func (e *Extractor) load(path string) (SymbolSet, error) {
	key := SymbolKey(path)
	set, err := e.disk.LoadSymbols(key)
	switch {
	case err == nil:
		e.remember(path, set, true)
		return set, nil
	case errors.Is(err, ErrCacheMiss):
	default:
		// Corrupt or unreadable entries are recomputed and overwritten.
		Logger().Warn("discarding symbol cache entry", "font", path, "err", err)
	}

	set, err = e.extract(path)
	if err != nil {
		return nil, err
	}
	if err := e.disk.StoreSymbols(key, set); err != nil {
		Logger().Warn("symbol cache write failed", "font", path, "err", err)
	}
	e.remember(path, set, false)
	return set, nil
}

func (e *Extractor) remember(path string, set SymbolSet, hit bool) {
	e.mu.Lock()
	e.mem[path] = set
	if hit {
		e.hits++
	} else {
		e.misses++
	}
	e.mu.Unlock()
}

// extract classifies every glyph in the font's best character map.
func (e *Extractor) extract(path string) (SymbolSet, error) {
	handle, err := e.fonts.LoadFont(path, float64(DefaultLayout().FontSize))
	if err != nil {
		return nil, err
	}
	cmap, err := handle.CharacterMap()
	if err != nil {
		return nil, err
	}

	runes := make([]rune, 0, len(cmap))
	for r, gid := range cmap {
		outline, err := handle.GlyphOutline(gid)
		if err != nil {
			// Fail open: an outline we cannot decode may still draw
			// something, and dropping it would understate coverage.
			Logger().Debug("glyph kept unresolved", "font", path,
				"rune", fmt.Sprintf("U+%04X", r), "err", err)
			runes = append(runes, r)
			continue
		}
		if !outline.Empty() {
			runes = append(runes, r)
		}
	}
	return NewSymbolSet(runes...), nil
}

// Stats returns the number of lookups served from a cache tier and the
// number that required parsing the font.
func (e *Extractor) Stats() (hits, misses int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hits, e.misses
}
