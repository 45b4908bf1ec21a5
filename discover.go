package fontdiff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// FontGlob matches the font files searched for under a directory.
const FontGlob = "**/*.{ttf,otf,TTF,OTF}"

// FindFonts returns the font files to compare. A file path is returned as
// is; a directory is searched recursively, skipping relative paths that
// match any exclude pattern. Results are sorted.
func FindFonts(root string, exclude []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("font search path: %w", err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	matches, err := doublestar.Glob(os.DirFS(root), FontGlob)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", root, err)
	}
	paths := make([]string, 0, len(matches))
	for _, rel := range matches {
		if excluded(rel, exclude) {
			continue
		}
		paths = append(paths, filepath.Join(root, filepath.FromSlash(rel)))
	}
	sort.Strings(paths)
	return paths, nil
}

func excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// FilesWithAllSymbols returns the fonts among paths that draw every symbol
// in want, in input order. Fonts that fail to load are logged and left
// out.
func FilesWithAllSymbols(ctx context.Context, ex *Extractor, want SymbolSet, paths []string, workers int) ([]string, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	covers := make([]bool, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			set, err := ex.Symbols(path)
			if err != nil {
				Logger().Warn("font skipped", "font", path, "err", err)
				return nil
			}
			covers[i] = want.Difference(set).Len() == 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for i, ok := range covers {
		if ok {
			out = append(out, paths[i])
		}
	}
	return out, nil
}
