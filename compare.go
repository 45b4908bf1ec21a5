package fontdiff

import (
	"fmt"
	"path/filepath"

	"github.com/wbrown/fontdiff/imageutil"
)

// StandardAlphabet is the fixed set of everyday Latin symbols used for the
// before/after animation and for the "std" alphabet restriction.
const StandardAlphabet = "abcçdefghijklmnñopqrstuvwxyzABCÇDEFGHIJKLMNÑOPQRSTUVWXYZ01234567890!=.,-+*/%$&€áéíóúäëïöü"

// Comparison is a full comparison of two fonts at a fixed offset.
type Comparison struct {
	Similarity Similarity
	Symbols    SymbolSet // the symbols that were scored
	Diff       *imageutil.GrayImage

	// Side-by-side matrices of every symbol in either font and the
	// matrix of reference symbols the candidate lacks. Nil unless
	// requested.
	Reference *imageutil.RGBAImage
	Candidate *imageutil.RGBAImage
	Missing   *imageutil.RGBAImage
}

// Comparer renders and scores font pairs.
type Comparer struct {
	renderer *MatrixRenderer
	symbols  *Extractor
}

// NewComparer creates a Comparer.
func NewComparer(renderer *MatrixRenderer, symbols *Extractor) *Comparer {
	return &Comparer{renderer: renderer, symbols: symbols}
}

// Renderer returns the matrix renderer.
func (c *Comparer) Renderer() *MatrixRenderer { return c.renderer }

// Extractor returns the symbol extractor.
func (c *Comparer) Extractor() *Extractor { return c.symbols }

// ComparedSymbols returns the shared symbols of two fonts, narrowed to
// alphabet when it is non-empty.
func ComparedSymbols(ref, cand, alphabet SymbolSet) SymbolSet {
	shared := ref.Intersect(cand)
	if alphabet.Len() > 0 {
		shared = shared.Intersect(alphabet)
	}
	return shared
}

// ScoreOffset renders symbols in the reference at the origin and in the
// candidate at (dx, dy), then scores the pair.
func (c *Comparer) ScoreOffset(ref, cand string, symbols []rune, grid, dx, dy int) (Similarity, *imageutil.GrayImage, error) {
	a, err := c.renderer.Render(MatrixRequest{Symbols: symbols, GridSize: grid, Font: ref})
	if err != nil {
		return Similarity{}, nil, err
	}
	b, err := c.renderer.Render(MatrixRequest{Symbols: symbols, GridSize: grid, Font: cand, XOffset: dx, YOffset: dy})
	if err != nil {
		return Similarity{}, nil, err
	}
	return Score(a, b)
}

// Compare scores the shared symbols of ref and cand at offset (dx, dy).
// With artifacts it also renders the union matrices and the
// missing-symbol matrix.
func (c *Comparer) Compare(ref, cand string, alphabet SymbolSet, dx, dy int, artifacts bool) (*Comparison, error) {
	refSet, err := c.symbols.Symbols(ref)
	if err != nil {
		return nil, err
	}
	candSet, err := c.symbols.Symbols(cand)
	if err != nil {
		return nil, err
	}

	shared := ComparedSymbols(refSet, candSet, alphabet)
	if shared.Len() == 0 {
		return nil, ErrNoSharedSymbols
	}
	grid := c.renderer.Layout().GridFor(shared.Len())
	sim, diff, err := c.ScoreOffset(ref, cand, shared, grid, dx, dy)
	if err != nil {
		return nil, err
	}
	cmp := &Comparison{Similarity: sim, Symbols: shared, Diff: diff}
	if !artifacts {
		return cmp, nil
	}

	union := refSet.Union(candSet)
	unionGrid := c.renderer.Layout().GridFor(union.Len())
	refName, candName := filepath.Base(ref), filepath.Base(cand)

	cmp.Reference, err = c.renderer.Render(MatrixRequest{
		Symbols:  union,
		GridSize: unionGrid,
		Font:     ref,
		Title:    refName,
	})
	if err != nil {
		return nil, err
	}
	cmp.Candidate, err = c.renderer.Render(MatrixRequest{
		Symbols:  union,
		GridSize: unionGrid,
		Font:     cand,
		Title:    fmt.Sprintf("%s with offset %d, %d", candName, dx, dy),
		XOffset:  dx,
		YOffset:  dy,
	})
	if err != nil {
		return nil, err
	}

	// Keep every symbol in its union cell; symbols the candidate has are
	// blanked so only the gaps remain.
	missing := make([]rune, len(union))
	for i, r := range union {
		if candSet.Contains(r) {
			missing[i] = ' '
		} else {
			missing[i] = r
		}
	}
	cmp.Missing, err = c.renderer.Render(MatrixRequest{
		Symbols:  missing,
		GridSize: unionGrid,
		Font:     ref,
		Title:    fmt.Sprintf("%d %s chars not in %s", refSet.Difference(candSet).Len(), refName, candName),
	})
	if err != nil {
		return nil, err
	}
	return cmp, nil
}

// Animation returns the two frames of the before/after animation: the
// standard alphabet in the reference, then in the candidate at its offset.
func (c *Comparer) Animation(ref, cand string, dx, dy int, score float64) ([]*imageutil.RGBAImage, error) {
	alphabet := []rune(StandardAlphabet)
	grid := c.renderer.Layout().GridFor(len(alphabet))
	before, err := c.renderer.Render(MatrixRequest{
		Symbols:  alphabet,
		GridSize: grid,
		Font:     ref,
		Title:    filepath.Base(ref),
	})
	if err != nil {
		return nil, err
	}
	after, err := c.renderer.Render(MatrixRequest{
		Symbols:  alphabet,
		GridSize: grid,
		Font:     cand,
		Title:    fmt.Sprintf("%s offset=%d, %d  score=%.3f", filepath.Base(cand), dx, dy, score),
		XOffset:  dx,
		YOffset:  dy,
	})
	if err != nil {
		return nil, err
	}
	return []*imageutil.RGBAImage{before, after}, nil
}
