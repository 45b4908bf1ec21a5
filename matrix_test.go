package fontdiff

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/fontdiff/imageutil"
)

func TestLayoutGeometry(t *testing.T) {
	t.Parallel()
	l := DefaultLayout()

	tests := []struct {
		grid          int
		titled        bool
		width, height int
	}{
		{1, false, 40, 40},
		{3, false, 104, 112},
		{3, true, 104, 176},
		{32, true, 1032, 1220},
	}
	for _, tt := range tests {
		w, h := l.Size(tt.grid, tt.titled)
		assert.Equal(t, tt.width, w, "grid %d titled %v", tt.grid, tt.titled)
		assert.Equal(t, tt.height, h, "grid %d titled %v", tt.grid, tt.titled)
	}

	assert.Equal(t, image.Pt(4, 4), l.Cell(0, 3, false, 0, 0))
	assert.Equal(t, image.Pt(4+32, 68+32), l.Cell(4, 3, true, 0, 0))
	assert.Equal(t, image.Pt(4+64-2, 4+5), l.Cell(2, 3, false, -2, 5))

	for n, want := range map[int]int{1: 1, 2: 2, 4: 2, 5: 3, 9: 3, 10: 4, 1024: 32, 1025: 33} {
		assert.Equal(t, want, l.GridFor(n), "GridFor(%d)", n)
	}
}

func TestNormalizeCapsGrid(t *testing.T) {
	t.Parallel()
	r, err := NewMatrixRenderer(NewSfntService(0))
	require.NoError(t, err)

	many := make([]rune, 2000)
	for i := range many {
		many[i] = rune(0x4E00 + i)
	}
	got := r.Normalize(MatrixRequest{Symbols: many})
	assert.Equal(t, 32, got.GridSize)
	assert.Len(t, got.Symbols, 1024)

	got = r.Normalize(MatrixRequest{Symbols: many[:100], GridSize: 40})
	assert.Equal(t, 32, got.GridSize)
	assert.Len(t, got.Symbols, 100)

	got = r.Normalize(MatrixRequest{Symbols: many[:10]})
	assert.Equal(t, 4, got.GridSize)
}

func TestMatrixKeyDistinguishesRequests(t *testing.T) {
	t.Parallel()
	base := MatrixRequest{Symbols: []rune("abc"), GridSize: 2, Font: "a.ttf"}
	l := DefaultLayout()

	variants := []MatrixRequest{
		base,
		{Symbols: []rune("abd"), GridSize: 2, Font: "a.ttf"},
		{Symbols: []rune("abc"), GridSize: 3, Font: "a.ttf"},
		{Symbols: []rune("abc"), GridSize: 2, Font: "b.ttf"},
		{Symbols: []rune("abc"), GridSize: 2, Font: "a.ttf", Title: "t"},
		{Symbols: []rune("abc"), GridSize: 2, Font: "a.ttf", XOffset: 1},
		{Symbols: []rune("abc"), GridSize: 2, Font: "a.ttf", YOffset: 1},
	}
	seen := make(map[CacheKey]int)
	for i, req := range variants {
		k := MatrixKey(req, l)
		assert.Len(t, string(k), 16)
		if j, dup := seen[k]; dup {
			t.Errorf("requests %d and %d share key %s", i, j, k)
		}
		seen[k] = i
	}

	assert.Equal(t, MatrixKey(base, l), MatrixKey(base, l))
	bigger := l
	bigger.FontSize = 48
	assert.NotEqual(t, MatrixKey(base, l), MatrixKey(base, bigger))
}

func TestRenderIsDeterministic(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	req := MatrixRequest{Symbols: []rune("Hamburgefonstiv"), Font: fonts.Regular, Title: "sample"}

	first, err := NewMatrixRenderer(NewSfntService(0))
	require.NoError(t, err)
	second, err := NewMatrixRenderer(NewSfntService(0))
	require.NoError(t, err)

	a, err := first.Render(req)
	require.NoError(t, err)
	b, err := second.Render(req)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)

	w, h := DefaultLayout().Size(4, true)
	assert.Equal(t, image.Rect(0, 0, w, h), a.Bounds())
	assert.Greater(t, imageutil.CountInk(a), 100)

	again, err := first.Render(req)
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, 1, first.CacheStats().Hits)
}

func TestRenderServesDiskTier(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	disk, err := OpenDiskCache(t.TempDir())
	require.NoError(t, err)
	req := MatrixRequest{Symbols: []rune("0123456789"), Font: fonts.Mono}

	warm, err := NewMatrixRenderer(NewSfntService(0), WithDiskCache(disk))
	require.NoError(t, err)
	want, err := warm.Render(req)
	require.NoError(t, err)

	// The font cannot be opened, so the image must come from disk.
	cold, err := NewMatrixRenderer(failingService{}, WithDiskCache(disk))
	require.NoError(t, err)
	got, err := cold.Render(req)
	require.NoError(t, err)
	assert.Equal(t, want.Pix, got.Pix)

	_, err = cold.Render(MatrixRequest{Symbols: []rune("x"), Font: fonts.Mono})
	var loadErr *FontLoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestRenderDiagonalOffsetIsTranslation(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	r, err := NewMatrixRenderer(NewSfntService(0))
	require.NoError(t, err)

	req := MatrixRequest{Symbols: []rune("AgjQ"), Font: fonts.Bold, Title: "bold"}
	base, err := r.Render(req)
	require.NoError(t, err)

	shifted := req
	shifted.XOffset, shifted.YOffset = 3, -2
	got, err := r.Render(shifted)
	require.NoError(t, err)

	want := imageutil.Translate(base, 3, -2, imageutil.White)
	band := r.Layout().TitleBand(base.Width())
	for y := 0; y < got.Height(); y++ {
		for x := 0; x < got.Width(); x++ {
			expect := want.GetRGB(x, y)
			if image.Pt(x, y).In(band) {
				expect = base.GetRGB(x, y)
			}
			if got.GetRGB(x, y) != expect {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got.GetRGB(x, y), expect)
			}
		}
	}
}

func TestRenderSingleAxisOffset(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	r, err := NewMatrixRenderer(NewSfntService(0))
	require.NoError(t, err)

	req := MatrixRequest{Symbols: []rune("HIH"), Font: fonts.Regular}
	base, err := r.Render(req)
	require.NoError(t, err)

	req.XOffset = 5
	moved, err := r.Render(req)
	require.NoError(t, err)
	assert.NotEqual(t, base.Pix, moved.Pix)
	assert.InEpsilon(t, imageutil.CountInk(base), imageutil.CountInk(moved), 0.1)
}
