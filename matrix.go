package fontdiff

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/sync/singleflight"

	"github.com/wbrown/fontdiff/imageutil"
)

// Layout is the geometry of a symbol matrix.
type Layout struct {
	FontSize    int     // cell edge and glyph pixel size
	Padding     int     // margin around the grid and between rows
	TitleHeight int     // banner height, only present when titled
	TitleSize   float64 // banner text pixel size
	TitleX      int
	TitleY      int
	MaxGrid     int // larger grids are truncated to MaxGrid*MaxGrid symbols
}

// DefaultLayout returns 32px cells with 4px padding and a 64px banner.
func DefaultLayout() Layout {
	return Layout{
		FontSize:    32,
		Padding:     4,
		TitleHeight: 64,
		TitleSize:   16,
		TitleX:      8,
		TitleY:      8,
		MaxGrid:     32,
	}
}

// GridFor returns the smallest square grid holding n symbols.
func (l Layout) GridFor(n int) int {
	return int(math.Ceil(math.Sqrt(float64(n))))
}

// Size returns the canvas dimensions for a grid.
func (l Layout) Size(grid int, titled bool) (width, height int) {
	width = 2*l.Padding + l.FontSize*grid
	height = l.bannerHeight(titled) + l.Padding + (l.Padding+l.FontSize)*grid
	return width, height
}

// Cell returns the top-left corner of the i-th symbol.
func (l Layout) Cell(i, grid int, titled bool, dx, dy int) image.Point {
	col, row := i%grid, i/grid
	return image.Point{
		X: dx + l.Padding + col*l.FontSize,
		Y: dy + l.bannerHeight(titled) + l.Padding + row*l.FontSize,
	}
}

// TitleBand returns the banner rectangle of a canvas of the given width.
func (l Layout) TitleBand(width int) image.Rectangle {
	return image.Rect(0, 0, width, l.TitleHeight)
}

func (l Layout) bannerHeight(titled bool) int {
	if titled {
		return l.TitleHeight
	}
	return 0
}

// MatrixRequest describes one matrix render.
type MatrixRequest struct {
	Symbols  []rune
	GridSize int // zero selects the smallest square grid
	Font     string
	Title    string
	XOffset  int
	YOffset  int
}

// MatrixRenderer draws symbols into a square grid image, one per cell.
// Renders are cached in memory and on disk.
type MatrixRenderer struct {
	fonts  FontService
	layout Layout
	mem    *ImageCache
	disk   *DiskCache
	flight singleflight.Group

	title FontHandle
}

// RendererOption is a functional option for configuring a MatrixRenderer.
type RendererOption func(*MatrixRenderer)

// WithLayout overrides the default geometry.
func WithLayout(l Layout) RendererOption {
	return func(r *MatrixRenderer) {
		r.layout = l
	}
}

// WithImageCache shares a memory cache with the renderer.
func WithImageCache(c *ImageCache) RendererOption {
	return func(r *MatrixRenderer) {
		r.mem = c
	}
}

// WithDiskCache enables the persistent tier.
func WithDiskCache(d *DiskCache) RendererOption {
	return func(r *MatrixRenderer) {
		r.disk = d
	}
}

// NewMatrixRenderer creates a renderer. Without WithImageCache it gets a
// private cache with the default purge policy.
func NewMatrixRenderer(fonts FontService, opts ...RendererOption) (*MatrixRenderer, error) {
	r := &MatrixRenderer{
		fonts:  fonts,
		layout: DefaultLayout(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.mem == nil {
		r.mem = NewImageCache(DefaultCacheConfig())
	}
	title, err := LoadEmbeddedFont("Go Regular", goregular.TTF, r.layout.TitleSize)
	if err != nil {
		return nil, fmt.Errorf("title font: %w", err)
	}
	r.title = title
	return r, nil
}

// Layout returns the renderer's geometry.
func (r *MatrixRenderer) Layout() Layout { return r.layout }

// Normalize fills in the grid size and applies the grid cap, returning
// the request that will actually be drawn.
func (r *MatrixRenderer) Normalize(req MatrixRequest) MatrixRequest {
	if req.GridSize <= 0 {
		req.GridSize = r.layout.GridFor(len(req.Symbols))
	}
	if req.GridSize > r.layout.MaxGrid {
		req.GridSize = r.layout.MaxGrid
		if limit := r.layout.MaxGrid * r.layout.MaxGrid; len(req.Symbols) > limit {
			req.Symbols = req.Symbols[:limit]
		}
	}
	return req
}

// Render returns the matrix image for req. The result may be shared with
// the cache and must not be modified.
func (r *MatrixRenderer) Render(req MatrixRequest) (*imageutil.RGBAImage, error) {
	req = r.Normalize(req)
	if req.XOffset != 0 && req.YOffset != 0 {
		return r.translateCached(req)
	}
	return r.cached(req)
}

// translateCached derives a diagonally offset matrix from the zero-offset
// render by shifting pixels. The banner is copied back unshifted.
func (r *MatrixRenderer) translateCached(req MatrixRequest) (*imageutil.RGBAImage, error) {
	base := req
	base.XOffset, base.YOffset = 0, 0
	src, err := r.cached(base)
	if err != nil {
		return nil, err
	}
	out := imageutil.Translate(src, req.XOffset, req.YOffset, imageutil.White)
	if req.Title != "" {
		imageutil.CopyRect(out, src, r.layout.TitleBand(out.Width()))
	}
	return out, nil
}

func (r *MatrixRenderer) cached(req MatrixRequest) (*imageutil.RGBAImage, error) {
	key := MatrixKey(req, r.layout)
	if img, ok := r.mem.Get(key); ok {
		return img, nil
	}

	v, err, _ := r.flight.Do(string(key), func() (interface{}, error) {
		img, err := r.disk.LoadImage(key)
		if err == nil {
			r.mem.Put(key, img)
			return img, nil
		}
		var corrupt *CacheCorruptionError
		if errors.As(err, &corrupt) {
			Logger().Warn("discarding matrix cache entry", "err", err)
		}

		img, err = r.renderFresh(req)
		if err != nil {
			return nil, err
		}
		r.mem.Put(key, img)
		if err := r.disk.StoreImage(key, img); err != nil {
			Logger().Warn("matrix cache write failed", "font", req.Font, "err", err)
		}
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*imageutil.RGBAImage), nil
}

// renderFresh draws every symbol with the font's rasterizer.
func (r *MatrixRenderer) renderFresh(req MatrixRequest) (*imageutil.RGBAImage, error) {
	handle, err := r.fonts.LoadFont(req.Font, float64(r.layout.FontSize))
	if err != nil {
		return nil, err
	}
	titled := req.Title != ""
	width, height := r.layout.Size(req.GridSize, titled)
	img := imageutil.NewCanvas(width, height, imageutil.White)

	if titled {
		r.title.DrawText(img.RGBA, r.layout.TitleX, r.layout.TitleY, req.Title)
	}
	for i, sym := range req.Symbols {
		at := r.layout.Cell(i, req.GridSize, titled, req.XOffset, req.YOffset)
		handle.DrawText(img.RGBA, at.X, at.Y, string(sym))
	}
	return img, nil
}

// CacheStats reports the memory tier counters.
func (r *MatrixRenderer) CacheStats() CacheStats {
	return r.mem.Stats()
}
