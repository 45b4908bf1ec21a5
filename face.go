package fontdiff

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	xsfnt "golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"seehuhn.de/go/sfnt"
	"seehuhn.de/go/sfnt/glyf"
)

// GlyphID is the index of a glyph inside a font file.
type GlyphID uint16

// GlyphOutline summarizes the shape data stored for a glyph. Only the
// counts matter: a simple glyph with no contours or a composite glyph with
// no components draws nothing.
type GlyphOutline struct {
	Composite  bool
	Contours   int
	Components int
}

// Empty reports whether the glyph has no visible shape.
func (o GlyphOutline) Empty() bool {
	if o.Composite {
		return o.Components <= 0
	}
	return o.Contours <= 0
}

// FontService opens fonts for inspection and rasterization.
type FontService interface {
	// LoadFont opens the font at path, rasterizing at pixelSize pixels
	// per em. Failures are *FontLoadError.
	LoadFont(path string, pixelSize float64) (FontHandle, error)
}

// FontHandle is a font opened at one pixel size. Implementations must be
// safe for concurrent use.
type FontHandle interface {
	Path() string
	// CharacterMap returns the font's best Unicode character map.
	CharacterMap() (map[rune]GlyphID, error)
	// GlyphOutline describes the outline of one glyph. Failures are
	// *GlyphResolutionError.
	GlyphOutline(gid GlyphID) (GlyphOutline, error)
	// Ascent is the distance in pixels from the top of a line to its
	// baseline.
	Ascent() int
	// DrawText draws text in black with the line's top-left at (x, y).
	DrawText(dst draw.Image, x, y int, text string)
}

// SfntService is the default FontService. It reads character maps and
// outlines with seehuhn.de/go/sfnt, rasterizes TrueType outlines with
// freetype, and falls back to golang.org/x/image/font/opentype for CFF
// outlines that freetype cannot parse.
type SfntService struct {
	mu    sync.Mutex
	fonts map[string]*parsedFont
	limit int
}

// NewSfntService creates a service that keeps up to limit parsed font
// files in memory. A limit of zero or less selects 64.
func NewSfntService(limit int) *SfntService {
	if limit <= 0 {
		limit = 64
	}
	return &SfntService{
		fonts: make(map[string]*parsedFont),
		limit: limit,
	}
}

type parsedFont struct {
	path string
	info *sfnt.Font     // nil when seehuhn cannot parse the file
	tt   *truetype.Font // nil for CFF outlines
	ot   *opentype.Font // nil when x/image cannot parse the file
}

// LoadFont implements FontService.
func (s *SfntService) LoadFont(path string, pixelSize float64) (FontHandle, error) {
	p, err := s.parsed(path)
	if err != nil {
		return nil, err
	}
	h, err := newHandle(p, pixelSize)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// LoadEmbeddedFont opens font data that is not backed by a file, such as
// the Go fonts. name stands in for the path in errors and logs.
func LoadEmbeddedFont(name string, data []byte, pixelSize float64) (FontHandle, error) {
	p, err := parseFontData(name, data)
	if err != nil {
		return nil, err
	}
	h, err := newHandle(p, pixelSize)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func newHandle(p *parsedFont, pixelSize float64) (*sfntHandle, error) {
	h := &sfntHandle{font: p, size: pixelSize}
	if p.tt != nil {
		face := truetype.NewFace(p.tt, &truetype.Options{
			Size:    pixelSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		h.ascent = face.Metrics().Ascent.Ceil()
		face.Close()
		return h, nil
	}
	face, err := opentype.NewFace(p.ot, &opentype.FaceOptions{
		Size:    pixelSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, &FontLoadError{Path: p.path, Err: err}
	}
	h.ascent = face.Metrics().Ascent.Ceil()
	face.Close()
	return h, nil
}

func (s *SfntService) parsed(path string) (*parsedFont, error) {
	s.mu.Lock()
	p, ok := s.fonts[path]
	s.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := parseFontFile(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.fonts) >= s.limit {
		// Entries are cheap to rebuild; drop everything rather than track
		// recency.
		clear(s.fonts)
	}
	s.fonts[path] = p
	s.mu.Unlock()
	return p, nil
}

func parseFontFile(path string) (*parsedFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FontLoadError{Path: path, Err: err}
	}
	return parseFontData(path, data)
}

func parseFontData(path string, data []byte) (*parsedFont, error) {
	p := &parsedFont{path: path}
	if info, err := sfnt.Read(bytes.NewReader(data)); err == nil {
		p.info = info
	} else {
		Logger().Debug("sfnt parse failed, using x/image tables", "font", path, "err", err)
	}
	if tt, err := freetype.ParseFont(data); err == nil {
		p.tt = tt
	}
	ot, otErr := opentype.Parse(data)
	if otErr == nil {
		p.ot = ot
	}

	if p.tt == nil && p.ot == nil {
		return nil, &FontLoadError{Path: path, Err: otErr}
	}
	if p.info == nil && p.ot == nil {
		return nil, &FontLoadError{Path: path, Err: errors.New("no usable character map")}
	}
	return p, nil
}

type sfntHandle struct {
	font   *parsedFont
	size   float64
	ascent int
}

func (h *sfntHandle) Path() string { return h.font.path }

func (h *sfntHandle) Ascent() int { return h.ascent }

func (h *sfntHandle) CharacterMap() (map[rune]GlyphID, error) {
	cmap := make(map[rune]GlyphID)
	if h.font.info != nil {
		sub, err := h.font.info.CMapTable.GetBest()
		if err == nil {
			low, high := sub.CodeRange()
			for r := low; r <= high; r++ {
				if gid := sub.Lookup(r); gid != 0 {
					cmap[r] = GlyphID(gid)
				}
			}
			return cmap, nil
		}
		Logger().Debug("no usable cmap subtable", "font", h.font.path, "err", err)
	}
	if h.font.ot == nil {
		return nil, &FontLoadError{Path: h.font.path, Err: errors.New("no usable character map")}
	}

	// Sweep the Basic Multilingual Plane through x/image's cmap reader.
	var buf xsfnt.Buffer
	for r := rune(0); r <= 0xFFFF; r++ {
		gid, err := h.font.ot.GlyphIndex(&buf, r)
		if err == nil && gid != 0 {
			cmap[r] = GlyphID(gid)
		}
	}
	return cmap, nil
}

func (h *sfntHandle) GlyphOutline(gid GlyphID) (GlyphOutline, error) {
	if h.font.info != nil {
		if outlines, ok := h.font.info.Outlines.(*glyf.Outlines); ok {
			return h.glyfOutline(outlines, gid)
		}
	}
	if h.font.ot == nil {
		return GlyphOutline{}, h.resolveErr(gid, errors.New("no outline table"))
	}

	// CFF outlines: count subpaths.
	var buf xsfnt.Buffer
	segments, err := h.font.ot.LoadGlyph(&buf, xsfnt.GlyphIndex(gid), fixed.I(int(h.size)), nil)
	if err != nil {
		return GlyphOutline{}, h.resolveErr(gid, err)
	}
	contours := 0
	for _, seg := range segments {
		if seg.Op == xsfnt.SegmentOpMoveTo {
			contours++
		}
	}
	return GlyphOutline{Contours: contours}, nil
}

func (h *sfntHandle) glyfOutline(outlines *glyf.Outlines, gid GlyphID) (GlyphOutline, error) {
	if int(gid) >= len(outlines.Glyphs) {
		return GlyphOutline{}, h.resolveErr(gid, fmt.Errorf("glyph index out of range (%d glyphs)", len(outlines.Glyphs)))
	}
	g := outlines.Glyphs[gid]
	if g == nil {
		return GlyphOutline{}, nil
	}
	switch data := g.Data.(type) {
	case glyf.SimpleGlyph:
		return GlyphOutline{Contours: int(data.NumContours)}, nil
	case glyf.CompositeGlyph:
		return GlyphOutline{Composite: true, Components: len(data.Components)}, nil
	default:
		return GlyphOutline{}, h.resolveErr(gid, fmt.Errorf("unexpected glyph data %T", data))
	}
}

func (h *sfntHandle) resolveErr(gid GlyphID, err error) error {
	return &GlyphResolutionError{Path: h.font.path, Glyph: gid, Err: err}
}

func (h *sfntHandle) DrawText(dst draw.Image, x, y int, text string) {
	if h.font.tt != nil {
		ctx := freetype.NewContext()
		ctx.SetDPI(72)
		ctx.SetFont(h.font.tt)
		ctx.SetFontSize(h.size)
		ctx.SetClip(dst.Bounds())
		ctx.SetDst(dst)
		ctx.SetSrc(image.Black)
		ctx.SetHinting(font.HintingFull)
		if _, err := ctx.DrawString(text, freetype.Pt(x, y+h.ascent)); err != nil {
			Logger().Debug("draw failed", "font", h.font.path, "text", text, "err", err)
		}
		return
	}

	face, err := opentype.NewFace(h.font.ot, &opentype.FaceOptions{
		Size:    h.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		Logger().Debug("draw failed", "font", h.font.path, "text", text, "err", err)
		return
	}
	defer face.Close()
	d := font.Drawer{
		Dst:  dst,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(x, y+h.ascent),
	}
	d.DrawString(text)
}
