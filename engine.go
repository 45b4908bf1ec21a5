package fontdiff

import "fmt"

// Engine bundles the components of one run. The caches it owns are
// shared by every component built from it and by nothing else.
type Engine struct {
	Fonts     FontService
	Disk      *DiskCache
	Images    *ImageCache
	Extractor *Extractor
	Renderer  *MatrixRenderer
	Comparer  *Comparer
	Aligner   *Aligner
}

// NewEngine wires the components for cfg. fonts may be nil to use an
// SfntService. An empty CacheDir disables the disk tier.
func NewEngine(cfg Config, fonts FontService) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fonts == nil {
		fonts = NewSfntService(0)
	}

	var disk *DiskCache
	if cfg.CacheDir != "" {
		var err error
		disk, err = OpenDiskCache(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
	}

	images := NewImageCache(cfg.CacheConfig())
	renderer, err := NewMatrixRenderer(fonts,
		WithLayout(cfg.Layout()),
		WithImageCache(images),
		WithDiskCache(disk),
	)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	extractor := NewExtractor(fonts, disk)
	cmp := NewComparer(renderer, extractor)
	return &Engine{
		Fonts:     fonts,
		Disk:      disk,
		Images:    images,
		Extractor: extractor,
		Renderer:  renderer,
		Comparer:  cmp,
		Aligner:   NewAligner(cmp, cfg.Search),
	}, nil
}

// Ranker returns a Ranker over the engine's components.
func (e *Engine) Ranker(opts ...RankerOption) *Ranker {
	return NewRanker(e.Aligner, opts...)
}
