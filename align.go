package fontdiff

import (
	"context"
)

// Mode selects how much effort alignment spends.
type Mode int

const (
	// Fast searches the probe string only.
	Fast Mode = iota
	// Thorough adds an exhaustive search over the shared symbols.
	Thorough
)

func (m Mode) String() string {
	if m == Thorough {
		return "thorough"
	}
	return "fast"
}

// SearchConfig parameterizes the offset search.
type SearchConfig struct {
	// Probe holds glyphs whose shapes vary most between typefaces.
	Probe     string `toml:"probe"`
	ProbeGrid int    `toml:"probe_grid"`

	CoarseStep   int `toml:"coarse_step"`
	CoarseRadius int `toml:"coarse_radius"`
	RefineStep   int `toml:"refine_step"`
	RefineRadius int `toml:"refine_radius"`

	// ExhaustiveRadius bounds the step-1 search over shared symbols in
	// thorough mode.
	ExhaustiveRadius int `toml:"exhaustive_radius"`

	// EarlyExit skips the refine pass when the coarse score is below it.
	EarlyExit float64 `toml:"early_exit"`
}

// DefaultSearchConfig returns a coarse pass of step 3 over ±12 pixels and
// a refine pass of step 1 over ±3 pixels.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Probe:            "abjsAWM15",
		ProbeGrid:        3,
		CoarseStep:       3,
		CoarseRadius:     12,
		RefineStep:       1,
		RefineRadius:     3,
		ExhaustiveRadius: 1,
		EarlyExit:        0.1,
	}
}

// Alignment is the best known offset of a candidate font relative to the
// reference, with the score reached there.
type Alignment struct {
	DX, DY int
	Score  float64
}

// Aligner searches for the pixel offset that best overlays one font's
// glyphs on another's.
type Aligner struct {
	cmp *Comparer
	cfg SearchConfig
}

// NewAligner creates an Aligner.
func NewAligner(cmp *Comparer, cfg SearchConfig) *Aligner {
	return &Aligner{cmp: cmp, cfg: cfg}
}

// Align finds the best offset for cand against ref over all shared
// symbols.
func (a *Aligner) Align(ctx context.Context, ref, cand string, mode Mode) (Alignment, error) {
	refSet, err := a.cmp.symbols.Symbols(ref)
	if err != nil {
		return Alignment{}, err
	}
	candSet, err := a.cmp.symbols.Symbols(cand)
	if err != nil {
		return Alignment{}, err
	}
	return a.AlignSymbols(ctx, ref, cand, mode, refSet.Intersect(candSet))
}

// AlignSymbols is Align with the thorough phase restricted to shared.
//
// The coarse and refine passes score the probe string; thorough mode then
// rescores every offset within ExhaustiveRadius of the refined result on
// shared, so the returned score is on the shared-symbol scale. Without
// shared symbols it returns the zero Alignment and ErrNoSharedSymbols.
func (a *Aligner) AlignSymbols(ctx context.Context, ref, cand string, mode Mode, shared SymbolSet) (Alignment, error) {
	if shared.Len() == 0 {
		return Alignment{}, ErrNoSharedSymbols
	}
	log := Logger().With("reference", ref, "candidate", cand)
	probe := []rune(a.cfg.Probe)

	best, err := a.search(ctx, ref, cand, probe, a.cfg.ProbeGrid, 0, 0, a.cfg.CoarseStep, a.cfg.CoarseRadius)
	if err != nil {
		return Alignment{}, err
	}
	log.Debug("coarse alignment", "dx", best.DX, "dy", best.DY, "score", best.Score)

	if best.Score >= a.cfg.EarlyExit {
		best, err = a.search(ctx, ref, cand, probe, a.cfg.ProbeGrid, best.DX, best.DY, a.cfg.RefineStep, a.cfg.RefineRadius)
		if err != nil {
			return Alignment{}, err
		}
		log.Debug("refined alignment", "dx", best.DX, "dy", best.DY, "score", best.Score)
	}

	if mode == Thorough {
		grid := a.cmp.renderer.Layout().GridFor(shared.Len())
		best, err = a.search(ctx, ref, cand, shared, grid, best.DX, best.DY, 1, a.cfg.ExhaustiveRadius)
		if err != nil {
			return Alignment{}, err
		}
		log.Debug("exhaustive alignment", "dx", best.DX, "dy", best.DY, "score", best.Score)
	}
	return best, nil
}

// search scores every offset on a step grid within radius of (cx, cy),
// bounds inclusive. The centre is scored first and a later offset must
// score strictly higher to replace the best, so ties keep the earliest.
func (a *Aligner) search(ctx context.Context, ref, cand string, symbols []rune, grid, cx, cy, step, radius int) (Alignment, error) {
	if step < 1 {
		step = 1
	}
	sim, _, err := a.cmp.ScoreOffset(ref, cand, symbols, grid, cx, cy)
	if err != nil {
		return Alignment{}, err
	}
	best := Alignment{DX: cx, DY: cy, Score: sim.Score}

	for dx := cx - radius; dx <= cx+radius; dx += step {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		for dy := cy - radius; dy <= cy+radius; dy += step {
			if dx == cx && dy == cy {
				continue
			}
			sim, _, err := a.cmp.ScoreOffset(ref, cand, symbols, grid, dx, dy)
			if err != nil {
				return Alignment{}, err
			}
			if sim.Score > best.Score {
				best = Alignment{DX: dx, DY: dy, Score: sim.Score}
			}
		}
	}
	return best, nil
}
