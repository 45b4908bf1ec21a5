package fontdiff

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wbrown/fontdiff/imageutil"
)

// Status is the outcome of ranking one candidate.
type Status string

const (
	// StatusScored candidates passed every filter and were compared.
	StatusScored Status = "scored"
	// StatusPruned candidates kept their fast alignment score because it
	// trailed the leaders too far to justify a full comparison.
	StatusPruned Status = "pruned"
	// StatusSkipped candidates lacked too many reference symbols or
	// charsets. They have no score and are never finalists.
	StatusSkipped Status = "skipped"
	// StatusFailed candidates could not be loaded or rendered.
	StatusFailed Status = "failed"
	// StatusFinal records come from the thorough pass over the top K.
	StatusFinal Status = "final"
)

// rankable reports whether a record may become a finalist.
func (s Status) rankable() bool {
	return s == StatusScored || s == StatusPruned
}

// MatchRecord is the result for one candidate font.
type MatchRecord struct {
	Font    string  `json:"font"`
	Score   float64 `json:"score"`
	Missing int     `json:"nmissing"`
	Shared  int     `json:"nshared"`
	Wanted  int     `json:"nwanted"`
	BestX   int     `json:"best_x"`
	BestY   int     `json:"best_y"`
	Status  Status  `json:"status"`
	Reason  string  `json:"reason,omitempty"`

	// Index is the candidate's position in the de-duplicated input.
	Index          int           `json:"-"`
	MissingSymbols SymbolSet     `json:"-"`
	Elapsed        time.Duration `json:"-"`
}

// RankOptions tune the ranking pipeline.
type RankOptions struct {
	// MinOverlap is the fraction of reference symbols a candidate must
	// share to be considered at all.
	MinOverlap float64
	// PruneRatio drops candidates whose fast score is below this
	// fraction of the best fast score seen so far.
	PruneRatio float64
	// TopK is the number of finalists.
	TopK int
	// Workers bounds concurrent candidates. Zero means one per CPU.
	Workers int
	// BestFit enables offset search. Without it fonts are compared at
	// offset (0, 0) and nothing is pruned.
	BestFit bool
	// FullCompare renders the shared symbols of surviving candidates.
	// Without it the fast alignment score is final for the first pass.
	FullCompare bool
	// Alphabet, when non-empty, restricts scoring to these symbols.
	Alphabet SymbolSet
	// RequireCharsets skips candidates missing more than two of the
	// reference's charsets.
	RequireCharsets bool
	// Artifacts renders union and missing-symbol matrices for every
	// fully compared candidate, not only for finalists.
	Artifacts bool
}

// DefaultRankOptions returns the lenient defaults: 50% overlap, pruning
// below 75% of the leader, 50 finalists.
func DefaultRankOptions() RankOptions {
	return RankOptions{
		MinOverlap:  0.5,
		PruneRatio:  0.75,
		TopK:        50,
		BestFit:     true,
		FullCompare: true,
		Artifacts:   true,
	}
}

// StrictMinOverlap is the overlap required in strict mode.
const StrictMinOverlap = 0.95

// Finalist is a top-K candidate after the thorough pass.
type Finalist struct {
	Record     MatchRecord
	Comparison *Comparison
	Animation  []*imageutil.RGBAImage
}

// Observer receives ranking progress. Calls are made from a single
// goroutine in a deterministic order: Start, then Candidate in input
// order, then Finalist in rank order.
type Observer interface {
	Start(reference string, symbols SymbolSet, candidates int)
	Candidate(rec MatchRecord, cmp *Comparison)
	Finalist(rank int, f *Finalist)
}

// Result is the output of a ranking pass.
type Result struct {
	Reference string
	Symbols   SymbolSet
	// Pool holds a record for every candidate processed, in input order.
	Pool []MatchRecord
	// Top holds the finalists, best first.
	Top []*Finalist
}

// Ranker orders candidate fonts by visual similarity to a reference.
type Ranker struct {
	cmp      *Comparer
	aligner  *Aligner
	opts     RankOptions
	observer Observer
}

// RankerOption is a functional option for configuring a Ranker.
type RankerOption func(*Ranker)

// WithRankOptions replaces the default options.
func WithRankOptions(opts RankOptions) RankerOption {
	return func(r *Ranker) {
		r.opts = opts
	}
}

// WithObserver reports progress to o.
func WithObserver(o Observer) RankerOption {
	return func(r *Ranker) {
		r.observer = o
	}
}

// NewRanker creates a Ranker.
func NewRanker(aligner *Aligner, opts ...RankerOption) *Ranker {
	r := &Ranker{
		cmp:     aligner.cmp,
		aligner: aligner,
		opts:    DefaultRankOptions(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.opts.Workers <= 0 {
		r.opts.Workers = runtime.NumCPU()
	}
	return r
}

// slot carries one candidate through the passes.
type slot struct {
	rec      MatchRecord
	cmp      *Comparison
	done     bool
	needFull bool
	start    time.Time
}

// passDone reports that a candidate finished a pass. Every candidate
// reports its fast pass exactly once, whether or not it ran.
type passDone struct {
	i    int
	full bool
}

// Rank compares every candidate against ref and returns the pool and the
// finalists. Failures of individual candidates are recorded, not
// returned. An error is returned only when the reference cannot be used
// or ctx is cancelled; in the latter case the result holds the
// candidates finished so far.
//
// Candidates are reported to the observer in input order as soon as
// their record is final, while later candidates are still running.
func (r *Ranker) Rank(ctx context.Context, ref string, candidates []string) (*Result, error) {
	refSet, err := r.cmp.symbols.Symbols(ref)
	if err != nil {
		return nil, fmt.Errorf("reference font: %w", err)
	}
	if refSet.Len() == 0 {
		return nil, fmt.Errorf("reference font %s draws no symbols", ref)
	}
	candidates = dedupePaths(candidates)
	if r.observer != nil {
		r.observer.Start(ref, refSet, len(candidates))
	}
	res := &Result{Reference: ref, Symbols: refSet}

	n := len(candidates)
	slots := make([]slot, n)
	refCharsets := DetectCharsets(refSet)

	// Fast and full passes share one pool so Workers bounds both.
	sem := semaphore.NewWeighted(int64(r.opts.Workers))
	events := make(chan passDone, 2*n)

	go func() {
		for i := 0; i < n; i++ {
			if err := sem.Acquire(ctx, 1); err != nil {
				for ; i < n; i++ {
					events <- passDone{i: i}
				}
				return
			}
			go func() {
				slots[i] = r.fastPass(ctx, i, candidates[i], ref, refSet, refCharsets)
				slots[i].rec.Elapsed = time.Since(slots[i].start)
				sem.Release(1)
				events <- passDone{i: i}
			}()
		}
	}()

	var (
		pr       = pruner{opts: r.opts}
		ready    = make([]bool, n)
		final    = make([]bool, n)
		fastSeen int
		running  int
		next     int // pruning cursor
		emitted  int
	)
	for fastSeen < n || running > 0 {
		ev := <-events
		if ev.full {
			running--
			r.settle(ctx, &slots[ev.i])
			final[ev.i] = true
		} else {
			fastSeen++
			ready[ev.i] = true
		}

		// Pruning runs in input order so the outcome does not depend on
		// which worker finished first.
		for ; next < n && ready[next]; next++ {
			s := &slots[next]
			pr.step(s)
			if !s.needFull {
				final[next] = true
				continue
			}
			if ctx.Err() != nil {
				r.settle(ctx, s)
				final[next] = true
				continue
			}
			running++
			go func(i int) {
				if sem.Acquire(ctx, 1) == nil {
					if ctx.Err() == nil {
						r.fullPass(ctx, ref, &slots[i])
						slots[i].rec.Elapsed = time.Since(slots[i].start)
					}
					sem.Release(1)
				}
				events <- passDone{i: i, full: true}
			}(next)
		}

		for ; emitted < n && final[emitted]; emitted++ {
			s := &slots[emitted]
			if !s.done {
				continue
			}
			res.Pool = append(res.Pool, s.rec)
			if r.observer != nil {
				r.observer.Candidate(s.rec, s.cmp)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Top, err = r.finalize(ctx, ref, res.Pool)
	return res, err
}

// parallel runs fn for 0..n-1 on at most Workers goroutines. Indices not
// yet started when ctx is cancelled are skipped.
func (r *Ranker) parallel(ctx context.Context, n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(i)
			return nil
		})
	}
	g.Wait()
}

func (r *Ranker) fastPass(ctx context.Context, i int, path, ref string, refSet SymbolSet, refCharsets []string) slot {
	s := slot{
		rec:   MatchRecord{Font: path, Index: i, Wanted: refSet.Len()},
		start: time.Now(),
	}
	log := Logger().With("candidate", path)

	candSet, err := r.cmp.symbols.Symbols(path)
	if err != nil {
		log.Warn("candidate failed", "err", err)
		s.rec.Status, s.rec.Reason = StatusFailed, err.Error()
		s.done = true
		return s
	}
	s.rec.MissingSymbols = refSet.Difference(candSet)
	s.rec.Missing = s.rec.MissingSymbols.Len()
	s.rec.Shared = refSet.Len() - s.rec.Missing

	if float64(s.rec.Shared) < r.opts.MinOverlap*float64(s.rec.Wanted) {
		s.rec.Status = StatusSkipped
		s.rec.Reason = (&InsufficientOverlapError{
			Shared: s.rec.Shared,
			Wanted: s.rec.Wanted,
			Min:    r.opts.MinOverlap,
		}).Error()
		s.done = true
		return s
	}
	if r.opts.RequireCharsets && !CharsetsCompatible(refCharsets, DetectCharsets(candSet)) {
		s.rec.Status, s.rec.Reason = StatusSkipped, "missing charsets"
		s.done = true
		return s
	}
	compared := ComparedSymbols(refSet, candSet, r.opts.Alphabet)
	if compared.Len() == 0 {
		s.rec.Status, s.rec.Reason = StatusSkipped, ErrNoSharedSymbols.Error()
		s.done = true
		return s
	}

	if r.opts.BestFit {
		al, err := r.aligner.AlignSymbols(ctx, ref, path, Fast, compared)
		if err != nil {
			if ctx.Err() != nil {
				return s
			}
			log.Warn("alignment failed", "err", err)
			s.rec.Status, s.rec.Reason = StatusFailed, err.Error()
			s.done = true
			return s
		}
		s.rec.BestX, s.rec.BestY, s.rec.Score = al.DX, al.DY, al.Score
	}
	s.done = true
	return s
}

// pruner decides, one candidate at a time in input order, which fast
// results go on to the full comparison.
type pruner struct {
	opts RankOptions
	top  float64
}

func (p *pruner) step(s *slot) {
	if !s.done || s.rec.Status != "" {
		return
	}
	if !p.opts.BestFit {
		s.needFull = p.opts.FullCompare
		if !s.needFull {
			s.rec.Status = StatusScored
		}
		return
	}
	if s.rec.Score > p.top {
		p.top = s.rec.Score
	}
	if s.rec.Score < p.opts.PruneRatio*p.top {
		s.rec.Status = StatusPruned
		s.rec.Reason = fmt.Sprintf("fast score %.3f below %.0f%% of leader %.3f",
			s.rec.Score, p.opts.PruneRatio*100, p.top)
		return
	}
	if p.opts.FullCompare {
		s.needFull = true
	} else {
		s.rec.Status = StatusScored
	}
}

// settle keeps the fast result of a candidate whose full comparison was
// cancelled before it produced a score.
func (r *Ranker) settle(ctx context.Context, s *slot) {
	if s.rec.Status != "" {
		return
	}
	s.rec.Status = StatusPruned
	s.rec.Reason = "full comparison cancelled"
	if err := ctx.Err(); err != nil {
		s.rec.Reason += ": " + err.Error()
	}
}

func (r *Ranker) fullPass(ctx context.Context, ref string, s *slot) {
	cmp, err := r.cmp.Compare(ref, s.rec.Font, r.opts.Alphabet, s.rec.BestX, s.rec.BestY, r.opts.Artifacts)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		Logger().Warn("comparison failed", "candidate", s.rec.Font, "err", err)
		s.rec.Status, s.rec.Reason = StatusFailed, err.Error()
		return
	}
	s.rec.Score = cmp.Similarity.Score
	s.rec.Status = StatusScored
	s.cmp = cmp
	Logger().Info("candidate scored", "candidate", s.rec.Font,
		"score", s.rec.Score, "dx", s.rec.BestX, "dy", s.rec.BestY)
}

// finalize picks the top K rankable records, drops byte-identical
// duplicates, and rescores each survivor with thorough alignment.
func (r *Ranker) finalize(ctx context.Context, ref string, pool []MatchRecord) ([]*Finalist, error) {
	ranked := make([]MatchRecord, 0, len(pool))
	for _, rec := range pool {
		if rec.Status.rankable() {
			ranked = append(ranked, rec)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	seen := make(map[string]bool)
	picked := make([]MatchRecord, 0, r.opts.TopK)
	for _, rec := range ranked {
		if len(picked) == r.opts.TopK {
			break
		}
		id, err := FileDigest(rec.Font)
		if err != nil {
			id = rec.Font
		}
		if seen[id] {
			Logger().Debug("duplicate finalist dropped", "candidate", rec.Font)
			continue
		}
		seen[id] = true
		picked = append(picked, rec)
	}

	finalists := make([]*Finalist, len(picked))
	r.parallel(ctx, len(picked), func(i int) {
		f, err := r.thorough(ctx, ref, picked[i])
		if err != nil {
			if ctx.Err() == nil {
				Logger().Warn("finalist failed", "candidate", picked[i].Font, "err", err)
			}
			return
		}
		finalists[i] = f
	})
	if err := ctx.Err(); err != nil {
		return compact(finalists), err
	}

	top := compact(finalists)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Record.Score > top[j].Record.Score
	})
	if r.observer != nil {
		for i, f := range top {
			r.observer.Finalist(i+1, f)
		}
	}
	return top, nil
}

func (r *Ranker) thorough(ctx context.Context, ref string, rec MatchRecord) (*Finalist, error) {
	start := time.Now()
	if r.opts.BestFit {
		refSet, err := r.cmp.symbols.Symbols(ref)
		if err != nil {
			return nil, err
		}
		candSet, err := r.cmp.symbols.Symbols(rec.Font)
		if err != nil {
			return nil, err
		}
		al, err := r.aligner.AlignSymbols(ctx, ref, rec.Font, Thorough,
			ComparedSymbols(refSet, candSet, r.opts.Alphabet))
		if err != nil {
			return nil, err
		}
		rec.BestX, rec.BestY = al.DX, al.DY
	}

	cmp, err := r.cmp.Compare(ref, rec.Font, r.opts.Alphabet, rec.BestX, rec.BestY, true)
	if err != nil {
		return nil, err
	}
	anim, err := r.cmp.Animation(ref, rec.Font, rec.BestX, rec.BestY, cmp.Similarity.Score)
	if err != nil {
		return nil, err
	}
	rec.Score = cmp.Similarity.Score
	rec.Status = StatusFinal
	rec.Reason = ""
	rec.Elapsed = time.Since(start)
	return &Finalist{Record: rec, Comparison: cmp, Animation: anim}, nil
}

func compact(fs []*Finalist) []*Finalist {
	out := fs[:0:0]
	for _, f := range fs {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func dedupePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// IsCancelled reports whether err came from an aborted ranking pass.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
