package fontdiff

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rankTestSymbols keeps ranking runs small.
var rankTestSymbols = SymbolSetFromString("AHOSagnos0159")

// restrictAll limits every path to the same symbols.
func restrictAll(set SymbolSet, paths ...string) restrictedService {
	allow := make(map[string]SymbolSet, len(paths))
	for _, p := range paths {
		allow[p] = set
	}
	return restrictedService{inner: NewSfntService(0), allow: allow}
}

func quickRankOptions() RankOptions {
	opts := DefaultRankOptions()
	opts.Workers = 2
	opts.Artifacts = false
	opts.TopK = 5
	return opts
}

type recordingObserver struct {
	started    int
	candidates []MatchRecord
	ranks      []int
}

func (o *recordingObserver) Start(string, SymbolSet, int) { o.started++ }

func (o *recordingObserver) Candidate(rec MatchRecord, _ *Comparison) {
	o.candidates = append(o.candidates, rec)
}

func (o *recordingObserver) Finalist(rank int, _ *Finalist) {
	o.ranks = append(o.ranks, rank)
}

func TestRankPartialOverlap(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	svc := restrictedService{
		inner: NewSfntService(0),
		allow: map[string]SymbolSet{
			fonts.Regular: SymbolSetFromString("ABC"),
			fonts.Bold:    SymbolSetFromString("AB"),
		},
	}

	tests := []struct {
		name       string
		minOverlap float64
		want       Status
		finalists  int
	}{
		{"lenient", 0.5, StatusScored, 1},
		{"strict", StrictMinOverlap, StatusSkipped, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := quickRankOptions()
			opts.MinOverlap = tt.minOverlap
			e := newTestEngine(t, svc, "")

			res, err := e.Ranker(WithRankOptions(opts)).Rank(context.Background(), fonts.Regular, []string{fonts.Bold})
			require.NoError(t, err)
			require.Len(t, res.Pool, 1)

			rec := res.Pool[0]
			assert.Equal(t, tt.want, rec.Status)
			assert.Equal(t, 2, rec.Shared)
			assert.Equal(t, 1, rec.Missing)
			assert.Equal(t, 3, rec.Wanted)
			assert.Equal(t, "C", rec.MissingSymbols.String())
			assert.Len(t, res.Top, tt.finalists)
			if tt.want == StatusSkipped {
				assert.Zero(t, rec.Score)
				assert.NotEmpty(t, rec.Reason)
			} else {
				assert.Greater(t, rec.Score, 0.0)
				assert.Equal(t, StatusFinal, res.Top[0].Record.Status)
				assert.Equal(t, 1, res.Top[0].Record.Missing)
			}
		})
	}
}

func TestRankIdenticalFontWins(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	second := copyFont(t, fonts.Regular, "goregular-again.ttf")
	svc := restrictAll(rankTestSymbols, fonts.Regular, fonts.Copy, second, fonts.Bold, fonts.Mono)
	e := newTestEngine(t, svc, "")
	obs := &recordingObserver{}

	res, err := e.Ranker(WithRankOptions(quickRankOptions()), WithObserver(obs)).Rank(
		context.Background(), fonts.Regular,
		[]string{fonts.Bold, fonts.Copy, fonts.Mono, second, fonts.Bold})
	require.NoError(t, err)

	// The repeated path is dropped; the byte-identical copies collapse.
	require.Len(t, res.Pool, 4)
	require.Len(t, res.Top, 3)

	best := res.Top[0].Record
	assert.Equal(t, fonts.Copy, best.Font)
	assert.Equal(t, MaxSimilarity, best.Score)
	assert.Zero(t, best.BestX)
	assert.Zero(t, best.BestY)
	assert.Zero(t, best.Missing)
	assert.True(t, res.Top[0].Comparison.Similarity.Identical)
	require.Len(t, res.Top[0].Animation, 2)
	assert.NotNil(t, res.Top[0].Comparison.Missing)

	for i := 1; i < len(res.Top); i++ {
		assert.GreaterOrEqual(t, res.Top[i-1].Record.Score, res.Top[i].Record.Score)
		assert.NotEqual(t, second, res.Top[i].Record.Font)
	}

	assert.Equal(t, 1, obs.started)
	require.Len(t, obs.candidates, 4)
	for i, rec := range obs.candidates {
		assert.Equal(t, i, rec.Index)
	}
	assert.Equal(t, []int{1, 2, 3}, obs.ranks)
}

func TestRankPrunedKeepsFastScore(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	svc := restrictAll(rankTestSymbols, fonts.Regular, fonts.Copy, fonts.Bold)
	e := newTestEngine(t, svc, "")

	opts := quickRankOptions()
	opts.PruneRatio = 1
	opts.TopK = 1
	res, err := e.Ranker(WithRankOptions(opts)).Rank(context.Background(), fonts.Regular,
		[]string{fonts.Copy, fonts.Bold})
	require.NoError(t, err)
	require.Len(t, res.Pool, 2)

	assert.Equal(t, StatusScored, res.Pool[0].Status)
	pruned := res.Pool[1]
	assert.Equal(t, StatusPruned, pruned.Status)
	assert.Greater(t, pruned.Score, 0.0)
	assert.Less(t, pruned.Score, MaxSimilarity)
	assert.NotEmpty(t, pruned.Reason)

	require.Len(t, res.Top, 1)
	assert.Equal(t, fonts.Copy, res.Top[0].Record.Font)
}

func TestRankWithoutBestFit(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	svc := restrictAll(rankTestSymbols, fonts.Regular, fonts.Bold, fonts.Mono)
	e := newTestEngine(t, svc, "")

	opts := quickRankOptions()
	opts.BestFit = false
	opts.PruneRatio = 1
	res, err := e.Ranker(WithRankOptions(opts)).Rank(context.Background(), fonts.Regular,
		[]string{fonts.Bold, fonts.Mono})
	require.NoError(t, err)
	for _, rec := range res.Pool {
		assert.Equal(t, StatusScored, rec.Status, rec.Font)
		assert.Zero(t, rec.BestX)
		assert.Zero(t, rec.BestY)
	}
	for _, f := range res.Top {
		assert.Zero(t, f.Record.BestX)
		assert.Zero(t, f.Record.BestY)
	}
}

func TestRankRecordsFailures(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	junk := filepath.Join(t.TempDir(), "junk.ttf")
	require.NoError(t, os.WriteFile(junk, []byte("nope"), 0o644))
	svc := restrictAll(rankTestSymbols, fonts.Regular, fonts.Bold)
	e := newTestEngine(t, svc, "")

	res, err := e.Ranker(WithRankOptions(quickRankOptions())).Rank(context.Background(), fonts.Regular,
		[]string{junk, fonts.Bold})
	require.NoError(t, err)
	require.Len(t, res.Pool, 2)
	assert.Equal(t, StatusFailed, res.Pool[0].Status)
	assert.NotEmpty(t, res.Pool[0].Reason)
	assert.Equal(t, StatusScored, res.Pool[1].Status)
	require.Len(t, res.Top, 1)
	assert.Equal(t, fonts.Bold, res.Top[0].Record.Font)

	_, err = e.Ranker().Rank(context.Background(), junk, []string{fonts.Bold})
	var loadErr *FontLoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestRankRequireCharsets(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	sample := func(names ...string) SymbolSet {
		var set SymbolSet
		for _, cs := range Charsets {
			for _, n := range names {
				if cs.Name == n {
					set = set.Union(SymbolSetFromString(cs.Sample))
				}
			}
		}
		return set
	}
	svc := restrictedService{
		inner: NewSfntService(0),
		allow: map[string]SymbolSet{
			fonts.Regular: sample("latin", "latin-ext", "cyrillic", "greek"),
			fonts.Bold:    sample("latin"),
			fonts.Mono:    sample("latin", "cyrillic"),
		},
	}
	e := newTestEngine(t, svc, "")

	opts := quickRankOptions()
	opts.MinOverlap = 0
	opts.RequireCharsets = true
	opts.Alphabet = SymbolSetFromString("aeinost")
	res, err := e.Ranker(WithRankOptions(opts)).Rank(context.Background(), fonts.Regular,
		[]string{fonts.Bold, fonts.Mono})
	require.NoError(t, err)
	require.Len(t, res.Pool, 2)
	assert.Equal(t, StatusSkipped, res.Pool[0].Status)
	assert.Equal(t, "missing charsets", res.Pool[0].Reason)
	assert.Equal(t, StatusScored, res.Pool[1].Status)
}

func TestRankIsDeterministic(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	candidates := []string{fonts.Mono, fonts.Bold, fonts.Copy}

	run := func(workers int) *Result {
		svc := restrictAll(rankTestSymbols, fonts.Regular, fonts.Copy, fonts.Bold, fonts.Mono)
		e := newTestEngine(t, svc, "")
		opts := quickRankOptions()
		opts.Workers = workers
		res, err := e.Ranker(WithRankOptions(opts)).Rank(context.Background(), fonts.Regular, candidates)
		require.NoError(t, err)
		return res
	}
	records := func(res *Result) []MatchRecord {
		out := make([]MatchRecord, len(res.Top))
		for i, f := range res.Top {
			out[i] = f.Record
		}
		return out
	}

	serial, concurrent := run(1), run(4)
	ignore := cmpopts.IgnoreFields(MatchRecord{}, "Elapsed")
	if diff := cmp.Diff(serial.Pool, concurrent.Pool, ignore); diff != "" {
		t.Errorf("pool differs (-serial +concurrent):\n%s", diff)
	}
	if diff := cmp.Diff(records(serial), records(concurrent), ignore); diff != "" {
		t.Errorf("finalists differ (-serial +concurrent):\n%s", diff)
	}
}

func TestRankCancelled(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	svc := restrictAll(rankTestSymbols, fonts.Regular, fonts.Bold)
	e := newTestEngine(t, svc, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Ranker(WithRankOptions(quickRankOptions())).Rank(ctx, fonts.Regular, []string{fonts.Bold})
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	require.NotNil(t, res)
	assert.Empty(t, res.Pool)
	assert.Empty(t, res.Top)
}

// firstCandidateObserver closes gate on the first Candidate call.
type firstCandidateObserver struct {
	recordingObserver
	gate chan struct{}
	once sync.Once
}

func (o *firstCandidateObserver) Candidate(rec MatchRecord, cmp *Comparison) {
	o.once.Do(func() { close(o.gate) })
	o.recordingObserver.Candidate(rec, cmp)
}

func TestRankStreamsCandidates(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	obs := &firstCandidateObserver{gate: make(chan struct{})}
	svc := &gatedService{
		inner: restrictedService{
			inner: NewSfntService(0),
			allow: map[string]SymbolSet{
				fonts.Regular: rankTestSymbols,
				fonts.Bold:    SymbolSetFromString("A"),
				fonts.Mono:    rankTestSymbols,
				fonts.Copy:    rankTestSymbols,
			},
		},
		path: fonts.Copy,
		gate: obs.gate,
	}
	e := newTestEngine(t, svc, "")
	opts := quickRankOptions()
	opts.Workers = 1

	// The last candidate cannot start loading until a record is reported.
	res, err := e.Ranker(WithRankOptions(opts), WithObserver(obs)).Rank(
		context.Background(), fonts.Regular, []string{fonts.Bold, fonts.Mono, fonts.Copy})
	require.NoError(t, err)
	assert.False(t, svc.timedOut.Load(), "no candidate was reported before the last fast pass finished")

	require.Len(t, obs.candidates, 3)
	assert.Equal(t, fonts.Bold, obs.candidates[0].Font)
	assert.Equal(t, StatusSkipped, obs.candidates[0].Status)
	for i, rec := range obs.candidates {
		assert.Equal(t, res.Pool[i].Font, rec.Font)
		assert.Positive(t, rec.Elapsed, rec.Font)
	}
}

func TestRankCancelledKeepsFastScore(t *testing.T) {
	t.Parallel()
	fonts := writeTestFonts(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := cancellingService{
		inner:  restrictAll(rankTestSymbols, fonts.Regular, fonts.Bold, fonts.Mono),
		path:   fonts.Mono,
		cancel: cancel,
	}
	e := newTestEngine(t, svc, "")
	opts := quickRankOptions()
	opts.Workers = 1

	// Bold finishes its fast pass; loading Mono cancels the run before
	// Bold's full comparison can start.
	res, err := e.Ranker(WithRankOptions(opts)).Rank(ctx, fonts.Regular, []string{fonts.Bold, fonts.Mono})
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	require.NotNil(t, res)
	require.Len(t, res.Pool, 1)

	rec := res.Pool[0]
	assert.Equal(t, fonts.Bold, rec.Font)
	assert.Equal(t, StatusPruned, rec.Status)
	assert.Contains(t, rec.Reason, "cancelled")
	assert.Positive(t, rec.Score)
	assert.Empty(t, res.Top)
}
