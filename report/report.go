// Package report writes the artifacts of a ranking run: a plain-text
// analysis log, JSON summaries, and per-finalist images.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/runenames"

	"github.com/wbrown/fontdiff"
	"github.com/wbrown/fontdiff/imageutil"
)

// AnimationDelay is how long each frame of the before/after GIF shows.
const AnimationDelay = 750 * time.Millisecond

// pairGap separates the matrices of the side-by-side image.
const pairGap = 8

// maxListedMissing bounds the missing symbols listed per candidate.
const maxListedMissing = 15

// DefaultDir names the output directory of a run from the reference
// font's file name and content digest.
func DefaultDir(reference string) (string, error) {
	digest, err := fontdiff.FileDigest(reference)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(reference), filepath.Ext(reference))
	return strings.ToLower(fmt.Sprintf("tmp-diff-%s-%s", base, digest[:8])), nil
}

// Writer lays out a run directory:
//
//	analysis.txt        log, written as the run progresses
//	analysis.json       every candidate record
//	analysis-top.json   reference header followed by the finalists
//	<font>_font1.png    first-pass matrices, when enabled
//	<font>_pair.png     reference and candidate side by side
//	top/                finalist matrices
//	top-diff/           finalist difference images, ranked
//	top-gif/            finalist before/after animations, ranked
//
// Writer implements fontdiff.Observer. Observer callbacks cannot fail, so
// the first write error is kept and returned by Close.
type Writer struct {
	dir   string
	log   io.Writer
	file  *os.File
	start time.Time
	total int
	err   error
}

// Open creates dir and its subdirectories and starts the analysis log.
// Log lines are also copied to tee when it is not nil.
func Open(dir string, tee io.Writer) (*Writer, error) {
	for _, sub := range []string{"", "top", "top-diff", "top-gif"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(filepath.Join(dir, "analysis.txt"))
	if err != nil {
		return nil, fmt.Errorf("create analysis log: %w", err)
	}
	w := &Writer{dir: dir, file: f, log: f, start: time.Now()}
	if tee != nil {
		w.log = io.MultiWriter(f, tee)
	}
	return w, nil
}

// Dir returns the run directory.
func (w *Writer) Dir() string { return w.dir }

// Logf appends a line to the analysis log.
func (w *Writer) Logf(format string, args ...any) {
	if _, err := fmt.Fprintf(w.log, format+"\n", args...); err != nil {
		w.fail(err)
	}
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Start implements fontdiff.Observer.
func (w *Writer) Start(reference string, symbols fontdiff.SymbolSet, candidates int) {
	w.total = candidates
	w.Logf("Finding best match for: %s", reference)
	w.Logf("%-32s: %d glyphs", reference, symbols.Len())
	if cs := fontdiff.DetectCharsets(symbols); len(cs) > 0 {
		w.Logf("%-32s: charsets %s", "", strings.Join(cs, ", "))
	}
}

// Candidate implements fontdiff.Observer.
func (w *Writer) Candidate(rec fontdiff.MatchRecord, cmp *fontdiff.Comparison) {
	base := filepath.Base(rec.Font)
	w.Logf("\n[%d/%d] %s", rec.Index+1, w.total, rec.Font)
	if rec.Status == fontdiff.StatusFailed {
		w.Logf("  ERROR processing %s: %s", rec.Font, rec.Reason)
		return
	}
	w.Logf("  %-32s: %d glyphs shared (vs %d)", base, rec.Shared, rec.Wanted)
	w.Logf("  %-32s: %d glyphs missing", base, rec.Missing)
	if rec.Missing > 0 {
		w.Logf("  %-32s  %s", "", describeMissing(rec.MissingSymbols))
	}

	switch rec.Status {
	case fontdiff.StatusSkipped:
		w.Logf("  %-32s  Skipping: %s", "", rec.Reason)
	case fontdiff.StatusPruned:
		w.Logf("  %-32s: (%d, %d, score=%.3f)", "Best alignment", rec.BestX, rec.BestY, rec.Score)
		w.Logf("  %-32s: %s", "Skipping non-promising font", rec.Reason)
	default:
		w.Logf("  %-32s: (%d, %d, score=%.3f)", "Best alignment", rec.BestX, rec.BestY, rec.Score)
	}
	w.Logf("  Took %.3f seconds (total of %.3f seconds so far)",
		rec.Elapsed.Seconds(), time.Since(w.start).Seconds())

	if cmp != nil && cmp.Reference != nil {
		w.saveMatrices(w.dir, rec.Font, cmp)
	}
}

// Finalist implements fontdiff.Observer.
func (w *Writer) Finalist(rank int, f *fontdiff.Finalist) {
	rec := f.Record
	if rank == 1 {
		w.Logf("\n\nTop matches by score (final pass):")
	}
	w.Logf("  #%-2d %-32s: alignment=(%2d, %2d) score=%.3f shared=%d missing=%d wanted=%d",
		rank, rec.Font, rec.BestX, rec.BestY, rec.Score, rec.Shared, rec.Missing, rec.Wanted)

	w.saveMatrices(filepath.Join(w.dir, "top"), rec.Font, f.Comparison)
	name := rankedName(rank, rec)
	if f.Comparison != nil && f.Comparison.Diff != nil {
		if err := imageutil.SavePNG(f.Comparison.Diff.Gray, filepath.Join(w.dir, "top-diff", name+".png")); err != nil {
			w.fail(err)
		}
	}
	if len(f.Animation) > 0 {
		if err := imageutil.SaveAnimatedGIF(frames(f.Animation), AnimationDelay, filepath.Join(w.dir, "top-gif", name+".gif")); err != nil {
			w.fail(err)
		}
	}
}

func (w *Writer) saveMatrices(dir, font string, cmp *fontdiff.Comparison) {
	if cmp == nil {
		return
	}
	prefix := filepath.Join(dir, Prefix(font))
	for suffix, img := range map[string]*imageutil.RGBAImage{
		"_font1.png":    cmp.Reference,
		"_font2.png":    cmp.Candidate,
		"3_missing.png": cmp.Missing,
	} {
		if img == nil {
			continue
		}
		if err := imageutil.SavePNG(img.RGBA, prefix+suffix); err != nil {
			w.fail(err)
		}
	}
	if cmp.Reference != nil && cmp.Candidate != nil {
		pair := imageutil.HConcat(imageutil.White, pairGap, cmp.Reference.RGBA, cmp.Candidate.RGBA)
		if err := imageutil.SavePNG(pair.RGBA, prefix+"_pair.png"); err != nil {
			w.fail(err)
		}
	}
}

// WriteResult writes the JSON summaries and the closing log lines.
func (w *Writer) WriteResult(res *fontdiff.Result) error {
	pool := res.Pool
	if pool == nil {
		pool = []fontdiff.MatchRecord{}
	}
	if err := writeJSON(filepath.Join(w.dir, "analysis.json"), pool); err != nil {
		w.fail(err)
	}

	top := make([]any, 0, len(res.Top)+1)
	top = append(top, Header{SourceFont: res.Reference, Symbols: res.Symbols.Len()})
	for _, f := range res.Top {
		top = append(top, f.Record)
	}
	if err := writeJSON(filepath.Join(w.dir, "analysis-top.json"), top); err != nil {
		w.fail(err)
	}
	w.Logf("\nScript took: %.3f seconds", time.Since(w.start).Seconds())
	return w.err
}

// Header leads analysis-top.json.
type Header struct {
	SourceFont string `json:"source_font"`
	Symbols    int    `json:"nsymbols"`
}

// Close flushes the log and returns the first error seen.
func (w *Writer) Close() error {
	return errors.Join(w.err, w.file.Close())
}

// Prefix is the lower-cased file name of a font without its extension.
func Prefix(font string) string {
	base := filepath.Base(font)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

func rankedName(rank int, rec fontdiff.MatchRecord) string {
	return fmt.Sprintf("%03d-%s-s%.3f", rank, filepath.Base(rec.Font), rec.Score)
}

func describeMissing(set fontdiff.SymbolSet) string {
	names := make([]string, 0, min(set.Len(), maxListedMissing))
	for i, r := range set {
		if i == maxListedMissing {
			break
		}
		names = append(names, fmt.Sprintf("U+%04X %s", r, runenames.Name(r)))
	}
	s := strings.Join(names, ", ")
	if set.Len() > maxListedMissing {
		s += ", ..."
	}
	return s
}

func frames(imgs []*imageutil.RGBAImage) []image.Image {
	out := make([]image.Image, len(imgs))
	for i, img := range imgs {
		out[i] = img.RGBA
	}
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
