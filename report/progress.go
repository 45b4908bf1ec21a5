package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/wbrown/fontdiff"
)

// Progress prints a single self-overwriting status line. It stays silent
// unless its output is a terminal, so redirected output holds only the
// analysis log.
type Progress struct {
	out     io.Writer
	enabled bool
	total   int
	done    int
}

// NewProgress returns a Progress writing to f.
func NewProgress(f *os.File) *Progress {
	return &Progress{out: f, enabled: term.IsTerminal(int(f.Fd()))}
}

// Start implements fontdiff.Observer.
func (p *Progress) Start(reference string, symbols fontdiff.SymbolSet, candidates int) {
	p.total = candidates
}

// Candidate implements fontdiff.Observer.
func (p *Progress) Candidate(rec fontdiff.MatchRecord, cmp *fontdiff.Comparison) {
	p.done++
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.out, "\r\033[K[%d/%d] %s %s", p.done, p.total, rec.Status, filepath.Base(rec.Font))
	if p.done == p.total {
		fmt.Fprintln(p.out)
	}
}

// Finalist implements fontdiff.Observer.
func (p *Progress) Finalist(rank int, f *fontdiff.Finalist) {
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.out, "\r\033[Kfinalist #%d %s", rank, filepath.Base(f.Record.Font))
}

// Multi fans observer calls out to several observers in order.
type Multi []fontdiff.Observer

// Start implements fontdiff.Observer.
func (m Multi) Start(reference string, symbols fontdiff.SymbolSet, candidates int) {
	for _, o := range m {
		o.Start(reference, symbols, candidates)
	}
}

// Candidate implements fontdiff.Observer.
func (m Multi) Candidate(rec fontdiff.MatchRecord, cmp *fontdiff.Comparison) {
	for _, o := range m {
		o.Candidate(rec, cmp)
	}
}

// Finalist implements fontdiff.Observer.
func (m Multi) Finalist(rank int, f *fontdiff.Finalist) {
	for _, o := range m {
		o.Finalist(rank, f)
	}
}
