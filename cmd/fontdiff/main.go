// Command fontdiff finds the fonts that look most like a reference font.
//
//	fontdiff -b -v FontName.ttf google-fonts
//	fontdiff --fast-search -d cmpdir path/to/Font.ttf folder/containing/fonts
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/wbrown/fontdiff"
	"github.com/wbrown/fontdiff/imageutil"
	"github.com/wbrown/fontdiff/report"
)

// Version is set at build time.
var Version = "dev"

// loadConfigWithOverrides reads the config file and applies flags the
// user set explicitly.
func loadConfigWithOverrides(c *cli.Context) (fontdiff.Config, error) {
	cfg, err := fontdiff.LoadConfig(c.String("config"))
	if err != nil {
		return cfg, fmt.Errorf("failed to load config from %s: %w", c.String("config"), err)
	}

	if c.IsSet("cache-dir") {
		cfg.CacheDir = c.String("cache-dir")
	}
	if c.IsSet("alphabet") {
		cfg.Rank.Alphabet = c.String("alphabet")
	}
	if c.IsSet("best-fit") {
		cfg.Rank.BestFit = c.Bool("best-fit")
	}
	if c.Bool("fast-search") {
		// Ranking by alignment score needs the alignment search.
		cfg.Rank.FullCompare = false
		cfg.Rank.BestFit = true
	}
	if c.IsSet("strict") {
		cfg.Rank.Strict = c.Bool("strict")
	}
	if c.IsSet("min-overlap") {
		cfg.Rank.MinOverlap = c.Float64("min-overlap")
	}
	if c.IsSet("top") {
		cfg.Rank.TopK = c.Int("top")
	}
	if c.IsSet("workers") {
		cfg.Rank.Workers = c.Int("workers")
	}
	if c.IsSet("require-charsets") {
		cfg.Rank.RequireCharsets = c.Bool("require-charsets")
	}
	if c.IsSet("first-pass-artifacts") {
		cfg.Rank.FirstPassArtifacts = c.Bool("first-pass-artifacts")
	}
	if excludes := c.StringSlice("exclude"); len(excludes) > 0 {
		cfg.Rank.Exclude = append(cfg.Rank.Exclude, excludes...)
	}
	return cfg, cfg.Validate()
}

func setupLogging(c *cli.Context) {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	fontdiff.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newApp() *cli.App {
	// -v is verbose; the version flag keeps only its long name.
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Usage: "print the version"}
	return &cli.App{
		Name:                   "fontdiff",
		Usage:                  "Find fonts that look like a reference font",
		UsageText:              "fontdiff [options] REFERENCE_FONT FONT_SEARCH_PATH",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   fontdiff.DefaultConfigFile,
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "Directory for cached renders and symbol sets (empty disables)",
			},
			&cli.StringFlag{
				Name:    "out-dir",
				Aliases: []string{"d"},
				Usage:   "Output folder where images, diffs and logs are written",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Echo the analysis log and show debug information",
			},
			&cli.StringFlag{
				Name:    "alphabet",
				Aliases: []string{"a"},
				Usage:   "Only compare these symbols; \"std\" selects the standard alphabet",
			},
			&cli.BoolFlag{
				Name:    "best-fit",
				Aliases: []string{"b"},
				Usage:   "Search for the offset that best aligns each candidate",
				Value:   true,
			},
			&cli.BoolFlag{
				Name:  "fast-search",
				Usage: "Rank by alignment score only, skipping the full comparison",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Require candidates to share 95% of the reference's symbols",
			},
			&cli.Float64Flag{
				Name:  "min-overlap",
				Usage: "Fraction of reference symbols a candidate must share",
			},
			&cli.IntFlag{
				Name:    "top",
				Aliases: []string{"k"},
				Usage:   "Number of finalists",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"j"},
				Usage:   "Candidates processed concurrently (0 = one per CPU)",
			},
			&cli.BoolFlag{
				Name:  "require-charsets",
				Usage: "Skip candidates missing more than two of the reference's charsets",
			},
			&cli.BoolFlag{
				Name:  "first-pass-artifacts",
				Usage: "Write matrices for every fully compared candidate",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip fonts matching glob patterns (e.g., --exclude '**/static/**')",
			},
		},
		Before: func(c *cli.Context) error {
			setupLogging(c)
			return nil
		},
		Action: rankCommand,
		Commands: []*cli.Command{
			{
				Name:      "symbols",
				Usage:     "Print symbol count, digest and charsets of fonts",
				ArgsUsage: "FONT...",
				Action:    symbolsCommand,
			},
			{
				Name:      "cover",
				Usage:     "List fonts that draw every symbol of a model font",
				ArgsUsage: "MODEL_FONT FONT_SEARCH_PATH",
				Action:    coverCommand,
			},
			{
				Name:      "charsets",
				Usage:     "Render charset specimens of fonts compatible with a reference",
				ArgsUsage: "REFERENCE_FONT FONT_SEARCH_PATH",
				Action:    charsetsCommand,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func twoArgs(c *cli.Context) (string, string, error) {
	if c.NArg() != 2 {
		return "", "", cli.Exit(fmt.Sprintf("usage: %s", c.App.UsageText), 2)
	}
	return c.Args().Get(0), c.Args().Get(1), nil
}

func rankCommand(c *cli.Context) error {
	ref, searchPath, err := twoArgs(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	engine, err := fontdiff.NewEngine(cfg, nil)
	if err != nil {
		return err
	}
	candidates, err := fontdiff.FindFonts(searchPath, cfg.Rank.Exclude)
	if err != nil {
		return err
	}

	outDir := c.String("out-dir")
	if outDir == "" {
		if outDir, err = report.DefaultDir(ref); err != nil {
			return err
		}
	}
	var tee io.Writer
	if c.Bool("verbose") {
		tee = os.Stdout
	}
	w, err := report.Open(outDir, tee)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	ranker := engine.Ranker(
		fontdiff.WithRankOptions(cfg.RankOptions()),
		fontdiff.WithObserver(report.Multi{w, report.NewProgress(os.Stderr)}),
	)
	res, rankErr := ranker.Rank(ctx, ref, candidates)
	if res == nil {
		w.Close()
		return rankErr
	}
	if rankErr != nil {
		w.Logf("\nRun aborted: %v", rankErr)
	}
	if err := w.WriteResult(res); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	stats := engine.Renderer.CacheStats()
	fontdiff.Logger().Debug("render cache", "hits", stats.Hits, "misses", stats.Misses, "evictions", stats.Evictions)
	fmt.Printf("Results written to %s\n", w.Dir())
	return rankErr
}

func symbolsCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("usage: fontdiff symbols FONT...", 2)
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	engine, err := fontdiff.NewEngine(cfg, nil)
	if err != nil {
		return err
	}
	for _, path := range c.Args().Slice() {
		set, err := engine.Extractor.Symbols(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		digest, err := fontdiff.FileDigest(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n  symbols:  %d\n  sha256:   %s\n  charsets: %s\n",
			path, set.Len(), digest, strings.Join(fontdiff.DetectCharsets(set), ", "))
	}
	return nil
}

func coverCommand(c *cli.Context) error {
	model, searchPath, err := twoArgs(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	engine, err := fontdiff.NewEngine(cfg, nil)
	if err != nil {
		return err
	}
	want, err := engine.Extractor.Symbols(model)
	if err != nil {
		return err
	}
	if alphabet := fontdiff.ParseAlphabet(cfg.Rank.Alphabet); alphabet.Len() > 0 {
		want = want.Intersect(alphabet)
	}
	candidates, err := fontdiff.FindFonts(searchPath, cfg.Rank.Exclude)
	if err != nil {
		return err
	}
	found, err := fontdiff.FilesWithAllSymbols(c.Context, engine.Extractor, want, candidates, cfg.Rank.Workers)
	if err != nil {
		return err
	}
	for _, path := range found {
		fmt.Println(path)
	}
	return nil
}

func charsetsCommand(c *cli.Context) error {
	ref, searchPath, err := twoArgs(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	engine, err := fontdiff.NewEngine(cfg, nil)
	if err != nil {
		return err
	}
	refSet, err := engine.Extractor.Symbols(ref)
	if err != nil {
		return err
	}
	want := fontdiff.DetectCharsets(refSet)
	fmt.Printf("Charsets found: %s\n", strings.Join(want, ", "))

	candidates, err := fontdiff.FindFonts(searchPath, cfg.Rank.Exclude)
	if err != nil {
		return err
	}
	outDir := c.String("out-dir")
	if outDir == "" {
		digest, err := fontdiff.FileDigest(ref)
		if err != nil {
			return err
		}
		outDir = filepath.Join("tmp", strings.ToLower("charset-"+report.Prefix(ref)+"-"+digest[:8]))
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	for _, path := range candidates {
		set, err := engine.Extractor.Symbols(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		if !fontdiff.CharsetsCompatible(want, fontdiff.DetectCharsets(set)) {
			fmt.Printf("%s: missing charsets, skipping\n", path)
			continue
		}
		img, err := engine.Renderer.RenderSpecimen(path, want, 1440)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		name := "charset-" + strings.ToLower(filepath.Base(path)) + ".png"
		if err := imageutil.SavePNG(img.RGBA, filepath.Join(outDir, name)); err != nil {
			return err
		}
	}
	return nil
}
