package fontdiff

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFile is read from the working directory when present.
const DefaultConfigFile = "fontdiff.toml"

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the file form of every tunable.
type Config struct {
	CacheDir string       `toml:"cache_dir"`
	Render   RenderConfig `toml:"render"`
	Cache    CacheSection `toml:"cache"`
	Search   SearchConfig `toml:"search"`
	Rank     RankSection  `toml:"rank"`
}

// RenderConfig mirrors Layout.
type RenderConfig struct {
	FontSize    int     `toml:"font_size"`
	Padding     int     `toml:"padding"`
	TitleHeight int     `toml:"title_height"`
	TitleSize   float64 `toml:"title_size"`
	MaxGrid     int     `toml:"max_grid"`
}

// CacheSection mirrors CacheConfig.
type CacheSection struct {
	PurgeThreshold int      `toml:"purge_threshold"`
	PurgeInterval  Duration `toml:"purge_interval"`
	IdleTTL        Duration `toml:"idle_ttl"`
}

// RankSection mirrors RankOptions.
type RankSection struct {
	MinOverlap         float64  `toml:"min_overlap"`
	Strict             bool     `toml:"strict"`
	PruneRatio         float64  `toml:"prune_ratio"`
	TopK               int      `toml:"top_k"`
	Workers            int      `toml:"workers"`
	BestFit            bool     `toml:"best_fit"`
	FullCompare        bool     `toml:"full_compare"`
	Alphabet           string   `toml:"alphabet"`
	RequireCharsets    bool     `toml:"require_charsets"`
	FirstPassArtifacts bool     `toml:"first_pass_artifacts"`
	Exclude            []string `toml:"exclude"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	l := DefaultLayout()
	c := DefaultCacheConfig()
	r := DefaultRankOptions()
	return Config{
		CacheDir: ".cache",
		Render: RenderConfig{
			FontSize:    l.FontSize,
			Padding:     l.Padding,
			TitleHeight: l.TitleHeight,
			TitleSize:   l.TitleSize,
			MaxGrid:     l.MaxGrid,
		},
		Cache: CacheSection{
			PurgeThreshold: c.PurgeThreshold,
			PurgeInterval:  Duration{c.PurgeInterval},
			IdleTTL:        Duration{c.IdleTTL},
		},
		Search: DefaultSearchConfig(),
		Rank: RankSection{
			MinOverlap:         r.MinOverlap,
			PruneRatio:         r.PruneRatio,
			TopK:               r.TopK,
			BestFit:            r.BestFit,
			FullCompare:        r.FullCompare,
			FirstPassArtifacts: r.Artifacts,
		},
	}
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Render.FontSize <= 0 || c.Render.TitleSize <= 0 {
		errs = append(errs, errors.New("render: font sizes must be positive"))
	}
	if c.Render.Padding < 0 || c.Render.TitleHeight < 0 {
		errs = append(errs, errors.New("render: padding and title height must not be negative"))
	}
	if c.Render.MaxGrid <= 0 {
		errs = append(errs, errors.New("render: max_grid must be positive"))
	}
	if c.Search.ProbeGrid <= 0 || c.Search.CoarseStep <= 0 || c.Search.RefineStep <= 0 {
		errs = append(errs, errors.New("search: grid and steps must be positive"))
	}
	if c.Search.CoarseRadius < 0 || c.Search.RefineRadius < 0 || c.Search.ExhaustiveRadius < 0 {
		errs = append(errs, errors.New("search: radii must not be negative"))
	}
	if c.Search.Probe == "" {
		errs = append(errs, errors.New("search: probe must not be empty"))
	}
	if c.Rank.MinOverlap < 0 || c.Rank.MinOverlap > 1 {
		errs = append(errs, errors.New("rank: min_overlap must be within [0, 1]"))
	}
	if c.Rank.PruneRatio <= 0 || c.Rank.PruneRatio > 1 {
		errs = append(errs, errors.New("rank: prune_ratio must be within (0, 1]"))
	}
	if c.Rank.TopK <= 0 {
		errs = append(errs, errors.New("rank: top_k must be positive"))
	}
	return errors.Join(errs...)
}

// Layout returns the render geometry.
func (c Config) Layout() Layout {
	l := DefaultLayout()
	l.FontSize = c.Render.FontSize
	l.Padding = c.Render.Padding
	l.TitleHeight = c.Render.TitleHeight
	l.TitleSize = c.Render.TitleSize
	l.MaxGrid = c.Render.MaxGrid
	return l
}

// CacheConfig returns the memory cache policy.
func (c Config) CacheConfig() CacheConfig {
	return CacheConfig{
		PurgeThreshold: c.Cache.PurgeThreshold,
		PurgeInterval:  c.Cache.PurgeInterval.Duration,
		IdleTTL:        c.Cache.IdleTTL.Duration,
	}
}

// RankOptions returns the ranking options. Strict raises the overlap
// requirement to StrictMinOverlap.
func (c Config) RankOptions() RankOptions {
	opts := RankOptions{
		MinOverlap:      c.Rank.MinOverlap,
		PruneRatio:      c.Rank.PruneRatio,
		TopK:            c.Rank.TopK,
		Workers:         c.Rank.Workers,
		BestFit:         c.Rank.BestFit,
		FullCompare:     c.Rank.FullCompare,
		Alphabet:        ParseAlphabet(c.Rank.Alphabet),
		RequireCharsets: c.Rank.RequireCharsets,
		Artifacts:       c.Rank.FirstPassArtifacts,
	}
	if c.Rank.Strict && opts.MinOverlap < StrictMinOverlap {
		opts.MinOverlap = StrictMinOverlap
	}
	return opts
}

// ParseAlphabet turns an alphabet setting into a symbol set. "std" and
// "standard" name StandardAlphabet; anything else is taken literally.
func ParseAlphabet(s string) SymbolSet {
	switch strings.ToLower(s) {
	case "":
		return nil
	case "std", "standard":
		return SymbolSetFromString(StandardAlphabet)
	}
	return SymbolSetFromString(s)
}
