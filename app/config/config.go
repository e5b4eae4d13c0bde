package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	DB       PostgresConfig
	Engine   EngineConfig
	Interval IntervalConfig
	Graft    GraftConfig
	Output   OutputConfig
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
}

type EngineConfig struct {
	Path       string
	MoveTimeMS int // 0 = no time limit
	Depth      int // 0 = no depth limit
	Candidates int // multipv breadth
	Options    map[string]string
}

type IntervalConfig struct {
	SkipFirst   int // plies skipped before the first target
	Increment   int // plies between targets
	MaxPly      int // last ply eligible for analysis
	Perspective string
}

type GraftConfig struct {
	Tolerance int // centipawn delta before a sibling is flagged as a blunder
	Extension int // max PV moves grafted per candidate
}

type OutputConfig struct {
	InputPGN    string
	OutputPGN   string
	BookBin     string
	BookEnabled bool
	SplitSizeMB int
}

// Presets mirror the ones shipped in the settings dialog: (skipFirst,
// increment, maxPly, extension, candidates, tolerance, depth, movetimeMS).
var presets = map[string][8]int{
	"quick-scan":       {0, 20, 40, 3, 1, 200, 12, 1000},
	"deep-prep":        {0, 10, 60, 8, 2, 75, 20, 5000},
	"blitz-repertoire": {0, 14, 48, 5, 1, 150, 16, 2000},
}

// constraints clamp every tunable into its sane range.
var constraints = map[string][2]int{
	"skip_first": {0, 40},
	"increment":  {1, 30},
	"max_ply":    {0, 74},
	"extension":  {1, 10},
	"candidates": {1, 3},
	"tolerance":  {50, 500},
	"depth":      {0, 30},
	"move_time":  {0, 30000},
	"split_size": {1, 50},
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
		},
		Engine: EngineConfig{
			Path:       os.Getenv("ENGINE_PATH"),
			MoveTimeMS: envInt("ENGINE_MOVE_TIME", 2000),
			Depth:      envInt("ENGINE_DEPTH", 16),
			Candidates: envInt("ENGINE_CANDIDATES", 1),
			Options:    parseEngineOptions(os.Getenv("ENGINE_OPTIONS")),
		},
		Interval: IntervalConfig{
			SkipFirst:   envInt("SKIP_FIRST", 0),
			Increment:   envInt("INCREMENT", 14),
			MaxPly:      envInt("MAX_PLY", 48),
			Perspective: strings.ToLower(envStr("PERSPECTIVE", "white")),
		},
		Graft: GraftConfig{
			Tolerance: envInt("BLUNDER_TOLERANCE", 150),
			Extension: envInt("PV_EXTENSION", 5),
		},
		Output: OutputConfig{
			InputPGN:    os.Getenv("INPUT_PGN"),
			OutputPGN:   os.Getenv("OUTPUT_PGN"),
			BookBin:     os.Getenv("BOOK_BIN"),
			BookEnabled: envBool("BOOK_ENABLED", false),
			SplitSizeMB: envInt("SPLIT_SIZE_MB", 10),
		},
	}

	if preset := os.Getenv("PRESET"); preset != "" {
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, err
		}
	}

	cfg.Validate()
	return cfg, nil
}

// ApplyPreset loads one of the named presets over the interval, graft and
// budget settings. Unknown names are an error so typos don't run a default.
func (c *Config) ApplyPreset(name string) error {
	v, ok := presets[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown preset %q", name)
	}
	c.Interval.SkipFirst = v[0]
	c.Interval.Increment = v[1]
	c.Interval.MaxPly = v[2]
	c.Graft.Extension = v[3]
	c.Engine.Candidates = v[4]
	c.Graft.Tolerance = v[5]
	c.Engine.Depth = v[6]
	c.Engine.MoveTimeMS = v[7]
	return nil
}

// Validate clamps every tunable into range and repairs impossible combos.
func (c *Config) Validate() {
	c.Interval.SkipFirst = clamp("skip_first", c.Interval.SkipFirst)
	c.Interval.Increment = clamp("increment", c.Interval.Increment)
	c.Interval.MaxPly = clamp("max_ply", c.Interval.MaxPly)
	c.Graft.Extension = clamp("extension", c.Graft.Extension)
	c.Engine.Candidates = clamp("candidates", c.Engine.Candidates)
	c.Graft.Tolerance = clamp("tolerance", c.Graft.Tolerance)
	c.Engine.Depth = clamp("depth", c.Engine.Depth)
	c.Engine.MoveTimeMS = clamp("move_time", c.Engine.MoveTimeMS)
	c.Output.SplitSizeMB = clamp("split_size", c.Output.SplitSizeMB)

	switch c.Interval.Perspective {
	case "white", "black", "both":
	default:
		c.Interval.Perspective = "white"
	}

	// At least one search limit must be set or "go" would never return.
	if c.Engine.Depth == 0 && c.Engine.MoveTimeMS == 0 {
		c.Engine.Depth = 16
	}
}

func clamp(name string, v int) int {
	r := constraints[name]
	if v < r[0] {
		return r[0]
	}
	if v > r[1] {
		return r[1]
	}
	return v
}

// parseEngineOptions reads "Hash=256,Threads=2" style pairs.
func parseEngineOptions(s string) map[string]string {
	opts := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		opts[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return opts
}

func envStr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
