// Package config holds the configuration of a difflow run.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/l7mp/difflow/pkg/sudoku"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("invalid configuration")

// Algorithms.
const (
	Connected     = "connected"
	Bijkstra      = "bijkstra"
	ShortestPaths = "paths"
	Triangles     = "triangles"
	Truss         = "truss"
	TrussNested   = "truss-nested"
	PageRank      = "pagerank"
	Neighborhoods = "neighborhoods"
	Sudoku        = "sudoku"
)

// Algorithms lists the supported algorithms.
var Algorithms = []string{Connected, Bijkstra, ShortestPaths, Triangles, Truss, TrussNested, PageRank, Neighborhoods, Sudoku}

// Config describes a run: the algorithm, where its input comes from and where its output goes.
type Config struct {
	// Algorithm is one of Algorithms.
	Algorithm string `json:"algorithm"`
	// Edges is the edge file.
	Edges string `json:"edges,omitempty"`
	// Batch is the number of edges fed per round. Zero feeds the whole file in one round.
	Batch int `json:"batch,omitempty"`
	// RoundTimes makes every batch its own time instead of using the times of the edge file.
	RoundTimes bool `json:"roundTimes,omitempty"`
	// Preload indexes the whole edge file before the query dataflow is built, which then
	// imports the index.
	Preload bool `json:"preload,omitempty"`
	// Inspect writes every output update to the console.
	Inspect bool `json:"inspect,omitempty"`
	// Follow keeps watching the edge file after the initial load and applies its changes.
	Follow bool `json:"follow,omitempty"`

	Goals     []Pair `json:"goals,omitempty"`
	GoalsFile string `json:"goalsFile,omitempty"`
	Roots     []Root `json:"roots,omitempty"`
	RootsFile string `json:"rootsFile,omitempty"`

	PageRank PageRankConfig `json:"pagerank,omitempty"`
	// Puzzle is an 81 character Sudoku puzzle.
	Puzzle string `json:"puzzle,omitempty"`

	Sinks SinkConfig `json:"sinks,omitempty"`
}

// Pair is a (source, target) goal.
type Pair struct {
	Src uint32 `json:"src"`
	Dst uint32 `json:"dst"`
}

// Root is a neighborhood root with the number of hops to explore.
type Root struct {
	Node  uint32 `json:"node"`
	Steps uint32 `json:"steps"`
}

// PageRankConfig bounds PageRank. Zero values take the defaults of the algorithm.
type PageRankConfig struct {
	Iterations uint32 `json:"iterations,omitempty"`
	Init       int64  `json:"init,omitempty"`
	Reset      int64  `json:"reset,omitempty"`
}

// SinkConfig selects the result sinks besides the console.
type SinkConfig struct {
	Redis *RedisConfig `json:"redis,omitempty"`
	// WebSocket broadcasts updates to the clients of the /updates endpoint.
	WebSocket bool `json:"websocket,omitempty"`
}

// RedisConfig configures the Redis hash sink.
type RedisConfig struct {
	Addr string `json:"addr"`
	DB   int    `json:"db,omitempty"`
	// Key is the hash holding the output. Defaults to "difflow:<algorithm>".
	Key string `json:"key,omitempty"`
}

// Parse decodes a YAML configuration, applies the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default fills in the defaults.
func (c *Config) Default() {
	c.Algorithm = strings.ToLower(strings.TrimSpace(c.Algorithm))
	if c.Sinks.Redis != nil && c.Sinks.Redis.Key == "" {
		c.Sinks.Redis.Key = "difflow:" + c.Algorithm
	}
}

// Validate checks the configuration. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(Algorithms, c.Algorithm) {
		errs = append(errs, fmt.Sprintf("algorithm %q is not one of %s", c.Algorithm, strings.Join(Algorithms, ", ")))
	}

	if c.Algorithm == Sudoku {
		if _, err := sudoku.Parse(c.Puzzle); err != nil {
			errs = append(errs, err.Error())
		}
		if c.Follow {
			errs = append(errs, "follow is not supported for sudoku")
		}
	} else if c.Edges == "" {
		errs = append(errs, "edges is required")
	}

	if c.Batch < 0 {
		errs = append(errs, fmt.Sprintf("batch must not be negative, got %d", c.Batch))
	}

	switch c.Algorithm {
	case Bijkstra, ShortestPaths:
		if len(c.Goals) == 0 && c.GoalsFile == "" {
			errs = append(errs, fmt.Sprintf("%s needs goals or goalsFile", c.Algorithm))
		}
	case Neighborhoods:
		if len(c.Roots) == 0 && c.RootsFile == "" {
			errs = append(errs, "neighborhoods needs roots or rootsFile")
		}
	}

	if c.PageRank.Init < 0 {
		errs = append(errs, "pagerank.init must not be negative")
	}

	if r := c.Sinks.Redis; r != nil {
		if r.Addr == "" {
			errs = append(errs, "sinks.redis.addr is required")
		}
		if r.DB < 0 {
			errs = append(errs, "sinks.redis.db must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(errs, "\n  - "))
	}
	return nil
}
