// Package graphio reads edge lists and query files.
//
// Edge files hold one edge per line as "src dst" or "src dst weight time", with fields separated
// by whitespace, '|' or ','. Lines starting with '#' or '%' are comments, lines not starting with
// a digit are headers; both are skipped. Weights are ignored.
package graphio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/l7mp/difflow/pkg/dataflow"
	"github.com/l7mp/difflow/pkg/graphs"
)

// TimedEdge is an edge with the time it appears at.
type TimedEdge struct {
	Edge graphs.Edge
	Time uint64
}

func fields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '|' || r == ','
	})
}

// scan calls f with the fields of every data line.
func scan(r io.Reader, f func(lineno int, fs []string) error) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for s.Scan() {
		lineno++
		line := strings.TrimSpace(s.Text())
		if line == "" || line[0] == '#' || line[0] == '%' || line[0] < '0' || line[0] > '9' {
			continue
		}
		if err := f(lineno, fields(line)); err != nil {
			return err
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

func parseNodes(lineno int, fs []string) (graphs.Node, graphs.Node, error) {
	if len(fs) < 2 {
		return 0, 0, fmt.Errorf("line %d: expected at least 2 fields, got %d", lineno, len(fs))
	}
	src, err := strconv.ParseUint(fs[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: %w", lineno, err)
	}
	dst, err := strconv.ParseUint(fs[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: %w", lineno, err)
	}
	return graphs.Node(src), graphs.Node(dst), nil
}

// ReadEdges reads an edge list. Edges without a time get time 0. The result is sorted by time,
// keeping the file order within a time.
func ReadEdges(r io.Reader) ([]TimedEdge, error) {
	edges := []TimedEdge{}
	err := scan(r, func(lineno int, fs []string) error {
		src, dst, err := parseNodes(lineno, fs)
		if err != nil {
			return err
		}
		e := TimedEdge{Edge: graphs.NewEdge(src, dst)}
		if len(fs) >= 4 {
			t, err := strconv.ParseUint(fs[3], 10, 64)
			if err != nil {
				return fmt.Errorf("line %d: time: %w", lineno, err)
			}
			e.Time = t
		}
		edges = append(edges, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(edges, func(a, b TimedEdge) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return edges, nil
}

// ReadEdgesFile reads an edge list from a file.
func ReadEdgesFile(path string) ([]TimedEdge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	edges, err := ReadEdges(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return edges, nil
}

// ReadPairs reads number pairs, one per line, like goal pairs or (root, steps) pairs. Extra
// fields are ignored.
func ReadPairs(r io.Reader) ([]graphs.Edge, error) {
	pairs := []graphs.Edge{}
	err := scan(r, func(lineno int, fs []string) error {
		a, b, err := parseNodes(lineno, fs)
		if err != nil {
			return err
		}
		pairs = append(pairs, graphs.NewEdge(a, b))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// ReadPairsFile reads number pairs from a file.
func ReadPairsFile(path string) ([]graphs.Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pairs, err := ReadPairs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pairs, nil
}

// Edges drops the times.
func Edges(edges []TimedEdge) []graphs.Edge {
	ret := make([]graphs.Edge, len(edges))
	for i, e := range edges {
		ret[i] = e.Edge
	}
	return ret
}

// Diff returns the changes that turn the multiset of edges old into new: positive counts are
// insertions, negative ones removals.
func Diff(old, new []graphs.Edge) *dataflow.ZSet[graphs.Edge] {
	return dataflow.FromSlice(new).Subtract(dataflow.FromSlice(old))
}
