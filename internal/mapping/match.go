package mapping

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// MatchConfig bundles tuning parameters for fuzzy name matching.
type MatchConfig struct {
	MinCoverage float64 // minimal share of the query that must match
	MaxSpread   int     // maximal distance between first and last match index
	MaxResults  int     // upper limit of returned results
}

// DefaultMatch is used for mapping resolution and the fields command.
var DefaultMatch = MatchConfig{MinCoverage: 1, MaxSpread: 24, MaxResults: 10}

// Match returns the indices of names matching q, best first. Substring hits
// rank ahead of fuzzy ones. Fuzzy hits that are too scattered are dropped.
func Match(q string, names []string, cfg MatchConfig) []int {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		idx := make([]int, 0, min(cfg.MaxResults, len(names)))
		for i := range names {
			if len(idx) >= cfg.MaxResults {
				break
			}
			idx = append(idx, i)
		}
		return idx
	}

	out := make([]int, 0, cfg.MaxResults)
	taken := make(map[int]bool)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), q) {
			out = append(out, i)
			taken[i] = true
			if len(out) >= cfg.MaxResults {
				return out
			}
		}
	}
	for _, mt := range fuzzy.Find(q, names) {
		if taken[mt.Index] {
			continue
		}
		if matchCoverage(q, mt) < cfg.MinCoverage || matchSpread(mt) > cfg.MaxSpread {
			continue
		}
		out = append(out, mt.Index)
		if len(out) >= cfg.MaxResults {
			break
		}
	}
	return out
}

// matchCoverage returns the ratio of matched characters to the query length.
func matchCoverage(q string, m fuzzy.Match) float64 {
	if len(q) == 0 {
		return 1
	}
	return float64(len(m.MatchedIndexes)) / float64(len([]rune(q)))
}

// matchSpread returns the distance between the first and last matched index.
func matchSpread(m fuzzy.Match) int {
	if len(m.MatchedIndexes) == 0 {
		return 0
	}
	return m.MatchedIndexes[len(m.MatchedIndexes)-1] - m.MatchedIndexes[0]
}
