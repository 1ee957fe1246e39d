// Package intervals holds the small numeric helpers used to place genomic
// positions inside sorted breakpoint arrays.
package intervals

import (
	"math"
	"sort"

	"coalsim/internal/simerr"
)

// FindInterval returns the index i such that values[i] <= query < values[i+1].
// values must be sorted ascending and hold at least two entries.
func FindInterval(query float64, values []float64) (int, error) {
	n := len(values)
	if n < 2 {
		return 0, simerr.Errorf(simerr.ErrOutOfBounds, "need at least two values, got %d", n)
	}
	if math.IsNaN(query) || query < values[0] || query >= values[n-1] {
		return 0, simerr.Errorf(simerr.ErrOutOfBounds, "query %g outside [%g, %g)", query, values[0], values[n-1])
	}
	// First index with values[j] > query; the containing interval starts one before.
	j := sort.Search(n, func(j int) bool { return values[j] > query })
	return j - 1, nil
}

// AlmostEqual treats a and b as coincident when |a-b| <= eps*max(1, |a|, |b|).
func AlmostEqual(a, b, eps float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= eps*scale
}

// DefaultEpsilon is the tolerance used when comparing breakpoints.
const DefaultEpsilon = 1e-9
