package stats

import "sort"

// ProfilePoint is the TMRCA at one position of the sequence, across the
// replicates whose tree at that position has fully coalesced.
type ProfilePoint struct {
	Position float64 `json:"position"`
	Mean     float64 `json:"mean"`
	Max      float64 `json:"max"`
	N        int     `json:"n"`
}

// TMRCAProfile samples the marginal trees of every replicate at points
// evenly spaced positions in [0, sequenceLength) and averages their TMRCA.
func TMRCAProfile(replicates [][]TreeStats, sequenceLength float64, points int) []ProfilePoint {
	if points <= 0 || sequenceLength <= 0 {
		return nil
	}
	step := sequenceLength / float64(points)
	out := make([]ProfilePoint, 0, points)
	for i := 0; i < points; i++ {
		x := (float64(i) + 0.5) * step
		values := make([]float64, 0, len(replicates))
		for _, trees := range replicates {
			if t, ok := treeAt(trees, x); ok && t.Roots == 1 {
				values = append(values, t.TMRCA)
			}
		}
		p := ProfilePoint{Position: x, N: len(values)}
		if len(values) > 0 {
			m := Describe(values)
			p.Mean, p.Max = m.Mean, m.Max
		}
		out = append(out, p)
	}
	return out
}

// treeAt finds the tree covering x in trees sorted by Left.
func treeAt(trees []TreeStats, x float64) (TreeStats, bool) {
	i := sort.Search(len(trees), func(i int) bool { return trees[i].Right > x })
	if i == len(trees) || trees[i].Left > x {
		return TreeStats{}, false
	}
	return trees[i], true
}
