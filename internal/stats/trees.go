package stats

import (
	"sort"

	"coalsim/internal/model"
	"coalsim/internal/tables"
)

// TreeStats describes one marginal tree of a graph.
type TreeStats struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
	// Roots counts the distinct roots reached from the samples; one when the
	// interval has fully coalesced.
	Roots        int     `json:"roots"`
	TMRCA        float64 `json:"tmrca"`
	BranchLength float64 `json:"branch_length"`
}

// MarginalTrees walks the graph from left to right and summarises the tree
// over every interval between consecutive edge breakpoints.
func MarginalTrees(g model.GraphRecord) []TreeStats {
	if len(g.Edges) == 0 {
		return nil
	}
	byLeft := append([]tables.Edge(nil), g.Edges...)
	sort.SliceStable(byLeft, func(i, j int) bool { return byLeft[i].Left < byLeft[j].Left })
	byRight := append([]tables.Edge(nil), g.Edges...)
	sort.SliceStable(byRight, func(i, j int) bool { return byRight[i].Right < byRight[j].Right })

	var samples []tables.NodeID
	for i, n := range g.Nodes {
		if n.Flags&tables.NodeIsSample != 0 {
			samples = append(samples, tables.NodeID(i))
		}
	}

	parent := make(map[tables.NodeID]tables.NodeID)
	var out []TreeStats
	in, rem := 0, 0
	x := byLeft[0].Left
	for in < len(byLeft) || rem < len(byRight) {
		for rem < len(byRight) && byRight[rem].Right <= x {
			e := byRight[rem]
			if parent[e.Child] == e.Parent {
				delete(parent, e.Child)
			}
			rem++
		}
		for in < len(byLeft) && byLeft[in].Left <= x {
			e := byLeft[in]
			parent[e.Child] = e.Parent
			in++
		}
		next := g.SequenceLength
		if in < len(byLeft) && byLeft[in].Left < next {
			next = byLeft[in].Left
		}
		if rem < len(byRight) && byRight[rem].Right < next {
			next = byRight[rem].Right
		}
		if len(parent) > 0 && next > x {
			out = append(out, summariseTree(g.Nodes, samples, parent, x, next))
		}
		if next <= x {
			break
		}
		x = next
	}
	return out
}

func summariseTree(nodes []tables.Node, samples []tables.NodeID, parent map[tables.NodeID]tables.NodeID, left, right float64) TreeStats {
	ts := TreeStats{Left: left, Right: right}
	seen := make(map[tables.NodeID]bool)
	roots := make(map[tables.NodeID]bool)
	for _, s := range samples {
		u := s
		for !seen[u] {
			seen[u] = true
			p, ok := parent[u]
			if !ok {
				roots[u] = true
				break
			}
			ts.BranchLength += nodes[p].Time - nodes[u].Time
			u = p
		}
	}
	ts.Roots = len(roots)
	for r := range roots {
		if t := nodes[r].Time; t > ts.TMRCA {
			ts.TMRCA = t
		}
	}
	return ts
}

// GraphSummary aggregates the marginal trees of one graph, weighting each
// tree by the length of sequence it covers.
type GraphSummary struct {
	Trees             int     `json:"trees"`
	MeanTMRCA         float64 `json:"mean_tmrca"`
	MaxTMRCA          float64 `json:"max_tmrca"`
	MeanBranchLength  float64 `json:"mean_branch_length"`
	UncoalescedLength float64 `json:"uncoalesced_length"`
}

func SummariseGraph(g model.GraphRecord) GraphSummary {
	trees := MarginalTrees(g)
	s := GraphSummary{Trees: len(trees)}
	covered := 0.0
	for _, t := range trees {
		span := t.Right - t.Left
		covered += span
		s.MeanTMRCA += t.TMRCA * span
		s.MeanBranchLength += t.BranchLength * span
		if t.TMRCA > s.MaxTMRCA {
			s.MaxTMRCA = t.TMRCA
		}
		if t.Roots > 1 {
			s.UncoalescedLength += span
		}
	}
	if covered > 0 {
		s.MeanTMRCA /= covered
		s.MeanBranchLength /= covered
	}
	return s
}
