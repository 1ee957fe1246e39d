package stats

import "testing"

func TestTMRCAProfile(t *testing.T) {
	replicates := [][]TreeStats{
		{{Left: 0, Right: 50, Roots: 1, TMRCA: 2}, {Left: 50, Right: 100, Roots: 1, TMRCA: 4}},
		{{Left: 0, Right: 100, Roots: 1, TMRCA: 6}},
		{{Left: 0, Right: 25, Roots: 2, TMRCA: 9}, {Left: 25, Right: 100, Roots: 1, TMRCA: 1}},
	}
	profile := TMRCAProfile(replicates, 100, 4)
	if len(profile) != 4 {
		t.Fatalf("expected 4 points, got %d", len(profile))
	}
	first := profile[0]
	if first.Position != 12.5 || first.N != 2 || first.Mean != 4 || first.Max != 6 {
		t.Fatalf("unexpected first point: %+v", first)
	}
	last := profile[3]
	if last.Position != 87.5 || last.N != 3 || last.Mean != 11.0/3 || last.Max != 6 {
		t.Fatalf("unexpected last point: %+v", last)
	}
	if TMRCAProfile(replicates, 100, 0) != nil {
		t.Fatal("expected no points")
	}
}

func TestTreeAt(t *testing.T) {
	trees := []TreeStats{{Left: 10, Right: 20}, {Left: 20, Right: 30}}
	if _, ok := treeAt(trees, 5); ok {
		t.Fatal("expected no tree before the first interval")
	}
	if tree, ok := treeAt(trees, 20); !ok || tree.Left != 20 {
		t.Fatalf("expected the right-hand tree at a breakpoint, got %+v ok=%t", tree, ok)
	}
	if _, ok := treeAt(trees, 30); ok {
		t.Fatal("expected no tree at the end")
	}
}
