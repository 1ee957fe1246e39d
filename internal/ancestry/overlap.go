package ancestry

import "github.com/google/btree"

// overlapPoint says that from pos up to the next point, count lineages still
// carry ancestral material.
type overlapPoint struct {
	pos   float64
	count int
}

func lessOverlap(a, b overlapPoint) bool { return a.pos < b.pos }

// overlapMap is an ordered step function over the sequence. The final point
// at the sequence length carries count -1.
type overlapMap struct {
	tree *btree.BTreeG[overlapPoint]
}

func newOverlapMap(length float64) *overlapMap {
	tree := btree.NewG[overlapPoint](16, lessOverlap)
	tree.ReplaceOrInsert(overlapPoint{pos: 0, count: 0})
	tree.ReplaceOrInsert(overlapPoint{pos: length, count: -1})
	return &overlapMap{tree: tree}
}

// countAt returns the count in effect at x.
func (m *overlapMap) countAt(x float64) int {
	count := 0
	m.tree.DescendLessOrEqual(overlapPoint{pos: x}, func(p overlapPoint) bool {
		count = p.count
		return false
	})
	return count
}

// ensure makes x a breakpoint of the step function without changing it.
func (m *overlapMap) ensure(x float64) {
	if _, ok := m.tree.Get(overlapPoint{pos: x}); ok {
		return
	}
	m.tree.ReplaceOrInsert(overlapPoint{pos: x, count: m.countAt(x)})
}

// each visits the steps that start inside [left, right) and lets fn replace
// their count. left and right must already be breakpoints.
func (m *overlapMap) each(left, right float64, fn func(pos, end float64, count int) int) {
	var steps []overlapPoint
	m.tree.AscendRange(overlapPoint{pos: left}, overlapPoint{pos: right}, func(p overlapPoint) bool {
		steps = append(steps, p)
		return true
	})
	for i, p := range steps {
		end := right
		if i+1 < len(steps) {
			end = steps[i+1].pos
		}
		p.count = fn(p.pos, end, p.count)
		m.tree.ReplaceOrInsert(p)
	}
}

func (m *overlapMap) add(left, right float64, delta int) {
	m.ensure(left)
	m.ensure(right)
	m.each(left, right, func(_, _ float64, count int) int { return count + delta })
}

func (m *overlapMap) len() int { return m.tree.Len() }
