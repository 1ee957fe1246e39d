package ancestry

import (
	"container/heap"
	"math"

	"coalsim/internal/simerr"
	"coalsim/internal/tables"
)

// MergeOptions controls node assignment during a merge.
type MergeOptions struct {
	// FullARG assigns the new node to every segment, including material
	// carried by only one of the merging lineages.
	FullARG bool
}

// segmentHeap orders pending segments by left coordinate, breaking ties by
// arrival so the merge is deterministic.
type segmentHeap struct {
	t     *Tracker
	items []heapItem
	seq   int
}

type heapItem struct {
	id  SegmentID
	seq int
}

func (h *segmentHeap) Len() int { return len(h.items) }
func (h *segmentHeap) Less(i, j int) bool {
	a, b := h.t.segments[h.items[i].id].Left, h.t.segments[h.items[j].id].Left
	if a != b {
		return a < b
	}
	return h.items[i].seq < h.items[j].seq
}
func (h *segmentHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *segmentHeap) Push(x any) {
	h.items = append(h.items, heapItem{id: x.(SegmentID), seq: h.seq})
	h.seq++
}
func (h *segmentHeap) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item.id
}
func (h *segmentHeap) peekLeft() float64 {
	return h.t.segments[h.items[0].id].Left
}

// Merge joins the material of several lineages into one ancestor placed in
// population and label. Wherever two or more inputs overlap, newNode is
// called once to obtain the ancestor and an edge is reported for every
// overlapping input segment. Regions where every remaining carrier takes
// part are fully coalesced and dropped; the rest is carried forward. Input
// lineages are consumed. The returned lineage is NullLineage when nothing
// remains.
func (t *Tracker) Merge(ids []LineageID, population, label int, opts MergeOptions,
	newNode func() (tables.NodeID, error), emit EdgeFunc) (LineageID, error) {
	if len(ids) == 0 {
		return NullLineage, simerr.Errorf(simerr.ErrBadParamValue, "merge of zero lineages")
	}
	if population < 0 || population >= len(t.sets) {
		return NullLineage, simerr.Errorf(simerr.ErrPopulationOutOfBounds, "population %d", population)
	}
	if label < 0 || label >= t.numLabels {
		return NullLineage, simerr.Errorf(simerr.ErrBadParamValue, "label %d", label)
	}
	seen := make(map[LineageID]bool, len(ids))
	for _, id := range ids {
		if err := t.check(id); err != nil {
			return NullLineage, err
		}
		if seen[id] {
			return NullLineage, simerr.Errorf(simerr.ErrBadParamValue, "lineage %d merged with itself", id)
		}
		seen[id] = true
	}

	h := &segmentHeap{t: t}
	for _, id := range ids {
		heap.Push(h, t.lineages[id].head)
		// Detach the segments; the lineage slots are released now and the
		// segments are freed as they are consumed.
		t.lineages[id].head, t.lineages[id].tail = NullSegment, NullSegment
		t.freeLin(id)
	}

	node := tables.NullNode
	ensureNode := func() (tables.NodeID, error) {
		if node != tables.NullNode {
			return node, nil
		}
		n, err := newNode()
		if err != nil {
			return tables.NullNode, err
		}
		node = n
		return node, nil
	}

	head, tail := NullSegment, NullSegment
	appendOut := func(left, right float64, owner tables.NodeID) {
		if tail != NullSegment {
			last := &t.segments[tail]
			if last.Right == left && last.Node == owner {
				last.Right = right
				return
			}
		}
		s := t.newSegment(left, right, owner)
		if tail == NullSegment {
			head = s
		} else {
			t.segments[tail].next = s
			t.segments[s].prev = tail
		}
		tail = s
	}

	var carriers []SegmentID
	for h.Len() > 0 {
		carriers = carriers[:0]
		left := h.peekLeft()
		for h.Len() > 0 && h.peekLeft() == left {
			carriers = append(carriers, heap.Pop(h).(SegmentID))
		}
		right := math.Inf(1)
		if h.Len() > 0 {
			right = h.peekLeft()
		}
		for _, c := range carriers {
			right = math.Min(right, t.segments[c].Right)
		}

		if len(carriers) == 1 {
			owner := t.segments[carriers[0]].Node
			if opts.FullARG {
				n, err := ensureNode()
				if err != nil {
					return NullLineage, err
				}
				if emit != nil {
					emit(left, right, n, owner)
				}
				owner = n
			}
			appendOut(left, right, owner)
		} else {
			n, err := ensureNode()
			if err != nil {
				return NullLineage, err
			}
			for _, c := range carriers {
				if emit != nil {
					emit(left, right, n, t.segments[c].Node)
				}
			}
			k := len(carriers)
			t.overlaps.ensure(left)
			t.overlaps.ensure(right)
			t.overlaps.each(left, right, func(pos, end float64, count int) int {
				if count == k {
					return 0
				}
				appendOut(pos, end, n)
				return count - k + 1
			})
		}

		for _, c := range carriers {
			seg := &t.segments[c]
			if seg.Right > right {
				seg.Left = right
				heap.Push(h, c)
				continue
			}
			if next := seg.next; next != NullSegment {
				t.segments[next].prev = NullSegment
				heap.Push(h, next)
			}
			t.freeSeg(c)
		}
	}

	if head == NullSegment {
		return NullLineage, nil
	}
	return t.newLineage(head, tail, population, label), nil
}
