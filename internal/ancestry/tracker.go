// Package ancestry tracks the ancestral material carried by each extant
// lineage. Segments and lineages live in slot arenas indexed by integer ids;
// freed slots are recycled through free lists.
package ancestry

import (
	"math"
	"sort"

	"coalsim/internal/ratemap"
	"coalsim/internal/simerr"
	"coalsim/internal/tables"
)

type SegmentID int32

type LineageID int32

const (
	NullSegment SegmentID = -1
	NullLineage LineageID = -1
)

// Segment is a half-open interval of sequence inherited from Node.
type Segment struct {
	Left  float64
	Right float64
	Node  tables.NodeID
}

type segment struct {
	Segment
	prev, next SegmentID
	live       bool
}

type lineage struct {
	head, tail SegmentID
	population int
	label      int
	setIndex   int
	live       bool
}

// EdgeFunc receives each inheritance relation produced by a merge.
type EdgeFunc func(left, right float64, parent, child tables.NodeID)

type Tracker struct {
	rateMap   *ratemap.RateMap
	numLabels int

	segments    []segment
	freeSegment []SegmentID
	liveSegs    int

	lineages    []lineage
	freeLineage []LineageID
	liveLins    int

	// sets[pop][label] holds the live lineages in insertion order, with
	// swap-remove on deletion.
	sets [][][]LineageID

	mass []*fenwick
	// span indexes the physical extent of each lineage, used to place gene
	// conversion tracts.
	span     []*fenwick
	overlaps *overlapMap
}

func NewTracker(numPopulations, numLabels int, rm *ratemap.RateMap) (*Tracker, error) {
	if numPopulations < 1 {
		return nil, simerr.Errorf(simerr.ErrBadPopulationConfiguration, "need at least one population, got %d", numPopulations)
	}
	if numLabels < 1 {
		return nil, simerr.Errorf(simerr.ErrBadParamValue, "need at least one label, got %d", numLabels)
	}
	t := &Tracker{
		rateMap:   rm,
		numLabels: numLabels,
		sets:      make([][][]LineageID, numPopulations),
		mass:      make([]*fenwick, numLabels),
		span:      make([]*fenwick, numLabels),
		overlaps:  newOverlapMap(rm.SequenceLength()),
	}
	for p := range t.sets {
		t.sets[p] = make([][]LineageID, numLabels)
	}
	for l := range t.mass {
		t.mass[l] = newFenwick(64)
		t.span[l] = newFenwick(64)
	}
	return t, nil
}

func (t *Tracker) NumPopulations() int { return len(t.sets) }
func (t *Tracker) NumLabels() int      { return t.numLabels }

// ReserveOverlap records that count sample lineages will carry [left, right).
// Every sample, including those entering later in the run, must be reserved
// before the first merge so fully coalesced regions are recognised correctly.
func (t *Tracker) ReserveOverlap(left, right float64, count int) {
	t.overlaps.add(left, right, count)
}

// OverlapCount is the number of lineages expected to carry position x.
func (t *Tracker) OverlapCount(x float64) int {
	return t.overlaps.countAt(x)
}

func (t *Tracker) newSegment(left, right float64, node tables.NodeID) SegmentID {
	var id SegmentID
	if n := len(t.freeSegment); n > 0 {
		id = t.freeSegment[n-1]
		t.freeSegment = t.freeSegment[:n-1]
	} else {
		id = SegmentID(len(t.segments))
		t.segments = append(t.segments, segment{})
	}
	t.segments[id] = segment{Segment: Segment{Left: left, Right: right, Node: node}, prev: NullSegment, next: NullSegment, live: true}
	t.liveSegs++
	return id
}

func (t *Tracker) freeSeg(id SegmentID) {
	t.segments[id].live = false
	t.freeSegment = append(t.freeSegment, id)
	t.liveSegs--
}

func (t *Tracker) newLineage(head, tail SegmentID, population, label int) LineageID {
	var id LineageID
	if n := len(t.freeLineage); n > 0 {
		id = t.freeLineage[n-1]
		t.freeLineage = t.freeLineage[:n-1]
	} else {
		id = LineageID(len(t.lineages))
		t.lineages = append(t.lineages, lineage{})
		if len(t.lineages) > t.mass[0].size() {
			for l := range t.mass {
				t.mass[l].grow(2 * len(t.lineages))
				t.span[l].grow(2 * len(t.lineages))
			}
		}
	}
	t.lineages[id] = lineage{head: head, tail: tail, population: population, label: label, live: true}
	t.insertSet(id)
	t.liveLins++
	t.updateMass(id)
	return id
}

func (t *Tracker) freeLin(id LineageID) {
	t.removeSet(id)
	t.mass[t.lineages[id].label].set(int(id), 0)
	t.span[t.lineages[id].label].set(int(id), 0)
	t.lineages[id].live = false
	t.freeLineage = append(t.freeLineage, id)
	t.liveLins--
}

func (t *Tracker) insertSet(id LineageID) {
	lin := &t.lineages[id]
	set := t.sets[lin.population][lin.label]
	lin.setIndex = len(set)
	t.sets[lin.population][lin.label] = append(set, id)
}

func (t *Tracker) removeSet(id LineageID) {
	lin := t.lineages[id]
	set := t.sets[lin.population][lin.label]
	last := set[len(set)-1]
	set[lin.setIndex] = last
	t.lineages[last].setIndex = lin.setIndex
	t.sets[lin.population][lin.label] = set[:len(set)-1]
}

func (t *Tracker) updateMass(id LineageID) {
	lin := t.lineages[id]
	left, right := t.segments[lin.head].Left, t.segments[lin.tail].Right
	t.mass[lin.label].set(int(id), t.rateMap.LineageMass(left, right))
	t.span[lin.label].set(int(id), right-left)
}

func (t *Tracker) valid(id LineageID) bool {
	return id >= 0 && int(id) < len(t.lineages) && t.lineages[id].live
}

func (t *Tracker) check(id LineageID) error {
	if !t.valid(id) {
		return simerr.Errorf(simerr.ErrBadState, "lineage %d is not live", id)
	}
	return nil
}

// AddSample registers a lineage carrying [left, right) from node.
func (t *Tracker) AddSample(node tables.NodeID, population int, left, right float64, label int) (LineageID, error) {
	if population < 0 || population >= len(t.sets) {
		return NullLineage, simerr.Errorf(simerr.ErrPopulationOutOfBounds, "population %d", population)
	}
	if label < 0 || label >= t.numLabels {
		return NullLineage, simerr.Errorf(simerr.ErrBadParamValue, "label %d", label)
	}
	if !(left < right) || left < 0 || right > t.rateMap.SequenceLength() {
		return NullLineage, simerr.Errorf(simerr.ErrBadSamples, "sample interval [%g, %g)", left, right)
	}
	seg := t.newSegment(left, right, node)
	return t.newLineage(seg, seg, population, label), nil
}

func (t *Tracker) NumLineages() int { return t.liveLins }

// NumSegments counts the segments still awaiting coalescence.
func (t *Tracker) NumSegments() int { return t.liveSegs }

// TotalLength sums the lengths of all live segments.
func (t *Tracker) TotalLength() float64 {
	total := 0.0
	for _, s := range t.segments {
		if s.live {
			total += s.Right - s.Left
		}
	}
	return total
}

func (t *Tracker) Count(population, label int) int {
	return len(t.sets[population][label])
}

// PopulationCount is the number of lineages in population across labels.
func (t *Tracker) PopulationCount(population int) int {
	n := 0
	for _, set := range t.sets[population] {
		n += len(set)
	}
	return n
}

// Pick returns the idx-th lineage of a population and label.
func (t *Tracker) Pick(population, label, idx int) LineageID {
	return t.sets[population][label][idx]
}

// Lineages returns a snapshot of the lineages in a population and label.
func (t *Tracker) Lineages(population, label int) []LineageID {
	return append([]LineageID(nil), t.sets[population][label]...)
}

// All returns every live lineage ordered by id.
func (t *Tracker) All() []LineageID {
	out := make([]LineageID, 0, t.liveLins)
	for i := range t.lineages {
		if t.lineages[i].live {
			out = append(out, LineageID(i))
		}
	}
	return out
}

func (t *Tracker) Population(id LineageID) int { return t.lineages[id].population }
func (t *Tracker) Label(id LineageID) int      { return t.lineages[id].label }

// Extent returns the left end of the first segment and the right end of the
// last.
func (t *Tracker) Extent(id LineageID) (float64, float64) {
	lin := t.lineages[id]
	return t.segments[lin.head].Left, t.segments[lin.tail].Right
}

func (t *Tracker) Segments(id LineageID) []Segment {
	var out []Segment
	for s := t.lineages[id].head; s != NullSegment; s = t.segments[s].next {
		out = append(out, t.segments[s].Segment)
	}
	return out
}

// Length sums the segment lengths of one lineage.
func (t *Tracker) Length(id LineageID) float64 {
	total := 0.0
	for s := t.lineages[id].head; s != NullSegment; s = t.segments[s].next {
		total += t.segments[s].Right - t.segments[s].Left
	}
	return total
}

// Mass is the recombination mass of one lineage.
func (t *Tracker) Mass(id LineageID) float64 {
	return t.mass[t.lineages[id].label].get(int(id))
}

// TotalMass is the recombination mass of all lineages with label.
func (t *Tracker) TotalMass(label int) float64 {
	return t.mass[label].total()
}

// PickByMass selects a lineage with label with probability proportional to
// its mass; u is uniform on [0, 1).
func (t *Tracker) PickByMass(label int, u float64) (LineageID, error) {
	slot := t.mass[label].find(u * t.mass[label].total())
	if slot < 0 || !t.valid(LineageID(slot)) {
		return NullLineage, simerr.Errorf(simerr.ErrBadState, "no lineage with positive mass for label %d", label)
	}
	return LineageID(slot), nil
}

// TotalSpan is the summed extent length of all lineages with label.
func (t *Tracker) TotalSpan(label int) float64 {
	return t.span[label].total()
}

// PickBySpan selects a lineage with label with probability proportional to
// the length of its extent; u is uniform on [0, 1).
func (t *Tracker) PickBySpan(label int, u float64) (LineageID, error) {
	slot := t.span[label].find(u * t.span[label].total())
	if slot < 0 || !t.valid(LineageID(slot)) {
		return NullLineage, simerr.Errorf(simerr.ErrBadState, "no lineage with positive extent for label %d", label)
	}
	return LineageID(slot), nil
}

// Move transfers a lineage to another population, keeping its label.
func (t *Tracker) Move(id LineageID, population int) error {
	if err := t.check(id); err != nil {
		return err
	}
	if population < 0 || population >= len(t.sets) {
		return simerr.Errorf(simerr.ErrPopulationOutOfBounds, "population %d", population)
	}
	t.removeSet(id)
	t.lineages[id].population = population
	t.insertSet(id)
	return nil
}

// SetLabel moves a lineage to another label within its population.
func (t *Tracker) SetLabel(id LineageID, label int) error {
	if err := t.check(id); err != nil {
		return err
	}
	if label < 0 || label >= t.numLabels {
		return simerr.Errorf(simerr.ErrBadParamValue, "label %d", label)
	}
	old := t.lineages[id].label
	if old == label {
		return nil
	}
	t.removeSet(id)
	t.mass[old].set(int(id), 0)
	t.span[old].set(int(id), 0)
	t.lineages[id].label = label
	t.insertSet(id)
	t.updateMass(id)
	return nil
}

// Remove drops a lineage and its segments.
func (t *Tracker) Remove(id LineageID) error {
	if err := t.check(id); err != nil {
		return err
	}
	for s := t.lineages[id].head; s != NullSegment; {
		next := t.segments[s].next
		t.freeSeg(s)
		s = next
	}
	t.freeLin(id)
	return nil
}

// Reparent points every segment of a lineage at node, reporting an edge from
// node to each previous owner.
func (t *Tracker) Reparent(id LineageID, node tables.NodeID, emit EdgeFunc) error {
	if err := t.check(id); err != nil {
		return err
	}
	for s := t.lineages[id].head; s != NullSegment; s = t.segments[s].next {
		seg := &t.segments[s]
		if emit != nil {
			emit(seg.Left, seg.Right, node, seg.Node)
		}
		seg.Node = node
	}
	t.squash(id)
	return nil
}

// ReplaceNodes calls fn for each segment of a lineage and stores the node it
// returns as the segment's new owner.
func (t *Tracker) ReplaceNodes(id LineageID, fn func(Segment) (tables.NodeID, error)) error {
	if err := t.check(id); err != nil {
		return err
	}
	for s := t.lineages[id].head; s != NullSegment; s = t.segments[s].next {
		node, err := fn(t.segments[s].Segment)
		if err != nil {
			return err
		}
		t.segments[s].Node = node
	}
	t.squash(id)
	return nil
}

// Overlapping reports whether any two of the lineages carry a common
// position.
func (t *Tracker) Overlapping(ids []LineageID) bool {
	type span struct{ left, right float64 }
	var spans []span
	for _, id := range ids {
		for s := t.lineages[id].head; s != NullSegment; s = t.segments[s].next {
			spans = append(spans, span{t.segments[s].Left, t.segments[s].Right})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].left < spans[j].left })
	reach := math.Inf(-1)
	for _, sp := range spans {
		if sp.left < reach {
			return true
		}
		reach = math.Max(reach, sp.right)
	}
	return false
}

// squash joins abutting segments inherited from the same node.
func (t *Tracker) squash(id LineageID) {
	s := t.lineages[id].head
	for s != NullSegment {
		next := t.segments[s].next
		if next != NullSegment && t.segments[s].Right == t.segments[next].Left && t.segments[s].Node == t.segments[next].Node {
			t.segments[s].Right = t.segments[next].Right
			t.segments[s].next = t.segments[next].next
			if after := t.segments[next].next; after != NullSegment {
				t.segments[after].prev = s
			} else {
				t.lineages[id].tail = s
			}
			t.freeSeg(next)
			continue
		}
		s = next
	}
}

// Split cuts a lineage at p. Material left of p stays on id; material from p
// onward moves to the returned lineage in the same population and label. p
// must lie strictly inside the lineage extent. When p falls inside a segment
// that segment is truncated; when it falls in a gap the list is cut there.
func (t *Tracker) Split(id LineageID, p float64) (LineageID, error) {
	if err := t.check(id); err != nil {
		return NullLineage, err
	}
	left, right := t.Extent(id)
	if !(left < p && p < right) || math.IsNaN(p) {
		return NullLineage, simerr.Errorf(simerr.ErrOutOfBounds, "breakpoint %g outside (%g, %g)", p, left, right)
	}
	lin := t.lineages[id]
	y := lin.head
	for t.segments[y].Right <= p {
		y = t.segments[y].next
	}
	var head SegmentID
	if t.segments[y].Left < p {
		z := t.newSegment(p, t.segments[y].Right, t.segments[y].Node)
		t.segments[z].next = t.segments[y].next
		if n := t.segments[z].next; n != NullSegment {
			t.segments[n].prev = z
		}
		t.segments[y].Right = p
		t.segments[y].next = NullSegment
		head = z
		if lin.tail == y {
			lin.tail = z
		}
		t.lineages[id].tail = y
	} else {
		x := t.segments[y].prev
		t.segments[x].next = NullSegment
		t.segments[y].prev = NullSegment
		head = y
		t.lineages[id].tail = x
	}
	tail := lin.tail
	t.updateMass(id)
	return t.newLineage(head, tail, lin.population, lin.label), nil
}

// Join appends the material of b to a without creating an ancestor. Both
// lineages must share population and label, and b must lie entirely to the
// right of a. b is consumed.
func (t *Tracker) Join(a, b LineageID) error {
	if err := t.check(a); err != nil {
		return err
	}
	if err := t.check(b); err != nil {
		return err
	}
	la, lb := t.lineages[a], t.lineages[b]
	if la.population != lb.population || la.label != lb.label {
		return simerr.Errorf(simerr.ErrBadParamValue, "join of lineages %d and %d in different sets", a, b)
	}
	if a == b || t.segments[la.tail].Right > t.segments[lb.head].Left {
		return simerr.Errorf(simerr.ErrBadParamValue, "lineage %d does not lie right of %d", b, a)
	}
	t.segments[la.tail].next = lb.head
	t.segments[lb.head].prev = la.tail
	t.lineages[a].tail = lb.tail
	t.lineages[b].head, t.lineages[b].tail = NullSegment, NullSegment
	t.freeLin(b)
	t.squash(a)
	t.updateMass(a)
	return nil
}
