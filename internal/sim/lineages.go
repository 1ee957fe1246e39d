package sim

import (
	"math"

	"coalsim/internal/ancestry"
	"coalsim/internal/simerr"
	"coalsim/internal/tables"
)

func (s *Simulator) emitNode(t float64, population int, flags tables.NodeFlags) (tables.NodeID, error) {
	id, err := s.sink.EmitNode(t, population, flags)
	if err != nil {
		return tables.NullNode, simerr.FromPersistence(err)
	}
	if id < 0 {
		return tables.NullNode, simerr.Errorf(simerr.ErrBadState, "sink returned node id %d", id)
	}
	for int(id) >= len(s.nodeTimes) {
		s.nodeTimes = append(s.nodeTimes, math.NaN())
	}
	s.nodeTimes[id] = t
	return id, nil
}

func (s *Simulator) addEdge(left, right float64, parent, child tables.NodeID) {
	s.edges.Add(left, right, parent, child)
}

func (s *Simulator) flushEdges() error {
	if err := s.edges.Flush(s.sink); err != nil {
		return simerr.FromPersistence(err)
	}
	return nil
}

// merge joins lineages into a common ancestor in population and label. The
// ancestor node is created lazily, the first time two inputs overlap, unless
// a full ARG is recorded.
func (s *Simulator) merge(ids []ancestry.LineageID, population, label int) (ancestry.LineageID, error) {
	var flags tables.NodeFlags
	if s.cfg.RecordFullARG && !s.tracker.Overlapping(ids) {
		flags = tables.NodeIsCommonAncestor
	}
	out, err := s.tracker.Merge(ids, population, label, ancestry.MergeOptions{FullARG: s.cfg.RecordFullARG},
		func() (tables.NodeID, error) { return s.emitNode(s.time, population, flags) }, s.addEdge)
	if err != nil {
		return ancestry.NullLineage, err
	}
	return out, s.flushEdges()
}

// recombine splits a lineage at breakpoint. With a full ARG both halves get
// a recombinant node of their own.
func (s *Simulator) recombine(id ancestry.LineageID, breakpoint float64) (ancestry.LineageID, error) {
	right, err := s.tracker.Split(id, breakpoint)
	if err != nil {
		return ancestry.NullLineage, err
	}
	if !s.cfg.RecordFullARG {
		return right, nil
	}
	for _, half := range []ancestry.LineageID{id, right} {
		node, err := s.emitNode(s.time, s.tracker.Population(half), tables.NodeIsRecombinant)
		if err != nil {
			return ancestry.NullLineage, err
		}
		if err := s.tracker.Reparent(half, node, s.addEdge); err != nil {
			return ancestry.NullLineage, err
		}
	}
	return right, s.flushEdges()
}

// convert cuts the material of id inside [left, right) out into a lineage of
// its own. It reports false, changing nothing, when the tract holds no
// material or all of it. With a full ARG both parts get a gene conversion
// node.
func (s *Simulator) convert(id ancestry.LineageID, left, right float64) (bool, error) {
	lo, hi := s.tracker.Extent(id)
	right = math.Min(right, hi)
	if !(right > left) || (left <= lo && right >= hi) {
		return false, nil
	}
	hit := false
	for _, seg := range s.tracker.Segments(id) {
		if seg.Left < right && seg.Right > left {
			hit = true
			break
		}
	}
	if !hit {
		return false, nil
	}
	head, tract := ancestry.NullLineage, id
	if left > lo {
		t, err := s.tracker.Split(id, left)
		if err != nil {
			return false, err
		}
		head, tract = id, t
	}
	tail := ancestry.NullLineage
	if _, end := s.tracker.Extent(tract); right < end {
		t, err := s.tracker.Split(tract, right)
		if err != nil {
			return false, err
		}
		tail = t
	}
	rest := head
	switch {
	case head == ancestry.NullLineage:
		rest = tail
	case tail != ancestry.NullLineage:
		if err := s.tracker.Join(head, tail); err != nil {
			return false, err
		}
	}
	if !s.cfg.RecordFullARG {
		return true, nil
	}
	for _, part := range []ancestry.LineageID{rest, tract} {
		node, err := s.emitNode(s.time, s.tracker.Population(part), tables.NodeIsGeneConversion)
		if err != nil {
			return false, err
		}
		if err := s.tracker.Reparent(part, node, s.addEdge); err != nil {
			return false, err
		}
	}
	return true, s.flushEdges()
}

// migrate moves one lineage from its population to dest, recording the
// move when migrations or a full ARG are kept.
func (s *Simulator) migrate(id ancestry.LineageID, dest int) error {
	source := s.tracker.Population(id)
	if err := s.tracker.Move(id, dest); err != nil {
		return err
	}
	if s.migSink != nil {
		for _, seg := range s.tracker.Segments(id) {
			if err := s.migSink.EmitMigration(seg.Left, seg.Right, seg.Node, source, dest, s.time); err != nil {
				return simerr.FromPersistence(err)
			}
		}
	}
	if s.cfg.RecordFullARG {
		node, err := s.emitNode(s.time, dest, tables.NodeIsMigrant)
		if err != nil {
			return err
		}
		if err := s.tracker.Reparent(id, node, s.addEdge); err != nil {
			return err
		}
		return s.flushEdges()
	}
	return nil
}

// expo draws an exponential waiting time for rate, or +Inf when the rate is
// not positive.
func (s *Simulator) expo(rate float64) float64 {
	if !(rate > 0) {
		return math.Inf(1)
	}
	return s.rng.ExpFloat64() / rate
}

// uniformOpen draws from (0, 1).
func (s *Simulator) uniformOpen() float64 {
	for {
		if u := s.rng.Float64(); u > 0 {
			return u
		}
	}
}

// pickPair draws two distinct indices from [0, n).
func (s *Simulator) pickPair(n int) (int, int) {
	a := s.rng.Intn(n)
	b := s.rng.Intn(n - 1)
	if b >= a {
		b++
	}
	return a, b
}

func (s *Simulator) MassMigrate(source, dest int, proportion float64) error {
	for label := 0; label < s.tracker.NumLabels(); label++ {
		for _, id := range s.tracker.Lineages(source, label) {
			if s.rng.Float64() < proportion {
				if err := s.migrate(id, dest); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Simulator) SimpleBottleneck(population int, proportion float64) error {
	if s.current.kind() == ModelDTWF {
		return simerr.Errorf(simerr.ErrDTWFUnsupportedBottleneck, "simple bottleneck at %g", s.time)
	}
	for label := 0; label < s.tracker.NumLabels(); label++ {
		var chosen []ancestry.LineageID
		for _, id := range s.tracker.Lineages(population, label) {
			if s.rng.Float64() < proportion {
				chosen = append(chosen, id)
			}
		}
		if len(chosen) >= 2 {
			if _, err := s.merge(chosen, population, label); err != nil {
				return err
			}
		}
	}
	return nil
}

// InstantaneousBottleneck runs a Kingman coalescent for strength time units
// among the lineages of population and merges each resulting group at once.
func (s *Simulator) InstantaneousBottleneck(population int, strength float64) error {
	if s.current.kind() == ModelDTWF {
		return simerr.Errorf(simerr.ErrDTWFUnsupportedBottleneck, "instantaneous bottleneck at %g", s.time)
	}
	for label := 0; label < s.tracker.NumLabels(); label++ {
		ids := s.tracker.Lineages(population, label)
		groups := make([][]ancestry.LineageID, len(ids))
		for i, id := range ids {
			groups[i] = []ancestry.LineageID{id}
		}
		elapsed := 0.0
		for len(groups) > 1 {
			g := float64(len(groups))
			elapsed += s.expo(g * (g - 1) / 2)
			if elapsed > strength {
				break
			}
			a, b := s.pickPair(len(groups))
			groups[a] = append(groups[a], groups[b]...)
			groups[b] = groups[len(groups)-1]
			groups = groups[:len(groups)-1]
		}
		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			if _, err := s.merge(group, population, label); err != nil {
				return err
			}
		}
	}
	return nil
}

// Census gives every segment a node at the current time so the graph shows
// which lineages existed then.
func (s *Simulator) Census() error {
	for _, id := range s.tracker.All() {
		population := s.tracker.Population(id)
		err := s.tracker.ReplaceNodes(id, func(seg ancestry.Segment) (tables.NodeID, error) {
			if s.nodeTimes[seg.Node] >= s.time {
				return seg.Node, nil
			}
			node, err := s.emitNode(s.time, population, tables.NodeIsCensus)
			if err != nil {
				return tables.NullNode, err
			}
			s.addEdge(seg.Left, seg.Right, node, seg.Node)
			return node, nil
		})
		if err != nil {
			return err
		}
	}
	return s.flushEdges()
}
