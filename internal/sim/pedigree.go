package sim

import (
	"sort"

	"coalsim/internal/ancestry"
	"coalsim/internal/simerr"
)

// pedigreePloidy is the number of genome copies each pedigree individual
// carries; copy c is inherited from Parents[c].
const pedigreePloidy = 2

// pedigreeClimb moves lineages up a fixed pedigree. Individuals are visited
// oldest last; at each visit the lineages held by one genome copy coalesce
// and the result passes to the matching parent, split between the parent's
// copies by recombination. Lineages reaching founders stay where they are
// for the next model.
type pedigreeClimb struct {
	s     *Simulator
	ped   *Pedigree
	index map[int]int
	held  map[int]*[pedigreePloidy][]ancestry.LineageID
	order []int
	next  int
}

func newPedigreeClimb(s *Simulator, ped *Pedigree) *pedigreeClimb {
	return &pedigreeClimb{s: s, ped: ped}
}

func (c *pedigreeClimb) kind() ModelKind { return ModelPedigree }
func (c *pedigreeClimb) finish() error   { return nil }

func (c *pedigreeClimb) begin() error {
	s := c.s
	if c.ped == nil {
		return simerr.Errorf(simerr.ErrBadModel, "pedigree model without a pedigree")
	}
	c.index = make(map[int]int, len(c.ped.Individuals))
	c.held = make(map[int]*[pedigreePloidy][]ancestry.LineageID)
	c.order = make([]int, len(c.ped.Individuals))
	for i, ind := range c.ped.Individuals {
		c.index[ind.ID] = i
		c.order[i] = i
	}
	sort.SliceStable(c.order, func(a, b int) bool {
		return c.ped.Individuals[c.order[a]].Time < c.ped.Individuals[c.order[b]].Time
	})

	k := 0
	for i, ind := range c.ped.Individuals {
		if !ind.Sample {
			continue
		}
		copies := &[pedigreePloidy][]ancestry.LineageID{}
		for j := 0; j < pedigreePloidy; j++ {
			genome := pedigreePloidy*k + j
			if genome >= len(s.sampleLineages) || s.sampleLineages[genome] == ancestry.NullLineage {
				return simerr.Errorf(simerr.ErrBadPedigreeNumSamples, "no sample genome %d for individual %d", genome, ind.ID)
			}
			copies[j] = append(copies[j], s.sampleLineages[genome])
		}
		c.held[i] = copies
		k++
	}
	s.logger.Debug("pedigree climb started", "individuals", len(c.ped.Individuals), "samples", k)
	return nil
}

func (c *pedigreeClimb) complete() bool {
	return c.next >= len(c.order) || c.s.tracker.NumLineages() == 0
}

// nextEvent proposes the visit of the next individual holding lineages.
func (c *pedigreeClimb) nextEvent() (proposal, error) {
	for c.next < len(c.order) {
		if _, ok := c.held[c.order[c.next]]; ok {
			ind := c.ped.Individuals[c.order[c.next]]
			return proposal{time: ind.Time, kind: EventPedigree, population: 0, dest: -1}, nil
		}
		c.next++
	}
	return noEvent(), nil
}

func (c *pedigreeClimb) applyEvent(p proposal) error {
	if p.kind != EventPedigree {
		return errUnexpectedEvent(ModelPedigree, p.kind)
	}
	s := c.s
	i := c.order[c.next]
	c.next++
	ind := c.ped.Individuals[i]
	copies := c.held[i]
	delete(c.held, i)

	lineages := 0
	for j := 0; j < pedigreePloidy; j++ {
		ids := copies[j]
		lineages += len(ids)
		if len(ids) >= 2 {
			out, err := s.merge(ids, 0, 0)
			if err != nil {
				return err
			}
			s.counters.CommonAncestor++
			ids = nil
			if out != ancestry.NullLineage {
				ids = []ancestry.LineageID{out}
			}
		}
		parent := ind.Parents[j]
		if parent == -1 {
			continue
		}
		target := c.index[parent]
		for _, id := range ids {
			parentCopies, ok := c.held[target]
			if !ok {
				parentCopies = &[pedigreePloidy][]ancestry.LineageID{}
				c.held[target] = parentCopies
			}
			err := s.segregate(id, func(lin ancestry.LineageID, genome int) {
				parentCopies[genome] = append(parentCopies[genome], lin)
			})
			if err != nil {
				return err
			}
		}
	}
	s.counters.PedigreeEvents++
	s.observe(EventInfo{Kind: EventPedigree, Time: s.time, Population: 0, Dest: -1, Lineages: lineages})
	return nil
}
