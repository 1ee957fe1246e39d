package sim

import (
	"math"
	"sort"

	"coalsim/internal/ancestry"
	"coalsim/internal/simerr"
)

// dtwf is the discrete-time Wright-Fisher model. Every generation each
// lineage may migrate, then picks a parent individual uniformly from its
// population and is split between the parent's two genomes by recombination.
// Lineages landing on the same parental genome coalesce.
type dtwf struct {
	s *Simulator
}

func (d *dtwf) kind() ModelKind { return ModelDTWF }
func (d *dtwf) begin() error    { return nil }
func (d *dtwf) finish() error   { return nil }
func (d *dtwf) complete() bool  { return false }

func (d *dtwf) nextEvent() (proposal, error) {
	return proposal{time: math.Floor(d.s.time) + 1, kind: EventGeneration, population: -1, dest: -1}, nil
}

func (d *dtwf) applyEvent(p proposal) error {
	if p.kind != EventGeneration {
		return errUnexpectedEvent(ModelDTWF, p.kind)
	}
	s := d.s
	n := s.demo.NumPopulations()
	sizes := make([]int, n)
	for j := 0; j < n; j++ {
		sizes[j] = int(math.Round(s.demo.SizeAt(j, s.time)))
	}
	if err := d.migrate(); err != nil {
		return err
	}
	for j := 0; j < n; j++ {
		lineages := s.tracker.Lineages(j, 0)
		if len(lineages) == 0 {
			continue
		}
		if sizes[j] <= 0 {
			return simerr.Errorf(simerr.ErrDTWFZeroPopulationSize, "population %d at generation %g", j, s.time)
		}
		parents := make(map[int]*[2][]ancestry.LineageID)
		for _, id := range lineages {
			parent := s.rng.Intn(sizes[j])
			genomes, ok := parents[parent]
			if !ok {
				genomes = &[2][]ancestry.LineageID{}
				parents[parent] = genomes
			}
			err := s.segregate(id, func(lin ancestry.LineageID, genome int) {
				genomes[genome] = append(genomes[genome], lin)
			})
			if err != nil {
				return err
			}
		}
		order := make([]int, 0, len(parents))
		for parent := range parents {
			order = append(order, parent)
		}
		sort.Ints(order)
		for _, parent := range order {
			for _, genome := range parents[parent] {
				if len(genome) < 2 {
					continue
				}
				if _, err := s.merge(genome, j, 0); err != nil {
					return err
				}
				s.counters.CommonAncestor++
			}
		}
	}
	s.counters.Generations++
	s.observe(EventInfo{Kind: EventGeneration, Time: s.time, Population: -1, Dest: -1, Lineages: s.tracker.NumLineages()})
	return nil
}

// migrate moves each lineage to at most one other population, using the
// migration matrix rows as per-generation probabilities.
func (d *dtwf) migrate() error {
	s := d.s
	n := s.demo.NumPopulations()
	type move struct {
		id   ancestry.LineageID
		dest int
	}
	var moves []move
	for j := 0; j < n; j++ {
		total := 0.0
		for k := 0; k < n; k++ {
			if k != j {
				total += s.demo.MigrationRate(j, k)
			}
		}
		if total > 1 {
			return simerr.Errorf(simerr.ErrBadMigrationMatrix, "row %d sums to %g, above one", j, total)
		}
		if total == 0 {
			continue
		}
		for _, id := range s.tracker.Lineages(j, 0) {
			u := s.rng.Float64()
			for k := 0; k < n; k++ {
				if k == j {
					continue
				}
				u -= s.demo.MigrationRate(j, k)
				if u < 0 {
					moves = append(moves, move{id, k})
					break
				}
			}
		}
	}
	for _, m := range moves {
		source := s.tracker.Population(m.id)
		if err := s.migrate(m.id, m.dest); err != nil {
			return err
		}
		s.counters.Migration[source][m.dest]++
	}
	return nil
}

// segregate distributes the material of a lineage over the two genomes of
// its parent. Crossovers are placed by walking along the recombination map
// in exponential steps of mass, switching genome at each one.
func (s *Simulator) segregate(id ancestry.LineageID, assign func(ancestry.LineageID, int)) error {
	rm := s.cfg.RateMap
	genome := s.rng.Intn(2)
	cursor, _ := s.tracker.Extent(id)
	for {
		left, right := s.tracker.Extent(id)
		x := rm.MassToPosition(rm.PositionToMass(cursor) + s.rng.ExpFloat64())
		if rm.Discrete() {
			x = math.Ceil(x)
		}
		if x >= right {
			assign(id, genome)
			return nil
		}
		cursor = x
		if x <= left {
			genome ^= 1
			continue
		}
		rest, err := s.recombine(id, x)
		if err != nil {
			return err
		}
		s.counters.Recombination++
		assign(id, genome)
		id = rest
		genome ^= 1
	}
}
