package sim

import (
	"math"

	"coalsim/internal/ancestry"
)

// hudson is the continuous-time coalescent with recombination, gene
// conversion and migration. The smc and smc_prime variants reject common
// ancestor events between lineages whose extents do not overlap (smc) or do
// not touch (smc_prime). With a merger process set, common ancestor events
// follow a multiple merger coalescent instead of pairwise coalescence.
type hudson struct {
	s       *Simulator
	variant ModelKind
	merger  mergerProcess
}

func (h *hudson) kind() ModelKind { return h.variant }
func (h *hudson) begin() error    { return nil }
func (h *hudson) finish() error   { return nil }
func (h *hudson) complete() bool  { return false }

func (h *hudson) caRate(k int) float64 {
	if h.merger != nil {
		return h.merger.rate(k)
	}
	return pairs(k)
}

// timescale gives the generations per unit of coalescent time as
// scale*N^exponent.
func (h *hudson) timescale() (float64, float64) {
	if h.merger != nil {
		return h.merger.timescale()
	}
	return float64(h.s.cfg.Ploidy), 1
}

// commonAncestorWait is the time until the next common ancestor event in
// population j with k lineages, measured from the current clock. Growth
// makes the rate time dependent, so the exponential draw is transformed
// through the integrated intensity.
func (h *hudson) commonAncestorWait(j, k int) (float64, float64) {
	if k < 2 {
		return math.Inf(1), 0
	}
	s := h.s
	lambda := h.caRate(k)
	if !(lambda > 0) {
		return math.Inf(1), 0
	}
	u := s.rng.ExpFloat64() / lambda
	pop := s.demo.Population(j)
	if pop.InitialSize <= 0 {
		return math.Inf(1), lambda
	}
	scale, exponent := h.timescale()
	size := scale * math.Pow(pop.InitialSize, exponent)
	growth := exponent * pop.GrowthRate
	if growth == 0 {
		return size * u, lambda
	}
	dt := s.time - pop.StartTime
	z := 1 + growth*size*math.Exp(-growth*dt)*u
	if z <= 0 {
		return math.Inf(1), lambda
	}
	return math.Log(z) / growth, lambda
}

func (h *hudson) nextEvent() (proposal, error) {
	s := h.s
	best := noEvent()
	consider := func(p proposal) {
		if p.time < best.time {
			best = p
		}
	}

	mass := s.tracker.TotalMass(0)
	if w := s.expo(mass); !math.IsInf(w, 1) {
		consider(proposal{time: s.time + w, kind: EventRecombination, population: -1, dest: -1, rate: mass})
	}
	if gc := s.cfg.GeneConversionRate * s.tracker.TotalSpan(0); gc > 0 {
		if w := s.expo(gc); !math.IsInf(w, 1) {
			consider(proposal{time: s.time + w, kind: EventGeneConversion, population: -1, dest: -1, rate: gc})
		}
	}
	n := s.demo.NumPopulations()
	for j := 0; j < n; j++ {
		k := s.tracker.Count(j, 0)
		if w, rate := h.commonAncestorWait(j, k); !math.IsInf(w, 1) {
			consider(proposal{time: s.time + w, kind: EventCommonAncestor, population: j, dest: -1, rate: rate})
		}
	}
	for j := 0; j < n; j++ {
		k := s.tracker.Count(j, 0)
		if k == 0 {
			continue
		}
		for d := 0; d < n; d++ {
			if d == j {
				continue
			}
			rate := float64(k) * s.demo.MigrationRate(j, d)
			if w := s.expo(rate); !math.IsInf(w, 1) {
				consider(proposal{time: s.time + w, kind: EventMigration, population: j, dest: d, rate: rate})
			}
		}
	}
	return best, nil
}

func (h *hudson) applyEvent(p proposal) error {
	s := h.s
	switch p.kind {
	case EventRecombination:
		return h.recombinationEvent(p)
	case EventGeneConversion:
		return h.geneConversionEvent(p)
	case EventCommonAncestor:
		return h.commonAncestorEvent(p)
	case EventMigration:
		lineages := s.tracker.Count(p.population, 0)
		id := s.tracker.Pick(p.population, 0, s.rng.Intn(lineages))
		if err := s.migrate(id, p.dest); err != nil {
			return err
		}
		s.counters.Migration[p.population][p.dest]++
		s.observe(EventInfo{Kind: EventMigration, Time: s.time, Population: p.population, Dest: p.dest,
			Rate: p.rate, Lineages: lineages})
		return nil
	default:
		return errUnexpectedEvent(h.variant, p.kind)
	}
}

func (h *hudson) recombinationEvent(p proposal) error {
	s := h.s
	id, err := s.tracker.PickByMass(0, s.rng.Float64())
	if err != nil {
		return err
	}
	population := s.tracker.Population(id)
	lineages := s.tracker.PopulationCount(population)
	left, right := s.tracker.Extent(id)
	x, err := s.cfg.RateMap.Breakpoint(s.rng.Float64(), left, right)
	if err != nil {
		return err
	}
	if _, err := s.recombine(id, x); err != nil {
		return err
	}
	s.counters.Recombination++
	s.observe(EventInfo{Kind: EventRecombination, Time: s.time, Population: population, Dest: -1,
		Rate: p.rate, Lineages: lineages})
	return nil
}

// geneConversionEvent copies a tract of a lineage, starting inside its
// extent, from a different ancestor than the rest of the lineage.
func (h *hudson) geneConversionEvent(p proposal) error {
	s := h.s
	id, err := s.tracker.PickBySpan(0, s.rng.Float64())
	if err != nil {
		return err
	}
	population := s.tracker.Population(id)
	lineages := s.tracker.PopulationCount(population)
	left, right := s.tracker.Extent(id)
	start := left + s.rng.Float64()*(right-left)
	var length float64
	if s.cfg.RateMap.Discrete() {
		start = math.Floor(start)
		length = h.tractSites()
	} else {
		length = s.rng.ExpFloat64() * s.cfg.GeneConversionTrackLength
	}
	converted, err := s.convert(id, start, start+length)
	if err != nil || !converted {
		return err
	}
	s.counters.GeneConversion++
	s.observe(EventInfo{Kind: EventGeneConversion, Time: s.time, Population: population, Dest: -1,
		Rate: p.rate, Lineages: lineages})
	return nil
}

// tractSites draws a geometric tract length in sites with the configured
// mean.
func (h *hudson) tractSites() float64 {
	mean := h.s.cfg.GeneConversionTrackLength
	if mean <= 1 {
		return 1
	}
	return 1 + math.Floor(math.Log(h.s.uniformOpen())/math.Log1p(-1/mean))
}

func (h *hudson) commonAncestorEvent(p proposal) error {
	s := h.s
	k := s.tracker.Count(p.population, 0)
	if h.merger != nil {
		return h.multipleMergerEvent(p, k)
	}
	i, j := s.pickPair(k)
	a := s.tracker.Pick(p.population, 0, i)
	b := s.tracker.Pick(p.population, 0, j)
	if (h.variant == ModelSMC || h.variant == ModelSMCPrime) && !h.compatible(a, b) {
		s.counters.RejectedCommonAncestor++
		s.observe(EventInfo{Kind: EventRejectedCommonAncestor, Time: s.time, Population: p.population, Dest: -1,
			Rate: p.rate, Lineages: k})
		return nil
	}
	if _, err := s.merge([]ancestry.LineageID{a, b}, p.population, 0); err != nil {
		return err
	}
	s.counters.CommonAncestor++
	s.observe(EventInfo{Kind: EventCommonAncestor, Time: s.time, Population: p.population, Dest: -1,
		Rate: p.rate, Lineages: k})
	return nil
}

// multipleMergerEvent merges every group of two or more lineages the merger
// process draws. Lineages are resolved before the first merge, as merging
// reorders the population.
func (h *hudson) multipleMergerEvent(p proposal, k int) error {
	s := h.s
	var groups [][]ancestry.LineageID
	for _, g := range h.merger.groups(s.rng, k) {
		if len(g) < 2 {
			continue
		}
		ids := make([]ancestry.LineageID, len(g))
		for i, idx := range g {
			ids[i] = s.tracker.Pick(p.population, 0, idx)
		}
		groups = append(groups, ids)
	}
	if len(groups) == 0 {
		s.counters.RejectedCommonAncestor++
		s.observe(EventInfo{Kind: EventRejectedCommonAncestor, Time: s.time, Population: p.population, Dest: -1,
			Rate: p.rate, Lineages: k})
		return nil
	}
	for _, ids := range groups {
		if _, err := s.merge(ids, p.population, 0); err != nil {
			return err
		}
		s.counters.CommonAncestor++
		s.observe(EventInfo{Kind: EventCommonAncestor, Time: s.time, Population: p.population, Dest: -1,
			Rate: p.rate, Lineages: k})
	}
	return nil
}

// compatible reports whether the SMC variant allows a and b to coalesce.
func (h *hudson) compatible(a, b ancestry.LineageID) bool {
	al, ar := h.s.tracker.Extent(a)
	bl, br := h.s.tracker.Extent(b)
	if h.variant == ModelSMCPrime {
		return ar >= bl && br >= al
	}
	return ar > bl && br > al
}
