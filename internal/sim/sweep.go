package sim

import (
	"math"
	"math/rand"

	"coalsim/internal/ancestry"
	"coalsim/internal/simerr"
)

// Lineages linked to the beneficial allele carry labelBeneficial during a
// sweep; all others stay on labelWildType.
const (
	labelWildType   = 0
	labelBeneficial = 1
)

const maxTrajectorySteps = 1 << 22

// GenicSelectionTrajectory simulates the frequency of a beneficial allele
// under genic selection of strength alpha, conditioned on fixation, going
// back in time from end until it drops to start.
func GenicSelectionTrajectory(rng *rand.Rand, start, end, alpha, dt float64) ([]float64, error) {
	forward := func(f float64) float64 {
		ux := alpha * f * (1 - f) / math.Tanh(alpha*f)
		sign := 1.0
		if rng.Float64() < 0.5 {
			sign = -1
		}
		return f + ux*dt + sign*math.Sqrt(f*(1-f)*dt)
	}
	x := end
	traj := []float64{x}
	for x > start {
		if len(traj) >= maxTrajectorySteps {
			return nil, simerr.Errorf(simerr.ErrIntegrationFailed, "trajectory from %g did not reach %g in %d steps", end, start, len(traj))
		}
		x = 1 - forward(1-x)
		if x > end {
			x = end
		}
		if x < start {
			x = start
		}
		if math.IsNaN(x) {
			return nil, simerr.Errorf(simerr.ErrIntegrationFailed, "trajectory diverged after %d steps", len(traj))
		}
		traj = append(traj, x)
	}
	return traj, nil
}

// sweep is the structured coalescent of a hard sweep at one position.
// Lineages are split between the beneficial and wild type backgrounds; each
// step of the allele trajectory may carry one coalescence within a
// background or one recombination that moves material between them.
type sweep struct {
	s      *Simulator
	params SweepParams
	traj   []float64
	step   int
}

func newSweep(s *Simulator, params SweepParams) *sweep {
	if params.Trajectory == nil {
		params.Trajectory = GenicSelectionTrajectory
	}
	return &sweep{s: s, params: params}
}

func (w *sweep) kind() ModelKind { return ModelSweep }

func (w *sweep) begin() error {
	s := w.s
	p := w.params
	traj, err := p.Trajectory(s.rng, p.StartFrequency, p.EndFrequency, p.Alpha, p.DT)
	if err != nil {
		return err
	}
	if len(traj) == 0 {
		return simerr.Errorf(simerr.ErrIntegrationFailed, "empty trajectory")
	}
	w.traj = traj
	for _, id := range s.tracker.Lineages(0, labelWildType) {
		if s.rng.Float64() < p.EndFrequency {
			if err := s.tracker.SetLabel(id, labelBeneficial); err != nil {
				return err
			}
		}
	}
	s.logger.Debug("sweep started", "time", s.time, "steps", len(traj), "position", p.Position)
	return nil
}

func (w *sweep) complete() bool { return w.step >= len(w.traj) }

func (w *sweep) frequency() float64 {
	if w.step < len(w.traj) {
		return w.traj[w.step]
	}
	return w.traj[len(w.traj)-1]
}

func (w *sweep) sampleLabel() int {
	if w.s.rng.Float64() < w.frequency() {
		return labelBeneficial
	}
	return labelWildType
}

// scale is the number of generations in one unit of trajectory time.
func (w *sweep) scale() float64 {
	return float64(w.s.cfg.Ploidy) * w.s.demo.SizeAt(0, w.s.time)
}

func (w *sweep) nextEvent() (proposal, error) {
	scale := w.scale()
	if !(scale > 0) {
		return noEvent(), nil
	}
	return proposal{time: w.s.time + w.params.DT*scale, kind: EventSweepStep, population: 0, dest: -1}, nil
}

func (w *sweep) applyEvent(p proposal) error {
	if p.kind != EventSweepStep {
		return errUnexpectedEvent(ModelSweep, p.kind)
	}
	s := w.s
	x := w.frequency()
	w.step++
	s.counters.SweepSteps++

	scale := w.scale()
	kB := float64(s.tracker.Count(0, labelBeneficial))
	kb := float64(s.tracker.Count(0, labelWildType))
	rates := [4]float64{
		kB * (kB - 1) / 2 / x,
		kb * (kb - 1) / 2 / (1 - x),
		s.tracker.TotalMass(labelBeneficial) * scale * (1 - x),
		s.tracker.TotalMass(labelWildType) * scale * x,
	}
	total := rates[0] + rates[1] + rates[2] + rates[3]
	s.observe(EventInfo{Kind: EventSweepStep, Time: s.time, Population: 0, Dest: -1, Rate: total,
		Lineages: s.tracker.PopulationCount(0)})
	if !(total > 0) || s.rng.Float64() >= math.Min(total*w.params.DT, 1) {
		return nil
	}
	u := s.rng.Float64() * total
	switch {
	case u < rates[0]:
		return w.coalesce(labelBeneficial, total)
	case u < rates[0]+rates[1]:
		return w.coalesce(labelWildType, total)
	case u < rates[0]+rates[1]+rates[2]:
		return w.recombine(labelBeneficial, total)
	default:
		return w.recombine(labelWildType, total)
	}
}

func (w *sweep) coalesce(label int, rate float64) error {
	s := w.s
	k := s.tracker.Count(0, label)
	if k < 2 {
		return nil
	}
	i, j := s.pickPair(k)
	ids := []ancestry.LineageID{s.tracker.Pick(0, label, i), s.tracker.Pick(0, label, j)}
	if _, err := s.merge(ids, 0, label); err != nil {
		return err
	}
	s.counters.CommonAncestor++
	s.observe(EventInfo{Kind: EventCommonAncestor, Time: s.time, Population: 0, Dest: -1, Rate: rate, Lineages: k})
	return nil
}

// recombine splits a lineage of label and moves the part not linked to the
// selected position to the other background.
func (w *sweep) recombine(label int, rate float64) error {
	s := w.s
	id, err := s.tracker.PickByMass(label, s.rng.Float64())
	if err != nil {
		return err
	}
	left, right := s.tracker.Extent(id)
	x, err := s.cfg.RateMap.Breakpoint(s.rng.Float64(), left, right)
	if err != nil {
		return err
	}
	rest, err := s.recombine(id, x)
	if err != nil {
		return err
	}
	unlinked := rest
	if x <= w.params.Position {
		unlinked = id
	}
	if err := s.tracker.SetLabel(unlinked, 1-label); err != nil {
		return err
	}
	s.counters.Recombination++
	s.observe(EventInfo{Kind: EventRecombination, Time: s.time, Population: 0, Dest: -1, Rate: rate,
		Lineages: s.tracker.PopulationCount(0)})
	return nil
}

// finish returns every lineage to the wild type background.
func (w *sweep) finish() error {
	s := w.s
	for _, id := range s.tracker.Lineages(0, labelBeneficial) {
		if err := s.tracker.SetLabel(id, labelWildType); err != nil {
			return err
		}
	}
	return nil
}
