// Package demography describes populations, migration between them and the
// schedule of demographic events. Sizes are evaluated lazily from the size
// and growth rate in effect since the last change.
package demography

import (
	"fmt"
	"math"

	"coalsim/internal/simerr"
)

// Population is the size history of one deme since StartTime: the size at
// time t is InitialSize * exp(-GrowthRate * (t - StartTime)).
type Population struct {
	Name        string
	InitialSize float64
	GrowthRate  float64
	StartTime   float64
}

func (p Population) SizeAt(t float64) float64 {
	if p.GrowthRate == 0 {
		return p.InitialSize
	}
	return p.InitialSize * math.Exp(-p.GrowthRate*(t-p.StartTime))
}

type Model struct {
	Populations []Population
	// Migration[j][k] is the rate at which lineages in j move to k, backwards
	// in time. A nil matrix means no migration.
	Migration [][]float64
	Events    []Event
}

// Single returns a one-population model of constant size.
func Single(size float64) Model {
	return Model{Populations: []Population{{InitialSize: size}}}
}

func (m Model) NumPopulations() int { return len(m.Populations) }

// Validate checks the model against a run starting at startTime. Event
// times must be strictly increasing.
func (m Model) Validate(startTime float64) error {
	n := len(m.Populations)
	if n == 0 {
		return simerr.Errorf(simerr.ErrBadPopulationConfiguration, "no populations")
	}
	for j, p := range m.Populations {
		if !(p.InitialSize > 0) || math.IsInf(p.InitialSize, 0) {
			return simerr.Errorf(simerr.ErrBadPopulationSize, "population %d size %g", j, p.InitialSize)
		}
		if math.IsNaN(p.GrowthRate) || math.IsInf(p.GrowthRate, 0) {
			return simerr.Errorf(simerr.ErrBadParamValue, "population %d growth rate %g", j, p.GrowthRate)
		}
	}
	if err := validateMatrix(m.Migration, n); err != nil {
		return err
	}
	last := math.Inf(-1)
	for i, e := range m.Events {
		t := e.EventTime()
		if math.IsNaN(t) || t < 0 || t < startTime || math.IsInf(t, 0) {
			return simerr.Errorf(simerr.ErrBadDemographicEventTime, "event %d at %g", i, t)
		}
		if t <= last {
			return simerr.Errorf(simerr.ErrUnsortedDemographicEvents, "event %d at %g follows %g", i, t, last)
		}
		last = t
		if err := e.validate(n); err != nil {
			return err
		}
	}
	return nil
}

func validateMatrix(mig [][]float64, n int) error {
	if mig == nil {
		return nil
	}
	if len(mig) != n {
		return simerr.Errorf(simerr.ErrBadMigrationMatrix, "%d rows for %d populations", len(mig), n)
	}
	for j, row := range mig {
		if len(row) != n {
			return simerr.Errorf(simerr.ErrBadMigrationMatrix, "row %d has %d entries", j, len(row))
		}
		for k, rate := range row {
			if j == k {
				if rate != 0 {
					return simerr.Errorf(simerr.ErrDiagonalMigrationMatrixIndex, "m[%d][%d] = %g", j, k, rate)
				}
				continue
			}
			if !(rate >= 0) || math.IsInf(rate, 0) {
				return simerr.Errorf(simerr.ErrBadMigrationMatrix, "m[%d][%d] = %g", j, k, rate)
			}
		}
	}
	return nil
}

// Mover performs the parts of an event that touch lineages.
type Mover interface {
	MassMigrate(source, dest int, proportion float64) error
	SimpleBottleneck(population int, proportion float64) error
	InstantaneousBottleneck(population int, strength float64) error
	Census() error
}

// State is the mutable demographic state of one run.
type State struct {
	populations []Population
	migration   [][]float64
	events      []Event
	next        int
	lastTime    float64
	applied     bool
}

// NewState copies the model so runs never share mutable state.
func NewState(m Model, startTime float64) *State {
	n := len(m.Populations)
	s := &State{
		populations: make([]Population, n),
		migration:   make([][]float64, n),
		events:      append([]Event(nil), m.Events...),
	}
	for j, p := range m.Populations {
		p.StartTime = startTime
		s.populations[j] = p
		s.migration[j] = make([]float64, n)
		if m.Migration != nil {
			copy(s.migration[j], m.Migration[j])
		}
	}
	return s
}

func (s *State) NumPopulations() int { return len(s.populations) }

func (s *State) SizeAt(population int, t float64) float64 {
	return s.populations[population].SizeAt(t)
}

func (s *State) Population(j int) Population { return s.populations[j] }

func (s *State) MigrationRate(source, dest int) float64 {
	return s.migration[source][dest]
}

// MigrationMatrix returns a copy of the current matrix.
func (s *State) MigrationMatrix() [][]float64 {
	out := make([][]float64, len(s.migration))
	for j, row := range s.migration {
		out[j] = append([]float64(nil), row...)
	}
	return out
}

// NextEventTime is the time of the next pending event, or +Inf.
func (s *State) NextEventTime() float64 {
	if s.next >= len(s.events) {
		return math.Inf(1)
	}
	return s.events[s.next].EventTime()
}

// NextEvent returns the next pending event without consuming it.
func (s *State) NextEvent() (Event, bool) {
	if s.next >= len(s.events) {
		return nil, false
	}
	return s.events[s.next], true
}

func (s *State) Pending() int { return len(s.events) - s.next }

// ApplyNext applies the next pending event at its own time.
func (s *State) ApplyNext(mover Mover) (Event, error) {
	e, ok := s.NextEvent()
	if !ok {
		return nil, simerr.Errorf(simerr.ErrBadState, "no pending demographic event")
	}
	if err := s.Apply(e, e.EventTime(), mover); err != nil {
		return nil, err
	}
	s.next++
	return e, nil
}

// Apply applies one event at time t, which must be strictly later than the
// previously applied event.
func (s *State) Apply(e Event, t float64, mover Mover) error {
	if s.applied && t <= s.lastTime {
		return simerr.Errorf(simerr.ErrUnsortedDemographicEvents, "event at %g after event at %g", t, s.lastTime)
	}
	if err := e.validate(len(s.populations)); err != nil {
		return err
	}
	switch ev := e.(type) {
	case PopulationParametersChange:
		for j := range s.populations {
			if ev.Population != AllPopulations && ev.Population != j {
				continue
			}
			p := &s.populations[j]
			if ev.InitialSize != nil {
				p.InitialSize = *ev.InitialSize
			} else {
				p.InitialSize = p.SizeAt(t)
			}
			if ev.GrowthRate != nil {
				p.GrowthRate = *ev.GrowthRate
			}
			p.StartTime = t
		}
	case MigrationRateChange:
		if ev.global() {
			for j := range s.migration {
				for k := range s.migration[j] {
					if j != k {
						s.migration[j][k] = ev.Rate
					}
				}
			}
		} else {
			s.migration[ev.Source][ev.Dest] = ev.Rate
		}
	case MassMigration:
		if err := mover.MassMigrate(ev.Source, ev.Dest, ev.Proportion); err != nil {
			return err
		}
	case SimpleBottleneck:
		if err := mover.SimpleBottleneck(ev.Population, ev.Proportion); err != nil {
			return err
		}
	case InstantaneousBottleneck:
		if err := mover.InstantaneousBottleneck(ev.Population, ev.Strength); err != nil {
			return err
		}
	case CensusEvent:
		if err := mover.Census(); err != nil {
			return err
		}
	default:
		return simerr.Errorf(simerr.ErrBadParamValue, "unknown demographic event %T", e)
	}
	s.lastTime = t
	s.applied = true
	return nil
}

func (s *State) String() string {
	return fmt.Sprintf("demography(populations=%d, pending events=%d)", len(s.populations), s.Pending())
}
