package demography

import (
	"fmt"
	"math"

	"coalsim/internal/simerr"
)

// Event is one scheduled change to the demographic state.
type Event interface {
	EventTime() float64
	validate(numPopulations int) error
	String() string
}

// AllPopulations selects every population in events that accept it.
const AllPopulations = -1

// PopulationParametersChange resets the size and/or growth rate of one
// population, or of all when Population is AllPopulations. A nil InitialSize
// keeps the size reached at the event time.
type PopulationParametersChange struct {
	Time        float64
	Population  int
	InitialSize *float64
	GrowthRate  *float64
}

func (e PopulationParametersChange) EventTime() float64 { return e.Time }

func (e PopulationParametersChange) validate(n int) error {
	if e.Population != AllPopulations && (e.Population < 0 || e.Population >= n) {
		return simerr.Errorf(simerr.ErrPopulationOutOfBounds, "population parameters change for %d", e.Population)
	}
	if e.InitialSize == nil && e.GrowthRate == nil {
		return simerr.Errorf(simerr.ErrBadParamValue, "population parameters change sets nothing")
	}
	if e.InitialSize != nil && !(*e.InitialSize > 0) {
		return simerr.Errorf(simerr.ErrBadPopulationSize, "initial size %g", *e.InitialSize)
	}
	if e.GrowthRate != nil && (math.IsNaN(*e.GrowthRate) || math.IsInf(*e.GrowthRate, 0)) {
		return simerr.Errorf(simerr.ErrBadParamValue, "growth rate %g", *e.GrowthRate)
	}
	return nil
}

func (e PopulationParametersChange) String() string {
	s := fmt.Sprintf("Population parameter change for %d:", e.Population)
	if e.InitialSize != nil {
		s += fmt.Sprintf(" initial_size -> %g", *e.InitialSize)
	}
	if e.GrowthRate != nil {
		s += fmt.Sprintf(" growth_rate -> %g", *e.GrowthRate)
	}
	return s
}

// MigrationRateChange sets m[Source][Dest], or every off-diagonal entry when
// both are AllPopulations.
type MigrationRateChange struct {
	Time   float64
	Rate   float64
	Source int
	Dest   int
}

func (e MigrationRateChange) EventTime() float64 { return e.Time }

func (e MigrationRateChange) global() bool {
	return e.Source == AllPopulations && e.Dest == AllPopulations
}

func (e MigrationRateChange) validate(n int) error {
	if !(e.Rate >= 0) || math.IsInf(e.Rate, 0) {
		return simerr.Errorf(simerr.ErrBadParamValue, "migration rate %g", e.Rate)
	}
	if e.global() {
		return nil
	}
	if e.Source < 0 || e.Source >= n || e.Dest < 0 || e.Dest >= n {
		return simerr.Errorf(simerr.ErrBadMigrationMatrixIndex, "index (%d, %d)", e.Source, e.Dest)
	}
	if e.Source == e.Dest {
		return simerr.Errorf(simerr.ErrDiagonalMigrationMatrixIndex, "index (%d, %d)", e.Source, e.Dest)
	}
	return nil
}

func (e MigrationRateChange) String() string {
	if e.global() {
		return fmt.Sprintf("Migration rate change to %g everywhere", e.Rate)
	}
	return fmt.Sprintf("Migration rate change for (%d, %d) to %g", e.Source, e.Dest, e.Rate)
}

// MassMigration moves each lineage in Source to Dest with probability
// Proportion, backwards in time.
type MassMigration struct {
	Time       float64
	Source     int
	Dest       int
	Proportion float64
}

func (e MassMigration) EventTime() float64 { return e.Time }

func (e MassMigration) validate(n int) error {
	if e.Source < 0 || e.Source >= n || e.Dest < 0 || e.Dest >= n {
		return simerr.Errorf(simerr.ErrPopulationOutOfBounds, "mass migration %d -> %d", e.Source, e.Dest)
	}
	if e.Source == e.Dest {
		return simerr.Errorf(simerr.ErrSourceDestEqual, "mass migration %d -> %d", e.Source, e.Dest)
	}
	return checkProportion(e.Proportion)
}

func (e MassMigration) String() string {
	return fmt.Sprintf("Mass migration: lineages moved with probability %g backwards in time with source %d & dest %d",
		e.Proportion, e.Source, e.Dest)
}

// SimpleBottleneck merges each lineage of a population into a single
// ancestor with probability Proportion.
type SimpleBottleneck struct {
	Time       float64
	Population int
	Proportion float64
}

func (e SimpleBottleneck) EventTime() float64 { return e.Time }

func (e SimpleBottleneck) validate(n int) error {
	if e.Population < 0 || e.Population >= n {
		return simerr.Errorf(simerr.ErrPopulationOutOfBounds, "simple bottleneck in %d", e.Population)
	}
	return checkProportion(e.Proportion)
}

func (e SimpleBottleneck) String() string {
	return fmt.Sprintf("Simple bottleneck: lineages in population %d coalesce with probability %g", e.Population, e.Proportion)
}

// InstantaneousBottleneck collapses a population by running Strength units of
// coalescent time at a single instant.
type InstantaneousBottleneck struct {
	Time       float64
	Population int
	Strength   float64
}

func (e InstantaneousBottleneck) EventTime() float64 { return e.Time }

func (e InstantaneousBottleneck) validate(n int) error {
	if e.Population < 0 || e.Population >= n {
		return simerr.Errorf(simerr.ErrPopulationOutOfBounds, "instantaneous bottleneck in %d", e.Population)
	}
	if !(e.Strength >= 0) || math.IsInf(e.Strength, 0) {
		return simerr.Errorf(simerr.ErrBadParamValue, "bottleneck strength %g", e.Strength)
	}
	return nil
}

func (e InstantaneousBottleneck) String() string {
	return fmt.Sprintf("Instantaneous bottleneck in population %d: equivalent to %g generations of the coalescent",
		e.Population, e.Strength)
}

// CensusEvent records a node on every extant lineage.
type CensusEvent struct {
	Time float64
}

func (e CensusEvent) EventTime() float64   { return e.Time }
func (e CensusEvent) validate(_ int) error { return nil }
func (e CensusEvent) String() string       { return "Census event" }

func checkProportion(p float64) error {
	if !(p >= 0 && p <= 1) {
		return simerr.Errorf(simerr.ErrBadProportion, "proportion %g", p)
	}
	return nil
}

// Float returns a pointer to v, for optional event fields.
func Float(v float64) *float64 { return &v }
