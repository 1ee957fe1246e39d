// Package ratemap implements the piecewise-constant recombination map. Rates
// are per unit of sequence per generation; "mass" is the integral of the rate
// from the start of the sequence.
package ratemap

import (
	"math"
	"sort"

	"coalsim/internal/intervals"
	"coalsim/internal/simerr"
)

type RateMap struct {
	positions  []float64
	rates      []float64
	cumulative []float64
	discrete   bool
}

// New builds a map over [positions[0], positions[len-1]). rates[i] applies to
// [positions[i], positions[i+1]).
func New(positions, rates []float64, discrete bool) (*RateMap, error) {
	if len(positions) < 2 {
		return nil, simerr.Errorf(simerr.ErrInsufficientIntervals, "got %d positions", len(positions))
	}
	if len(rates) != len(positions)-1 {
		return nil, simerr.Errorf(simerr.ErrBadRecombinationMap, "%d rates for %d positions", len(rates), len(positions))
	}
	if positions[0] != 0 {
		return nil, simerr.Errorf(simerr.ErrIntervalMapStartNonZero, "first position is %g", positions[0])
	}
	for i, p := range positions {
		if p < 0 || math.IsNaN(p) {
			return nil, simerr.Errorf(simerr.ErrNegativeIntervalPosition, "position %d is %g", i, p)
		}
		if math.IsInf(p, 0) {
			return nil, simerr.Errorf(simerr.ErrBadRecombinationMap, "position %d is not finite", i)
		}
		if i > 0 && p <= positions[i-1] {
			return nil, simerr.Errorf(simerr.ErrIntervalPositionsUnsorted, "position %d (%g) <= %g", i, p, positions[i-1])
		}
	}
	m := &RateMap{
		positions:  append([]float64(nil), positions...),
		rates:      append([]float64(nil), rates...),
		cumulative: make([]float64, len(positions)),
		discrete:   discrete,
	}
	for i, r := range rates {
		if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, simerr.Errorf(simerr.ErrBadRecombinationMap, "rate %d is %g", i, r)
		}
		m.cumulative[i+1] = m.cumulative[i] + r*(positions[i+1]-positions[i])
	}
	return m, nil
}

// Uniform returns a single-interval map with a constant rate.
func Uniform(length, rate float64, discrete bool) (*RateMap, error) {
	return New([]float64{0, length}, []float64{rate}, discrete)
}

func (m *RateMap) Positions() []float64 { return append([]float64(nil), m.positions...) }
func (m *RateMap) Rates() []float64     { return append([]float64(nil), m.rates...) }
func (m *RateMap) Discrete() bool       { return m.discrete }
func (m *RateMap) NumIntervals() int    { return len(m.rates) }

func (m *RateMap) SequenceLength() float64 {
	return m.positions[len(m.positions)-1]
}

func (m *RateMap) TotalMass() float64 {
	return m.cumulative[len(m.cumulative)-1]
}

// MeanRate is the total mass divided by the sequence length.
func (m *RateMap) MeanRate() float64 {
	return m.TotalMass() / m.SequenceLength()
}

// PositionToMass integrates the rate over [0, x). x is clamped to the map.
func (m *RateMap) PositionToMass(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= m.SequenceLength() {
		return m.TotalMass()
	}
	i, err := intervals.FindInterval(x, m.positions)
	if err != nil {
		return m.TotalMass()
	}
	return m.cumulative[i] + (x-m.positions[i])*m.rates[i]
}

// MassToPosition inverts PositionToMass. Zero-rate stretches are skipped, so
// the result always lies where the rate is positive.
func (m *RateMap) MassToPosition(mass float64) float64 {
	if mass <= 0 {
		return 0
	}
	if mass >= m.TotalMass() {
		return m.SequenceLength()
	}
	j := sort.Search(len(m.cumulative), func(j int) bool { return m.cumulative[j] > mass })
	i := j - 1
	return m.positions[i] + (mass-m.cumulative[i])/m.rates[i]
}

func (m *RateMap) MassBetween(left, right float64) float64 {
	return m.PositionToMass(right) - m.PositionToMass(left)
}

// recombinableRange is the range of positions over which breakpoints may fall
// for a lineage spanning [left, right). On a discrete genome breakpoints are
// integers strictly inside the span, so the first unit is excluded.
func (m *RateMap) recombinableRange(left, right float64) (float64, float64) {
	if m.discrete {
		left++
	}
	if left > right {
		left = right
	}
	return left, right
}

// LineageMass is the recombination mass available to a lineage spanning
// [left, right).
func (m *RateMap) LineageMass(left, right float64) float64 {
	lo, hi := m.recombinableRange(left, right)
	return m.MassBetween(lo, hi)
}

// Breakpoint maps u in [0, 1) onto a breakpoint strictly inside (left, right),
// weighted by mass. On a discrete genome the result is an integer.
func (m *RateMap) Breakpoint(u, left, right float64) (float64, error) {
	lo, hi := m.recombinableRange(left, right)
	loMass := m.PositionToMass(lo)
	hiMass := m.PositionToMass(hi)
	if hiMass <= loMass {
		return 0, simerr.Errorf(simerr.ErrRecombMapTooCoarse, "no recombination mass in [%g, %g)", left, right)
	}
	x := math.Max(lo, m.MassToPosition(loMass+u*(hiMass-loMass)))
	if m.discrete {
		x = math.Floor(x)
	}
	if x <= left || x >= right ||
		intervals.AlmostEqual(x, left, intervals.DefaultEpsilon) ||
		intervals.AlmostEqual(x, right, intervals.DefaultEpsilon) {
		return 0, simerr.Errorf(simerr.ErrRecombMapTooCoarse, "breakpoint %g not inside (%g, %g)", x, left, right)
	}
	return x, nil
}

// Slice restricts the map to [start, end). Without trim the coordinates are
// kept and the rate outside the window is zero; with trim the window is
// shifted to start at zero.
func (m *RateMap) Slice(start, end float64, trim bool) (*RateMap, error) {
	if start < 0 || end > m.SequenceLength() || start >= end {
		return nil, simerr.Errorf(simerr.ErrBadParamValue, "slice [%g, %g) outside [0, %g)", start, end, m.SequenceLength())
	}
	positions := []float64{start}
	rates := []float64{}
	for i := 0; i < len(m.rates); i++ {
		l, r := m.positions[i], m.positions[i+1]
		if r <= start || l >= end {
			continue
		}
		rates = append(rates, m.rates[i])
		positions = append(positions, math.Min(r, end))
	}
	if trim {
		for i := range positions {
			positions[i] -= start
		}
		return New(positions, rates, m.discrete)
	}
	if start > 0 {
		positions = append([]float64{0}, positions...)
		rates = append([]float64{0}, rates...)
	}
	if end < m.SequenceLength() {
		positions = append(positions, m.SequenceLength())
		rates = append(rates, 0)
	}
	return New(positions, rates, m.discrete)
}
