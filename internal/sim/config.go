// Package sim runs the ancestry simulation: it owns the clock, the random
// source and the lineage state of one run, and drives one of several
// simulation models over them.
package sim

import (
	"math"
	"math/rand"

	"coalsim/internal/demography"
	"coalsim/internal/ratemap"
	"coalsim/internal/simerr"
)

type ModelKind string

const (
	ModelHudson   ModelKind = "hudson"
	ModelSMC      ModelKind = "smc"
	ModelSMCPrime ModelKind = "smc_prime"
	ModelDTWF     ModelKind = "dtwf"
	ModelSweep    ModelKind = "sweep_genic_selection"
	ModelPedigree ModelKind = "wf_ped"
	ModelBeta     ModelKind = "beta"
	ModelDirac    ModelKind = "dirac"
)

// continuous reports whether the model runs on the continuous-time clock of
// the Hudson scheduler, where gene conversion is available.
func (k ModelKind) continuous() bool {
	switch k {
	case ModelHudson, ModelSMC, ModelSMCPrime, ModelBeta, ModelDirac:
		return true
	default:
		return false
	}
}

// TrajectoryFunc generates allele frequencies of the beneficial allele going
// back in time, from end towards start, one value per step of length dt.
type TrajectoryFunc func(rng *rand.Rand, start, end, alpha, dt float64) ([]float64, error)

// SweepParams configures a selective sweep at Position.
type SweepParams struct {
	Position       float64
	StartFrequency float64
	EndFrequency   float64
	Alpha          float64
	DT             float64
	// Trajectory defaults to GenicSelectionTrajectory.
	Trajectory TrajectoryFunc
}

// BetaParams configures the Beta Xi-coalescent. A zero TruncationPoint
// means 1.
type BetaParams struct {
	Alpha           float64
	TruncationPoint float64
}

func (p BetaParams) truncation() float64 {
	if p.TruncationPoint == 0 {
		return 1
	}
	return p.TruncationPoint
}

// DiracParams configures the Dirac Xi-coalescent: multiple merger events
// happen at rate C and each lineage takes part with probability Psi.
type DiracParams struct {
	Psi float64
	C   float64
}

type ModelSpec struct {
	Kind  ModelKind
	Sweep *SweepParams
	Beta  *BetaParams
	Dirac *DiracParams
}

// ModelChange switches model at Time, or when the previous model completes
// if Time is nil.
type ModelChange struct {
	Time  *float64
	Model ModelSpec
}

// Sample is one sampled genome. Samples taken after the start time enter the
// simulation when the clock reaches them.
type Sample struct {
	Population int
	Time       float64
}

// Individual is one member of a pedigree. Parents holds the ids of the two
// parents, or -1 for founders' missing parents.
type Individual struct {
	ID      int
	Parents [2]int
	Time    float64
	Sample  bool
}

type Pedigree struct {
	Individuals []Individual
}

type Config struct {
	Samples      []Sample
	Demography   demography.Model
	RateMap      *ratemap.RateMap
	Model        ModelSpec
	ModelChanges []ModelChange
	Seed         int64
	StartTime    float64
	// EndTime stops the run early; zero or negative means no limit.
	EndTime float64
	// MaxEvents bounds the number of loop iterations; zero means no limit.
	MaxEvents        int
	Ploidy           int
	RecordMigrations bool
	RecordFullARG    bool
	Pedigree         *Pedigree
	// GeneConversionRate is the per-generation rate of tract initiation per
	// unit of sequence. Tract lengths have mean GeneConversionTrackLength.
	GeneConversionRate        float64
	GeneConversionTrackLength float64
}

const (
	defaultPloidy      = 2
	defaultTrackLength = 1
)

func (c Config) withDefaults() Config {
	if c.Ploidy == 0 {
		c.Ploidy = defaultPloidy
	}
	if c.GeneConversionTrackLength == 0 {
		c.GeneConversionTrackLength = defaultTrackLength
	}
	return c
}

func (c Config) endTime() float64 {
	if c.EndTime <= 0 {
		return math.Inf(1)
	}
	return c.EndTime
}

func (c Config) validate() error {
	if c.RateMap == nil {
		return simerr.Errorf(simerr.ErrBadRecombinationMap, "no recombination map")
	}
	if c.StartTime < 0 || math.IsNaN(c.StartTime) || math.IsInf(c.StartTime, 0) {
		return simerr.Errorf(simerr.ErrBadStartTime, "start time %g", c.StartTime)
	}
	if c.EndTime > 0 && c.EndTime <= c.StartTime {
		return simerr.Errorf(simerr.ErrBadParamValue, "end time %g not after start time %g", c.EndTime, c.StartTime)
	}
	if c.MaxEvents < 0 {
		return simerr.Errorf(simerr.ErrBadParamValue, "max events %d", c.MaxEvents)
	}
	if c.Ploidy < 0 {
		return simerr.Errorf(simerr.ErrBadParamValue, "ploidy %d", c.Ploidy)
	}
	if c.GeneConversionRate < 0 || math.IsNaN(c.GeneConversionRate) || math.IsInf(c.GeneConversionRate, 0) {
		return simerr.Errorf(simerr.ErrBadParamValue, "gene conversion rate %g", c.GeneConversionRate)
	}
	if !(c.GeneConversionTrackLength > 0) || math.IsInf(c.GeneConversionTrackLength, 0) {
		return simerr.Errorf(simerr.ErrBadParamValue, "gene conversion track length %g", c.GeneConversionTrackLength)
	}
	if len(c.Samples) < 2 {
		return simerr.Errorf(simerr.ErrInsufficientSamples, "got %d samples", len(c.Samples))
	}
	if err := c.Demography.Validate(c.StartTime); err != nil {
		return err
	}
	n := c.Demography.NumPopulations()
	for i, s := range c.Samples {
		if s.Population < 0 || s.Population >= n {
			return simerr.Errorf(simerr.ErrBadSamples, "sample %d in population %d of %d", i, s.Population, n)
		}
		if s.Time < 0 || math.IsNaN(s.Time) || math.IsInf(s.Time, 0) {
			return simerr.Errorf(simerr.ErrBadSamples, "sample %d at time %g", i, s.Time)
		}
	}

	models := []ModelSpec{c.Model}
	last := math.Inf(-1)
	for i, mc := range c.ModelChanges {
		if mc.Time != nil {
			t := *mc.Time
			if t < 0 || math.IsNaN(t) || t < last {
				return simerr.Errorf(simerr.ErrBadParamValue, "model change %d at %g", i, t)
			}
			last = t
		}
		if mc.Model.Kind == ModelPedigree {
			return simerr.Errorf(simerr.ErrBadModel, "pedigree model must be the initial model")
		}
		models = append(models, mc.Model)
	}
	for _, m := range models {
		if err := c.validateModel(m); err != nil {
			return err
		}
	}
	if c.Model.Kind == ModelPedigree {
		return c.validatePedigree()
	}
	return nil
}

func (c Config) validateModel(m ModelSpec) error {
	if c.GeneConversionRate > 0 && !m.Kind.continuous() {
		return simerr.Errorf(simerr.ErrUnsupportedOperation, "gene conversion under the %s model", m.Kind)
	}
	switch m.Kind {
	case ModelHudson, ModelSMC, ModelSMCPrime:
		return nil
	case ModelDTWF, ModelPedigree:
		if c.Ploidy != 2 {
			return simerr.Errorf(simerr.ErrUnsupportedOperation, "%s needs ploidy 2, got %d", m.Kind, c.Ploidy)
		}
		// Nodes of these models share generation times with their children,
		// so recombinant and ancestor nodes cannot be kept apart.
		if c.RecordFullARG {
			return simerr.Errorf(simerr.ErrUnsupportedOperation, "full ARG recording under the %s model", m.Kind)
		}
		return nil
	case ModelSweep:
		return c.validateSweep(m.Sweep)
	case ModelBeta:
		return validateBeta(m.Beta)
	case ModelDirac:
		return validateDirac(m.Dirac)
	default:
		return simerr.Errorf(simerr.ErrBadModel, "model %q", m.Kind)
	}
}

func validateBeta(p *BetaParams) error {
	if p == nil {
		return simerr.Errorf(simerr.ErrBadModel, "beta model without parameters")
	}
	if !(p.Alpha > 1 && p.Alpha < 2) {
		return simerr.Errorf(simerr.ErrBadBetaModelAlpha, "alpha %g", p.Alpha)
	}
	if tau := p.truncation(); !(tau > 0 && tau <= 1) {
		return simerr.Errorf(simerr.ErrBadTruncationPoint, "truncation point %g", p.TruncationPoint)
	}
	return nil
}

func validateDirac(p *DiracParams) error {
	if p == nil {
		return simerr.Errorf(simerr.ErrBadModel, "dirac model without parameters")
	}
	if !(p.C > 0) || math.IsInf(p.C, 0) {
		return simerr.Errorf(simerr.ErrBadC, "c %g", p.C)
	}
	if !(p.Psi > 0 && p.Psi <= 1) {
		return simerr.Errorf(simerr.ErrBadPsi, "psi %g", p.Psi)
	}
	return nil
}

func (c Config) validateSweep(p *SweepParams) error {
	if p == nil {
		return simerr.Errorf(simerr.ErrBadModel, "sweep model without parameters")
	}
	if c.Demography.NumPopulations() > 1 {
		return simerr.Errorf(simerr.ErrUnsupportedOperation, "sweeps need a single population, got %d", c.Demography.NumPopulations())
	}
	if p.Position < 0 || p.Position >= c.RateMap.SequenceLength() {
		return simerr.Errorf(simerr.ErrBadSweepPosition, "position %g", p.Position)
	}
	for _, f := range []float64{p.StartFrequency, p.EndFrequency} {
		if !(f > 0 && f < 1) {
			return simerr.Errorf(simerr.ErrBadAlleleFrequency, "frequency %g", f)
		}
	}
	if p.StartFrequency >= p.EndFrequency {
		return simerr.Errorf(simerr.ErrBadTrajectoryStartEnd, "start %g, end %g", p.StartFrequency, p.EndFrequency)
	}
	if !(p.DT > 0) {
		return simerr.Errorf(simerr.ErrBadTimeDelta, "dt %g", p.DT)
	}
	if !(p.Alpha > 0) {
		return simerr.Errorf(simerr.ErrBadSweepGenicSelectionAlpha, "alpha %g", p.Alpha)
	}
	return nil
}

func (c Config) validatePedigree() error {
	if c.Pedigree == nil {
		return simerr.Errorf(simerr.ErrBadModel, "pedigree model without a pedigree")
	}
	byID := make(map[int]Individual, len(c.Pedigree.Individuals))
	samples := 0
	for _, ind := range c.Pedigree.Individuals {
		if ind.ID < 0 {
			return simerr.Errorf(simerr.ErrBadPedigreeID, "negative id %d", ind.ID)
		}
		if _, dup := byID[ind.ID]; dup {
			return simerr.Errorf(simerr.ErrBadPedigreeID, "duplicate id %d", ind.ID)
		}
		if ind.Time < 0 || math.IsNaN(ind.Time) {
			return simerr.Errorf(simerr.ErrBadParamValue, "individual %d at time %g", ind.ID, ind.Time)
		}
		byID[ind.ID] = ind
		if ind.Sample {
			samples++
		}
	}
	for _, ind := range c.Pedigree.Individuals {
		for _, p := range ind.Parents {
			if p == -1 {
				continue
			}
			parent, ok := byID[p]
			if !ok {
				return simerr.Errorf(simerr.ErrBadPedigreeID, "individual %d has unknown parent %d", ind.ID, p)
			}
			if parent.Sample {
				return simerr.Errorf(simerr.ErrUnsupportedOperation, "sample individual %d is a parent of %d", p, ind.ID)
			}
			if parent.Time <= ind.Time {
				return simerr.Errorf(simerr.ErrBadPedigreeID, "parent %d (t=%g) not older than %d (t=%g)", p, parent.Time, ind.ID, ind.Time)
			}
		}
	}
	if len(c.Samples) != pedigreePloidy*samples {
		return simerr.Errorf(simerr.ErrBadPedigreeNumSamples, "%d sample genomes for %d sample individuals", len(c.Samples), samples)
	}
	k := 0
	for _, ind := range c.Pedigree.Individuals {
		if !ind.Sample {
			continue
		}
		for j := 0; j < pedigreePloidy; j++ {
			s := c.Samples[pedigreePloidy*k+j]
			if s.Population != 0 || s.Time != ind.Time {
				return simerr.Errorf(simerr.ErrBadSamples, "sample genome %d does not match individual %d (t=%g, population 0)",
					pedigreePloidy*k+j, ind.ID, ind.Time)
			}
		}
		k++
	}
	return nil
}
