// Package config loads simulation scenarios from YAML files and turns them
// into validated simulator configurations.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"coalsim/internal/demography"
	"coalsim/internal/ratemap"
	"coalsim/internal/sim"
)

// Scenario is the on-disk description of a simulation and of how its
// replicates are run and stored.
type Scenario struct {
	Name             string  `mapstructure:"name" yaml:"name" validate:"required"`
	Seed             int64   `mapstructure:"seed" yaml:"seed"`
	Replicates       int     `mapstructure:"replicates" yaml:"replicates" validate:"gte=1"`
	Workers          int     `mapstructure:"workers" yaml:"workers" validate:"gte=0"`
	Ploidy           int     `mapstructure:"ploidy" yaml:"ploidy" validate:"gte=0"`
	StartTime        float64 `mapstructure:"start_time" yaml:"start_time" validate:"gte=0"`
	EndTime          float64 `mapstructure:"end_time" yaml:"end_time,omitempty"`
	MaxEvents        int     `mapstructure:"max_events" yaml:"max_events,omitempty" validate:"gte=0"`
	RecordMigrations bool    `mapstructure:"record_migrations" yaml:"record_migrations"`
	RecordFullARG    bool    `mapstructure:"record_full_arg" yaml:"record_full_arg"`

	Recombination  RecombinationConfig  `mapstructure:"recombination" yaml:"recombination"`
	GeneConversion GeneConversionConfig `mapstructure:"gene_conversion" yaml:"gene_conversion,omitempty"`
	Populations    []PopulationConfig   `mapstructure:"populations" yaml:"populations" validate:"required,min=1,dive"`
	Migration      [][]float64          `mapstructure:"migration" yaml:"migration,omitempty"`
	Samples        []SampleConfig       `mapstructure:"samples" yaml:"samples,omitempty" validate:"dive"`
	Events         []EventConfig        `mapstructure:"events" yaml:"events,omitempty" validate:"dive"`
	Model          ModelConfig          `mapstructure:"model" yaml:"model"`
	ModelChanges   []ModelChangeConfig  `mapstructure:"model_changes" yaml:"model_changes,omitempty" validate:"dive"`
	Pedigree       *PedigreeConfig      `mapstructure:"pedigree" yaml:"pedigree,omitempty" validate:"omitempty"`

	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	// OutputDir receives one artifact directory per run.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir,omitempty"`
}

// RecombinationConfig is a HapMap file, an explicit piecewise map, or a
// uniform Rate over SequenceLength. A zero SequenceLength takes the HapMap's
// last position, or DefaultSequenceLength for a uniform map.
type RecombinationConfig struct {
	SequenceLength float64   `mapstructure:"sequence_length" yaml:"sequence_length" validate:"gte=0"`
	Rate           float64   `mapstructure:"rate" yaml:"rate" validate:"gte=0"`
	Positions      []float64 `mapstructure:"positions" yaml:"positions,omitempty"`
	Rates          []float64 `mapstructure:"rates" yaml:"rates,omitempty"`
	HapMap         string    `mapstructure:"hapmap" yaml:"hapmap,omitempty"`
	Discrete       bool      `mapstructure:"discrete" yaml:"discrete"`
}

// GeneConversionConfig sets the per-unit rate at which gene conversion
// tracts start and their mean length.
type GeneConversionConfig struct {
	Rate        float64 `mapstructure:"rate" yaml:"rate,omitempty" validate:"gte=0"`
	TrackLength float64 `mapstructure:"track_length" yaml:"track_length,omitempty" validate:"gte=0"`
}

type PopulationConfig struct {
	Name        string  `mapstructure:"name" yaml:"name,omitempty"`
	InitialSize float64 `mapstructure:"initial_size" yaml:"initial_size" validate:"gt=0"`
	GrowthRate  float64 `mapstructure:"growth_rate" yaml:"growth_rate,omitempty"`
}

// SampleConfig adds Count genomes from Population taken at Time.
type SampleConfig struct {
	Population int     `mapstructure:"population" yaml:"population" validate:"gte=0"`
	Time       float64 `mapstructure:"time" yaml:"time,omitempty" validate:"gte=0"`
	Count      int     `mapstructure:"count" yaml:"count" validate:"gte=1"`
}

const (
	EventPopulationParameters    = "population_parameters_change"
	EventMigrationRate           = "migration_rate_change"
	EventMassMigration           = "mass_migration"
	EventSimpleBottleneck        = "simple_bottleneck"
	EventInstantaneousBottleneck = "instantaneous_bottleneck"
	EventCensus                  = "census"
)

// EventConfig is a flat union of the demographic events; Type selects which
// fields are read. A nil population, source or dest means all populations.
type EventConfig struct {
	Type        string   `mapstructure:"type" yaml:"type" validate:"required,oneof=population_parameters_change migration_rate_change mass_migration simple_bottleneck instantaneous_bottleneck census"`
	Time        float64  `mapstructure:"time" yaml:"time" validate:"gte=0"`
	Population  *int     `mapstructure:"population" yaml:"population,omitempty"`
	InitialSize *float64 `mapstructure:"initial_size" yaml:"initial_size,omitempty"`
	GrowthRate  *float64 `mapstructure:"growth_rate" yaml:"growth_rate,omitempty"`
	Rate        float64  `mapstructure:"rate" yaml:"rate,omitempty"`
	Source      *int     `mapstructure:"source" yaml:"source,omitempty"`
	Dest        *int     `mapstructure:"dest" yaml:"dest,omitempty"`
	Proportion  float64  `mapstructure:"proportion" yaml:"proportion,omitempty" validate:"gte=0,lte=1"`
	Strength    float64  `mapstructure:"strength" yaml:"strength,omitempty" validate:"gte=0"`
}

type ModelConfig struct {
	Kind  string       `mapstructure:"kind" yaml:"kind" validate:"omitempty,oneof=hudson smc smc_prime beta dirac dtwf sweep_genic_selection wf_ped"`
	Sweep *SweepConfig `mapstructure:"sweep" yaml:"sweep,omitempty" validate:"omitempty"`
	Beta  *BetaConfig  `mapstructure:"beta" yaml:"beta,omitempty" validate:"omitempty"`
	Dirac *DiracConfig `mapstructure:"dirac" yaml:"dirac,omitempty" validate:"omitempty"`
}

// BetaConfig parameterises the Beta coalescent. A zero TruncationPoint means
// no truncation.
type BetaConfig struct {
	Alpha           float64 `mapstructure:"alpha" yaml:"alpha" validate:"gt=1,lt=2"`
	TruncationPoint float64 `mapstructure:"truncation_point" yaml:"truncation_point,omitempty" validate:"gte=0,lte=1"`
}

type DiracConfig struct {
	Psi float64 `mapstructure:"psi" yaml:"psi" validate:"gt=0,lte=1"`
	C   float64 `mapstructure:"c" yaml:"c" validate:"gt=0"`
}

type SweepConfig struct {
	Position       float64 `mapstructure:"position" yaml:"position" validate:"gte=0"`
	StartFrequency float64 `mapstructure:"start_frequency" yaml:"start_frequency" validate:"gt=0,lt=1"`
	EndFrequency   float64 `mapstructure:"end_frequency" yaml:"end_frequency" validate:"gt=0,lt=1"`
	Alpha          float64 `mapstructure:"alpha" yaml:"alpha" validate:"gt=0"`
	DT             float64 `mapstructure:"dt" yaml:"dt" validate:"gt=0"`
}

// ModelChangeConfig switches model at Time, or when the previous model
// completes if Time is omitted.
type ModelChangeConfig struct {
	Time  *float64    `mapstructure:"time" yaml:"time,omitempty"`
	Model ModelConfig `mapstructure:"model" yaml:"model"`
}

type PedigreeConfig struct {
	Individuals []IndividualConfig `mapstructure:"individuals" yaml:"individuals" validate:"required,min=1,dive"`
}

type IndividualConfig struct {
	ID      int     `mapstructure:"id" yaml:"id" validate:"gte=0"`
	Parents []int   `mapstructure:"parents" yaml:"parents" validate:"len=2,dive,gte=-1"`
	Time    float64 `mapstructure:"time" yaml:"time" validate:"gte=0"`
	Sample  bool    `mapstructure:"sample" yaml:"sample,omitempty"`
}

type StoreConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind" validate:"omitempty,oneof=memory sqlite"`
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field-level constraints. Cross-field semantics are left to
// the simulator, which reports them with its own error codes from Build.
func (s Scenario) Validate() error {
	return validate.Struct(s)
}

// Build turns the scenario into a simulator configuration and validates it.
func (s Scenario) Build() (sim.Config, error) {
	if err := s.Validate(); err != nil {
		return sim.Config{}, err
	}
	rm, err := s.Recombination.build()
	if err != nil {
		return sim.Config{}, fmt.Errorf("recombination map: %w", err)
	}
	cfg := sim.Config{
		Demography:       s.demography(),
		RateMap:          rm,
		Model:            s.Model.spec(),
		Seed:             s.Seed,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		MaxEvents:        s.MaxEvents,
		Ploidy:           s.Ploidy,
		RecordMigrations: s.RecordMigrations,
		RecordFullARG:    s.RecordFullARG,

		GeneConversionRate:        s.GeneConversion.Rate,
		GeneConversionTrackLength: s.GeneConversion.TrackLength,
	}
	for _, mc := range s.ModelChanges {
		cfg.ModelChanges = append(cfg.ModelChanges, sim.ModelChange{Time: mc.Time, Model: mc.Model.spec()})
	}
	for _, sc := range s.Samples {
		for i := 0; i < sc.Count; i++ {
			cfg.Samples = append(cfg.Samples, sim.Sample{Population: sc.Population, Time: sc.Time})
		}
	}
	if s.Pedigree != nil {
		cfg.Pedigree = s.Pedigree.build()
		// Pedigree sample genomes follow the sample individuals when none are
		// listed explicitly.
		if len(s.Samples) == 0 {
			for _, ind := range cfg.Pedigree.Individuals {
				if ind.Sample {
					cfg.Samples = append(cfg.Samples, sim.Sample{Time: ind.Time}, sim.Sample{Time: ind.Time})
				}
			}
		}
	}
	if err := sim.Validate(cfg); err != nil {
		return sim.Config{}, err
	}
	return cfg, nil
}

func (r RecombinationConfig) build() (*ratemap.RateMap, error) {
	switch {
	case r.HapMap != "":
		return ratemap.ReadHapMapFile(r.HapMap, r.SequenceLength, r.Discrete)
	case len(r.Positions) > 0:
		return ratemap.New(r.Positions, r.Rates, r.Discrete)
	default:
		length := r.SequenceLength
		if length == 0 {
			length = DefaultSequenceLength
		}
		return ratemap.Uniform(length, r.Rate, r.Discrete)
	}
}

func (s Scenario) demography() demography.Model {
	m := demography.Model{Migration: s.Migration}
	for _, p := range s.Populations {
		m.Populations = append(m.Populations, demography.Population{
			Name:        p.Name,
			InitialSize: p.InitialSize,
			GrowthRate:  p.GrowthRate,
			StartTime:   s.StartTime,
		})
	}
	for _, e := range s.Events {
		m.Events = append(m.Events, e.build())
	}
	return m
}

func orAll(p *int) int {
	if p == nil {
		return demography.AllPopulations
	}
	return *p
}

func (e EventConfig) build() demography.Event {
	switch e.Type {
	case EventPopulationParameters:
		return demography.PopulationParametersChange{
			Time: e.Time, Population: orAll(e.Population), InitialSize: e.InitialSize, GrowthRate: e.GrowthRate,
		}
	case EventMigrationRate:
		return demography.MigrationRateChange{Time: e.Time, Rate: e.Rate, Source: orAll(e.Source), Dest: orAll(e.Dest)}
	case EventMassMigration:
		return demography.MassMigration{Time: e.Time, Source: orAll(e.Source), Dest: orAll(e.Dest), Proportion: e.Proportion}
	case EventSimpleBottleneck:
		return demography.SimpleBottleneck{Time: e.Time, Population: orAll(e.Population), Proportion: e.Proportion}
	case EventInstantaneousBottleneck:
		return demography.InstantaneousBottleneck{Time: e.Time, Population: orAll(e.Population), Strength: e.Strength}
	default:
		return demography.CensusEvent{Time: e.Time}
	}
}

func (m ModelConfig) spec() sim.ModelSpec {
	spec := sim.ModelSpec{Kind: sim.ModelKind(m.Kind)}
	if spec.Kind == "" {
		spec.Kind = sim.ModelHudson
	}
	if m.Sweep != nil {
		spec.Sweep = &sim.SweepParams{
			Position:       m.Sweep.Position,
			StartFrequency: m.Sweep.StartFrequency,
			EndFrequency:   m.Sweep.EndFrequency,
			Alpha:          m.Sweep.Alpha,
			DT:             m.Sweep.DT,
		}
	}
	if m.Beta != nil {
		spec.Beta = &sim.BetaParams{Alpha: m.Beta.Alpha, TruncationPoint: m.Beta.TruncationPoint}
	}
	if m.Dirac != nil {
		spec.Dirac = &sim.DiracParams{Psi: m.Dirac.Psi, C: m.Dirac.C}
	}
	return spec
}

func (p PedigreeConfig) build() *sim.Pedigree {
	ped := &sim.Pedigree{Individuals: make([]sim.Individual, 0, len(p.Individuals))}
	for _, ind := range p.Individuals {
		ped.Individuals = append(ped.Individuals, sim.Individual{
			ID:      ind.ID,
			Parents: [2]int{ind.Parents[0], ind.Parents[1]},
			Time:    ind.Time,
			Sample:  ind.Sample,
		})
	}
	return ped
}

// Encode writes the scenario as YAML.
func (s Scenario) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	return enc.Close()
}

// Write stores the scenario as path, creating parent directories.
func Write(path string, s Scenario) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Encode(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
