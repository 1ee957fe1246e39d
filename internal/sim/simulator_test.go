package sim

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coalsim/internal/demography"
	"coalsim/internal/ratemap"
	"coalsim/internal/simerr"
	"coalsim/internal/tables"
)

func uniformMap(t *testing.T, length, rate float64) *ratemap.RateMap {
	t.Helper()
	rm, err := ratemap.Uniform(length, rate, false)
	require.NoError(t, err)
	return rm
}

func samplesIn(population, n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{Population: population}
	}
	return out
}

func hudsonConfig(t *testing.T, n int, rate float64) Config {
	return Config{
		Samples:    samplesIn(0, n),
		Demography: demography.Single(100),
		RateMap:    uniformMap(t, 1000, rate),
		Model:      ModelSpec{Kind: ModelHudson},
		Seed:       42,
	}
}

func run(t *testing.T, cfg Config, opts ...Option) (*tables.TableCollection, Result, error) {
	t.Helper()
	tc := tables.NewTableCollection(cfg.RateMap.SequenceLength())
	s, err := New(cfg, tc, opts...)
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	return tc, res, err
}

// marginalRoot follows every sample up the tree covering x and returns the
// single root they share, failing if they do not share one.
func marginalRoot(t *testing.T, tc *tables.TableCollection, x float64) tables.NodeID {
	t.Helper()
	parent := map[tables.NodeID]tables.NodeID{}
	for _, e := range tc.Edges() {
		if e.Left <= x && x < e.Right {
			_, dup := parent[e.Child]
			require.False(t, dup, "node %d has two parents at %g", e.Child, x)
			parent[e.Child] = e.Parent
		}
	}
	root := tables.NullNode
	for _, sample := range tc.Samples() {
		u := sample
		for {
			p, ok := parent[u]
			if !ok {
				break
			}
			u = p
		}
		if root == tables.NullNode {
			root = u
		}
		require.Equal(t, root, u, "samples reach different roots at %g", x)
	}
	return root
}

func TestKingmanCoalescence(t *testing.T) {
	const n = 10
	var rates []float64
	obs := ObserverFunc(func(e EventInfo) {
		if e.Kind == EventCommonAncestor {
			rates = append(rates, e.Rate)
		}
	})
	tc, res, err := run(t, hudsonConfig(t, n, 0), WithObserver(obs))
	require.NoError(t, err)

	assert.Equal(t, StatusCoalesced, res.Status)
	assert.Equal(t, n-1, res.Counters.CommonAncestor)
	assert.Equal(t, 2*n-1, tc.NumNodes())
	assert.Equal(t, 0, res.Lineages)
	assert.Equal(t, 0, res.Segments)
	require.Len(t, rates, n-1)
	for i, r := range rates {
		k := float64(n - i)
		assert.Equal(t, k*(k-1)/2, r)
	}
	assert.Len(t, tc.Roots(), 1)
}

func TestSameSeedSameGraph(t *testing.T) {
	cfg := hudsonConfig(t, 8, 1e-3)
	a, resA, err := run(t, cfg)
	require.NoError(t, err)
	b, resB, err := run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Nodes(), b.Nodes())
	assert.Equal(t, a.Edges(), b.Edges())
	assert.Equal(t, resA.Counters, resB.Counters)
}

func TestRecombinationKeepsEveryPositionConnected(t *testing.T) {
	cfg := hudsonConfig(t, 6, 2e-3)
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	require.Equal(t, StatusCoalesced, res.Status)
	require.Greater(t, res.Counters.Recombination, 0)

	breakpoints := tc.Breakpoints()
	require.Greater(t, len(breakpoints), 2)
	for i := 0; i+1 < len(breakpoints); i++ {
		marginalRoot(t, tc, (breakpoints[i]+breakpoints[i+1])/2)
	}
}

func TestSMCVariantsCoalesce(t *testing.T) {
	for _, kind := range []ModelKind{ModelSMC, ModelSMCPrime} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := hudsonConfig(t, 6, 2e-3)
			cfg.Model = ModelSpec{Kind: kind}
			tc, res, err := run(t, cfg)
			require.NoError(t, err)
			assert.Equal(t, StatusCoalesced, res.Status)
			assert.Equal(t, kind, res.Model)
			marginalRoot(t, tc, 500)
		})
	}
}

func TestConfigErrorsBeforeRunning(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		code   simerr.Code
	}{
		{"unsorted events", func(c *Config) {
			c.Demography.Events = []demography.Event{
				demography.CensusEvent{Time: 10},
				demography.CensusEvent{Time: 5},
			}
		}, simerr.ErrUnsortedDemographicEvents},
		{"diagonal migration", func(c *Config) {
			c.Demography = demography.Model{
				Populations: []demography.Population{{InitialSize: 10}, {InitialSize: 10}},
				Migration:   [][]float64{{1, 0}, {0, 0}},
			}
		}, simerr.ErrDiagonalMigrationMatrixIndex},
		{"negative migration", func(c *Config) {
			c.Demography = demography.Model{
				Populations: []demography.Population{{InitialSize: 10}, {InitialSize: 10}},
				Migration:   [][]float64{{0, -1}, {0, 0}},
			}
		}, simerr.ErrBadMigrationMatrix},
		{"one sample", func(c *Config) { c.Samples = c.Samples[:1] }, simerr.ErrInsufficientSamples},
		{"sample population", func(c *Config) { c.Samples[0].Population = 3 }, simerr.ErrBadSamples},
		{"negative start", func(c *Config) { c.StartTime = -1 }, simerr.ErrBadStartTime},
		{"unknown model", func(c *Config) { c.Model.Kind = "nope" }, simerr.ErrBadModel},
		{"no map", func(c *Config) { c.RateMap = nil }, simerr.ErrBadRecombinationMap},
		{"sweep without params", func(c *Config) { c.Model = ModelSpec{Kind: ModelSweep} }, simerr.ErrBadModel},
		{"sweep frequencies", func(c *Config) {
			c.Model = ModelSpec{Kind: ModelSweep, Sweep: &SweepParams{Position: 10, StartFrequency: 0.9, EndFrequency: 0.1, Alpha: 100, DT: 1e-3}}
		}, simerr.ErrBadTrajectoryStartEnd},
		{"sweep position", func(c *Config) {
			c.Model = ModelSpec{Kind: ModelSweep, Sweep: &SweepParams{Position: 5000, StartFrequency: 0.1, EndFrequency: 0.9, Alpha: 100, DT: 1e-3}}
		}, simerr.ErrBadSweepPosition},
		{"pedigree after start", func(c *Config) {
			c.ModelChanges = []ModelChange{{Model: ModelSpec{Kind: ModelPedigree}}}
		}, simerr.ErrBadModel},
		{"full arg after change to dtwf", func(c *Config) {
			c.RecordFullARG = true
			c.ModelChanges = []ModelChange{{Time: demography.Float(10), Model: ModelSpec{Kind: ModelDTWF}}}
		}, simerr.ErrUnsupportedOperation},
		{"beta without params", func(c *Config) { c.Model = ModelSpec{Kind: ModelBeta} }, simerr.ErrBadModel},
		{"beta alpha", func(c *Config) {
			c.Model = ModelSpec{Kind: ModelBeta, Beta: &BetaParams{Alpha: 2}}
		}, simerr.ErrBadBetaModelAlpha},
		{"beta truncation", func(c *Config) {
			c.Model = ModelSpec{Kind: ModelBeta, Beta: &BetaParams{Alpha: 1.5, TruncationPoint: 1.5}}
		}, simerr.ErrBadTruncationPoint},
		{"dirac without params", func(c *Config) { c.Model = ModelSpec{Kind: ModelDirac} }, simerr.ErrBadModel},
		{"dirac c", func(c *Config) {
			c.Model = ModelSpec{Kind: ModelDirac, Dirac: &DiracParams{Psi: 0.5}}
		}, simerr.ErrBadC},
		{"dirac psi", func(c *Config) {
			c.Model = ModelSpec{Kind: ModelDirac, Dirac: &DiracParams{Psi: 1.2, C: 1}}
		}, simerr.ErrBadPsi},
		{"negative gene conversion", func(c *Config) { c.GeneConversionRate = -1 }, simerr.ErrBadParamValue},
		{"gene conversion track", func(c *Config) {
			c.GeneConversionRate = 1e-3
			c.GeneConversionTrackLength = -5
		}, simerr.ErrBadParamValue},
		{"gene conversion under dtwf", func(c *Config) {
			c.GeneConversionRate = 1e-3
			c.Model = ModelSpec{Kind: ModelDTWF}
		}, simerr.ErrUnsupportedOperation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := hudsonConfig(t, 4, 0)
			tc.mutate(&cfg)
			sink := tables.NewTableCollection(1000)
			_, err := New(cfg, sink)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.code)
			assert.Equal(t, 0, sink.NumNodes())
		})
	}
}

func twoPopulations(migration float64) demography.Model {
	return demography.Model{
		Populations: []demography.Population{{InitialSize: 50}, {InitialSize: 50}},
		Migration:   [][]float64{{0, migration}, {migration, 0}},
	}
}

func TestMigrationBetweenPopulations(t *testing.T) {
	cfg := hudsonConfig(t, 0, 0)
	cfg.Samples = append(samplesIn(0, 3), samplesIn(1, 3)...)
	cfg.Demography = twoPopulations(0.01)
	cfg.RecordMigrations = true
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusCoalesced, res.Status)
	assert.Greater(t, res.Counters.TotalMigrations(), 0)
	assert.Zero(t, res.Counters.Migration[0][0])
	assert.Zero(t, res.Counters.Migration[1][1])
	assert.Greater(t, tc.NumMigrations(), 0)
	for _, m := range tc.Migrations() {
		assert.NotEqual(t, m.Source, m.Dest)
	}
}

func TestIsolatedPopulationsNeverCoalesce(t *testing.T) {
	cfg := hudsonConfig(t, 0, 0)
	cfg.Samples = append(samplesIn(0, 3), samplesIn(1, 3)...)
	cfg.Demography = twoPopulations(0)
	tc, res, err := run(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, simerr.ErrInfiniteWaitingTime)
	assert.Equal(t, simerr.ClassNumeric, simerr.CodeOf(err).Class())
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.Equal(t, 2, res.Lineages)
	assert.Equal(t, 6+4, tc.NumNodes())
}

func TestMassMigrationJoinsPopulations(t *testing.T) {
	cfg := hudsonConfig(t, 0, 0)
	cfg.Samples = append(samplesIn(0, 3), samplesIn(1, 3)...)
	cfg.Demography = twoPopulations(0)
	cfg.Demography.Events = []demography.Event{
		demography.MassMigration{Time: 500, Source: 1, Dest: 0, Proportion: 1},
	}
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusCoalesced, res.Status)
	assert.Equal(t, 1, res.Counters.DemographicEvents)
	assert.Zero(t, res.Counters.TotalMigrations())
	assert.Len(t, tc.Roots(), 1)
}

func TestEndTimeCapsLineages(t *testing.T) {
	cfg := hudsonConfig(t, 20, 1e-3)
	cfg.EndTime = 5
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	require.Equal(t, StatusMaxTime, res.Status)
	assert.Equal(t, 5.0, res.Time)
	require.Greater(t, res.Lineages, 1)

	roots := tc.Roots()
	assert.Len(t, roots, res.Lineages)
	nodes := tc.Nodes()
	for _, r := range roots {
		assert.Equal(t, 5.0, nodes[r].Time)
	}
}

func TestMaxEvents(t *testing.T) {
	cfg := hudsonConfig(t, 20, 1e-2)
	cfg.MaxEvents = 10
	_, res, err := run(t, cfg)
	assert.ErrorIs(t, err, simerr.ErrInfiniteWaitingTime)
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.Equal(t, 10, res.Counters.Events)
}

func TestCancelledContext(t *testing.T) {
	cfg := hudsonConfig(t, 50, 1e-2)
	tc := tables.NewTableCollection(1000)
	s, err := New(cfg, tc)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.Equal(t, 0, res.Counters.Events)
	assert.Equal(t, 0, tc.NumNodes())

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, simerr.ErrBadState)
}

func TestLateSamplesEnterAtTheirTime(t *testing.T) {
	cfg := hudsonConfig(t, 4, 0)
	cfg.Samples = append(cfg.Samples, Sample{Time: 50}, Sample{Time: 80})
	var entered []float64
	obs := ObserverFunc(func(e EventInfo) {
		if e.Kind == EventSample {
			entered = append(entered, e.Time)
		}
	})
	tc, res, err := run(t, cfg, WithObserver(obs))
	require.NoError(t, err)
	assert.Equal(t, StatusCoalesced, res.Status)
	assert.Equal(t, []float64{50, 80}, entered)
	assert.Len(t, tc.Samples(), 6)
	marginalRoot(t, tc, 10)
}

func TestFullARGNodes(t *testing.T) {
	cfg := hudsonConfig(t, 5, 2e-3)
	cfg.RecordFullARG = true
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	require.Greater(t, res.Counters.Recombination, 0)

	recombinant := 0
	for _, n := range tc.Nodes() {
		if n.Flags&tables.NodeIsRecombinant != 0 {
			recombinant++
		}
	}
	assert.Equal(t, 2*res.Counters.Recombination, recombinant)
	assert.Equal(t, res.Counters.CommonAncestor+recombinant+5, tc.NumNodes())
	marginalRoot(t, tc, 250)
}

func TestCensusMarksLineages(t *testing.T) {
	cfg := hudsonConfig(t, 10, 0)
	cfg.Demography.Events = []demography.Event{demography.CensusEvent{Time: 20}}
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	require.Equal(t, StatusCoalesced, res.Status)

	census := 0
	for _, n := range tc.Nodes() {
		if n.Flags&tables.NodeIsCensus != 0 {
			census++
			assert.Equal(t, 20.0, n.Time)
		}
	}
	assert.Greater(t, census, 0)
	marginalRoot(t, tc, 1)
}

func TestBottlenecks(t *testing.T) {
	cfg := hudsonConfig(t, 10, 0)
	cfg.Demography = demography.Single(1e6)
	cfg.Demography.Events = []demography.Event{
		demography.SimpleBottleneck{Time: 1, Population: 0, Proportion: 1},
	}
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusCoalesced, res.Status)
	assert.Equal(t, 1.0, res.Time)
	assert.Len(t, tc.Roots(), 1)

	cfg.Demography.Events = []demography.Event{
		demography.InstantaneousBottleneck{Time: 1, Population: 0, Strength: 100},
	}
	tc, res, err = run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Time)
	assert.Len(t, tc.Roots(), 1)
}

func TestModelChangeInThePast(t *testing.T) {
	cfg := hudsonConfig(t, 4, 0)
	cfg.StartTime = 10
	cfg.ModelChanges = []ModelChange{{Time: demography.Float(5), Model: ModelSpec{Kind: ModelSMC}}}
	_, res, err := run(t, cfg)
	assert.ErrorIs(t, err, simerr.ErrTimeTravel)
	assert.Equal(t, StatusIncomplete, res.Status)
}

func TestTimedModelChange(t *testing.T) {
	cfg := hudsonConfig(t, 6, 1e-3)
	cfg.Demography = demography.Single(50)
	cfg.Model = ModelSpec{Kind: ModelDTWF}
	cfg.ModelChanges = []ModelChange{{Time: demography.Float(3), Model: ModelSpec{Kind: ModelHudson}}}
	var models []ModelKind
	obs := ObserverFunc(func(e EventInfo) {
		if e.Kind == EventModelChange {
			models = append(models, e.Model)
		}
	})
	_, res, err := run(t, cfg, WithObserver(obs))
	require.NoError(t, err)
	assert.Equal(t, StatusCoalesced, res.Status)
	assert.Equal(t, []ModelKind{ModelHudson}, models)
	assert.Equal(t, 1, res.Counters.ModelChanges)
}

func TestDTWF(t *testing.T) {
	cfg := hudsonConfig(t, 10, 1e-4)
	cfg.Demography = demography.Single(20)
	cfg.Model = ModelSpec{Kind: ModelDTWF}
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusCoalesced, res.Status)
	assert.Greater(t, res.Counters.Generations, 0)
	for _, n := range tc.Nodes() {
		assert.Equal(t, math.Floor(n.Time), n.Time)
	}
	marginalRoot(t, tc, 999)
}

func TestDTWFErrors(t *testing.T) {
	t.Run("zero size", func(t *testing.T) {
		cfg := hudsonConfig(t, 4, 0)
		cfg.Demography = demography.Single(0.4)
		cfg.Model = ModelSpec{Kind: ModelDTWF}
		_, _, err := run(t, cfg)
		assert.ErrorIs(t, err, simerr.ErrDTWFZeroPopulationSize)
	})
	t.Run("bottleneck", func(t *testing.T) {
		cfg := hudsonConfig(t, 4, 0)
		cfg.Demography = demography.Single(1e4)
		cfg.Demography.Events = []demography.Event{demography.SimpleBottleneck{Time: 0.5, Population: 0, Proportion: 0.5}}
		cfg.Model = ModelSpec{Kind: ModelDTWF}
		_, _, err := run(t, cfg)
		assert.ErrorIs(t, err, simerr.ErrDTWFUnsupportedBottleneck)
	})
	t.Run("migration row", func(t *testing.T) {
		cfg := hudsonConfig(t, 0, 0)
		cfg.Samples = append(samplesIn(0, 2), samplesIn(1, 2)...)
		cfg.Demography = twoPopulations(1.5)
		cfg.Model = ModelSpec{Kind: ModelDTWF}
		_, _, err := run(t, cfg)
		assert.ErrorIs(t, err, simerr.ErrBadMigrationMatrix)
	})
}

func TestFullARGNeedsContinuousTime(t *testing.T) {
	t.Run("dtwf", func(t *testing.T) {
		cfg := hudsonConfig(t, 10, 1e-3)
		cfg.Demography = demography.Single(20)
		cfg.Model = ModelSpec{Kind: ModelDTWF}
		cfg.RecordFullARG = true
		sink := tables.NewTableCollection(1000)
		_, err := New(cfg, sink)
		assert.ErrorIs(t, err, simerr.ErrUnsupportedOperation)
		assert.Equal(t, 0, sink.NumNodes())
	})
	t.Run("pedigree", func(t *testing.T) {
		cfg := pedigreeConfig(t)
		cfg.RecordFullARG = true
		sink := tables.NewTableCollection(1000)
		_, err := New(cfg, sink)
		assert.ErrorIs(t, err, simerr.ErrUnsupportedOperation)
		assert.Equal(t, 0, sink.NumNodes())
	})
	t.Run("dtwf without full arg", func(t *testing.T) {
		cfg := hudsonConfig(t, 10, 1e-3)
		cfg.Demography = demography.Single(20)
		cfg.Model = ModelSpec{Kind: ModelDTWF}
		tc, res, err := run(t, cfg)
		require.NoError(t, err)
		assert.Equal(t, StatusCoalesced, res.Status)
		for _, e := range tc.Edges() {
			assert.Less(t, tc.Nodes()[e.Child].Time, tc.Nodes()[e.Parent].Time)
		}
	})
}

func TestMultipleMergerModelsCoalesce(t *testing.T) {
	models := []ModelSpec{
		{Kind: ModelBeta, Beta: &BetaParams{Alpha: 1.5}},
		{Kind: ModelBeta, Beta: &BetaParams{Alpha: 1.1, TruncationPoint: 0.5}},
		{Kind: ModelDirac, Dirac: &DiracParams{Psi: 0.5, C: 2}},
	}
	for _, m := range models {
		t.Run(string(m.Kind), func(t *testing.T) {
			cfg := hudsonConfig(t, 12, 1e-3)
			cfg.Model = m
			tc, res, err := run(t, cfg)
			require.NoError(t, err)
			assert.Equal(t, StatusCoalesced, res.Status)
			assert.Equal(t, m.Kind, res.Model)
			assert.Positive(t, res.Counters.CommonAncestor)
			breakpoints := tc.Breakpoints()
			for i := 0; i+1 < len(breakpoints); i++ {
				marginalRoot(t, tc, (breakpoints[i]+breakpoints[i+1])/2)
			}
		})
	}
}

func TestDiracMergesManyLineagesAtOnce(t *testing.T) {
	const n = 20
	cfg := hudsonConfig(t, n, 0)
	cfg.Ploidy = 1
	cfg.Model = ModelSpec{Kind: ModelDirac, Dirac: &DiracParams{Psi: 1, C: 1000}}
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	require.Equal(t, StatusCoalesced, res.Status)
	assert.Less(t, res.Counters.CommonAncestor, n-1)

	children := map[tables.NodeID]int{}
	for _, e := range tc.Edges() {
		children[e.Parent]++
	}
	widest := 0
	for _, c := range children {
		widest = max(widest, c)
	}
	assert.Greater(t, widest, 2)
	assert.Len(t, tc.Roots(), 1)
}

func TestMultipleMergerSameSeed(t *testing.T) {
	cfg := hudsonConfig(t, 10, 1e-3)
	cfg.Model = ModelSpec{Kind: ModelBeta, Beta: &BetaParams{Alpha: 1.3}}
	a, resA, err := run(t, cfg)
	require.NoError(t, err)
	b, resB, err := run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Edges(), b.Edges())
	assert.Equal(t, resA.Counters, resB.Counters)
}

func geneConversionConfig(t *testing.T) Config {
	cfg := hudsonConfig(t, 6, 0)
	cfg.GeneConversionRate = 5e-3
	cfg.GeneConversionTrackLength = 50
	return cfg
}

func TestGeneConversion(t *testing.T) {
	var seen int
	obs := ObserverFunc(func(e EventInfo) {
		if e.Kind == EventGeneConversion {
			seen++
		}
	})
	tc, res, err := run(t, geneConversionConfig(t), WithObserver(obs))
	require.NoError(t, err)
	require.Equal(t, StatusCoalesced, res.Status)
	require.Greater(t, res.Counters.GeneConversion, 0)
	assert.Equal(t, res.Counters.GeneConversion, seen)
	assert.Equal(t, 0, res.Counters.Recombination)

	breakpoints := tc.Breakpoints()
	require.Greater(t, len(breakpoints), 2)
	for i := 0; i+1 < len(breakpoints); i++ {
		marginalRoot(t, tc, (breakpoints[i]+breakpoints[i+1])/2)
	}
}

func TestGeneConversionFullARG(t *testing.T) {
	cfg := geneConversionConfig(t)
	cfg.RecordFullARG = true
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	require.Greater(t, res.Counters.GeneConversion, 0)

	converted := 0
	for _, n := range tc.Nodes() {
		if n.Flags&tables.NodeIsGeneConversion != 0 {
			converted++
		}
	}
	assert.Equal(t, 2*res.Counters.GeneConversion, converted)
	marginalRoot(t, tc, 500)
}

func TestGeneConversionOnDiscreteGenome(t *testing.T) {
	cfg := geneConversionConfig(t)
	rm, err := ratemap.Uniform(1000, 0, true)
	require.NoError(t, err)
	cfg.RateMap = rm
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	require.Greater(t, res.Counters.GeneConversion, 0)
	for _, x := range tc.Breakpoints() {
		assert.Equal(t, math.Floor(x), x)
	}
}

func TestGeneConversionUnderSMC(t *testing.T) {
	cfg := geneConversionConfig(t)
	cfg.Model = ModelSpec{Kind: ModelSMC}
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusCoalesced, res.Status)
	marginalRoot(t, tc, 250)
}

// linearTrajectory steps down from end in 18 equal steps of 0.05.
func linearTrajectory(_ *rand.Rand, start, end, _, _ float64) ([]float64, error) {
	out := make([]float64, 0, 19)
	for i := 0; i < 18; i++ {
		out = append(out, end-float64(i)*0.05)
	}
	return append(out, start), nil
}

func sweepModel(trajectory TrajectoryFunc) ModelSpec {
	return ModelSpec{Kind: ModelSweep, Sweep: &SweepParams{
		Position:       500,
		StartFrequency: 0.05,
		EndFrequency:   0.95,
		Alpha:          200,
		DT:             0.01,
		Trajectory:     trajectory,
	}}
}

func TestSweepThenHudson(t *testing.T) {
	cfg := hudsonConfig(t, 8, 1e-4)
	cfg.Model = sweepModel(linearTrajectory)
	tc, res, err := run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusCoalesced, res.Status)
	assert.Positive(t, res.Counters.SweepSteps)
	assert.LessOrEqual(t, res.Counters.SweepSteps, 19)
	marginalRoot(t, tc, 500)
}

func TestDemographicEventDuringSweep(t *testing.T) {
	cfg := hudsonConfig(t, 8, 0)
	cfg.Model = sweepModel(linearTrajectory)
	cfg.Demography.Events = []demography.Event{demography.CensusEvent{Time: 2.5}}
	_, _, err := run(t, cfg)
	assert.ErrorIs(t, err, simerr.ErrEventsDuringSweep)
}

func TestGenicSelectionTrajectory(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	traj, err := GenicSelectionTrajectory(rng, 0.1, 0.9, 500, 1e-4)
	require.NoError(t, err)
	require.Greater(t, len(traj), 2)
	assert.Equal(t, 0.9, traj[0])
	assert.Equal(t, 0.1, traj[len(traj)-1])
	for _, x := range traj {
		assert.True(t, x >= 0.1 && x <= 0.9, "frequency %g out of range", x)
	}
}

func pedigreeConfig(t *testing.T) Config {
	ped := &Pedigree{Individuals: []Individual{
		{ID: 0, Parents: [2]int{2, 3}, Time: 0, Sample: true},
		{ID: 1, Parents: [2]int{2, 3}, Time: 0, Sample: true},
		{ID: 2, Parents: [2]int{4, -1}, Time: 1},
		{ID: 3, Parents: [2]int{-1, -1}, Time: 1},
		{ID: 4, Parents: [2]int{-1, -1}, Time: 2},
	}}
	cfg := hudsonConfig(t, 4, 1e-4)
	cfg.Model = ModelSpec{Kind: ModelPedigree}
	cfg.Pedigree = ped
	return cfg
}

func TestPedigreeClimb(t *testing.T) {
	var visits []float64
	obs := ObserverFunc(func(e EventInfo) {
		if e.Kind == EventPedigree {
			visits = append(visits, e.Time)
		}
	})
	tc, res, err := run(t, pedigreeConfig(t), WithObserver(obs))
	require.NoError(t, err)
	assert.Equal(t, StatusCoalesced, res.Status)
	assert.Equal(t, ModelHudson, res.Model)
	assert.Equal(t, len(visits), res.Counters.PedigreeEvents)
	assert.Equal(t, []float64{0, 0}, visits[:2])
	for i := 1; i < len(visits); i++ {
		assert.LessOrEqual(t, visits[i-1], visits[i])
	}
	marginalRoot(t, tc, 100)
}

func TestPedigreeValidation(t *testing.T) {
	cfg := pedigreeConfig(t)
	cfg.Samples = cfg.Samples[:2]
	_, err := New(cfg, tables.NewTableCollection(1000))
	assert.ErrorIs(t, err, simerr.ErrBadPedigreeNumSamples)

	cfg = pedigreeConfig(t)
	cfg.Pedigree.Individuals[0].Parents[0] = 99
	_, err = New(cfg, tables.NewTableCollection(1000))
	assert.ErrorIs(t, err, simerr.ErrBadPedigreeID)

	cfg = pedigreeConfig(t)
	cfg.Pedigree.Individuals[2].Time = 0
	_, err = New(cfg, tables.NewTableCollection(1000))
	assert.ErrorIs(t, err, simerr.ErrBadPedigreeID)
}
