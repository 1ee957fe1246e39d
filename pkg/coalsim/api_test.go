package coalsim

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coalsim/internal/config"
	"coalsim/internal/demography"
	"coalsim/internal/metrics"
	"coalsim/internal/ratemap"
	"coalsim/internal/sim"
	"coalsim/internal/simerr"
)

func newTestClient(t *testing.T, collector *metrics.Collector) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	c, err := New(Options{
		RunsDir:    filepath.Join(base, "runs"),
		ExportsDir: filepath.Join(base, "exports"),
		Metrics:    collector,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Init(context.Background()))
	return c, base
}

func kingmanScenario() config.Scenario {
	return config.Scenario{
		Name:          "kingman",
		Seed:          5,
		Replicates:    3,
		Workers:       2,
		Recombination: config.RecombinationConfig{SequenceLength: 1000, Rate: 1e-4},
		Populations:   []config.PopulationConfig{{Name: "pop", InitialSize: 100}},
		Samples:       []config.SampleConfig{{Count: 5}},
		Logging:       config.LoggingConfig{Level: "trace"},
	}
}

func TestClientSimulate(t *testing.T) {
	c, _ := newTestClient(t, nil)
	rm, err := ratemap.Uniform(1000, 0, false)
	require.NoError(t, err)
	res, err := c.Simulate(context.Background(), sim.Config{
		Samples:    []sim.Sample{{}, {}, {}},
		Demography: demography.Single(50),
		RateMap:    rm,
		Seed:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, sim.StatusCoalesced, res.Result.Status)
	require.Len(t, res.Trees, 1)
	assert.Equal(t, 1, res.Trees[0].Roots)
	assert.Equal(t, 5, res.Tables.NumNodes())
}

func TestClientSimulateReturnsPartialGraph(t *testing.T) {
	c, _ := newTestClient(t, nil)
	rm, err := ratemap.Uniform(10, 0, false)
	require.NoError(t, err)
	res, err := c.Simulate(context.Background(), sim.Config{
		Samples: []sim.Sample{{Population: 0}, {Population: 1}},
		Demography: demography.Model{
			Populations: []demography.Population{{InitialSize: 10}, {InitialSize: 10}},
		},
		RateMap: rm,
	})
	assert.ErrorIs(t, err, simerr.ErrInfiniteWaitingTime)
	assert.Equal(t, sim.StatusIncomplete, res.Result.Status)
	assert.Equal(t, 2, res.Tables.NumNodes())
}

func TestClientReplicatesRunsAndExport(t *testing.T) {
	ctx := context.Background()
	collector := metrics.NewCollector("coalsim")
	c, base := newTestClient(t, collector)

	summary, err := c.Replicates(ctx, ReplicatesRequest{Scenario: kingmanScenario()})
	require.NoError(t, err)
	require.Len(t, summary.RunIDs, 3)
	assert.Len(t, summary.ArtifactDirs, 3)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 3, summary.Summary.Coalesced)

	traceFile := filepath.Join(base, "runs", "traces", "kingman", "events.jsonl")
	info, err := os.Stat(traceFile)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["coalsim_runs_total"])
	assert.True(t, names["coalsim_events_total"])

	batches, err := c.Batches(ctx, "kingman")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, summary.BatchID, batches[0].ID)
	assert.Equal(t, summary.RunIDs, batches[0].RunIDs)
	require.Len(t, batches[0].TMRCAProfile, 100)
	assert.Equal(t, 3, batches[0].TMRCAProfile[0].N)
	other, err := c.Batches(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)

	items, err := c.Runs(ctx, RunsRequest{Scenario: "kingman", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, "coalesced", item.Status)
		assert.Contains(t, summary.RunIDs, item.RunID)
	}
	none, err := c.Runs(ctx, RunsRequest{Scenario: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)

	rec, err := c.Run(ctx, summary.RunIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "kingman", rec.Scenario)
	graph, err := c.Graph(ctx, summary.RunIDs[0])
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, rec.Nodes)

	exported, err := c.Export(ctx, ExportRequest{Latest: true})
	require.NoError(t, err)
	for _, name := range []string{"summary.json", "nodes.csv", "edges.csv", "trees.csv", "scenario.yaml"} {
		_, err := os.Stat(filepath.Join(exported.Directory, name))
		assert.NoError(t, err, name)
	}
	restored, err := config.Load(filepath.Join(exported.Directory, "scenario.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "kingman", restored.Name)
}

func TestClientRunFallsBackToArtifacts(t *testing.T) {
	ctx := context.Background()
	c, base := newTestClient(t, nil)
	summary, err := c.Replicates(ctx, ReplicatesRequest{Scenario: kingmanScenario()})
	require.NoError(t, err)

	// A fresh client has an empty memory store but shares the runs directory.
	fresh, err := New(Options{RunsDir: filepath.Join(base, "runs")})
	require.NoError(t, err)
	require.NoError(t, fresh.Init(ctx))
	rec, err := fresh.Run(ctx, summary.RunIDs[1])
	require.NoError(t, err)
	assert.Equal(t, summary.RunIDs[1], rec.ID)

	_, err = fresh.Graph(ctx, summary.RunIDs[1])
	assert.Error(t, err)
	_, err = fresh.Run(ctx, "missing")
	assert.Error(t, err)
}

func TestClientRequestValidation(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, nil)

	_, err := c.Export(ctx, ExportRequest{RunID: "x", Latest: true})
	assert.Error(t, err)
	_, err = c.Export(ctx, ExportRequest{})
	assert.Error(t, err)
	_, err = c.Export(ctx, ExportRequest{Latest: true})
	assert.Error(t, err)

	bad := kingmanScenario()
	bad.Samples = []config.SampleConfig{{Count: 1}}
	_, err = c.Replicates(ctx, ReplicatesRequest{Scenario: bad})
	assert.ErrorIs(t, err, simerr.ErrInsufficientSamples)

	_, err = New(Options{StoreKind: "cassandra"})
	assert.Error(t, err)
}

func TestClientDemography(t *testing.T) {
	c, _ := newTestClient(t, nil)
	s := kingmanScenario()
	s.Events = []config.EventConfig{{Type: config.EventCensus, Time: 10}}
	var buf bytes.Buffer
	require.NoError(t, c.Demography(&buf, s))
	assert.Contains(t, buf.String(), "Epoch")
	assert.Contains(t, buf.String(), "Census event")
	assert.Contains(t, buf.String(), "pop")
}
