package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coalsim/pkg/coalsim"
)

const scenarioYAML = `
name: cli
seed: 3
replicates: 2
recombination:
  sequence_length: 500
  rate: 1.0e-4
populations:
  - name: anc
    initial_size: 50
samples:
  - count: 4
events:
  - type: population_parameters_change
    time: 20
    initial_size: 100
logging:
  level: warn
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeScenario(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version)

	out, err = execute(t, "--json", "version")
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, version, payload["version"])
}

func TestSimulateListShowExport(t *testing.T) {
	dir := t.TempDir()
	runsDir := filepath.Join(dir, "runs")
	scenario := writeScenario(t, dir)
	metricsFile := filepath.Join(dir, "coalsim.prom")

	out, err := execute(t, "--runs-dir", runsDir, "simulate", scenario, "--replicates", "3", "--metrics-file", metricsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "scenario cli: 3 runs, 3 coalesced")
	assert.Contains(t, out, "coalesced")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `coalsim_runs_total{status="coalesced"} 3`)

	out, err = execute(t, "--runs-dir", runsDir, "--json", "runs", "--scenario", "cli")
	require.NoError(t, err)
	var items []coalsim.RunItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 3)

	out, err = execute(t, "--runs-dir", runsDir, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, items[2].RunID)

	out, err = execute(t, "--runs-dir", runsDir, "batches", "--scenario", "cli")
	require.NoError(t, err)
	assert.Contains(t, out, "cli")

	out, err = execute(t, "--runs-dir", runsDir, "show", items[0].RunID)
	require.NoError(t, err)
	assert.Contains(t, out, items[0].RunID)
	assert.Contains(t, out, "recombinations")

	exports := filepath.Join(dir, "exports")
	out, err = execute(t, "--runs-dir", runsDir, "export", "--latest", "--out", exports)
	require.NoError(t, err)
	assert.Contains(t, out, "exported "+items[0].RunID)
	_, err = os.Stat(filepath.Join(exports, items[0].RunID, "edges.csv"))
	assert.NoError(t, err)
}

func TestSimulateJSONWithoutArtifacts(t *testing.T) {
	dir := t.TempDir()
	runsDir := filepath.Join(dir, "runs")
	out, err := execute(t, "--runs-dir", runsDir, "--json", "simulate", writeScenario(t, dir), "--no-artifacts", "--seed", "9")
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.EqualValues(t, 2, summary["runs"])

	out, err = execute(t, "--runs-dir", runsDir, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs")
}

func TestDemographyCommand(t *testing.T) {
	out, err := execute(t, "demography", writeScenario(t, t.TempDir()))
	require.NoError(t, err)
	assert.Contains(t, out, "Events @ generation 20")
	assert.Contains(t, out, "anc")
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "simulate", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = execute(t, "--runs-dir", dir, "show", "nope")
	assert.Error(t, err)

	_, err = execute(t, "--runs-dir", dir, "export")
	assert.Error(t, err)

	_, err = execute(t, "--store", "cassandra", "runs")
	assert.Error(t, err)
}
