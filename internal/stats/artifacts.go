package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"coalsim/internal/model"
)

const runIndexFile = "run_index.json"

const (
	summaryFile    = "summary.json"
	scenarioFile   = "scenario.json"
	nodesFile      = "nodes.csv"
	edgesFile      = "edges.csv"
	migrationsFile = "migrations.csv"
	treesFile      = "trees.csv"
)

// ScenarioYAMLFile is the name under which callers store the scenario that
// produced a run; it is exported along with the other artifacts.
const ScenarioYAMLFile = "scenario.yaml"

type RunArtifacts struct {
	Run      model.RunRecord   `json:"run"`
	Scenario any               `json:"scenario,omitempty"`
	Graph    model.GraphRecord `json:"-"`
	Summary  GraphSummary      `json:"graph_summary"`
	Trees    []TreeStats       `json:"-"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Scenario     string  `json:"scenario"`
	Replicate    int     `json:"replicate"`
	Seed         int64   `json:"seed"`
	Model        string  `json:"model"`
	Status       string  `json:"status"`
	Trees        int     `json:"trees"`
	MeanTMRCA    float64 `json:"mean_tmrca"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// NewRunArtifacts derives the tree statistics of a finished run.
func NewRunArtifacts(run model.RunRecord, scenario any, graph model.GraphRecord) RunArtifacts {
	trees := MarginalTrees(graph)
	return RunArtifacts{
		Run:      run,
		Scenario: scenario,
		Graph:    graph,
		Summary:  SummariseGraph(graph),
		Trees:    trees,
	}
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, summaryFile), artifacts); err != nil {
		return "", err
	}
	if artifacts.Scenario != nil {
		if err := writeJSON(filepath.Join(runDir, scenarioFile), artifacts.Scenario); err != nil {
			return "", err
		}
	}
	g := artifacts.Graph
	if err := writeCSV(filepath.Join(runDir, nodesFile), []string{"id", "time", "population", "flags"}, len(g.Nodes), func(i int) []string {
		n := g.Nodes[i]
		return []string{strconv.Itoa(i), formatFloat(n.Time), strconv.Itoa(n.Population), strconv.FormatUint(uint64(n.Flags), 10)}
	}); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, edgesFile), []string{"left", "right", "parent", "child"}, len(g.Edges), func(i int) []string {
		e := g.Edges[i]
		return []string{formatFloat(e.Left), formatFloat(e.Right), strconv.Itoa(int(e.Parent)), strconv.Itoa(int(e.Child))}
	}); err != nil {
		return "", err
	}
	if len(g.Migrations) > 0 {
		if err := writeCSV(filepath.Join(runDir, migrationsFile), []string{"left", "right", "node", "source", "dest", "time"}, len(g.Migrations), func(i int) []string {
			m := g.Migrations[i]
			return []string{formatFloat(m.Left), formatFloat(m.Right), strconv.Itoa(int(m.Node)), strconv.Itoa(m.Source), strconv.Itoa(m.Dest), formatFloat(m.Time)}
		}); err != nil {
			return "", err
		}
	}
	if err := WriteTreeSeries(runDir, artifacts.Trees); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{summaryFile, nodesFile, edgesFile, treesFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{scenarioFile, ScenarioYAMLFile, migrationsFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunArtifacts(baseDir, runID string) (RunArtifacts, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RunArtifacts{}, false, nil
		}
		return RunArtifacts{}, false, err
	}
	var artifacts RunArtifacts
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return RunArtifacts{}, false, err
	}
	return artifacts, true, nil
}

func WriteTreeSeries(runDir string, trees []TreeStats) error {
	return writeCSV(filepath.Join(runDir, treesFile), []string{"left", "right", "roots", "tmrca", "branch_length"}, len(trees), func(i int) []string {
		t := trees[i]
		return []string{formatFloat(t.Left), formatFloat(t.Right), strconv.Itoa(t.Roots), formatFloat(t.TMRCA), formatFloat(t.BranchLength)}
	})
}

func ReadTreeSeries(baseDir, runID string) ([]TreeStats, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, treesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []TreeStats{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 5 {
		return nil, false, fmt.Errorf("tree series header must have 5 columns")
	}

	series := make([]TreeStats, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		var t TreeStats
		var values [4]float64
		for i, col := range []int{0, 1, 3, 4} {
			if values[i], err = strconv.ParseFloat(record[col], 64); err != nil {
				return nil, false, err
			}
		}
		if t.Roots, err = strconv.Atoi(record[2]); err != nil {
			return nil, false, err
		}
		t.Left, t.Right, t.TMRCA, t.BranchLength = values[0], values[1], values[2], values[3]
		series = append(series, t)
	}
	return series, true, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(path string, header []string, rows int, row func(int) []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		if err := writer.Write(row(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
