package coalsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"coalsim/internal/config"
	"coalsim/internal/demography"
	"coalsim/internal/logging"
	"coalsim/internal/metrics"
	"coalsim/internal/model"
	"coalsim/internal/replicate"
	"coalsim/internal/sim"
	"coalsim/internal/stats"
	"coalsim/internal/storage"
	"coalsim/internal/tables"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "coalsim.db"

	// profilePoints is the number of positions at which batch TMRCA
	// profiles are sampled.
	profilePoints = 100
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *slog.Logger
	// Metrics, when set, observes every simulated event and run.
	Metrics *metrics.Collector
	Tracer  trace.Tracer
}

type Client struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	runsDir    string
	exportsDir string
}

// SimulateResult is one run held in memory.
type SimulateResult struct {
	Result sim.Result
	Tables *tables.TableCollection
	Trees  []stats.TreeStats
}

type ReplicatesRequest struct {
	Scenario config.Scenario
	// SkipArtifacts keeps runs in the store only.
	SkipArtifacts bool
}

type ReplicatesSummary struct {
	// BatchID names the batch record; empty when artifacts are skipped.
	BatchID      string
	RunIDs       []string
	ArtifactDirs []string
	Failures     []error
	Summary      stats.ReplicateSummary
}

type RunsRequest struct {
	Scenario string
	Limit    int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Scenario     string
	Replicate    int
	Seed         int64
	Model        string
	Status       string
	Trees        int
	MeanTMRCA    float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Simulate runs cfg once in memory. On a simulation failure the partial
// graph is returned together with the error.
func (c *Client) Simulate(ctx context.Context, cfg sim.Config) (SimulateResult, error) {
	if cfg.RateMap == nil {
		return SimulateResult{}, errors.New("simulate requires a recombination map")
	}
	tc := tables.NewTableCollection(cfg.RateMap.SequenceLength())
	opts := []sim.Option{sim.WithLogger(c.logger)}
	if c.metrics != nil {
		opts = append(opts, sim.WithObserver(c.metrics))
	}
	s, err := sim.New(cfg, tc, opts...)
	if err != nil {
		return SimulateResult{}, err
	}
	started := time.Now()
	res, runErr := s.Run(ctx)
	if c.metrics != nil {
		c.metrics.RecordRun(res.Status, time.Since(started))
	}
	out := SimulateResult{Result: res, Tables: tc}
	out.Trees = stats.MarginalTrees(model.GraphRecord{
		SequenceLength: tc.SequenceLength(),
		Nodes:          tc.Nodes(),
		Edges:          tc.Edges(),
	})
	return out, runErr
}

// Replicates runs every replicate of a scenario, stores each run and, unless
// skipped, writes its artifacts and index entry under the runs directory.
func (c *Client) Replicates(ctx context.Context, req ReplicatesRequest) (ReplicatesSummary, error) {
	s := req.Scenario
	cfg, err := s.Build()
	if err != nil {
		return ReplicatesSummary{}, fmt.Errorf("build scenario %s: %w", s.Name, err)
	}

	eventTrace, err := logging.NewEventTrace(filepath.Join(c.runsDir, "traces", s.Name), s.Logging.Level)
	if err != nil {
		return ReplicatesSummary{}, err
	}
	defer eventTrace.Close()

	opts := []replicate.Option{
		replicate.WithStore(c.store),
		replicate.WithLogger(c.logger),
		replicate.WithTracer(c.tracer),
	}
	if c.metrics != nil {
		opts = append(opts, replicate.WithObserver(c.metrics), replicate.WithRunHook(c.metrics.RecordRun))
	}
	if eventTrace != nil {
		opts = append(opts, replicate.WithObserver(sim.ObserverFunc(func(e sim.EventInfo) {
			eventTrace.Log(map[string]any{
				"scenario":   s.Name,
				"kind":       e.Kind.String(),
				"time":       e.Time,
				"population": e.Population,
				"dest":       e.Dest,
				"rate":       e.Rate,
				"lineages":   e.Lineages,
				"model":      string(e.Model),
			})
		})))
	}

	started := time.Now().UTC()
	outcomes, err := replicate.NewRunner(opts...).Run(ctx, replicate.Job{
		Scenario:   s.Name,
		Config:     cfg,
		Replicates: s.Replicates,
		Workers:    s.Workers,
	})
	if err != nil {
		return ReplicatesSummary{}, err
	}

	var summary ReplicatesSummary
	runs := make([]model.RunRecord, 0, len(outcomes))
	graphs := make([]stats.GraphSummary, 0, len(outcomes))
	trees := make([][]stats.TreeStats, 0, len(outcomes))
	for _, out := range outcomes {
		summary.RunIDs = append(summary.RunIDs, out.Run.ID)
		runs = append(runs, out.Run)
		graphs = append(graphs, out.Summary)
		if out.Err != nil {
			summary.Failures = append(summary.Failures, fmt.Errorf("replicate %d: %w", out.Index, out.Err))
		}
		if req.SkipArtifacts {
			continue
		}
		runTrees := stats.MarginalTrees(out.Graph)
		trees = append(trees, runTrees)
		dir, err := c.writeArtifacts(s, out, runTrees)
		if err != nil {
			return summary, err
		}
		summary.ArtifactDirs = append(summary.ArtifactDirs, dir)
	}
	summary.Summary = stats.SummariseReplicates(s.Name, runs, graphs)

	if !req.SkipArtifacts {
		batch := stats.BatchRecord{
			ID:             uuid.NewString(),
			Scenario:       s.Name,
			Seed:           s.Seed,
			Replicates:     s.Replicates,
			Workers:        s.Workers,
			StartedAtUTC:   started.Format(time.RFC3339Nano),
			CompletedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
			RunIDs:         summary.RunIDs,
			Summary:        summary.Summary,
			TMRCAProfile:   stats.TMRCAProfile(trees, cfg.RateMap.SequenceLength(), profilePoints),
		}
		for _, failure := range summary.Failures {
			batch.Failures = append(batch.Failures, failure.Error())
		}
		if err := stats.WriteBatch(c.runsDir, batch); err != nil {
			return summary, err
		}
		summary.BatchID = batch.ID
	}
	c.logger.Info("replicates finished",
		"scenario", s.Name,
		"runs", summary.Summary.Runs,
		"coalesced", summary.Summary.Coalesced,
		"failed", summary.Summary.Failed,
	)
	return summary, nil
}

func (c *Client) writeArtifacts(s config.Scenario, out replicate.Outcome, trees []stats.TreeStats) (string, error) {
	artifacts := stats.RunArtifacts{
		Run:     out.Run,
		Graph:   out.Graph,
		Summary: out.Summary,
		Trees:   trees,
	}
	dir, err := stats.WriteRunArtifacts(c.runsDir, artifacts)
	if err != nil {
		return "", err
	}
	if err := config.Write(filepath.Join(dir, stats.ScenarioYAMLFile), s); err != nil {
		return "", err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:        out.Run.ID,
		Scenario:     out.Run.Scenario,
		Replicate:    out.Run.Replicate,
		Seed:         out.Run.Seed,
		Model:        out.Run.Model,
		Status:       out.Run.Status,
		Trees:        out.Summary.Trees,
		MeanTMRCA:    out.Summary.MeanTMRCA,
		CreatedAtUTC: out.Run.StartedAt.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return "", err
	}
	return dir, nil
}

// Batches lists batch records, newest first.
func (c *Client) Batches(_ context.Context, scenario string) ([]stats.BatchRecord, error) {
	batches, err := stats.ListBatches(c.runsDir)
	if err != nil {
		return nil, err
	}
	if scenario == "" {
		return batches, nil
	}
	out := batches[:0]
	for _, b := range batches {
		if b.Scenario == scenario {
			out = append(out, b)
		}
	}
	return out, nil
}

// Runs lists indexed runs, newest first.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		if req.Scenario != "" && e.Scenario != req.Scenario {
			continue
		}
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Scenario:     e.Scenario,
			Replicate:    e.Replicate,
			Seed:         e.Seed,
			Model:        e.Model,
			Status:       e.Status,
			Trees:        e.Trees,
			MeanTMRCA:    e.MeanTMRCA,
		})
		if len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

// Run returns the stored record of one run, falling back to its artifacts
// when the store does not hold it.
func (c *Client) Run(ctx context.Context, runID string) (model.RunRecord, error) {
	rec, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		return rec, nil
	}
	artifacts, ok, err := stats.ReadRunArtifacts(c.runsDir, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return artifacts.Run, nil
}

// Graph returns the stored graph of one run.
func (c *Client) Graph(ctx context.Context, runID string) (model.GraphRecord, error) {
	g, ok, err := c.store.GetGraph(ctx, runID)
	if err != nil {
		return model.GraphRecord{}, err
	}
	if !ok {
		return model.GraphRecord{}, fmt.Errorf("graph not found: %s", runID)
	}
	return g, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.runsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Demography prints the epochs of a scenario's demographic model.
func (c *Client) Demography(w io.Writer, s config.Scenario) error {
	cfg, err := s.Build()
	if err != nil {
		return err
	}
	return PrintDemography(w, cfg.Demography)
}

func PrintDemography(w io.Writer, m demography.Model) error {
	d, err := demography.NewDebugger(m)
	if err != nil {
		return err
	}
	return d.PrintHistory(w)
}
