// Package replicate runs independent replicates of one simulation
// configuration concurrently and persists their results.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"coalsim/internal/model"
	"coalsim/internal/sim"
	"coalsim/internal/simerr"
	"coalsim/internal/stats"
	"coalsim/internal/storage"
	"coalsim/internal/tables"
)

const tracerName = "coalsim/replicate"

// SeedFor derives the seed of replicate i from a base seed with the
// splitmix64 finaliser, so neighbouring replicates get unrelated streams.
func SeedFor(base int64, i int) int64 {
	z := uint64(base) + uint64(i+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

type Job struct {
	Scenario   string
	Config     sim.Config
	Replicates int
	// Workers bounds concurrency; zero uses GOMAXPROCS.
	Workers int
}

// Outcome is the result of one replicate. Err holds a simulation failure;
// the graph emitted before the failure is still present.
type Outcome struct {
	Index   int
	Run     model.RunRecord
	Graph   model.GraphRecord
	Summary stats.GraphSummary
	Err     error
}

type Runner struct {
	store     storage.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	observers []sim.Observer
	onDone    func(sim.Status, time.Duration)
	now       func() time.Time
}

type Option func(*Runner)

func WithStore(s storage.Store) Option { return func(r *Runner) { r.store = s } }

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithObserver attaches an observer to every replicate. It is called from
// several goroutines at once.
func WithObserver(o sim.Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithRunHook is called after each replicate finishes.
func WithRunHook(fn func(sim.Status, time.Duration)) Option {
	return func(r *Runner) { r.onDone = fn }
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every replicate of job. Simulation failures are reported per
// outcome and do not stop the batch; cancellation and storage failures do.
func (r *Runner) Run(ctx context.Context, job Job) ([]Outcome, error) {
	if job.Replicates < 1 {
		return nil, simerr.Errorf(simerr.ErrBadParamValue, "replicates %d", job.Replicates)
	}
	workers := job.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ctx, span := r.tracer.Start(ctx, "coalsim.batch", trace.WithAttributes(
		attribute.String("scenario", job.Scenario),
		attribute.Int("replicates", job.Replicates),
		attribute.Int("workers", workers),
	))
	defer span.End()

	outcomes := make([]Outcome, job.Replicates)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < job.Replicates; i++ {
		g.Go(func() error {
			out, err := r.runOne(gctx, job, i)
			outcomes[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcomes, err
	}
	r.logger.Info("batch finished", "scenario", job.Scenario, "replicates", job.Replicates)
	return outcomes, nil
}

func (r *Runner) runOne(ctx context.Context, job Job, i int) (Outcome, error) {
	cfg := job.Config
	cfg.Seed = SeedFor(job.Config.Seed, i)
	ctx, span := r.tracer.Start(ctx, "coalsim.replicate", trace.WithAttributes(
		attribute.Int("replicate", i),
		attribute.Int64("seed", cfg.Seed),
	))
	defer span.End()

	out := Outcome{Index: i}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	tc := tables.NewTableCollection(cfg.RateMap.SequenceLength())
	opts := []sim.Option{sim.WithLogger(r.logger.With("replicate", i))}
	for _, o := range r.observers {
		opts = append(opts, sim.WithObserver(o))
	}
	started := r.now()
	s, err := sim.New(cfg, tc, opts...)
	if err != nil {
		return out, fmt.Errorf("replicate %d: %w", i, err)
	}
	res, simErr := s.Run(ctx)
	elapsed := time.Since(started)
	if simErr != nil && (errors.Is(simErr, context.Canceled) || errors.Is(simErr, context.DeadlineExceeded)) {
		return out, simErr
	}

	out.Err = simErr
	out.Graph = model.GraphRecord{
		VersionedRecord: storage.Stamp(),
		SequenceLength:  tc.SequenceLength(),
		Nodes:           tc.Nodes(),
		Edges:           tc.Edges(),
		Migrations:      tc.Migrations(),
	}
	out.Summary = stats.SummariseGraph(out.Graph)
	out.Run = runRecord(job.Scenario, i, cfg.Seed, res, simErr, started, elapsed, tc, out.Summary)
	out.Graph.RunID = out.Run.ID

	span.SetAttributes(
		attribute.String("status", res.Status.String()),
		attribute.Int("nodes", tc.NumNodes()),
		attribute.Int("edges", tc.NumEdges()),
	)
	if simErr != nil {
		span.RecordError(simErr)
		span.SetStatus(codes.Error, simErr.Error())
		r.logger.Warn("replicate failed", "replicate", i, "seed", cfg.Seed, "err", simErr)
	}
	if r.onDone != nil {
		r.onDone(res.Status, elapsed)
	}

	if r.store != nil {
		if err := r.store.SaveRun(ctx, out.Run); err != nil {
			return out, fmt.Errorf("save run %s: %w", out.Run.ID, err)
		}
		if err := r.store.SaveGraph(ctx, out.Graph); err != nil {
			return out, fmt.Errorf("save graph %s: %w", out.Run.ID, err)
		}
	}
	return out, nil
}

func runRecord(scenario string, i int, seed int64, res sim.Result, simErr error, started time.Time,
	elapsed time.Duration, tc *tables.TableCollection, summary stats.GraphSummary) model.RunRecord {
	rec := model.RunRecord{
		VersionedRecord:        storage.Stamp(),
		ID:                     uuid.NewString(),
		Scenario:               scenario,
		Replicate:              i,
		Seed:                   seed,
		Model:                  string(res.Model),
		Status:                 res.Status.String(),
		Time:                   res.Time,
		StartedAt:              started.UTC(),
		Elapsed:                elapsed.Seconds(),
		Events:                 res.Counters.Events,
		CommonAncestors:        res.Counters.CommonAncestor,
		RejectedCommonAncestor: res.Counters.RejectedCommonAncestor,
		Recombinations:         res.Counters.Recombination,
		Migrations:             res.Counters.TotalMigrations(),
		Generations:            res.Counters.Generations,
		Nodes:                  tc.NumNodes(),
		Edges:                  tc.NumEdges(),
		Trees:                  summary.Trees,
	}
	if simErr != nil {
		rec.ErrorCode = int(simerr.CodeOf(simErr))
		rec.Error = simErr.Error()
	}
	return rec
}
