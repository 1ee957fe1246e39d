package sim

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"coalsim/internal/ancestry"
	"coalsim/internal/demography"
	"coalsim/internal/simerr"
	"coalsim/internal/tables"
)

// cancelCheckInterval is how many loop iterations pass between context
// checks.
const cancelCheckInterval = 1024

// scheduler is one simulation model. nextEvent proposes the earliest event
// the model would produce from the current state, or a proposal at +Inf when
// none can happen; applyEvent carries it out after the clock has advanced.
type scheduler interface {
	kind() ModelKind
	begin() error
	nextEvent() (proposal, error)
	applyEvent(p proposal) error
	complete() bool
	finish() error
}

type proposal struct {
	time       float64
	kind       EventKind
	population int
	dest       int
	label      int
	rate       float64
}

func noEvent() proposal { return proposal{time: math.Inf(1)} }

type pendingSample struct {
	index      int
	node       tables.NodeID
	population int
	time       float64
}

type Option func(*Simulator)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Simulator) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Simulator owns all mutable state of one run. It is not safe for
// concurrent use; independent runs need independent simulators.
type Simulator struct {
	cfg       Config
	sink      tables.Sink
	migSink   tables.MigrationSink
	logger    *slog.Logger
	observers []Observer

	rng     *rand.Rand
	tracker *ancestry.Tracker
	demo    *demography.State
	edges   tables.EdgeBuffer

	time      float64
	endTime   float64
	nodeTimes []float64
	pending   []pendingSample

	// sampleLineages[i] is the lineage started by sample i, or NullLineage
	// while the sample is pending.
	sampleLineages []ancestry.LineageID

	current    scheduler
	nextChange int
	counters   Counters
	started    bool
}

// Validate reports the configuration error New would return for cfg, if any.
func Validate(cfg Config) error {
	return cfg.withDefaults().validate()
}

// New validates cfg and prepares a run that writes into sink.
func New(cfg Config, sink tables.Sink, opts ...Option) (*Simulator, error) {
	if sink == nil {
		return nil, simerr.Errorf(simerr.ErrBadParamValue, "nil sink")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	numLabels := 1
	for _, m := range append([]ModelSpec{cfg.Model}, changeModels(cfg.ModelChanges)...) {
		if m.Kind == ModelSweep {
			numLabels = 2
		}
	}
	tracker, err := ancestry.NewTracker(cfg.Demography.NumPopulations(), numLabels, cfg.RateMap)
	if err != nil {
		return nil, err
	}
	n := cfg.Demography.NumPopulations()
	s := &Simulator{
		cfg:     cfg,
		sink:    sink,
		logger:  slog.New(slog.DiscardHandler),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		tracker: tracker,
		demo:    demography.NewState(cfg.Demography, cfg.StartTime),
		time:    cfg.StartTime,
		endTime: cfg.endTime(),
	}
	if ms, ok := sink.(tables.MigrationSink); ok && cfg.RecordMigrations {
		s.migSink = ms
	}
	s.counters.Migration = make([][]int, n)
	for j := range s.counters.Migration {
		s.counters.Migration[j] = make([]int, n)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current, err = s.newScheduler(cfg.Model)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func changeModels(changes []ModelChange) []ModelSpec {
	out := make([]ModelSpec, len(changes))
	for i, c := range changes {
		out[i] = c.Model
	}
	return out
}

func (s *Simulator) newScheduler(m ModelSpec) (scheduler, error) {
	switch m.Kind {
	case ModelHudson:
		return &hudson{s: s, variant: ModelHudson}, nil
	case ModelSMC:
		return &hudson{s: s, variant: ModelSMC}, nil
	case ModelSMCPrime:
		return &hudson{s: s, variant: ModelSMCPrime}, nil
	case ModelBeta:
		return &hudson{s: s, variant: ModelBeta, merger: newBetaProcess(*m.Beta, s.cfg.Ploidy)}, nil
	case ModelDirac:
		return &hudson{s: s, variant: ModelDirac,
			merger: &diracProcess{psi: m.Dirac.Psi, c: m.Dirac.C, ploidy: s.cfg.Ploidy}}, nil
	case ModelDTWF:
		return &dtwf{s: s}, nil
	case ModelSweep:
		return newSweep(s, *m.Sweep), nil
	case ModelPedigree:
		return newPedigreeClimb(s, s.cfg.Pedigree), nil
	default:
		return nil, simerr.Errorf(simerr.ErrBadModel, "model %q", m.Kind)
	}
}

func (s *Simulator) Time() float64           { return s.time }
func (s *Simulator) Counters() Counters      { return s.counters }
func (s *Simulator) NumLineages() int        { return s.tracker.NumLineages() }
func (s *Simulator) NumSegments() int        { return s.tracker.NumSegments() }
func (s *Simulator) CurrentModel() ModelKind { return s.current.kind() }

// TotalLength is the total ancestral material still tracked.
func (s *Simulator) TotalLength() float64 { return s.tracker.TotalLength() }

// Run simulates until every region has coalesced, the end time is reached,
// or a failure stops the run. A Simulator runs once.
func (s *Simulator) Run(ctx context.Context) (Result, error) {
	if s.started {
		return Result{}, simerr.Errorf(simerr.ErrBadState, "simulator already ran")
	}
	s.started = true
	if err := ctx.Err(); err != nil {
		return s.result(StatusIncomplete), err
	}
	if err := s.initialise(); err != nil {
		return s.result(StatusIncomplete), err
	}
	if err := s.current.begin(); err != nil {
		return s.result(StatusIncomplete), err
	}
	s.logger.Debug("simulation started", "model", s.current.kind(), "samples", len(s.cfg.Samples),
		"populations", s.demo.NumPopulations(), "seed", s.cfg.Seed)

	for {
		if s.tracker.NumLineages() == 0 && len(s.pending) == 0 {
			if err := s.current.finish(); err != nil {
				return s.result(StatusIncomplete), err
			}
			s.logger.Debug("simulation coalesced", "time", s.time, "events", s.counters.Events)
			return s.result(StatusCoalesced), nil
		}
		if s.cfg.MaxEvents > 0 && s.counters.Events >= s.cfg.MaxEvents {
			return s.result(StatusIncomplete), simerr.Errorf(simerr.ErrInfiniteWaitingTime,
				"event budget of %d exhausted at time %g", s.cfg.MaxEvents, s.time)
		}
		s.counters.Events++
		if s.counters.Events%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return s.result(StatusIncomplete), err
			}
		}

		if s.current.complete() {
			if err := s.completeModel(); err != nil {
				return s.result(StatusIncomplete), err
			}
			continue
		}

		p, err := s.current.nextEvent()
		if err != nil {
			return s.result(StatusIncomplete), err
		}
		det := s.nextDeterministic()
		if det.time <= p.time && !math.IsInf(det.time, 1) {
			if det.kind == detEnd {
				if err := s.capLineages(); err != nil {
					return s.result(StatusIncomplete), err
				}
				s.logger.Debug("simulation reached end time", "time", s.time, "lineages", s.tracker.NumLineages())
				return s.result(StatusMaxTime), nil
			}
			if err := s.applyDeterministic(det); err != nil {
				return s.result(StatusIncomplete), err
			}
			continue
		}
		if math.IsInf(p.time, 1) {
			return s.result(StatusIncomplete), simerr.Errorf(simerr.ErrInfiniteWaitingTime,
				"%d lineages at time %g with no possible event", s.tracker.NumLineages(), s.time)
		}
		if p.time < s.time {
			return s.result(StatusIncomplete), simerr.Errorf(simerr.ErrTimeTravel, "event at %g before %g", p.time, s.time)
		}
		s.time = p.time
		if err := s.current.applyEvent(p); err != nil {
			return s.result(StatusIncomplete), err
		}
	}
}

func (s *Simulator) result(status Status) Result {
	return Result{
		Status:   status,
		Time:     s.time,
		Model:    s.current.kind(),
		Counters: s.counters,
		Lineages: s.tracker.NumLineages(),
		Segments: s.tracker.NumSegments(),
	}
}

func (s *Simulator) initialise() error {
	length := s.cfg.RateMap.SequenceLength()
	s.tracker.ReserveOverlap(0, length, len(s.cfg.Samples))
	for i, sample := range s.cfg.Samples {
		node, err := s.emitNode(sample.Time, sample.Population, tables.NodeIsSample)
		if err != nil {
			return err
		}
		if sample.Time <= s.cfg.StartTime || s.cfg.Model.Kind == ModelPedigree {
			id, err := s.tracker.AddSample(node, sample.Population, 0, length, 0)
			if err != nil {
				return err
			}
			s.sampleLineages = append(s.sampleLineages, id)
			continue
		}
		s.sampleLineages = append(s.sampleLineages, ancestry.NullLineage)
		s.pending = append(s.pending, pendingSample{index: i, node: node, population: sample.Population, time: sample.Time})
	}
	sort.SliceStable(s.pending, func(i, j int) bool { return s.pending[i].time < s.pending[j].time })
	return nil
}

type detKind int

const (
	detNone detKind = iota
	detSample
	detDemographic
	detModelChange
	detEnd
)

type deterministic struct {
	time float64
	kind detKind
}

// nextDeterministic picks the earliest scheduled event. On ties samples come
// first, then demographic events, then model changes; the end time loses to
// nothing.
func (s *Simulator) nextDeterministic() deterministic {
	best := deterministic{time: math.Inf(1), kind: detNone}
	consider := func(t float64, k detKind) {
		if t < best.time {
			best = deterministic{time: t, kind: k}
		}
	}
	if len(s.pending) > 0 {
		consider(s.pending[0].time, detSample)
	}
	consider(s.demo.NextEventTime(), detDemographic)
	if s.nextChange < len(s.cfg.ModelChanges) {
		if t := s.cfg.ModelChanges[s.nextChange].Time; t != nil {
			consider(*t, detModelChange)
		}
	}
	if s.endTime <= best.time {
		best = deterministic{time: s.endTime, kind: detEnd}
	}
	return best
}

func (s *Simulator) applyDeterministic(det deterministic) error {
	if det.time < s.time {
		return simerr.Errorf(simerr.ErrTimeTravel, "scheduled event at %g before current time %g", det.time, s.time)
	}
	if det.kind == detDemographic && s.current.kind() == ModelSweep {
		return simerr.Errorf(simerr.ErrEventsDuringSweep, "demographic event at %g", det.time)
	}
	s.time = det.time
	switch det.kind {
	case detSample:
		return s.addPendingSample()
	case detDemographic:
		e, err := s.demo.ApplyNext(s)
		if err != nil {
			return err
		}
		s.counters.DemographicEvents++
		s.logger.Debug("demographic event", "time", s.time, "event", e.String())
		s.observe(EventInfo{Kind: EventDemographic, Time: s.time, Population: -1, Dest: -1})
		return nil
	case detModelChange:
		change := s.cfg.ModelChanges[s.nextChange]
		s.nextChange++
		return s.switchModel(change.Model)
	default:
		return simerr.Errorf(simerr.ErrBadState, "unexpected scheduled event kind %d", det.kind)
	}
}

func (s *Simulator) addPendingSample() error {
	ps := s.pending[0]
	s.pending = s.pending[1:]
	label := 0
	if l, ok := s.current.(labeler); ok {
		label = l.sampleLabel()
	}
	id, err := s.tracker.AddSample(ps.node, ps.population, 0, s.cfg.RateMap.SequenceLength(), label)
	if err != nil {
		return err
	}
	s.sampleLineages[ps.index] = id
	s.observe(EventInfo{Kind: EventSample, Time: s.time, Population: ps.population, Dest: -1,
		Lineages: s.tracker.PopulationCount(ps.population)})
	return nil
}

// labeler is implemented by models that assign labels to entering samples.
type labeler interface {
	sampleLabel() int
}

// completeModel moves on when the current model has run its course: to the
// next untimed change if there is one, otherwise to the standard coalescent.
func (s *Simulator) completeModel() error {
	next := ModelSpec{Kind: ModelHudson}
	if s.nextChange < len(s.cfg.ModelChanges) && s.cfg.ModelChanges[s.nextChange].Time == nil {
		next = s.cfg.ModelChanges[s.nextChange].Model
		s.nextChange++
	}
	return s.switchModel(next)
}

func (s *Simulator) switchModel(m ModelSpec) error {
	if err := s.current.finish(); err != nil {
		return err
	}
	next, err := s.newScheduler(m)
	if err != nil {
		return err
	}
	s.logger.Debug("model change", "time", s.time, "from", s.current.kind(), "to", next.kind())
	s.current = next
	s.counters.ModelChanges++
	s.observe(EventInfo{Kind: EventModelChange, Time: s.time, Population: -1, Dest: -1})
	return s.current.begin()
}

// capLineages stops the run at the end time: each remaining lineage gets a
// root node at the end time above all of its material.
func (s *Simulator) capLineages() error {
	s.time = s.endTime
	for _, id := range s.tracker.All() {
		var root tables.NodeID = tables.NullNode
		err := s.tracker.ReplaceNodes(id, func(seg ancestry.Segment) (tables.NodeID, error) {
			if s.nodeTimes[seg.Node] >= s.time {
				return seg.Node, nil
			}
			if root == tables.NullNode {
				n, err := s.emitNode(s.time, s.tracker.Population(id), 0)
				if err != nil {
					return tables.NullNode, err
				}
				root = n
			}
			s.edges.Add(seg.Left, seg.Right, root, seg.Node)
			return root, nil
		})
		if err != nil {
			return err
		}
		if err := s.flushEdges(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) observe(e EventInfo) {
	if e.Model == "" {
		e.Model = s.current.kind()
	}
	for _, o := range s.observers {
		o.Observe(e)
	}
}

func errUnexpectedEvent(model ModelKind, kind EventKind) error {
	return simerr.Errorf(simerr.ErrBadState, "%s model cannot apply %s event", model, kind)
}
