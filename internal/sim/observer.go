package sim

type EventKind int

const (
	EventCommonAncestor EventKind = iota + 1
	EventRejectedCommonAncestor
	EventRecombination
	EventMigration
	EventDemographic
	EventSample
	EventModelChange
	EventGeneration
	EventSweepStep
	EventPedigree
	EventGeneConversion
)

func (k EventKind) String() string {
	switch k {
	case EventCommonAncestor:
		return "common_ancestor"
	case EventRejectedCommonAncestor:
		return "rejected_common_ancestor"
	case EventRecombination:
		return "recombination"
	case EventMigration:
		return "migration"
	case EventDemographic:
		return "demographic"
	case EventSample:
		return "sample"
	case EventModelChange:
		return "model_change"
	case EventGeneration:
		return "generation"
	case EventSweepStep:
		return "sweep_step"
	case EventPedigree:
		return "pedigree"
	case EventGeneConversion:
		return "gene_conversion"
	default:
		return "unknown"
	}
}

// EventInfo describes one applied event. Rate is the total rate of the
// winning process at the time it was drawn, and Lineages the number of
// lineages in Population just before the event.
type EventInfo struct {
	Kind       EventKind
	Time       float64
	Population int
	Dest       int
	Rate       float64
	Lineages   int
	Model      ModelKind
}

// Observer is notified after every applied event. It runs on the simulation
// goroutine and must not retain the simulator.
type Observer interface {
	Observe(EventInfo)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(EventInfo)

func (f ObserverFunc) Observe(e EventInfo) { f(e) }

type Status int

const (
	StatusCoalesced Status = iota + 1
	StatusMaxTime
	StatusIncomplete
)

func (s Status) String() string {
	switch s {
	case StatusCoalesced:
		return "coalesced"
	case StatusMaxTime:
		return "max_time"
	case StatusIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

type Counters struct {
	CommonAncestor         int
	RejectedCommonAncestor int
	Recombination          int
	GeneConversion         int
	// Migration[j][k] counts single-lineage moves from j to k.
	Migration         [][]int
	DemographicEvents int
	Generations       int
	SweepSteps        int
	PedigreeEvents    int
	ModelChanges      int
	Events            int
}

func (c Counters) TotalMigrations() int {
	total := 0
	for _, row := range c.Migration {
		for _, v := range row {
			total += v
		}
	}
	return total
}

// Result summarises a finished run. On failure the graph emitted so far
// remains in the sink and Status is StatusIncomplete.
type Result struct {
	Status   Status
	Time     float64
	Model    ModelKind
	Counters Counters
	// Lineages and Segments are what remained when the run stopped.
	Lineages int
	Segments int
}
