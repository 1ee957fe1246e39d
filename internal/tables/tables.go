// Package tables holds the append-only graph the simulator writes into.
package tables

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// NodeID indexes a node in emission order.
type NodeID int32

// NullNode marks the absence of a node.
const NullNode NodeID = -1

type NodeFlags uint32

const (
	NodeIsSample NodeFlags = 1

	// Set only on nodes recorded for the full ARG, migrations, gene conversions
	// and census events.
	NodeIsRecombinant    NodeFlags = 1 << 17
	NodeIsCommonAncestor NodeFlags = 1 << 18
	NodeIsMigrant        NodeFlags = 1 << 19
	NodeIsCensus         NodeFlags = 1 << 20
	NodeIsGeneConversion NodeFlags = 1 << 21
)

type Node struct {
	Time       float64   `json:"time"`
	Population int       `json:"population"`
	Flags      NodeFlags `json:"flags"`
}

type Edge struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Parent NodeID  `json:"parent"`
	Child  NodeID  `json:"child"`
}

type Migration struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Node   NodeID  `json:"node"`
	Source int     `json:"source"`
	Dest   int     `json:"dest"`
	Time   float64 `json:"time"`
}

// Sink receives the graph as it is built. Implementations must not be
// queried by the simulator, only appended to.
type Sink interface {
	EmitNode(time float64, population int, flags NodeFlags) (NodeID, error)
	EmitEdge(left, right float64, parent, child NodeID) error
}

// MigrationSink is implemented by sinks that record lineage movements.
type MigrationSink interface {
	EmitMigration(left, right float64, node NodeID, source, dest int, time float64) error
}

var (
	ErrNodeTimeOrder   = errors.New("node emitted earlier than a previous non-sample node")
	ErrUnknownNode     = errors.New("edge references a node that was not emitted")
	ErrParentNotOlder  = errors.New("edge parent is not older than child")
	ErrEmptyInterval   = errors.New("edge interval is empty")
	ErrIntervalOutside = errors.New("interval outside the sequence")
	ErrBadNodeTime     = errors.New("node time must be finite and non-negative")
)

// TableCollection is the in-memory Sink. It enforces the ordering contract:
// non-sample nodes arrive in non-decreasing time order and every edge refers
// to already emitted nodes with the parent strictly older than the child.
type TableCollection struct {
	sequenceLength float64
	nodes          []Node
	edges          []Edge
	migrations     []Migration
	lastTime       float64
}

func NewTableCollection(sequenceLength float64) *TableCollection {
	return &TableCollection{sequenceLength: sequenceLength}
}

func (tc *TableCollection) SequenceLength() float64 { return tc.sequenceLength }

func (tc *TableCollection) EmitNode(time float64, population int, flags NodeFlags) (NodeID, error) {
	if !(time >= 0) || math.IsInf(time, 1) {
		return NullNode, fmt.Errorf("%w: %g", ErrBadNodeTime, time)
	}
	if flags&NodeIsSample == 0 {
		if time < tc.lastTime {
			return NullNode, fmt.Errorf("%w: %g < %g", ErrNodeTimeOrder, time, tc.lastTime)
		}
		tc.lastTime = time
	}
	tc.nodes = append(tc.nodes, Node{Time: time, Population: population, Flags: flags})
	return NodeID(len(tc.nodes) - 1), nil
}

func (tc *TableCollection) EmitEdge(left, right float64, parent, child NodeID) error {
	if err := tc.checkInterval(left, right); err != nil {
		return err
	}
	if !tc.known(parent) || !tc.known(child) {
		return fmt.Errorf("%w: parent=%d child=%d nodes=%d", ErrUnknownNode, parent, child, len(tc.nodes))
	}
	if tc.nodes[parent].Time <= tc.nodes[child].Time {
		return fmt.Errorf("%w: parent=%d (%g) child=%d (%g)", ErrParentNotOlder,
			parent, tc.nodes[parent].Time, child, tc.nodes[child].Time)
	}
	tc.edges = append(tc.edges, Edge{Left: left, Right: right, Parent: parent, Child: child})
	return nil
}

func (tc *TableCollection) EmitMigration(left, right float64, node NodeID, source, dest int, time float64) error {
	if err := tc.checkInterval(left, right); err != nil {
		return err
	}
	if !tc.known(node) {
		return fmt.Errorf("%w: node=%d", ErrUnknownNode, node)
	}
	tc.migrations = append(tc.migrations, Migration{Left: left, Right: right, Node: node, Source: source, Dest: dest, Time: time})
	return nil
}

func (tc *TableCollection) checkInterval(left, right float64) error {
	if !(left < right) {
		return fmt.Errorf("%w: [%g, %g)", ErrEmptyInterval, left, right)
	}
	if left < 0 || (tc.sequenceLength > 0 && right > tc.sequenceLength) {
		return fmt.Errorf("%w: [%g, %g) length %g", ErrIntervalOutside, left, right, tc.sequenceLength)
	}
	return nil
}

func (tc *TableCollection) known(id NodeID) bool {
	return id >= 0 && int(id) < len(tc.nodes)
}

func (tc *TableCollection) NumNodes() int      { return len(tc.nodes) }
func (tc *TableCollection) NumEdges() int      { return len(tc.edges) }
func (tc *TableCollection) NumMigrations() int { return len(tc.migrations) }

func (tc *TableCollection) Nodes() []Node {
	return append([]Node(nil), tc.nodes...)
}

func (tc *TableCollection) Edges() []Edge {
	return append([]Edge(nil), tc.edges...)
}

func (tc *TableCollection) Migrations() []Migration {
	return append([]Migration(nil), tc.migrations...)
}

// Samples returns the ids of nodes flagged as samples.
func (tc *TableCollection) Samples() []NodeID {
	out := []NodeID{}
	for i, n := range tc.nodes {
		if n.Flags&NodeIsSample != 0 {
			out = append(out, NodeID(i))
		}
	}
	return out
}

// SortedEdges orders edges by parent time, parent, child, left.
func (tc *TableCollection) SortedEdges() []Edge {
	edges := tc.Edges()
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		ta, tb := tc.nodes[a.Parent].Time, tc.nodes[b.Parent].Time
		if ta != tb {
			return ta < tb
		}
		if a.Parent != b.Parent {
			return a.Parent < b.Parent
		}
		if a.Child != b.Child {
			return a.Child < b.Child
		}
		return a.Left < b.Left
	})
	return edges
}

// Breakpoints returns the sorted distinct edge endpoints, including 0 and the
// sequence length. Adjacent pairs delimit the marginal trees.
func (tc *TableCollection) Breakpoints() []float64 {
	seen := map[float64]struct{}{0: {}}
	if tc.sequenceLength > 0 {
		seen[tc.sequenceLength] = struct{}{}
	}
	for _, e := range tc.edges {
		seen[e.Left] = struct{}{}
		seen[e.Right] = struct{}{}
	}
	out := make([]float64, 0, len(seen))
	for x := range seen {
		out = append(out, x)
	}
	sort.Float64s(out)
	return out
}

// Roots returns the nodes that are parents in some edge but never children,
// plus samples that appear in no edge at all.
func (tc *TableCollection) Roots() []NodeID {
	isChild := make([]bool, len(tc.nodes))
	isParent := make([]bool, len(tc.nodes))
	for _, e := range tc.edges {
		isChild[e.Child] = true
		isParent[e.Parent] = true
	}
	out := []NodeID{}
	for i, n := range tc.nodes {
		if isChild[i] {
			continue
		}
		if isParent[i] || n.Flags&NodeIsSample != 0 {
			out = append(out, NodeID(i))
		}
	}
	return out
}
