package tables

import "sort"

// EdgeBuffer collects the edges of one parent and squashes abutting intervals
// of the same child before they reach the sink.
type EdgeBuffer struct {
	edges []Edge
}

func (b *EdgeBuffer) Add(left, right float64, parent, child NodeID) {
	b.edges = append(b.edges, Edge{Left: left, Right: right, Parent: parent, Child: child})
}

func (b *EdgeBuffer) Len() int { return len(b.edges) }

// Flush writes the squashed edges to sink and empties the buffer. Edges are
// emitted ordered by child then left.
func (b *EdgeBuffer) Flush(sink Sink) error {
	if len(b.edges) == 0 {
		return nil
	}
	sort.Slice(b.edges, func(i, j int) bool {
		if b.edges[i].Parent != b.edges[j].Parent {
			return b.edges[i].Parent < b.edges[j].Parent
		}
		if b.edges[i].Child != b.edges[j].Child {
			return b.edges[i].Child < b.edges[j].Child
		}
		return b.edges[i].Left < b.edges[j].Left
	})
	squashed := b.edges[:1]
	for _, e := range b.edges[1:] {
		last := &squashed[len(squashed)-1]
		if last.Parent == e.Parent && last.Child == e.Child && last.Right == e.Left {
			last.Right = e.Right
			continue
		}
		squashed = append(squashed, e)
	}
	b.edges = b.edges[:0]
	for _, e := range squashed {
		if err := sink.EmitEdge(e.Left, e.Right, e.Parent, e.Child); err != nil {
			return err
		}
	}
	return nil
}
