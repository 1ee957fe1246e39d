package stats

import (
	"math"
	"testing"

	"coalsim/internal/model"
)

func TestDescribe(t *testing.T) {
	m := Describe([]float64{1, 2, 3, 4})
	if m.N != 4 || m.Mean != 2.5 || m.Min != 1 || m.Max != 4 {
		t.Fatalf("unexpected moments: %+v", m)
	}
	if math.Abs(m.Std-math.Sqrt(1.25)) > 1e-12 {
		t.Fatalf("unexpected std: %g", m.Std)
	}
	if empty := Describe(nil); empty.N != 0 || empty.Mean != 0 {
		t.Fatalf("unexpected empty moments: %+v", empty)
	}
}

func TestSummariseReplicates(t *testing.T) {
	runs := []model.RunRecord{
		{Status: "coalesced", Recombinations: 4, Events: 10},
		{Status: "max_time", Recombinations: 6, Events: 20},
		{Status: "incomplete", Recombinations: 100, Events: 1000},
	}
	graphs := []GraphSummary{{Trees: 3, MeanTMRCA: 2}, {Trees: 5, MeanTMRCA: 4}, {}}
	s := SummariseReplicates("kingman", runs, graphs)
	if s.Runs != 3 || s.Coalesced != 1 || s.MaxTime != 1 || s.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.TMRCA.Mean != 3 || s.Trees.Mean != 4 || s.Recombinations.Max != 6 || s.Events.N != 2 {
		t.Fatalf("failed runs leaked into moments: %+v", s)
	}
}
