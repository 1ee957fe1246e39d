package stats

import (
	"math"

	"coalsim/internal/model"
)

type Moments struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Describe computes the sample moments of values. Std is the population
// standard deviation.
func Describe(values []float64) Moments {
	if len(values) == 0 {
		return Moments{}
	}
	m := Moments{N: len(values), Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range values {
		m.Mean += v
		m.Min = math.Min(m.Min, v)
		m.Max = math.Max(m.Max, v)
	}
	m.Mean /= float64(len(values))
	for _, v := range values {
		d := v - m.Mean
		m.Std += d * d
	}
	m.Std = math.Sqrt(m.Std / float64(len(values)))
	return m
}

// ReplicateSummary aggregates the runs of one scenario.
type ReplicateSummary struct {
	Scenario       string  `json:"scenario"`
	Runs           int     `json:"runs"`
	Coalesced      int     `json:"coalesced"`
	MaxTime        int     `json:"max_time"`
	Failed         int     `json:"failed"`
	TMRCA          Moments `json:"tmrca"`
	Trees          Moments `json:"trees"`
	Recombinations Moments `json:"recombinations"`
	Events         Moments `json:"events"`
	Elapsed        Moments `json:"elapsed_seconds"`
}

// SummariseReplicates pairs each run with the summary of its graph. Failed
// runs count towards Failed only.
func SummariseReplicates(scenario string, runs []model.RunRecord, graphs []GraphSummary) ReplicateSummary {
	s := ReplicateSummary{Scenario: scenario, Runs: len(runs)}
	var tmrca, trees, recombs, events, elapsed []float64
	for i, run := range runs {
		switch run.Status {
		case "coalesced":
			s.Coalesced++
		case "max_time":
			s.MaxTime++
		default:
			s.Failed++
			continue
		}
		if i < len(graphs) {
			tmrca = append(tmrca, graphs[i].MeanTMRCA)
			trees = append(trees, float64(graphs[i].Trees))
		}
		recombs = append(recombs, float64(run.Recombinations))
		events = append(events, float64(run.Events))
		elapsed = append(elapsed, run.Elapsed)
	}
	s.TMRCA = Describe(tmrca)
	s.Trees = Describe(trees)
	s.Recombinations = Describe(recombs)
	s.Events = Describe(events)
	s.Elapsed = Describe(elapsed)
	return s
}
