package ratemap

import (
	"bytes"
	"compress/gzip"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"coalsim/internal/simerr"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name      string
		positions []float64
		rates     []float64
		want      simerr.Code
	}{
		{"single position", []float64{0}, nil, simerr.ErrInsufficientIntervals},
		{"start non zero", []float64{1, 2}, []float64{0.1}, simerr.ErrIntervalMapStartNonZero},
		{"unsorted", []float64{0, 5, 5}, []float64{0.1, 0.1}, simerr.ErrIntervalPositionsUnsorted},
		{"decreasing", []float64{0, 5, 3}, []float64{0.1, 0.1}, simerr.ErrIntervalPositionsUnsorted},
		{"negative rate", []float64{0, 5}, []float64{-1}, simerr.ErrBadRecombinationMap},
		{"length mismatch", []float64{0, 5}, []float64{1, 2}, simerr.ErrBadRecombinationMap},
	}
	for _, tc := range cases {
		_, err := New(tc.positions, tc.rates, false)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected code %d, got %v", tc.name, tc.want, err)
		}
	}
}

func TestMassRoundTrip(t *testing.T) {
	m, err := New([]float64{0, 10, 20, 50}, []float64{0.1, 0, 0.5}, false)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	if got, want := m.TotalMass(), 1.0+0+15.0; math.Abs(got-want) > 1e-12 {
		t.Fatalf("total mass: got=%g want=%g", got, want)
	}
	if got := m.MassBetween(5, 25); math.Abs(got-(0.5+2.5)) > 1e-12 {
		t.Fatalf("mass between: got=%g", got)
	}
	for _, x := range []float64{0.5, 3, 9.99, 21, 49} {
		if got := m.MassToPosition(m.PositionToMass(x)); math.Abs(got-x) > 1e-9 {
			t.Fatalf("round trip %g -> %g", x, got)
		}
	}
	// Mass at the end of the first interval maps past the zero-rate stretch.
	if got := m.MassToPosition(1.0); got != 20 {
		t.Fatalf("expected zero-rate stretch skipped, got %g", got)
	}
	if got := m.MeanRate(); math.Abs(got-16.0/50) > 1e-12 {
		t.Fatalf("mean rate: got=%g", got)
	}
}

func TestBreakpointInsideSpan(t *testing.T) {
	m, err := New([]float64{0, 30, 100}, []float64{1e-3, 2e-2}, false)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		u := rng.Float64()
		if u == 0 {
			continue
		}
		bp, err := m.Breakpoint(u, 12.5, 77)
		if err != nil {
			t.Fatalf("breakpoint: %v", err)
		}
		if bp <= 12.5 || bp >= 77 {
			t.Fatalf("breakpoint %g outside span", bp)
		}
	}
}

func TestBreakpointDiscrete(t *testing.T) {
	m, err := Uniform(100, 0.01, true)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	if got := m.LineageMass(10, 20); math.Abs(got-0.09) > 1e-12 {
		t.Fatalf("discrete lineage mass: got=%g", got)
	}
	rng := rand.New(rand.NewSource(5))
	seen := map[float64]bool{}
	for i := 0; i < 2000; i++ {
		bp, err := m.Breakpoint(rng.Float64(), 10, 20)
		if err != nil {
			t.Fatalf("breakpoint: %v", err)
		}
		if bp != math.Floor(bp) || bp <= 10 || bp >= 20 {
			t.Fatalf("bad discrete breakpoint %g", bp)
		}
		seen[bp] = true
	}
	if len(seen) != 9 {
		t.Fatalf("expected all 9 interior breakpoints, saw %d", len(seen))
	}
	if _, err := m.Breakpoint(0.5, 10, 11); !errors.Is(err, simerr.ErrRecombMapTooCoarse) {
		t.Fatalf("expected too coarse for unit span, got %v", err)
	}
}

func TestBreakpointZeroMass(t *testing.T) {
	m, err := New([]float64{0, 10, 20}, []float64{0, 1}, false)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	if _, err := m.Breakpoint(0.5, 2, 8); !errors.Is(err, simerr.ErrRecombMapTooCoarse) {
		t.Fatalf("expected too coarse, got %v", err)
	}
	bp, err := m.Breakpoint(0.5, 2, 18)
	if err != nil {
		t.Fatalf("breakpoint: %v", err)
	}
	if bp < 10 {
		t.Fatalf("breakpoint %g fell in zero-rate stretch", bp)
	}
}

func TestSlice(t *testing.T) {
	m, err := New([]float64{0, 10, 20, 50}, []float64{0.1, 0.2, 0.5}, false)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	trimmed, err := m.Slice(5, 25, true)
	if err != nil {
		t.Fatalf("slice trim: %v", err)
	}
	if trimmed.SequenceLength() != 20 {
		t.Fatalf("trimmed length: got=%g", trimmed.SequenceLength())
	}
	if got, want := trimmed.TotalMass(), m.MassBetween(5, 25); math.Abs(got-want) > 1e-12 {
		t.Fatalf("trimmed mass: got=%g want=%g", got, want)
	}
	kept, err := m.Slice(5, 25, false)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if kept.SequenceLength() != 50 || math.Abs(kept.TotalMass()-m.MassBetween(5, 25)) > 1e-12 {
		t.Fatalf("unexpected untrimmed slice: len=%g mass=%g", kept.SequenceLength(), kept.TotalMass())
	}
	if _, err := m.Slice(30, 10, false); !errors.Is(err, simerr.ErrBadParamValue) {
		t.Fatalf("expected bad param, got %v", err)
	}
}

const hapmapText = `Chromosome	Position(bp)	Rate(cM/Mb)	Map(cM)
chr1	55550	2.98	0
chr1	82571	2.08	0.08
chr1	88169	0	0.09
`

func TestReadHapMap(t *testing.T) {
	m, err := ReadHapMap(strings.NewReader(hapmapText), 0, false)
	if err != nil {
		t.Fatalf("read hapmap: %v", err)
	}
	if m.NumIntervals() != 3 {
		t.Fatalf("expected zero prefix plus two intervals, got %d", m.NumIntervals())
	}
	rates := m.Rates()
	if rates[0] != 0 || math.Abs(rates[1]-2.98e-8) > 1e-20 {
		t.Fatalf("unexpected rates: %v", rates)
	}
	if m.SequenceLength() != 88169 {
		t.Fatalf("sequence length: got=%g", m.SequenceLength())
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(hapmapText)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	gz, err := ReadHapMap(&buf, 100000, false)
	if err != nil {
		t.Fatalf("read gzip hapmap: %v", err)
	}
	if gz.SequenceLength() != 100000 || gz.NumIntervals() != 4 {
		t.Fatalf("unexpected extended map: len=%g intervals=%d", gz.SequenceLength(), gz.NumIntervals())
	}
}

func TestReadHapMapLastRateNonZero(t *testing.T) {
	text := "header\nchr1 0 1.0\nchr1 100 2.0\n"
	if _, err := ReadHapMap(strings.NewReader(text), 0, false); err == nil {
		t.Fatal("expected error for non-zero last rate")
	}
}
