package intervals

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"coalsim/internal/simerr"
)

func TestFindIntervalContainsQuery(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 2 + rng.Intn(30)
		values := make([]float64, n)
		values[0] = rng.Float64() * 10
		for i := 1; i < n; i++ {
			values[i] = values[i-1] + 0.001 + rng.Float64()*5
		}
		query := values[0] + rng.Float64()*(values[n-1]-values[0])
		if query >= values[n-1] {
			continue
		}
		i, err := FindInterval(query, values)
		if err != nil {
			t.Fatalf("find interval: %v", err)
		}
		if !(values[i] <= query && query < values[i+1]) {
			t.Fatalf("query %g not in [%g, %g) at index %d", query, values[i], values[i+1], i)
		}
	}
}

func TestFindIntervalBoundaries(t *testing.T) {
	values := []float64{0, 1, 2.5, 4, 10}
	for want := 0; want < len(values)-1; want++ {
		got, err := FindInterval(values[want], values)
		if err != nil {
			t.Fatalf("find boundary %g: %v", values[want], err)
		}
		if got != want {
			t.Fatalf("boundary %g: got=%d want=%d", values[want], got, want)
		}
	}
}

func TestFindIntervalOutOfRange(t *testing.T) {
	values := []float64{0, 1, 2}
	for _, q := range []float64{-0.5, 2, 3, math.NaN()} {
		_, err := FindInterval(q, values)
		if !errors.Is(err, simerr.ErrOutOfBounds) {
			t.Fatalf("query %g: expected out of bounds, got %v", q, err)
		}
	}
	if _, err := FindInterval(0, []float64{0}); !errors.Is(err, simerr.ErrOutOfBounds) {
		t.Fatalf("expected out of bounds for short array, got %v", err)
	}
}

func TestAlmostEqualProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		a := (rng.Float64() - 0.5) * math.Pow(10, float64(rng.Intn(12)))
		b := (rng.Float64() - 0.5) * math.Pow(10, float64(rng.Intn(12)))
		eps := rng.Float64() * 1e-6
		if !AlmostEqual(a, a, eps) || !AlmostEqual(a, a, 0) {
			t.Fatalf("not reflexive for %g", a)
		}
		if AlmostEqual(a, b, eps) != AlmostEqual(b, a, eps) {
			t.Fatalf("not symmetric for %g, %g", a, b)
		}
		if AlmostEqual(a, b, 0) != (a == b) {
			t.Fatalf("zero eps must be exact equality for %g, %g", a, b)
		}
	}
}

func TestAlmostEqualScale(t *testing.T) {
	if !AlmostEqual(1e9, 1e9+0.5, 1e-9) {
		t.Fatal("expected relative tolerance at large magnitude")
	}
	if AlmostEqual(0, 1e-6, 1e-9) {
		t.Fatal("expected absolute tolerance near zero")
	}
}
