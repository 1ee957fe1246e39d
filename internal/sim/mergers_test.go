package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegularizedIncompleteBeta(t *testing.T) {
	cases := []struct {
		x, a, b, want float64
	}{
		{0.3, 1, 1, 0.3},
		{0.3, 2, 1, 0.09},
		{0.3, 1, 2, 1 - 0.49},
		{0.5, 0.7, 0.7, 0.5},
		{0.5, 3.5, 3.5, 0.5},
		{0, 2, 2, 0},
		{1, 2, 2, 1},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, regularizedIncompleteBeta(c.x, c.a, c.b), 1e-10, "I_%g(%g, %g)", c.x, c.a, c.b)
	}
}

func TestBetaRates(t *testing.T) {
	const alpha = 1.5
	haploid := newBetaProcess(BetaParams{Alpha: alpha}, 1)
	assert.InDelta(t, 1, haploid.rate(2), 1e-12)
	assert.Equal(t, 0.0, haploid.rate(1))

	// Among three lineages pairs merge at 3a/2 and triples at (2-a)/2.
	three := haploid.rates(3)
	require.Len(t, three, 2)
	assert.InDelta(t, 1.5*alpha, three[0], 1e-10)
	assert.InDelta(t, 1.5*alpha+(2-alpha)/2, three[1], 1e-10)

	diploid := newBetaProcess(BetaParams{Alpha: alpha}, 2)
	assert.InDelta(t, 4*haploid.rate(5), diploid.rate(5), 1e-9)

	truncated := newBetaProcess(BetaParams{Alpha: alpha, TruncationPoint: 0.1}, 1)
	assert.InDelta(t, 1, truncated.rate(2), 1e-12)
	c := truncated.rates(3)
	assert.Less(t, (c[1]-c[0])/c[1], (three[1]-three[0])/three[1])
}

func TestBetaTimescale(t *testing.T) {
	b := newBetaProcess(BetaParams{Alpha: 1.5}, 1)
	scale, exponent := b.timescale()
	assert.InDelta(t, 0.5, exponent, 1e-12)
	// B(0.5, 1.5) is pi/2.
	assert.InDelta(t, 1/(1.5*math.Pi/2), scale, 1e-10)

	d := newBetaProcess(BetaParams{Alpha: 1.5}, 2)
	dscale, _ := d.timescale()
	assert.Greater(t, dscale, scale)
}

func TestBetaGroups(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	b := newBetaProcess(BetaParams{Alpha: 1.2}, 2)
	for i := 0; i < 200; i++ {
		groups := b.groups(rng, 10)
		require.Len(t, groups, 4)
		seen := map[int]bool{}
		total := 0
		for _, g := range groups {
			for _, idx := range g {
				require.False(t, seen[idx])
				require.True(t, idx >= 0 && idx < 10)
				seen[idx] = true
				total++
			}
		}
		require.GreaterOrEqual(t, total, 2)
	}
}

func TestDiracGroups(t *testing.T) {
	d := &diracProcess{psi: 1, c: 90, ploidy: 1}
	assert.Equal(t, 1.0+90, d.rate(2))
	assert.Equal(t, 0.0, d.rate(1))

	rng := rand.New(rand.NewSource(5))
	everyone := 0
	for i := 0; i < 200; i++ {
		groups := d.groups(rng, 5)
		require.Len(t, groups, 1)
		if len(groups[0]) == 5 {
			everyone++
		} else {
			require.Len(t, groups[0], 2)
			require.NotEqual(t, groups[0][0], groups[0][1])
		}
	}
	// Ninety of the hundred units of rate belong to the full merger.
	assert.Greater(t, everyone, 150)
}
