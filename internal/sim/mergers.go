package sim

import (
	"math"
	"math/rand"
	"sort"
)

// mergerProcess is the common ancestor process of a multiple merger
// coalescent. One unit of its time lasts scale*N^exponent generations in a
// population of size N.
type mergerProcess interface {
	// rate is the total rate of common ancestor events among k lineages.
	rate(k int) float64
	timescale() (scale, exponent float64)
	// groups draws the lineages of one event as groups of indices in [0, k);
	// each group with two or more members merges into one ancestor.
	groups(rng *rand.Rand, k int) [][]int
}

// parentalGroups is the number of parental genome copies the participants
// of a multiple merger are spread over: all of them merge together in a
// haploid, and in a diploid they split between the two copies of each of
// the two parents.
func parentalGroups(ploidy int) int {
	if ploidy <= 1 {
		return 1
	}
	return 2 * ploidy
}

func scatter(rng *rand.Rand, members []int, ploidy int) [][]int {
	groups := make([][]int, parentalGroups(ploidy))
	for _, m := range members {
		g := 0
		if len(groups) > 1 {
			g = rng.Intn(len(groups))
		}
		groups[g] = append(groups[g], m)
	}
	return groups
}

func pairs(k int) float64 { return float64(k) * float64(k-1) / 2 }

// diracProcess runs binary mergers at the Kingman rate plus potential
// multiple mergers at rate c in which every lineage takes part with
// probability psi.
type diracProcess struct {
	psi, c float64
	ploidy int
}

func (d *diracProcess) rate(k int) float64 {
	if k < 2 {
		return 0
	}
	return pairs(k) + d.c
}

// Time is measured on the N^2 scale of the Moran limit.
func (d *diracProcess) timescale() (float64, float64) { return float64(d.ploidy), 2 }

func (d *diracProcess) groups(rng *rand.Rand, k int) [][]int {
	if rng.Float64()*d.rate(k) < pairs(k) {
		a := rng.Intn(k)
		b := rng.Intn(k - 1)
		if b >= a {
			b++
		}
		return [][]int{{a, b}}
	}
	var members []int
	for i := 0; i < k; i++ {
		if rng.Float64() < d.psi {
			members = append(members, i)
		}
	}
	return scatter(rng, members, d.ploidy)
}

// betaProcess is the Beta(2-alpha, alpha) Xi-coalescent, optionally
// truncated so no event replaces more than a fraction tau of the population.
type betaProcess struct {
	alpha, tau float64
	ploidy     int
	// cumulative[k][j-2] is the summed rate of events with 2..j participants
	// among k lineages.
	cumulative map[int][]float64
}

func newBetaProcess(p BetaParams, ploidy int) *betaProcess {
	return &betaProcess{alpha: p.Alpha, tau: p.truncation(), ploidy: ploidy, cumulative: make(map[int][]float64)}
}

// rates returns the cumulative event rates by number of participants. A set
// of j lineages out of k merges at rate
//
//	P^2 * B_tau(j-alpha, k-j+alpha) / B_tau(2-alpha, alpha)
//
// where P is the ploidy and B_tau the incomplete Beta function.
func (b *betaProcess) rates(k int) []float64 {
	if c, ok := b.cumulative[k]; ok {
		return c
	}
	factor := float64(b.ploidy * b.ploidy)
	norm := logIncompleteBeta(b.tau, 2-b.alpha, b.alpha)
	c := make([]float64, 0, k-1)
	sum := 0.0
	for j := 2; j <= k; j++ {
		lr := logChoose(k, j) + logIncompleteBeta(b.tau, float64(j)-b.alpha, float64(k-j)+b.alpha) - norm
		sum += factor * math.Exp(lr)
		c = append(c, sum)
	}
	b.cumulative[k] = c
	return c
}

func (b *betaProcess) rate(k int) float64 {
	if k < 2 {
		return 0
	}
	c := b.rates(k)
	return c[len(c)-1]
}

// timescale follows the diploid scaling m^alpha / (alpha * B_tau(2-alpha,
// alpha)) on N^(alpha-1) generations; a haploid drops the m factor.
func (b *betaProcess) timescale() (float64, float64) {
	m := 1.0
	if b.ploidy > 1 {
		m = 2 + math.Pow(2, b.alpha)/(math.Pow(3, b.alpha-1)*(b.alpha-1))
	}
	scale := math.Exp(b.alpha*math.Log(m) - math.Log(b.alpha) - logIncompleteBeta(b.tau, 2-b.alpha, b.alpha))
	return scale, b.alpha - 1
}

func (b *betaProcess) groups(rng *rand.Rand, k int) [][]int {
	c := b.rates(k)
	u := rng.Float64() * c[len(c)-1]
	idx := sort.Search(len(c), func(i int) bool { return c[i] > u })
	if idx == len(c) {
		idx = len(c) - 1
	}
	j := idx + 2
	return scatter(rng, rng.Perm(k)[:j], b.ploidy)
}

func logChoose(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}

func logBeta(a, b float64) float64 {
	x, _ := math.Lgamma(a)
	y, _ := math.Lgamma(b)
	z, _ := math.Lgamma(a + b)
	return x + y - z
}

// logIncompleteBeta is log of the integral of t^(a-1) (1-t)^(b-1) over
// [0, x].
func logIncompleteBeta(x, a, b float64) float64 {
	if x >= 1 {
		return logBeta(a, b)
	}
	return logBeta(a, b) + math.Log(regularizedIncompleteBeta(x, a, b))
}

// regularizedIncompleteBeta evaluates I_x(a, b) by its continued fraction,
// using the symmetry I_x(a, b) = 1 - I_{1-x}(b, a) where that converges
// faster.
func regularizedIncompleteBeta(x, a, b float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 1
	}
	front := math.Exp(a*math.Log(x) + b*math.Log1p(-x) - logBeta(a, b))
	if x < (a+1)/(a+b+2) {
		return front * betaFraction(x, a, b) / a
	}
	return 1 - front*betaFraction(1-x, b, a)/b
}

func betaFraction(x, a, b float64) float64 {
	const (
		maxIterations = 500
		epsilon       = 1e-15
		tiny          = 1e-300
	)
	clamp := func(v float64) float64 {
		if math.Abs(v) < tiny {
			return tiny
		}
		return v
	}
	c := 1.0
	d := 1 / clamp(1-(a+b)*x/(a+1))
	h := d
	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		num := fm * (b - fm) * x / ((a + 2*fm - 1) * (a + 2*fm))
		d = 1 / clamp(1+num*d)
		c = clamp(1 + num/c)
		h *= d * c
		num = -(a + fm) * (a + b + fm) * x / ((a + 2*fm) * (a + 2*fm + 1))
		d = 1 / clamp(1+num*d)
		c = clamp(1 + num/c)
		delta := d * c
		h *= delta
		if math.Abs(delta-1) < epsilon {
			break
		}
	}
	return h
}
