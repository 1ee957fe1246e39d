package ancestry

// fenwick is a binary indexed tree over non-negative weights with weighted
// index search. Slots are 0-based externally.
type fenwick struct {
	tree    []float64
	values  []float64
	updates int
}

// rebuildEvery bounds the accumulated rounding error in partial sums.
const rebuildEvery = 1 << 16

func newFenwick(n int) *fenwick {
	return &fenwick{tree: make([]float64, n+1), values: make([]float64, n)}
}

func (f *fenwick) size() int { return len(f.values) }

func (f *fenwick) grow(n int) {
	if n <= len(f.values) {
		return
	}
	values := make([]float64, n)
	copy(values, f.values)
	f.values = values
	f.rebuild()
}

func (f *fenwick) rebuild() {
	n := len(f.values)
	f.tree = make([]float64, n+1)
	for i := 1; i <= n; i++ {
		f.tree[i] += f.values[i-1]
		if j := i + (i & -i); j <= n {
			f.tree[j] += f.tree[i]
		}
	}
	f.updates = 0
}

func (f *fenwick) set(slot int, v float64) {
	delta := v - f.values[slot]
	if delta == 0 {
		return
	}
	f.values[slot] = v
	for i := slot + 1; i < len(f.tree); i += i & -i {
		f.tree[i] += delta
	}
	f.updates++
	if f.updates >= rebuildEvery {
		f.rebuild()
	}
}

func (f *fenwick) get(slot int) float64 { return f.values[slot] }

func (f *fenwick) total() float64 {
	sum := 0.0
	for i := len(f.tree) - 1; i > 0; i -= i & -i {
		sum += f.tree[i]
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// find returns the slot whose cumulative interval contains v, skipping
// zero-weight slots left behind by rounding.
func (f *fenwick) find(v float64) int {
	n := len(f.values)
	if n == 0 {
		return -1
	}
	pos := 0
	step := 1
	for step*2 <= n {
		step *= 2
	}
	for ; step > 0; step /= 2 {
		if next := pos + step; next <= n && f.tree[next] < v {
			pos = next
			v -= f.tree[next]
		}
	}
	if pos >= n {
		pos = n - 1
	}
	for i := pos; i < n; i++ {
		if f.values[i] > 0 {
			return i
		}
	}
	for i := pos - 1; i >= 0; i-- {
		if f.values[i] > 0 {
			return i
		}
	}
	return -1
}
