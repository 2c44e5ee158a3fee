package mathx

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Manhattan returns |ax-bx| + |ay-by|.
func Manhattan(ax, ay, bx, by int) int {
	return AbsInt(ax-bx) + AbsInt(ay-by)
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Rand is a SplitMix64 stream. The sequence depends only on the seed, so it
// is stable across Go releases and platforms.
type Rand struct {
	state uint64
	draws uint64
}

func NewRand(seed int64) *Rand {
	return &Rand{state: uint64(seed)}
}

func (r *Rand) Uint64() uint64 {
	z := r.state
	r.state += 0x9e3779b97f4a7c15
	r.draws++
	return mix64(z)
}

// IntN returns a value in [0, n). n must be > 0.
func (r *Rand) IntN(n int) int {
	if n <= 0 {
		panic("mathx: IntN with non-positive n")
	}
	return int(r.Uint64() % uint64(n))
}

// Draws reports how many values the stream has produced.
func (r *Rand) Draws() uint64 { return r.draws }

// RandInt returns a value in [lo, hi).
func (r *Rand) RandInt(lo, hi int) int {
	return lo + r.IntN(hi-lo)
}
