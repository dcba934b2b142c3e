package telemetry

// RNG is a splitmix64 generator held by value. Every draw returns the
// advanced generator, so a copy replays the same sequence.
type RNG struct {
	State uint64 `json:"state"`
}

// NewRNG seeds a generator.
func NewRNG(seed uint64) RNG { return RNG{State: seed} }

// Next returns 64 random bits.
func (r RNG) Next() (uint64, RNG) {
	r.State += 0x9e3779b97f4a7c15
	z := r.State
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31), r
}

// Float64 returns a value in [0, 1).
func (r RNG) Float64() (float64, RNG) {
	n, r := r.Next()
	return float64(n>>11) / (1 << 53), r
}

// Range returns a value in [lo, hi).
func (r RNG) Range(lo, hi float64) (float64, RNG) {
	f, r := r.Float64()
	return lo + f*(hi-lo), r
}
