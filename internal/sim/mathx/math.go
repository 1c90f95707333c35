package mathx

import (
	"hash/fnv"
	"math"
)

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// HashString is FNV-1a followed by a splitmix finalizer. It is stable across
// processes and platforms; callers rely on that for reproducible weeks.
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return mix64(h.Sum64())
}

func Hash2(seed int64, a, b uint64) uint64 {
	v := uint64(seed) ^ (a * 0x9e3779b97f4a7c15) ^ (b * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit01 maps a hash onto [0,1) using its top 53 bits.
func Unit01(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

// SeedFor derives the rng seed for one stage of one week.
func SeedFor(seed int64, week int, stage string) int64 {
	return int64(Hash2(seed, uint64(int64(week)), HashString(stage)) >> 1)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

// FloorInt64 floors v and saturates at the int64 range. NaN maps to 0.
func FloorInt64(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(math.Floor(v))
}

// AddSat adds two counters, sticking at the int64 limits instead of wrapping.
func AddSat(a, b int64) int64 {
	s := a + b
	if b > 0 && s < a {
		return math.MaxInt64
	}
	if b < 0 && s > a {
		return math.MinInt64
	}
	return s
}
