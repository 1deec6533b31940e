package domain

import "math"

// MaxActivityValue bounds ActivityEvent.Value. Larger values are rejected before
// any profile state is read.
const MaxActivityValue int64 = 1_000_000

// MaxRewardPoints bounds every point amount configured in the catalog
// (base points, points per value, achievement/mission/season rewards).
const MaxRewardPoints int64 = 1_000_000

// SaturatingAdd returns a+b clamped to the int64 range.
func SaturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

// SaturatingMul returns a*b clamped to the int64 range.
func SaturatingMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		if (a > 0) == (b > 0) {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return p
}
