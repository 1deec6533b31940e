package progression

import (
	"sort"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// LevelCurve maps cumulative points to levels. Implementations must be
// monotonic: a higher point total never yields a lower level.
type LevelCurve interface {
	// LevelFor returns the largest level L with Threshold(L) <= points, at least 1.
	LevelFor(points int64) int

	// Threshold returns the cumulative points needed to reach level.
	Threshold(level int) int64

	// NextThreshold returns the threshold of level+1, or false at the maximum level.
	NextThreshold(level int) (int64, bool)
}

// NewLevelCurve builds the curve configured by rule.
// A threshold table takes precedence over points_per_level.
func NewLevelCurve(rule domain.LevelRule) LevelCurve {
	if len(rule.Thresholds) > 0 {
		return NewTableCurve(rule.Thresholds)
	}
	return NewLinearCurve(rule.PointsPerLevel)
}

// LinearCurve uses threshold(L) = L * step for L >= 2 and 0 for level 1.
//
// Example with step 100:
//   - 0..199 points: level 1
//   - 450 points: level 4
//   - 500 points: level 5
type LinearCurve struct {
	step int64
}

// NewLinearCurve creates a linear curve. A non-positive step falls back to 100.
func NewLinearCurve(step int64) *LinearCurve {
	if step <= 0 {
		step = 100
	}
	return &LinearCurve{step: step}
}

func (c *LinearCurve) LevelFor(points int64) int {
	if points <= 0 {
		return 1
	}
	return max(1, int(points/c.step))
}

func (c *LinearCurve) Threshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(level) * c.step
}

func (c *LinearCurve) NextThreshold(level int) (int64, bool) {
	return c.Threshold(max(level, 1) + 1), true
}

// TableCurve uses an explicit cumulative threshold table.
// thresholds[i] is the points needed for level i+1; thresholds[0] is 0.
type TableCurve struct {
	thresholds []int64
}

// NewTableCurve creates a table curve. The table is expected to be validated.
func NewTableCurve(thresholds []int64) *TableCurve {
	t := make([]int64, len(thresholds))
	copy(t, thresholds)
	return &TableCurve{thresholds: t}
}

func (c *TableCurve) LevelFor(points int64) int {
	// Number of thresholds <= points
	n := sort.Search(len(c.thresholds), func(i int) bool { return c.thresholds[i] > points })
	return max(1, n)
}

func (c *TableCurve) Threshold(level int) int64 {
	if level <= 1 || len(c.thresholds) == 0 {
		return 0
	}
	if level > len(c.thresholds) {
		return c.thresholds[len(c.thresholds)-1]
	}
	return c.thresholds[level-1]
}

func (c *TableCurve) NextThreshold(level int) (int64, bool) {
	if level >= len(c.thresholds) {
		return 0, false
	}
	return c.thresholds[max(level, 1)], true
}
