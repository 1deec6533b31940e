package domain

import "strconv"

// CriteriaType is the discriminator of the Criteria variant.
type CriteriaType string

const (
	// CriteriaCountThreshold counts matching activities (or sums their values
	// when SumValues is set) until Target is reached.
	CriteriaCountThreshold CriteriaType = "count_threshold"

	// CriteriaScoreThreshold tracks the best single value seen and completes at Target.
	CriteriaScoreThreshold CriteriaType = "score_threshold"

	// CriteriaBooleanFlag completes on the first matching activity.
	CriteriaBooleanFlag CriteriaType = "boolean_flag"

	// CriteriaCompositeAll completes when every child criterion is satisfied.
	CriteriaCompositeAll CriteriaType = "composite_all"

	// CriteriaStreakThreshold completes when the daily streak reaches Target.
	CriteriaStreakThreshold CriteriaType = "streak_threshold"
)

// IsValid returns true if the criteria type is known.
func (t CriteriaType) IsValid() bool {
	switch t {
	case CriteriaCountThreshold, CriteriaScoreThreshold, CriteriaBooleanFlag,
		CriteriaCompositeAll, CriteriaStreakThreshold:
		return true
	default:
		return false
	}
}

// Criteria is a closed tagged variant describing when a goal is satisfied.
// Only the fields relevant to Type are read.
type Criteria struct {
	Type        CriteriaType `json:"type"`
	Category    string       `json:"category,omitempty"`     // Activity category filter; empty matches any
	Target      int64        `json:"target,omitempty"`       // count/score/streak threshold
	SumValues   bool         `json:"sum_values,omitempty"`   // count_threshold: add activity value instead of 1
	MetadataKey string       `json:"metadata_key,omitempty"` // boolean_flag: metadata key that must be truthy
	Children    []Criteria   `json:"children,omitempty"`     // composite_all: leaf criteria
}

// TargetValue returns the progress value at which the criteria completes.
func (c Criteria) TargetValue() int64 {
	switch c.Type {
	case CriteriaBooleanFlag:
		return 1
	case CriteriaCompositeAll:
		return int64(len(c.Children))
	default:
		return c.Target
	}
}

// MatchesCategory reports whether an activity of the given category is relevant.
func (c Criteria) MatchesCategory(category string) bool {
	return c.Category == "" || c.Category == category
}

// Signal is what a single recorded activity contributes to criteria evaluation.
type Signal struct {
	Category string
	Value    int64
	Metadata map[string]string
	Streak   int // Current streak after the streak update for this activity
}

// CriteriaProgress is the evaluated state of a criteria.
type CriteriaProgress struct {
	Value      int64
	Components []int64 // Per-child values for composite_all
}

// Advance returns the progress after applying s. It never mutates current.
// Values are capped at the target so completed progress is stable.
func (c Criteria) Advance(current CriteriaProgress, s Signal) CriteriaProgress {
	switch c.Type {
	case CriteriaCompositeAll:
		components := make([]int64, len(c.Children))
		copy(components, current.Components)

		done := int64(0)
		for i, child := range c.Children {
			components[i] = child.advanceLeaf(components[i], s)
			if components[i] >= child.TargetValue() {
				done++
			}
		}
		return CriteriaProgress{Value: done, Components: components}
	case CriteriaCountThreshold, CriteriaScoreThreshold, CriteriaBooleanFlag, CriteriaStreakThreshold:
		return CriteriaProgress{Value: c.advanceLeaf(current.Value, s)}
	default:
		return current
	}
}

// IsSatisfied reports whether p meets the criteria's target.
func (c Criteria) IsSatisfied(p CriteriaProgress) bool {
	target := c.TargetValue()
	return target > 0 && p.Value >= target
}

func (c Criteria) advanceLeaf(current int64, s Signal) int64 {
	var next int64

	switch c.Type {
	case CriteriaCountThreshold:
		if !c.MatchesCategory(s.Category) {
			return current
		}
		if c.SumValues {
			next = SaturatingAdd(current, s.Value)
		} else {
			next = current + 1
		}
	case CriteriaScoreThreshold:
		if !c.MatchesCategory(s.Category) {
			return current
		}
		next = max(current, s.Value)
	case CriteriaBooleanFlag:
		if !c.MatchesCategory(s.Category) {
			return current
		}
		if c.MetadataKey != "" && !isTruthy(s.Metadata[c.MetadataKey]) {
			return current
		}
		next = 1
	case CriteriaStreakThreshold:
		next = max(current, int64(s.Streak))
	default:
		return current
	}

	return min(next, c.TargetValue())
}

func isTruthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
