// Package classify computes category breakpoints for map values and assigns
// each area a color category, plus an independent significance-hatch
// predicate. Breakpoints come from equal-count quantiles by default or from
// caller-supplied values.
package classify

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Category count limits. The ceiling matches the largest bundled palette.
const (
	MinCategories = 3
	MaxCategories = 11

	// MaxBreakpoints caps caller-supplied breakpoints; n breakpoints define
	// n+1 categories.
	MaxBreakpoints = 5

	// NoData is the reserved category for missing values. Never merged into
	// the first real category.
	NoData = -1
)

// CategorySpec selects either quantile mode (Count categories with
// equal-count breakpoints) or explicit mode (caller-supplied Breakpoints).
type CategorySpec struct {
	Count       int
	Breakpoints []float64
}

// Validate rejects malformed specs before any geometry work begins.
func (s CategorySpec) Validate() error {
	if len(s.Breakpoints) > 0 {
		if s.Count != 0 {
			return eris.New("classify: category count and explicit breakpoints are mutually exclusive")
		}
		// n breakpoints define n+1 categories, so the category floor
		// implies a breakpoint floor.
		if len(s.Breakpoints) < MinCategories-1 {
			return eris.Errorf("classify: at least %d explicit breakpoints (%d categories), got %d",
				MinCategories-1, MinCategories, len(s.Breakpoints))
		}
		if len(s.Breakpoints) > MaxBreakpoints {
			return eris.Errorf("classify: at most %d explicit breakpoints, got %d",
				MaxBreakpoints, len(s.Breakpoints))
		}
		for i := 1; i < len(s.Breakpoints); i++ {
			if s.Breakpoints[i] <= s.Breakpoints[i-1] {
				return eris.Errorf("classify: breakpoints must be strictly increasing, got %v at index %d",
					s.Breakpoints[i], i)
			}
		}
		return nil
	}
	if s.Count < MinCategories || s.Count > MaxCategories {
		return eris.Errorf("classify: category count must be in [%d,%d], got %d",
			MinCategories, MaxCategories, s.Count)
	}
	return nil
}

// Categories returns the number of categories the spec defines.
func (s CategorySpec) Categories() int {
	if len(s.Breakpoints) > 0 {
		return len(s.Breakpoints) + 1
	}
	return s.Count
}

// Classification holds computed breakpoints and assigns categories. A value
// equal to a breakpoint resolves to the lower of the two adjacent
// categories.
type Classification struct {
	Breakpoints []float64
	Count       int
}

// New computes a classification for the given values. Missing values must be
// filtered out by the caller beforehand (NaN values are ignored here as
// well). Explicit-mode specs pass their breakpoints through untouched.
func New(values []float64, spec CategorySpec) (*Classification, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if len(spec.Breakpoints) > 0 {
		bp := make([]float64, len(spec.Breakpoints))
		copy(bp, spec.Breakpoints)
		return &Classification{Breakpoints: bp, Count: len(bp) + 1}, nil
	}

	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return nil, eris.New("classify: no values to classify")
	}
	sort.Float64s(clean)

	// Interior quantiles at i/count for i in 1..count-1 split the sorted
	// values into count approximately equal-count categories.
	bp := make([]float64, 0, spec.Count-1)
	for i := 1; i < spec.Count; i++ {
		bp = append(bp, quantile(clean, float64(i)/float64(spec.Count)))
	}
	return &Classification{Breakpoints: bp, Count: spec.Count}, nil
}

// CategoryOf maps a value to its zero-based category index. NaN maps to
// NoData. Values at or below the first breakpoint land in category 0; values
// above the last land in the top category. A tie at a breakpoint takes the
// lower category.
func (c *Classification) CategoryOf(v float64) int {
	if math.IsNaN(v) {
		return NoData
	}
	for i, b := range c.Breakpoints {
		if v <= b {
			return i
		}
	}
	return len(c.Breakpoints)
}

// quantile is the type-7 estimator: linear interpolation of the empirical
// CDF at h = (n-1)p. Chosen for reproducibility; tie handling at breakpoints
// is then fully determined by the closed-left interval rule in CategoryOf.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}
