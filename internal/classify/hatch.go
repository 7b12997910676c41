package classify

import (
	"math"

	"github.com/rotisserie/eris"
)

// HatchSpec flags areas whose significance value meets an operator/threshold
// predicate. The default flags p-values above 0.05. Evaluated independently
// of the color category: an area can be both top-category and hatched.
type HatchSpec struct {
	Op        string
	Threshold float64
}

// DefaultHatchSpec returns the p-value default.
func DefaultHatchSpec() HatchSpec {
	return HatchSpec{Op: ">", Threshold: 0.05}
}

// Validate rejects unknown operators at configuration time.
func (s HatchSpec) Validate() error {
	switch s.Op {
	case ">", ">=", "<", "<=", "==", "!=":
		return nil
	default:
		return eris.Errorf("classify: unknown hatch operator %q", s.Op)
	}
}

// Hatch evaluates the predicate for one value. NaN never hatches.
func (s HatchSpec) Hatch(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	switch s.Op {
	case ">":
		return v > s.Threshold
	case ">=":
		return v >= s.Threshold
	case "<":
		return v < s.Threshold
	case "<=":
		return v <= s.Threshold
	case "==":
		return v == s.Threshold
	case "!=":
		return v != s.Threshold
	default:
		return false
	}
}
