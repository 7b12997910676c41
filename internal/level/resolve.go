// Package level resolves a heterogeneous set of classified identifiers into
// the single mapping level a render will draw at, and determines which state
// and registry boundary partitions have to be loaded for it.
package level

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/ratemap/internal/fips"
)

// ConflictError reports a dataset mixing two incompatible fine levels. It is
// fatal for the whole render; the message enumerates the offending
// identifiers so the caller can split the request.
type ConflictError struct {
	Levels [2]fips.Level
	IDs    []string
}

// Error implements error.
func (e *ConflictError) Error() string {
	ids := e.IDs
	const maxListed = 10
	suffix := ""
	if len(ids) > maxListed {
		suffix = fmt.Sprintf(" (and %d more)", len(ids)-maxListed)
		ids = ids[:maxListed]
	}
	return fmt.Sprintf("level: dataset mixes %s and %s identifiers: %s%s",
		e.Levels[0], e.Levels[1], strings.Join(ids, ", "), suffix)
}

// Resolution is the outcome of resolving a whole dataset.
type Resolution struct {
	Level      fips.Level
	States     map[string]bool // state FIPS codes needing boundary loads
	Registries map[string]bool // registry abbreviations present in the data
	Report     Report          // unknown-format rows, excluded from resolution
}

// StateList returns the resolved state set, sorted.
func (r Resolution) StateList() []string {
	states := make([]string, 0, len(r.States))
	for s := range r.States {
		states = append(states, s)
	}
	sort.Strings(states)
	return states
}

// RegistryList returns the resolved registry set, sorted.
func (r Resolution) RegistryList() []string {
	regs := make([]string, 0, len(r.Registries))
	for a := range r.Registries {
		regs = append(regs, a)
	}
	sort.Strings(regs)
	return regs
}

// Options tunes resolution behavior.
type Options struct {
	// CoerceLevels resolves a county/tract (or HSA/county, HSA/tract) mix to
	// the coarser level instead of failing. Off by default: mixed fine levels
	// are treated as a caller error.
	CoerceLevels bool
}

// Resolve combines per-row classifications into one mapping level.
//
// Invalid identifiers go to the report and are excluded. Among valid rows the
// finest consistently-present level wins; state-only rows coexist with any
// finer level and become no-data context at render time. Registry rows
// contribute their bound state regardless of the numeric level. Two
// incompatible fine levels fail with *ConflictError unless opts.CoerceLevels
// is set.
func Resolve(ids []fips.Identifier, opts Options) (Resolution, error) {
	res := Resolution{
		States:     make(map[string]bool),
		Registries: make(map[string]bool),
	}

	byLevel := make(map[fips.Level][]fips.Identifier)
	for _, id := range ids {
		if id.Level == fips.LevelInvalid {
			res.Report.Add(id.Raw, ReasonUnknownFormat, id.Reason)
			continue
		}
		byLevel[id.Level] = append(byLevel[id.Level], id)
		if id.StateFIPS != "" {
			res.States[id.StateFIPS] = true
		}
		if id.Registry != "" {
			res.Registries[id.Registry] = true
		}
	}

	if len(byLevel) == 0 {
		res.Level = fips.LevelInvalid
		return res, nil
	}

	// Fine levels are mutually exclusive; state and registry rows ride along
	// with any of them.
	fine := []fips.Level{fips.LevelHSA, fips.LevelCounty, fips.LevelTract}
	var present []fips.Level
	for _, l := range fine {
		if len(byLevel[l]) > 0 {
			present = append(present, l)
		}
	}

	switch len(present) {
	case 0:
		// Only state and/or registry rows. Registry is the more specific axis.
		if len(byLevel[fips.LevelRegistry]) > 0 {
			res.Level = fips.LevelRegistry
		} else {
			res.Level = fips.LevelState
		}
	case 1:
		res.Level = present[0]
	default:
		if !opts.CoerceLevels {
			return Resolution{}, conflict(present, byLevel)
		}
		// Coarsest of the conflicting fine levels wins; finer rows are
		// reported and dropped.
		res.Level = present[0]
		for _, l := range present[1:] {
			for _, id := range byLevel[l] {
				res.Report.Add(id.Raw, ReasonLevelConflict,
					fmt.Sprintf("coerced out: %s row in a %s render", l, res.Level))
			}
		}
		zap.L().Warn("level: coerced mixed levels",
			zap.String("resolved", res.Level.String()),
			zap.Int("dropped", res.Report.Len()),
		)
	}

	return res, nil
}

func conflict(present []fips.Level, byLevel map[fips.Level][]fips.Identifier) *ConflictError {
	err := &ConflictError{Levels: [2]fips.Level{present[0], present[1]}}
	for _, l := range present {
		for _, id := range byLevel[l] {
			err.IDs = append(err.IDs, id.Raw)
		}
	}
	sort.Strings(err.IDs)
	return err
}
