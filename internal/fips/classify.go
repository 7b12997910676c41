package fips

import (
	"fmt"
	"strconv"
	"strings"
)

// Level identifies the geographic granularity of an identifier.
type Level int

// Levels ordered coarse to fine for the numeric FIPS axis. Registry and HSA
// sit on orthogonal axes and never subsume or get subsumed by tract/county.
const (
	LevelInvalid Level = iota
	LevelState
	LevelHSA
	LevelCounty
	LevelTract
	LevelRegistry
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelState:
		return "state"
	case LevelHSA:
		return "hsa"
	case LevelCounty:
		return "county"
	case LevelTract:
		return "tract"
	case LevelRegistry:
		return "registry"
	default:
		return "invalid"
	}
}

// Identifier is the classified form of one raw location identifier.
// Code fields are fixed-width strings; leading zeros are significant.
type Identifier struct {
	Raw       string
	Level     Level
	StateFIPS string // 2 digits, set for every valid level
	CountyCE  string // 3 digits, county and tract only
	TractCE   string // 6 digits, tract only
	HSA       string // 3 digits, HSA only
	Registry  string // registry abbreviation, registry only
	Reason    string // populated when Level == LevelInvalid
}

// GEOID returns the full fixed-width code for numeric levels, the HSA number,
// or the registry abbreviation.
func (id Identifier) GEOID() string {
	switch id.Level {
	case LevelState:
		return id.StateFIPS
	case LevelCounty:
		return id.StateFIPS + id.CountyCE
	case LevelTract:
		return id.StateFIPS + id.CountyCE + id.TractCE
	case LevelHSA:
		return id.HSA
	case LevelRegistry:
		return id.Registry
	default:
		return id.Raw
	}
}

// Classify inspects a raw identifier string and tags it with a level.
// Rule order: registry abbreviation, then fixed-width numeric codes by length
// (2 = state, 3 = HSA, 5 = county, 11 = tract). Pure function, no I/O.
func Classify(raw string) Identifier {
	id := Identifier{Raw: raw}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		id.Reason = "empty identifier"
		return id
	}

	if state, ok := Registries[strings.ToUpper(trimmed)]; ok {
		id.Level = LevelRegistry
		id.Registry = strings.ToUpper(trimmed)
		id.StateFIPS = state
		return id
	}

	if !numeric(trimmed) {
		id.Reason = fmt.Sprintf("identifier %q matches no known shape", raw)
		return id
	}

	switch len(trimmed) {
	case 2:
		if !ValidState(trimmed) {
			id.Reason = fmt.Sprintf("unknown state code %q", trimmed)
			return id
		}
		id.Level = LevelState
		id.StateFIPS = trimmed

	case 3:
		n, _ := strconv.Atoi(trimmed)
		if n < HSAMin || n > HSAMax {
			id.Reason = fmt.Sprintf("HSA number %q outside range %d-%d", trimmed, HSAMin, HSAMax)
			return id
		}
		id.Level = LevelHSA
		id.HSA = trimmed

	case 5:
		if !ValidState(trimmed[:2]) {
			id.Reason = fmt.Sprintf("unknown state prefix %q in county code %q", trimmed[:2], trimmed)
			return id
		}
		id.Level = LevelCounty
		id.StateFIPS = trimmed[:2]
		id.CountyCE = trimmed[2:5]

	case 11:
		if !ValidState(trimmed[:2]) {
			id.Reason = fmt.Sprintf("unknown state prefix %q in tract code %q", trimmed[:2], trimmed)
			return id
		}
		id.Level = LevelTract
		id.StateFIPS = trimmed[:2]
		id.CountyCE = trimmed[2:5]
		id.TractCE = trimmed[5:11]

	default:
		id.Reason = fmt.Sprintf("identifier %q has unsupported width %d", raw, len(trimmed))
	}

	return id
}

// ClassifyInt zero-pads an integer-typed identifier to the given code width
// before classifying. Identifiers are fixed-width codes, not numbers: the
// integer 6 at width 2 is the string "06".
func ClassifyInt(value int64, width int) Identifier {
	if value < 0 {
		return Identifier{
			Raw:    strconv.FormatInt(value, 10),
			Reason: fmt.Sprintf("negative identifier %d", value),
		}
	}
	return Classify(Pad(value, width))
}

// Pad formats an integer as a zero-padded fixed-width code.
func Pad(value int64, width int) string {
	return fmt.Sprintf("%0*d", width, value)
}

// InferWidth guesses the code width for an integer identifier from its digit
// count: anything up to 2 digits is a state, 3 an HSA, 4-5 a county, and
// 6-11 a tract. Used when an input column is numeric and the caller did not
// fix a width.
func InferWidth(value int64) int {
	switch {
	case value < 100:
		return 2
	case value < 1000:
		return 3
	case value < 100000:
		return 5
	default:
		return 11
	}
}

func numeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
