// Package fips classifies U.S. geographic identifiers (FIPS codes, Health
// Service Area numbers, and cancer-registry abbreviations) and carries the
// reference tables the rest of the engine keys off.
package fips

import "sort"

// StateCodes maps state abbreviation to 2-digit FIPS code for all 50 states + DC.
var StateCodes = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

// Registries maps the 20 cancer-registry abbreviations to the 2-digit FIPS
// code of the single state each registry is bound to.
var Registries = map[string]string{
	"AK-NAT": "02", // Alaska Natives
	"AZ-NAT": "04", // Arizona Indians
	"CA-LA":  "06", // Los Angeles
	"CA-OTH": "06", // California excluding SEER areas
	"CA-SF":  "06", // San Francisco-Oakland
	"CA-SJ":  "06", // San Jose-Monterey
	"CT":     "09",
	"GA-ATL": "13", // Atlanta metro
	"GA-OTH": "13", // Georgia other
	"GA-RUR": "13", // rural Georgia
	"HI":     "15",
	"IA":     "19",
	"KY":     "21",
	"LA":     "22",
	"MI-DET": "26", // Detroit metro
	"NJ":     "34",
	"NM":     "35",
	"OK-CHE": "40", // Cherokee Nation
	"UT":     "49",
	"WA-SEA": "53", // Seattle-Puget Sound
}

// HSA numbers are assigned nationally in this closed range.
const (
	HSAMin = 1
	HSAMax = 961
)

// abbrByFIPS is a reverse lookup from FIPS code to state abbreviation.
var abbrByFIPS map[string]string

func init() {
	abbrByFIPS = make(map[string]string, len(StateCodes))
	for abbr, code := range StateCodes {
		abbrByFIPS[code] = abbr
	}
}

// ValidState reports whether a 2-digit code is a known state FIPS code.
func ValidState(code string) bool {
	_, ok := abbrByFIPS[code]
	return ok
}

// StateAbbr returns the state abbreviation for a 2-digit FIPS code.
func StateAbbr(code string) (string, bool) {
	abbr, ok := abbrByFIPS[code]
	return abbr, ok
}

// RegistryState returns the FIPS code of the state a registry is bound to.
func RegistryState(abbr string) (string, bool) {
	code, ok := Registries[abbr]
	return code, ok
}

// AllStateCodes returns a sorted list of all state FIPS codes.
func AllStateCodes() []string {
	codes := make([]string, 0, len(StateCodes))
	for _, code := range StateCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// AllRegistries returns a sorted list of registry abbreviations.
func AllRegistries() []string {
	abbrs := make([]string, 0, len(Registries))
	for abbr := range Registries {
		abbrs = append(abbrs, abbr)
	}
	sort.Strings(abbrs)
	return abbrs
}

// RegistriesInState returns the registry abbreviations bound to a state,
// sorted. Most states have none; California and Georgia have several.
func RegistriesInState(stateFIPS string) []string {
	var abbrs []string
	for abbr, code := range Registries {
		if code == stateFIPS {
			abbrs = append(abbrs, abbr)
		}
	}
	sort.Strings(abbrs)
	return abbrs
}

// ContiguousStates returns the FIPS codes of the contiguous 48 states + DC,
// used by the us48 map restriction.
func ContiguousStates() []string {
	var codes []string
	for _, code := range AllStateCodes() {
		if code == "02" || code == "15" {
			continue
		}
		codes = append(codes, code)
	}
	return codes
}
