// Package catalog stores and serves pre-projected boundary geometry for
// states, counties, census tracts, health service areas, and cancer
// registries, partitioned per state so a render only loads the partitions it
// touches. Geometry rides in EWKB blobs; non-geometric attributes live in a
// separate table so metadata lookups never load shapes.
package catalog

import (
	"context"
	"time"

	"github.com/sells-group/ratemap/internal/fips"
)

// Boundary is one region's geometry plus the attributes a render needs.
type Boundary struct {
	Key       string     // GEOID, HSA number, registry abbr, or state FIPS
	Level     fips.Level
	StateFIPS string
	Name      string
	Registry  string // owning registry abbreviation, "" when none applies
	HSA       string // enclosing HSA number for county rows, "" otherwise
	CentroidX float64
	CentroidY float64
	Geom      []byte // EWKB MultiPolygon
}

// LoadStatus is one row of the catalog's import bookkeeping.
type LoadStatus struct {
	Level      string
	StateFIPS  string
	Year       int
	RowCount   int
	LoadedAt   time.Time
	DurationMs int
}

// Catalog answers geometry and region-topology questions for the assembler.
// Loads are idempotent, side-effect-free reads, safe to memoize per
// (level, stateFIPS, year) key.
type Catalog interface {
	// RegionExists reports whether a region key is present at a level/year.
	// Metadata only; no geometry is read.
	RegionExists(ctx context.Context, level fips.Level, key string, year int) (bool, error)

	// StateBoundary returns a single state outline.
	StateBoundary(ctx context.Context, stateFIPS string) (*Boundary, error)

	// CountyBoundaries returns all county boundaries of one state.
	CountyBoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error)

	// TractBoundaries returns all census-tract boundaries of one state.
	TractBoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error)

	// HSABoundaries returns all health-service-area boundaries of one state.
	HSABoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error)

	// RegistryBoundary returns a cancer-registry catchment outline.
	RegistryBoundary(ctx context.Context, abbr string) (*Boundary, error)

	// ParentOf returns the key of the enclosing region at the next-coarser
	// level: tract -> county, county -> state, HSA -> state, registry -> state.
	ParentOf(ctx context.Context, level fips.Level, key string) (string, error)

	// ChildrenOf returns the keys at the next-finer level under a region.
	ChildrenOf(ctx context.Context, level fips.Level, key string, year int) ([]string, error)
}

// Store extends Catalog with the write side used by the importer.
type Store interface {
	Catalog

	// Migrate creates tables and indexes if missing.
	Migrate(ctx context.Context) error

	// BulkInsert replaces the boundaries of one (level, state, year)
	// partition.
	BulkInsert(ctx context.Context, level fips.Level, stateFIPS string, year int, rows []Boundary) (int64, error)

	// RecordLoad upserts a load_status row after a completed partition load.
	RecordLoad(ctx context.Context, level fips.Level, stateFIPS string, year, rowCount, durationMs int) error

	// IsLoaded reports whether a partition has already been imported.
	IsLoaded(ctx context.Context, level fips.Level, stateFIPS string, year int) (bool, error)

	// Status returns all load_status rows sorted by level and state.
	Status(ctx context.Context) ([]LoadStatus, error)

	// Close releases the underlying connection.
	Close() error
}

// altVintageStates are the states whose county and HSA boundaries changed
// between the 2000 and 2010 censuses. Every other state serves its 2000
// dataset for both years.
var altVintageStates = map[string]bool{
	"02": true, // Alaska
	"08": true, // Colorado
	"51": true, // Virginia
}

// EffectiveYear maps a requested census year to the dataset vintage actually
// stored for a (level, state) partition. State and registry outlines are
// year-invariant and always use 2000. County, tract, and HSA partitions carry
// a 2010 variant only for the boundary-changed states.
func EffectiveYear(level fips.Level, stateFIPS string, year int) int {
	if year != 2010 {
		return 2000
	}
	switch level {
	case fips.LevelCounty, fips.LevelHSA:
		if altVintageStates[stateFIPS] {
			return 2010
		}
		return 2000
	case fips.LevelTract:
		// Tract boundaries are redrawn nationwide each census.
		return 2010
	default:
		return 2000
	}
}

// ValidYear reports whether a census year is supported.
func ValidYear(year int) bool {
	return year == 2000 || year == 2010
}
