// Package render turns assembled, classified regions into drawable output.
// The engine produces geometry-ready records; the only built-in backend
// emits GeoJSON for downstream map tooling.
package render

import (
	"context"
	"io"

	"github.com/sells-group/ratemap/internal/assemble"
	"github.com/sells-group/ratemap/internal/fips"
	"github.com/sells-group/ratemap/internal/level"
)

// Region is one classified area ready to paint.
type Region struct {
	assemble.RegionRecord
	Category int    // zero-based category index, classify.NoData when missing
	Color    string // resolved fill color
	Hatched  bool   // significance overlay flag
}

// Legend describes the category scale of a finished map.
type Legend struct {
	Breakpoints []float64 `json:"breakpoints"`
	Colors      []string  `json:"colors"`
	NoDataColor string    `json:"noDataColor"`
	HatchColor  string    `json:"hatchColor,omitempty"`
}

// Map is the complete render input: regions in draw order plus the legend
// and the diagnostics accumulated along the way.
type Map struct {
	Level   fips.Level
	Year    int
	Regions []Region
	Legend  Legend
	Report  level.Report
}

// Renderer paints a finished map to a writer.
type Renderer interface {
	Render(ctx context.Context, m *Map, w io.Writer) error
}
