// Package pipeline wires the full render pass: identifier classification,
// level resolution, boundary assembly, data classification, and handoff to a
// renderer. Stages run in order, each consuming the prior stage's complete
// output; category breakpoints need the full value distribution and boundary
// expansion needs the full identifier set.
package pipeline

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ratemap/internal/assemble"
	"github.com/sells-group/ratemap/internal/catalog"
	"github.com/sells-group/ratemap/internal/classify"
	"github.com/sells-group/ratemap/internal/fips"
	"github.com/sells-group/ratemap/internal/level"
	"github.com/sells-group/ratemap/internal/palette"
	"github.com/sells-group/ratemap/internal/render"
	"github.com/sells-group/ratemap/internal/table"
)

// Options configures one render pass.
type Options struct {
	Year            int                   // census year, default 2000
	Category        classify.CategorySpec // default 5 quantile categories
	Hatch           *classify.HatchSpec   // nil disables the overlay
	CountyPolicy    assemble.Policy
	TractPolicy     assemble.Policy
	HSAPolicy       assemble.Policy
	RegistryOverlay assemble.Policy
	US48Only        bool
	CoerceLevels    bool // coerce mixed fine levels instead of failing
	Palette         string
	Palettes        *palette.Set // default bundled set
}

func (o *Options) defaults() {
	if o.Year == 0 {
		o.Year = 2000
	}
	if o.Category.Count == 0 && len(o.Category.Breakpoints) == 0 {
		o.Category.Count = 5
	}
	if o.Palette == "" {
		o.Palette = "blues"
	}
	if o.Palettes == nil {
		o.Palettes = palette.Default()
	}
}

// Pipeline runs render passes against one catalog.
type Pipeline struct {
	cat catalog.Catalog
	log *zap.Logger
}

// New creates a Pipeline.
func New(cat catalog.Catalog) *Pipeline {
	return &Pipeline{
		cat: cat,
		log: zap.L().With(zap.String("component", "pipeline")),
	}
}

// Run executes one full render pass over the input rows. Configuration
// errors fail before any geometry work; unmatched identifiers accumulate in
// the returned map's report and never abort the pass.
func (p *Pipeline) Run(ctx context.Context, rows []table.Row, opts Options) (*render.Map, error) {
	opts.defaults()

	// Fail on bad configuration before touching the catalog.
	if err := opts.Category.Validate(); err != nil {
		return nil, err
	}
	if opts.Hatch != nil {
		if err := opts.Hatch.Validate(); err != nil {
			return nil, err
		}
	}
	colors, err := opts.Palettes.Lookup(opts.Palette, opts.Category.Categories())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.New("pipeline: no input rows")
	}

	ids := make([]fips.Identifier, len(rows))
	for i, row := range rows {
		ids[i] = fips.Classify(row.ID)
	}

	res, err := level.Resolve(ids, level.Options{CoerceLevels: opts.CoerceLevels})
	if err != nil {
		return nil, err
	}
	p.log.Debug("level resolved",
		zap.String("level", res.Level.String()),
		zap.Int("states", len(res.States)),
		zap.Int("registries", len(res.Registries)),
	)

	dataRows := make([]assemble.Row, len(rows))
	for i, row := range rows {
		dataRows[i] = assemble.Row{ID: ids[i], Value: row.Value, HatchValue: row.Hatch}
	}

	regions, report, err := assemble.New(p.cat).Assemble(ctx, res, dataRows, assemble.Options{
		Year:            opts.Year,
		CountyPolicy:    opts.CountyPolicy,
		TractPolicy:     opts.TractPolicy,
		HSAPolicy:       opts.HSAPolicy,
		RegistryOverlay: opts.RegistryOverlay,
		US48Only:        opts.US48Only,
	})
	if err != nil {
		return nil, err
	}
	report.Merge(res.Report)

	m := &render.Map{
		Level:  res.Level,
		Year:   opts.Year,
		Report: report,
		Legend: render.Legend{
			Colors:      colors,
			NoDataColor: opts.Palettes.NoData,
		},
	}
	if opts.Hatch != nil {
		m.Legend.HatchColor = opts.Palettes.Hatch
	}

	var values []float64
	for _, r := range regions {
		if r.HasData && !math.IsNaN(r.Value) {
			values = append(values, r.Value)
		}
	}

	// A map can legitimately carry no classifiable values (all-missing
	// measures); every region then draws in the no-data color.
	var cls *classify.Classification
	if len(values) > 0 {
		cls, err = classify.New(values, opts.Category)
		if err != nil {
			return nil, err
		}
		m.Legend.Breakpoints = cls.Breakpoints
	}

	m.Regions = make([]render.Region, 0, len(regions))
	for _, rec := range regions {
		region := render.Region{
			RegionRecord: rec,
			Category:     classify.NoData,
			Color:        opts.Palettes.NoData,
		}

		switch {
		case rec.HasData && cls != nil && !math.IsNaN(rec.Value):
			region.Category = cls.CategoryOf(rec.Value)
			region.Color = colors[region.Category]
		case !rec.HasData:
			// Context regions draw unfilled.
			region.Color = ""
		}
		if opts.Hatch != nil && rec.HatchValue != nil {
			region.Hatched = opts.Hatch.Hatch(*rec.HatchValue)
		}
		m.Regions = append(m.Regions, region)
	}

	p.log.Info("render pass complete",
		zap.String("level", m.Level.String()),
		zap.Int("regions", len(m.Regions)),
		zap.Int("classified", len(values)),
		zap.Int("unmatched", m.Report.Len()),
	)
	return m, nil
}
