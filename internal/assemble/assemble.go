// Package assemble orchestrates boundary loads for a resolved mapping level,
// merges user data rows onto the loaded regions, and applies expansion
// policies that draw context boundaries beyond the data-bearing areas.
package assemble

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ratemap/internal/catalog"
	"github.com/sells-group/ratemap/internal/fips"
	"github.com/sells-group/ratemap/internal/level"
)

// Policy controls how far beyond data-bearing areas a boundary type is drawn.
type Policy int

const (
	// PolicyNone draws no context boundaries of the type.
	PolicyNone Policy = iota
	// PolicyData draws only data-bearing areas.
	PolicyData
	// PolicyState draws every sibling region within any state that has at
	// least one data-bearing area.
	PolicyState
	// PolicyRegistry draws every sibling region within any registry that has
	// at least one data-bearing area. Registry membership takes precedence
	// over state membership when both apply.
	PolicyRegistry
	// PolicyAll draws every available region for every requested state.
	PolicyAll
)

// String implements fmt.Stringer.
func (p Policy) String() string {
	switch p {
	case PolicyData:
		return "DATA"
	case PolicyState:
		return "STATE"
	case PolicyRegistry:
		return "SEER"
	case PolicyAll:
		return "ALL"
	default:
		return "NONE"
	}
}

// ParsePolicy parses a policy token, case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return PolicyNone, nil
	case "DATA":
		return PolicyData, nil
	case "STATE":
		return PolicyState, nil
	case "SEER", "REGISTRY":
		return PolicyRegistry, nil
	case "ALL":
		return PolicyAll, nil
	default:
		return PolicyNone, eris.Errorf("assemble: unknown expansion policy %q", s)
	}
}

// Row is one input observation bound for the map.
type Row struct {
	ID         fips.Identifier
	Value      float64
	HatchValue *float64 // optional significance value
}

// RegionRecord is one assembled area: geometry reference plus the attributes
// the classifier and renderer need. Immutable once assembly returns.
type RegionRecord struct {
	ID         string
	Level      fips.Level
	StateFIPS  string
	Registry   string
	Name       string
	CentroidX  float64
	CentroidY  float64
	Geom       []byte
	HasData    bool
	Value      float64
	HatchValue *float64
}

// Options tunes one assembly pass.
type Options struct {
	Year            int    // census year, 2000 or 2010
	CountyPolicy    Policy // expansion for county renders
	TractPolicy     Policy // expansion for tract renders
	HSAPolicy       Policy // expansion for HSA renders
	RegistryOverlay Policy // independent registry outline overlay
	US48Only        bool   // drop context regions outside the contiguous 48
	Concurrency     int    // parallel per-state loads (default 4)
}

func (o *Options) defaults() {
	if o.Year == 0 {
		o.Year = 2000
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
}

// Assembler loads boundary partitions from a catalog and merges them with
// user data into renderable region records.
type Assembler struct {
	cat catalog.Catalog
	log *zap.Logger
}

// New creates an Assembler over a catalog.
func New(cat catalog.Catalog) *Assembler {
	return &Assembler{
		cat: cat,
		log: zap.L().With(zap.String("component", "assemble")),
	}
}

// Assemble builds the region set for one render pass. Rows whose identifier
// has no matching geometry are reported, not fatal; a state partition that
// fails to load degrades that state's regions only.
func (a *Assembler) Assemble(ctx context.Context, res level.Resolution, rows []Row, opts Options) ([]RegionRecord, level.Report, error) {
	opts.defaults()
	var report level.Report

	if res.Level == fips.LevelInvalid {
		return nil, report, eris.New("assemble: no mappable rows")
	}
	if !catalog.ValidYear(opts.Year) {
		return nil, report, eris.Errorf("assemble: unsupported census year %d", opts.Year)
	}

	states := a.requiredStates(ctx, res, rows, &report)

	var regions map[string]*RegionRecord
	switch res.Level {
	case fips.LevelState:
		regions = a.loadStates(ctx, states)
	case fips.LevelRegistry:
		regions = a.loadRegistries(ctx, res.RegistryList())
	default:
		regions = a.loadFine(ctx, res.Level, states, opts)
	}

	dataStates, dataRegistries := a.attach(regions, rows, res.Level, &report)

	out := a.filter(regions, res.Level, opts, dataStates, dataRegistries)
	out = append(out, a.stateContext(ctx, rows, res.Level, out)...)
	out = append(out, a.overlay(ctx, res.Level, opts.RegistryOverlay, dataStates, dataRegistries)...)

	if opts.US48Only {
		out = restrictUS48(out)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID < out[j].ID
	})

	a.log.Info("assembly complete",
		zap.String("level", res.Level.String()),
		zap.Int("regions", len(out)),
		zap.Int("states", len(states)),
		zap.Int("unmatched", report.Len()),
	)
	return out, report, nil
}

// requiredStates unions the resolver's state set with the states HSA rows map
// to. HSA numbers carry no state prefix, so membership comes from the
// catalog's attribute table.
func (a *Assembler) requiredStates(ctx context.Context, res level.Resolution, rows []Row, report *level.Report) []string {
	states := make(map[string]bool, len(res.States))
	for s := range res.States {
		states[s] = true
	}

	if res.Level == fips.LevelHSA {
		for _, row := range rows {
			if row.ID.Level != fips.LevelHSA {
				continue
			}
			state, err := a.cat.ParentOf(ctx, fips.LevelHSA, row.ID.HSA)
			if err != nil {
				report.Add(row.ID.Raw, level.ReasonUnknownInCatalog, "HSA not in catalog")
				continue
			}
			states[state] = true
		}
	}

	out := make([]string, 0, len(states))
	for s := range states {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (a *Assembler) loadStates(ctx context.Context, states []string) map[string]*RegionRecord {
	regions := make(map[string]*RegionRecord, len(states))
	for _, st := range states {
		b, err := a.cat.StateBoundary(ctx, st)
		if err != nil {
			a.log.Warn("state boundary load failed, degrading",
				zap.String("state", st), zap.Error(err))
			continue
		}
		regions[b.Key] = fromBoundary(b)
	}
	return regions
}

func (a *Assembler) loadRegistries(ctx context.Context, abbrs []string) map[string]*RegionRecord {
	regions := make(map[string]*RegionRecord, len(abbrs))
	for _, abbr := range abbrs {
		b, err := a.cat.RegistryBoundary(ctx, abbr)
		if err != nil {
			a.log.Warn("registry boundary load failed, degrading",
				zap.String("registry", abbr), zap.Error(err))
			continue
		}
		regions[b.Key] = fromBoundary(b)
	}
	return regions
}

// loadFine loads county, tract, or HSA partitions for every required state in
// parallel. A failed partition is logged and skipped; the render continues
// with the states that loaded.
func (a *Assembler) loadFine(ctx context.Context, lvl fips.Level, states []string, opts Options) map[string]*RegionRecord {
	var (
		mu      sync.Mutex
		regions = make(map[string]*RegionRecord)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, st := range states {
		g.Go(func() error {
			start := time.Now()

			var (
				bounds []catalog.Boundary
				err    error
			)
			switch lvl {
			case fips.LevelCounty:
				bounds, err = a.cat.CountyBoundaries(gctx, st, opts.Year)
			case fips.LevelTract:
				bounds, err = a.cat.TractBoundaries(gctx, st, opts.Year)
			case fips.LevelHSA:
				bounds, err = a.cat.HSABoundaries(gctx, st, opts.Year)
			}
			if err != nil {
				a.log.Warn("boundary partition load failed, degrading",
					zap.String("level", lvl.String()),
					zap.String("state", st),
					zap.Error(err))
				return nil
			}

			mu.Lock()
			for i := range bounds {
				regions[bounds[i].Key] = fromBoundary(&bounds[i])
			}
			mu.Unlock()

			a.log.Debug("boundary partition loaded",
				zap.String("level", lvl.String()),
				zap.String("state", st),
				zap.Int("regions", len(bounds)),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		})
	}

	_ = g.Wait() // partition errors degrade rather than propagate
	return regions
}

// attach binds data rows to their regions and returns the states and
// registries that carry data, which drive expansion.
func (a *Assembler) attach(regions map[string]*RegionRecord, rows []Row, lvl fips.Level, report *level.Report) (map[string]bool, map[string]bool) {
	dataStates := make(map[string]bool)
	dataRegistries := make(map[string]bool)

	for _, row := range rows {
		id := row.ID
		switch {
		case id.Level == lvl:
			rec, ok := regions[id.GEOID()]
			if !ok {
				if !reported(report, id.Raw) {
					report.Add(id.Raw, level.ReasonUnknownInCatalog,
						"no "+lvl.String()+" boundary for identifier")
				}
				continue
			}
			rec.HasData = true
			rec.Value = row.Value
			rec.HatchValue = row.HatchValue
			if rec.StateFIPS != "" {
				dataStates[rec.StateFIPS] = true
			}
			if rec.Registry != "" {
				dataRegistries[rec.Registry] = true
			}

		case id.Level == fips.LevelRegistry:
			// Registry rows riding along a finer render mark the whole
			// registry as data-bearing.
			dataRegistries[id.Registry] = true
			dataStates[id.StateFIPS] = true

		case id.Level == fips.LevelState:
			// State-only rows become context at render time; handled by
			// stateContext.

		default:
			// Rows coerced out of a mixed-level dataset were already
			// reported by the resolver.
		}
	}
	return dataStates, dataRegistries
}

// filter applies the expansion policy for the mapped boundary type. Expansion
// never removes a data-bearing region.
func (a *Assembler) filter(regions map[string]*RegionRecord, lvl fips.Level, opts Options, dataStates, dataRegistries map[string]bool) []RegionRecord {
	policy := PolicyAll
	switch lvl {
	case fips.LevelCounty:
		policy = opts.CountyPolicy
	case fips.LevelTract:
		policy = opts.TractPolicy
	case fips.LevelHSA:
		policy = opts.HSAPolicy
	}

	out := make([]RegionRecord, 0, len(regions))
	for _, rec := range regions {
		if rec.HasData {
			out = append(out, *rec)
			continue
		}
		keep := false
		switch policy {
		case PolicyAll:
			keep = true
		case PolicyState:
			keep = dataStates[rec.StateFIPS]
		case PolicyRegistry:
			keep = rec.Registry != "" && dataRegistries[rec.Registry]
		}
		if keep {
			out = append(out, *rec)
		}
	}
	return out
}

// stateContext loads state outlines for state-level rows present in a
// finer-level render. They draw as unfilled background.
func (a *Assembler) stateContext(ctx context.Context, rows []Row, lvl fips.Level, existing []RegionRecord) []RegionRecord {
	if lvl == fips.LevelState {
		return nil
	}

	have := make(map[string]bool, len(existing))
	for _, r := range existing {
		if r.Level == fips.LevelState {
			have[r.ID] = true
		}
	}

	var out []RegionRecord
	for _, row := range rows {
		if row.ID.Level != fips.LevelState || have[row.ID.StateFIPS] {
			continue
		}
		have[row.ID.StateFIPS] = true
		b, err := a.cat.StateBoundary(ctx, row.ID.StateFIPS)
		if err != nil {
			a.log.Warn("state context load failed",
				zap.String("state", row.ID.StateFIPS), zap.Error(err))
			continue
		}
		out = append(out, *fromBoundary(b))
	}
	return out
}

// overlay loads registry outline boundaries per the overlay setting,
// independent of the mapped level's own expansion.
func (a *Assembler) overlay(ctx context.Context, lvl fips.Level, policy Policy, dataStates, dataRegistries map[string]bool) []RegionRecord {
	if lvl == fips.LevelRegistry || policy == PolicyNone {
		return nil
	}

	want := make(map[string]bool)
	switch policy {
	case PolicyData, PolicyRegistry:
		for abbr := range dataRegistries {
			want[abbr] = true
		}
	case PolicyState:
		for st := range dataStates {
			for _, abbr := range fips.RegistriesInState(st) {
				want[abbr] = true
			}
		}
	case PolicyAll:
		for _, abbr := range fips.AllRegistries() {
			want[abbr] = true
		}
	}

	abbrs := make([]string, 0, len(want))
	for abbr := range want {
		abbrs = append(abbrs, abbr)
	}
	sort.Strings(abbrs)

	var out []RegionRecord
	for _, abbr := range abbrs {
		b, err := a.cat.RegistryBoundary(ctx, abbr)
		if err != nil {
			a.log.Warn("registry overlay load failed",
				zap.String("registry", abbr), zap.Error(err))
			continue
		}
		out = append(out, *fromBoundary(b))
	}
	return out
}

// restrictUS48 drops context regions outside the contiguous 48 states.
// Data-bearing regions are never dropped.
func restrictUS48(regions []RegionRecord) []RegionRecord {
	conus := make(map[string]bool)
	for _, st := range fips.ContiguousStates() {
		conus[st] = true
	}

	out := regions[:0]
	for _, r := range regions {
		if r.HasData || r.StateFIPS == "" || conus[r.StateFIPS] {
			out = append(out, r)
		}
	}
	return out
}

func fromBoundary(b *catalog.Boundary) *RegionRecord {
	return &RegionRecord{
		ID:        b.Key,
		Level:     b.Level,
		StateFIPS: b.StateFIPS,
		Registry:  b.Registry,
		Name:      b.Name,
		CentroidX: b.CentroidX,
		CentroidY: b.CentroidY,
		Geom:      b.Geom,
	}
}

func reported(r *level.Report, id string) bool {
	for _, e := range r.Entries {
		if e.ID == id {
			return true
		}
	}
	return false
}
