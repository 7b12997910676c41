package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/ratemap/internal/fips"
)

// ImportOptions configures a boundary dataset import.
type ImportOptions struct {
	Levels      []fips.Level // boundary types to import; empty = all
	States      []string     // state FIPS codes; empty = all 50 + DC
	Year        int          // census year (2000 or 2010)
	TempDir     string       // download directory
	TigerBase   string       // Census TIGER base URL
	SEERBase    string       // registry/HSA boundary base URL (http or ftp)
	Concurrency int          // parallel per-state downloads (default 3)
	Incremental bool         // skip partitions already in load_status
	DryRun      bool         // download and parse without loading
}

func (o *ImportOptions) defaults() {
	if o.Year == 0 {
		o.Year = 2000
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	if o.TempDir == "" {
		o.TempDir = "/tmp/ratemap"
	}
	if o.TigerBase == "" {
		o.TigerBase = "https://www2.census.gov/geo/tiger"
	}
	if o.SEERBase == "" {
		o.SEERBase = "https://seer.cancer.gov/boundaries"
	}
	if len(o.Levels) == 0 {
		o.Levels = []fips.Level{
			fips.LevelState, fips.LevelCounty, fips.LevelTract,
			fips.LevelHSA, fips.LevelRegistry,
		}
	}
	if len(o.States) == 0 {
		o.States = fips.AllStateCodes()
	}
}

// DownloadURL builds the archive URL for one boundary partition. State and
// registry outlines ship as single national archives; the rest are per state
// and year.
func DownloadURL(opts ImportOptions, lvl fips.Level, stateFIPS string, year int) string {
	suffix := "00"
	if year == 2010 {
		suffix = "10"
	}
	switch lvl {
	case fips.LevelState:
		return fmt.Sprintf("%s/TIGER2010/STATE/2000/tl_2010_us_state00.zip", opts.TigerBase)
	case fips.LevelCounty:
		return fmt.Sprintf("%s/TIGER2010/COUNTY/%d/tl_2010_%s_county%s.zip",
			opts.TigerBase, year, stateFIPS, suffix)
	case fips.LevelTract:
		return fmt.Sprintf("%s/TIGER2010/TRACT/%d/tl_2010_%s_tract%s.zip",
			opts.TigerBase, year, stateFIPS, suffix)
	case fips.LevelHSA:
		return fmt.Sprintf("%s/hsa/%d/hsa_%s.zip", opts.SEERBase, year, stateFIPS)
	case fips.LevelRegistry:
		return fmt.Sprintf("%s/registry/seer_registries.zip", opts.SEERBase)
	default:
		return ""
	}
}

// national reports whether a level ships as one nationwide archive.
func national(lvl fips.Level) bool {
	return lvl == fips.LevelState || lvl == fips.LevelRegistry
}

// Importer downloads, parses, and loads boundary datasets into a Store.
type Importer struct {
	store Store
	dl    *Downloader
}

// NewImporter creates an Importer.
func NewImporter(store Store, dl *Downloader) *Importer {
	if dl == nil {
		dl = NewDownloader(nil)
	}
	return &Importer{store: store, dl: dl}
}

// Import runs a boundary import for the given options. National levels load
// first, then per-state partitions in parallel.
func (im *Importer) Import(ctx context.Context, opts ImportOptions) error {
	opts.defaults()
	if !ValidYear(opts.Year) {
		return eris.Errorf("catalog: unsupported census year %d", opts.Year)
	}
	for _, state := range opts.States {
		if !fips.ValidState(state) {
			return eris.Errorf("catalog: unknown state FIPS %q", state)
		}
	}

	log := zap.L().With(
		zap.String("component", "catalog.importer"),
		zap.Int("year", opts.Year),
	)

	if !opts.DryRun {
		if err := im.store.Migrate(ctx); err != nil {
			return err
		}
	}

	var nationalLevels, perState []fips.Level
	for _, lvl := range opts.Levels {
		if national(lvl) {
			nationalLevels = append(nationalLevels, lvl)
		} else {
			perState = append(perState, lvl)
		}
	}

	for _, lvl := range nationalLevels {
		if err := im.importNational(ctx, lvl, opts); err != nil {
			return eris.Wrapf(err, "catalog: import national %s", lvl)
		}
	}
	log.Info("national boundary sets loaded", zap.Int("count", len(nationalLevels)))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, state := range opts.States {
		for _, lvl := range perState {
			g.Go(func() error {
				return im.importPartition(gCtx, lvl, state, opts)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("boundary import complete",
		zap.Int("states", len(opts.States)),
		zap.Int("levels", len(perState)),
	)
	return nil
}

// importNational loads a nationwide archive and splits it into per-state
// partitions. National outlines are year-invariant and stored under 2000.
func (im *Importer) importNational(ctx context.Context, lvl fips.Level, opts ImportOptions) error {
	url := DownloadURL(opts, lvl, "", 2000)
	destDir := fmt.Sprintf("%s/us/%s", opts.TempDir, lvl)

	shpPath, err := im.dl.Fetch(ctx, url, destDir)
	if err != nil {
		return err
	}

	boundaries, err := ParseBoundaries(shpPath, lvl, 2000)
	if err != nil {
		return err
	}

	if opts.DryRun {
		zap.L().Info("dry run: parsed national set",
			zap.String("level", lvl.String()),
			zap.Int("rows", len(boundaries)),
		)
		return nil
	}

	byState := make(map[string][]Boundary)
	for _, b := range boundaries {
		byState[b.StateFIPS] = append(byState[b.StateFIPS], b)
	}

	wanted := make(map[string]bool, len(opts.States))
	for _, s := range opts.States {
		wanted[s] = true
	}

	start := time.Now()
	for state, rows := range byState {
		if !wanted[state] {
			continue
		}
		n, err := im.store.BulkInsert(ctx, lvl, state, 2000, rows)
		if err != nil {
			return err
		}
		if err := im.store.RecordLoad(ctx, lvl, state, 2000, int(n),
			int(time.Since(start).Milliseconds())); err != nil {
			zap.L().Warn("failed to record load status", zap.Error(err))
		}
	}
	return nil
}

// importPartition loads one (level, state, year) partition.
func (im *Importer) importPartition(ctx context.Context, lvl fips.Level, state string, opts ImportOptions) error {
	log := zap.L().With(
		zap.String("component", "catalog.importer"),
		zap.String("level", lvl.String()),
		zap.String("state", state),
	)

	eff := EffectiveYear(lvl, state, opts.Year)

	if opts.Incremental && !opts.DryRun {
		loaded, err := im.store.IsLoaded(ctx, lvl, state, eff)
		if err != nil {
			return err
		}
		if loaded {
			log.Debug("partition already loaded, skipping")
			return nil
		}
	}

	start := time.Now()

	url := DownloadURL(opts, lvl, state, eff)
	destDir := fmt.Sprintf("%s/%s/%s", opts.TempDir, state, lvl)
	shpPath, err := im.dl.Fetch(ctx, url, destDir)
	if err != nil {
		return eris.Wrapf(err, "catalog: download %s for %s", lvl, state)
	}

	boundaries, err := ParseBoundaries(shpPath, lvl, eff)
	if err != nil {
		return eris.Wrapf(err, "catalog: parse %s for %s", lvl, state)
	}

	log.Info("shapefile parsed", zap.Int("rows", len(boundaries)))

	if opts.DryRun {
		return nil
	}

	n, err := im.store.BulkInsert(ctx, lvl, state, eff, boundaries)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	if err := im.store.RecordLoad(ctx, lvl, state, eff, int(n), int(duration.Milliseconds())); err != nil {
		log.Warn("failed to record load status", zap.Error(err))
	}

	log.Info("partition loaded",
		zap.Int64("rows", n),
		zap.Duration("duration", duration),
	)
	return nil
}

// ParseBoundaries reads a boundary shapefile into Boundary rows. DBF field
// names vary by vintage (STATEFP vs STATEFP00 vs STATEFP10); lookups try the
// bare name first, then the year suffixes. Attribute text is Latin-1.
func ParseBoundaries(shpPath string, lvl fips.Level, year int) ([]Boundary, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.ToLower(strings.TrimRight(f.String(), "\x00"))
		fieldIdx[name] = i
	}

	attr := func(names ...string) func() string {
		idx := -1
		for _, name := range names {
			for _, cand := range []string{name, name + "00", name + "10"} {
				if i, ok := fieldIdx[cand]; ok {
					idx = i
					break
				}
			}
			if idx >= 0 {
				break
			}
		}
		return func() string {
			if idx < 0 {
				return ""
			}
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
			decoded, err := charmap.ISO8859_1.NewDecoder().String(raw)
			if err != nil {
				return raw
			}
			return decoded
		}
	}

	stateAttr := attr("statefp", "state")
	countyAttr := attr("countyfp", "county")
	tractAttr := attr("tractce", "tract")
	nameAttr := attr("namelsad", "name")
	hsaAttr := attr("hsa", "hsa_no")
	registryAttr := attr("registry", "seerreg", "reg_abbr")

	var (
		boundaries []Boundary
		skipped    int
	)

	for reader.Next() {
		_, shape := reader.Shape()

		geomBytes, cx, cy, err := EncodePolygon(shape)
		if err != nil || geomBytes == nil {
			skipped++
			continue
		}

		b := Boundary{
			Level:     lvl,
			StateFIPS: stateAttr(),
			Name:      nameAttr(),
			Registry:  strings.ToUpper(registryAttr()),
			HSA:       padHSA(hsaAttr()),
			CentroidX: cx,
			CentroidY: cy,
			Geom:      geomBytes,
		}

		switch lvl {
		case fips.LevelState:
			b.Key = b.StateFIPS
		case fips.LevelCounty:
			b.Key = b.StateFIPS + countyAttr()
		case fips.LevelTract:
			b.Key = b.StateFIPS + countyAttr() + padTract(tractAttr())
		case fips.LevelHSA:
			b.Key = b.HSA
		case fips.LevelRegistry:
			b.Key = strings.ToUpper(registryAttr())
			b.Registry = b.Key
			if state, ok := fips.RegistryState(b.Key); ok {
				b.StateFIPS = state
			}
		}

		if b.Key == "" || b.StateFIPS == "" {
			skipped++
			continue
		}

		boundaries = append(boundaries, b)
	}

	if skipped > 0 {
		zap.L().Debug("catalog: skipped shapefile records",
			zap.String("level", lvl.String()),
			zap.Int("skipped", skipped),
		)
	}

	return boundaries, nil
}

// padTract right-pads 4-digit 2000-vintage tract codes to the 6-digit form
// ("1234" -> "123400").
func padTract(code string) string {
	code = strings.ReplaceAll(code, ".", "")
	for len(code) > 0 && len(code) < 6 {
		code += "0"
	}
	return code
}

// padHSA left-pads HSA numbers to the fixed 3-digit form.
func padHSA(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for len(code) < 3 {
		code = "0" + code
	}
	return code
}
