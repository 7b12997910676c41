package catalog

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ratemap/internal/fips"
)

// SQLiteCatalog implements Store using modernc.org/sqlite. It is the default
// embedded backend: one file holds every boundary partition.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLite opens a SQLite catalog at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "catalog: exec %s", pragma)
		}
	}
	return &SQLiteCatalog{db: db}, nil
}

// Attributes are kept apart from geometry so topology and existence queries
// never read shape blobs.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS boundary_attrs (
	level      TEXT NOT NULL,
	key        TEXT NOT NULL,
	year       INTEGER NOT NULL,
	state_fips TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	registry   TEXT NOT NULL DEFAULT '',
	hsa        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (level, key, year)
);

CREATE TABLE IF NOT EXISTS boundary_geom (
	level      TEXT NOT NULL,
	key        TEXT NOT NULL,
	year       INTEGER NOT NULL,
	centroid_x REAL NOT NULL DEFAULT 0,
	centroid_y REAL NOT NULL DEFAULT 0,
	geom       BLOB,
	PRIMARY KEY (level, key, year)
);

CREATE TABLE IF NOT EXISTS load_status (
	level       TEXT NOT NULL,
	state_fips  TEXT NOT NULL,
	year        INTEGER NOT NULL,
	row_count   INTEGER NOT NULL DEFAULT 0,
	loaded_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	duration_ms INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (level, state_fips, year)
);

CREATE INDEX IF NOT EXISTS idx_boundary_attrs_state ON boundary_attrs (level, state_fips, year);
CREATE INDEX IF NOT EXISTS idx_boundary_attrs_registry ON boundary_attrs (level, registry, year);
`

// Migrate creates the catalog tables if missing.
func (c *SQLiteCatalog) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "catalog: sqlite migrate")
	}
	return nil
}

// Close implements Store.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// RegionExists implements Catalog. County and tract keys carry their state
// prefix, so the vintage substitution applies exactly; state, HSA, and
// registry keys are checked against any stored vintage.
func (c *SQLiteCatalog) RegionExists(ctx context.Context, lvl fips.Level, key string, year int) (bool, error) {
	var (
		count int
		err   error
	)
	switch lvl {
	case fips.LevelCounty, fips.LevelTract:
		if len(key) < 2 {
			return false, nil
		}
		eff := EffectiveYear(lvl, key[:2], year)
		err = c.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM boundary_attrs WHERE level = ? AND key = ? AND year = ?`,
			lvl.String(), key, eff,
		).Scan(&count)
	default:
		err = c.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM boundary_attrs WHERE level = ? AND key = ?`,
			lvl.String(), key,
		).Scan(&count)
	}
	if err != nil {
		return false, eris.Wrap(err, "catalog: region exists")
	}
	return count > 0, nil
}

const boundarySelect = `
	SELECT a.key, a.state_fips, a.name, a.registry, a.hsa,
	       g.centroid_x, g.centroid_y, g.geom
	FROM boundary_attrs a
	JOIN boundary_geom g ON g.level = a.level AND g.key = a.key AND g.year = a.year
`

// StateBoundary implements Catalog.
func (c *SQLiteCatalog) StateBoundary(ctx context.Context, stateFIPS string) (*Boundary, error) {
	row := c.db.QueryRowContext(ctx,
		boundarySelect+` WHERE a.level = ? AND a.key = ? AND a.year = 2000`,
		fips.LevelState.String(), stateFIPS,
	)
	return scanOne(row, fips.LevelState, stateFIPS)
}

// RegistryBoundary implements Catalog.
func (c *SQLiteCatalog) RegistryBoundary(ctx context.Context, abbr string) (*Boundary, error) {
	row := c.db.QueryRowContext(ctx,
		boundarySelect+` WHERE a.level = ? AND a.key = ? AND a.year = 2000`,
		fips.LevelRegistry.String(), abbr,
	)
	return scanOne(row, fips.LevelRegistry, abbr)
}

// CountyBoundaries implements Catalog.
func (c *SQLiteCatalog) CountyBoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error) {
	return c.stateSet(ctx, fips.LevelCounty, stateFIPS, year)
}

// TractBoundaries implements Catalog.
func (c *SQLiteCatalog) TractBoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error) {
	return c.stateSet(ctx, fips.LevelTract, stateFIPS, year)
}

// HSABoundaries implements Catalog.
func (c *SQLiteCatalog) HSABoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error) {
	return c.stateSet(ctx, fips.LevelHSA, stateFIPS, year)
}

func (c *SQLiteCatalog) stateSet(ctx context.Context, lvl fips.Level, stateFIPS string, year int) ([]Boundary, error) {
	eff := EffectiveYear(lvl, stateFIPS, year)
	rows, err := c.db.QueryContext(ctx,
		boundarySelect+` WHERE a.level = ? AND a.state_fips = ? AND a.year = ? ORDER BY a.key`,
		lvl.String(), stateFIPS, eff,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: query %s boundaries for %s", lvl, stateFIPS)
	}
	defer rows.Close()

	var out []Boundary
	for rows.Next() {
		var b Boundary
		b.Level = lvl
		if err := rows.Scan(&b.Key, &b.StateFIPS, &b.Name, &b.Registry, &b.HSA,
			&b.CentroidX, &b.CentroidY, &b.Geom); err != nil {
			return nil, eris.Wrap(err, "catalog: scan boundary")
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ParentOf implements Catalog. Tract, county, and registry parents follow
// from the identifier scheme; HSA parents come from the attribute table.
func (c *SQLiteCatalog) ParentOf(ctx context.Context, lvl fips.Level, key string) (string, error) {
	switch lvl {
	case fips.LevelTract:
		if len(key) != 11 {
			return "", eris.Errorf("catalog: malformed tract key %q", key)
		}
		return key[:5], nil
	case fips.LevelCounty:
		if len(key) != 5 {
			return "", eris.Errorf("catalog: malformed county key %q", key)
		}
		return key[:2], nil
	case fips.LevelRegistry:
		state, ok := fips.RegistryState(key)
		if !ok {
			return "", eris.Errorf("catalog: unknown registry %q", key)
		}
		return state, nil
	case fips.LevelHSA:
		var state string
		err := c.db.QueryRowContext(ctx,
			`SELECT state_fips FROM boundary_attrs WHERE level = ? AND key = ? LIMIT 1`,
			fips.LevelHSA.String(), key,
		).Scan(&state)
		if err == sql.ErrNoRows {
			return "", eris.Errorf("catalog: unknown HSA %q", key)
		}
		if err != nil {
			return "", eris.Wrap(err, "catalog: HSA parent lookup")
		}
		return state, nil
	default:
		return "", eris.Errorf("catalog: level %s has no parent", lvl)
	}
}

// ChildrenOf implements Catalog: state -> counties, county -> tracts,
// registry -> member counties, HSA -> member counties.
func (c *SQLiteCatalog) ChildrenOf(ctx context.Context, lvl fips.Level, key string, year int) ([]string, error) {
	var (
		query string
		child fips.Level
		args  []any
	)

	switch lvl {
	case fips.LevelState:
		child = fips.LevelCounty
		query = `SELECT key FROM boundary_attrs WHERE level = ? AND state_fips = ? AND year = ? ORDER BY key`
		args = []any{child.String(), key, EffectiveYear(child, key, year)}
	case fips.LevelCounty:
		child = fips.LevelTract
		if len(key) != 5 {
			return nil, eris.Errorf("catalog: malformed county key %q", key)
		}
		query = `SELECT key FROM boundary_attrs WHERE level = ? AND key LIKE ? || '%' AND year = ? ORDER BY key`
		args = []any{child.String(), key, EffectiveYear(child, key[:2], year)}
	case fips.LevelRegistry:
		child = fips.LevelCounty
		state, ok := fips.RegistryState(key)
		if !ok {
			return nil, eris.Errorf("catalog: unknown registry %q", key)
		}
		query = `SELECT key FROM boundary_attrs WHERE level = ? AND registry = ? AND year = ? ORDER BY key`
		args = []any{child.String(), key, EffectiveYear(child, state, year)}
	case fips.LevelHSA:
		child = fips.LevelCounty
		query = `SELECT key FROM boundary_attrs WHERE level = ? AND hsa = ? ORDER BY key`
		args = []any{child.String(), key}
	default:
		return nil, eris.Errorf("catalog: level %s has no children", lvl)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: children of %s %s", lvl, key)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "catalog: scan child key")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// BulkInsert implements Store. The partition is replaced in one transaction.
func (c *SQLiteCatalog) BulkInsert(ctx context.Context, lvl fips.Level, stateFIPS string, year int, boundaries []Boundary) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: begin bulk insert")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"boundary_attrs", "boundary_geom"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE level = ? AND year = ? AND key IN (
				SELECT key FROM boundary_attrs WHERE level = ? AND state_fips = ? AND year = ?)`,
			lvl.String(), year, lvl.String(), stateFIPS, year,
		); err != nil {
			return 0, eris.Wrapf(err, "catalog: clear %s partition", table)
		}
	}

	attrStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO boundary_attrs (level, key, year, state_fips, name, registry, hsa)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: prepare attr insert")
	}
	defer attrStmt.Close()

	geomStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO boundary_geom (level, key, year, centroid_x, centroid_y, geom)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: prepare geom insert")
	}
	defer geomStmt.Close()

	var n int64
	for _, b := range boundaries {
		if _, err := attrStmt.ExecContext(ctx,
			lvl.String(), b.Key, year, b.StateFIPS, b.Name, b.Registry, b.HSA); err != nil {
			return n, eris.Wrapf(err, "catalog: insert attrs for %s", b.Key)
		}
		if _, err := geomStmt.ExecContext(ctx,
			lvl.String(), b.Key, year, b.CentroidX, b.CentroidY, b.Geom); err != nil {
			return n, eris.Wrapf(err, "catalog: insert geom for %s", b.Key)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "catalog: commit bulk insert")
	}
	return n, nil
}

// RecordLoad implements Store.
func (c *SQLiteCatalog) RecordLoad(ctx context.Context, lvl fips.Level, stateFIPS string, year, rowCount, durationMs int) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO load_status (level, state_fips, year, row_count, duration_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (level, state_fips, year) DO UPDATE SET
			row_count = excluded.row_count,
			loaded_at = datetime('now'),
			duration_ms = excluded.duration_ms`,
		lvl.String(), stateFIPS, year, rowCount, durationMs,
	)
	if err != nil {
		return eris.Wrap(err, "catalog: record load")
	}
	return nil
}

// IsLoaded implements Store.
func (c *SQLiteCatalog) IsLoaded(ctx context.Context, lvl fips.Level, stateFIPS string, year int) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM load_status WHERE level = ? AND state_fips = ? AND year = ?`,
		lvl.String(), stateFIPS, year,
	).Scan(&count)
	if err != nil {
		return false, eris.Wrap(err, "catalog: check load status")
	}
	return count > 0, nil
}

// Status implements Store.
func (c *SQLiteCatalog) Status(ctx context.Context) ([]LoadStatus, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT level, state_fips, year, row_count, loaded_at, duration_ms
		FROM load_status ORDER BY level, state_fips, year`)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: query load status")
	}
	defer rows.Close()

	var out []LoadStatus
	for rows.Next() {
		var s LoadStatus
		if err := rows.Scan(&s.Level, &s.StateFIPS, &s.Year, &s.RowCount, &s.LoadedAt, &s.DurationMs); err != nil {
			return nil, eris.Wrap(err, "catalog: scan load status")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanOne(row *sql.Row, lvl fips.Level, key string) (*Boundary, error) {
	var b Boundary
	b.Level = lvl
	err := row.Scan(&b.Key, &b.StateFIPS, &b.Name, &b.Registry, &b.HSA,
		&b.CentroidX, &b.CentroidY, &b.Geom)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("catalog: %s %q not found", lvl, key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: load %s %q", lvl, key)
	}
	return &b, nil
}
