package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ratemap/internal/db"
	"github.com/sells-group/ratemap/internal/fips"
)

// PostgresCatalog implements Store on a Postgres pool. Partition loads go
// through COPY; the schema mirrors the SQLite layout under the geo schema.
type PostgresCatalog struct {
	pool db.Pool
}

// NewPostgres creates a PostgresCatalog on an existing pool.
func NewPostgres(pool db.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

const pgMigration = `
CREATE SCHEMA IF NOT EXISTS geo;

CREATE TABLE IF NOT EXISTS geo.boundary_attrs (
	level      TEXT NOT NULL,
	key        TEXT NOT NULL,
	year       INTEGER NOT NULL,
	state_fips TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	registry   TEXT NOT NULL DEFAULT '',
	hsa        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (level, key, year)
);

CREATE TABLE IF NOT EXISTS geo.boundary_geom (
	level      TEXT NOT NULL,
	key        TEXT NOT NULL,
	year       INTEGER NOT NULL,
	centroid_x DOUBLE PRECISION NOT NULL DEFAULT 0,
	centroid_y DOUBLE PRECISION NOT NULL DEFAULT 0,
	geom       BYTEA,
	PRIMARY KEY (level, key, year)
);

CREATE TABLE IF NOT EXISTS geo.load_status (
	level       TEXT NOT NULL,
	state_fips  TEXT NOT NULL,
	year        INTEGER NOT NULL,
	row_count   INTEGER NOT NULL DEFAULT 0,
	loaded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	duration_ms INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (level, state_fips, year)
);

CREATE INDEX IF NOT EXISTS idx_boundary_attrs_state ON geo.boundary_attrs (level, state_fips, year);
CREATE INDEX IF NOT EXISTS idx_boundary_attrs_registry ON geo.boundary_attrs (level, registry, year);
`

// Migrate implements Store.
func (c *PostgresCatalog) Migrate(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, pgMigration); err != nil {
		return eris.Wrap(err, "catalog: postgres migrate")
	}
	return nil
}

// Close implements Store.
func (c *PostgresCatalog) Close() error {
	c.pool.Close()
	return nil
}

// RegionExists implements Catalog.
func (c *PostgresCatalog) RegionExists(ctx context.Context, lvl fips.Level, key string, year int) (bool, error) {
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
		err = c.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM geo.boundary_attrs WHERE level = $1 AND key = $2 AND year = $3`,
			lvl.String(), key, eff,
		).Scan(&count)
	default:
		err = c.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM geo.boundary_attrs WHERE level = $1 AND key = $2`,
			lvl.String(), key,
		).Scan(&count)
	}
	if err != nil {
		return false, eris.Wrap(err, "catalog: region exists")
	}
	return count > 0, nil
}

const pgBoundarySelect = `
	SELECT a.key, a.state_fips, a.name, a.registry, a.hsa,
	       g.centroid_x, g.centroid_y, g.geom
	FROM geo.boundary_attrs a
	JOIN geo.boundary_geom g ON g.level = a.level AND g.key = a.key AND g.year = a.year
`

// StateBoundary implements Catalog.
func (c *PostgresCatalog) StateBoundary(ctx context.Context, stateFIPS string) (*Boundary, error) {
	return c.one(ctx, fips.LevelState, stateFIPS)
}

// RegistryBoundary implements Catalog.
func (c *PostgresCatalog) RegistryBoundary(ctx context.Context, abbr string) (*Boundary, error) {
	return c.one(ctx, fips.LevelRegistry, abbr)
}

func (c *PostgresCatalog) one(ctx context.Context, lvl fips.Level, key string) (*Boundary, error) {
	b := Boundary{Level: lvl}
	err := c.pool.QueryRow(ctx,
		pgBoundarySelect+` WHERE a.level = $1 AND a.key = $2 AND a.year = 2000`,
		lvl.String(), key,
	).Scan(&b.Key, &b.StateFIPS, &b.Name, &b.Registry, &b.HSA,
		&b.CentroidX, &b.CentroidY, &b.Geom)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("catalog: %s %q not found", lvl, key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: load %s %q", lvl, key)
	}
	return &b, nil
}

// CountyBoundaries implements Catalog.
func (c *PostgresCatalog) CountyBoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error) {
	return c.stateSet(ctx, fips.LevelCounty, stateFIPS, year)
}

// TractBoundaries implements Catalog.
func (c *PostgresCatalog) TractBoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error) {
	return c.stateSet(ctx, fips.LevelTract, stateFIPS, year)
}

// HSABoundaries implements Catalog.
func (c *PostgresCatalog) HSABoundaries(ctx context.Context, stateFIPS string, year int) ([]Boundary, error) {
	return c.stateSet(ctx, fips.LevelHSA, stateFIPS, year)
}

func (c *PostgresCatalog) stateSet(ctx context.Context, lvl fips.Level, stateFIPS string, year int) ([]Boundary, error) {
	eff := EffectiveYear(lvl, stateFIPS, year)
	rows, err := c.pool.Query(ctx,
		pgBoundarySelect+` WHERE a.level = $1 AND a.state_fips = $2 AND a.year = $3 ORDER BY a.key`,
		lvl.String(), stateFIPS, eff,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: query %s boundaries for %s", lvl, stateFIPS)
	}
	defer rows.Close()

	var out []Boundary
	for rows.Next() {
		b := Boundary{Level: lvl}
		if err := rows.Scan(&b.Key, &b.StateFIPS, &b.Name, &b.Registry, &b.HSA,
			&b.CentroidX, &b.CentroidY, &b.Geom); err != nil {
			return nil, eris.Wrap(err, "catalog: scan boundary")
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ParentOf implements Catalog.
func (c *PostgresCatalog) ParentOf(ctx context.Context, lvl fips.Level, key string) (string, error) {
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
		err := c.pool.QueryRow(ctx,
			`SELECT state_fips FROM geo.boundary_attrs WHERE level = $1 AND key = $2 LIMIT 1`,
			fips.LevelHSA.String(), key,
		).Scan(&state)
		if err == pgx.ErrNoRows {
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

// ChildrenOf implements Catalog.
func (c *PostgresCatalog) ChildrenOf(ctx context.Context, lvl fips.Level, key string, year int) ([]string, error) {
	var (
		query string
		args  []any
	)

	switch lvl {
	case fips.LevelState:
		query = `SELECT key FROM geo.boundary_attrs WHERE level = $1 AND state_fips = $2 AND year = $3 ORDER BY key`
		args = []any{fips.LevelCounty.String(), key, EffectiveYear(fips.LevelCounty, key, year)}
	case fips.LevelCounty:
		if len(key) != 5 {
			return nil, eris.Errorf("catalog: malformed county key %q", key)
		}
		query = `SELECT key FROM geo.boundary_attrs WHERE level = $1 AND key LIKE $2 || '%' AND year = $3 ORDER BY key`
		args = []any{fips.LevelTract.String(), key, EffectiveYear(fips.LevelTract, key[:2], year)}
	case fips.LevelRegistry:
		state, ok := fips.RegistryState(key)
		if !ok {
			return nil, eris.Errorf("catalog: unknown registry %q", key)
		}
		query = `SELECT key FROM geo.boundary_attrs WHERE level = $1 AND registry = $2 AND year = $3 ORDER BY key`
		args = []any{fips.LevelCounty.String(), key, EffectiveYear(fips.LevelCounty, state, year)}
	case fips.LevelHSA:
		query = `SELECT key FROM geo.boundary_attrs WHERE level = $1 AND hsa = $2 ORDER BY key`
		args = []any{fips.LevelCounty.String(), key}
	default:
		return nil, eris.Errorf("catalog: level %s has no children", lvl)
	}

	rows, err := c.pool.Query(ctx, query, args...)
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

// BulkInsert implements Store using COPY into both tables.
func (c *PostgresCatalog) BulkInsert(ctx context.Context, lvl fips.Level, stateFIPS string, year int, boundaries []Boundary) (int64, error) {
	if len(boundaries) == 0 {
		return 0, nil
	}

	for _, table := range []string{"boundary_geom", "boundary_attrs"} {
		_, err := c.pool.Exec(ctx,
			`DELETE FROM geo.`+table+` WHERE level = $1 AND year = $2 AND key IN (
				SELECT key FROM geo.boundary_attrs WHERE level = $1 AND state_fips = $3 AND year = $2)`,
			lvl.String(), year, stateFIPS,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "catalog: clear %s partition", table)
		}
	}

	attrRows := make([][]any, 0, len(boundaries))
	geomRows := make([][]any, 0, len(boundaries))
	for _, b := range boundaries {
		attrRows = append(attrRows, []any{lvl.String(), b.Key, year, b.StateFIPS, b.Name, b.Registry, b.HSA})
		geomRows = append(geomRows, []any{lvl.String(), b.Key, year, b.CentroidX, b.CentroidY, b.Geom})
	}

	n, err := db.CopyFromSchema(ctx, c.pool, "geo", "boundary_attrs",
		[]string{"level", "key", "year", "state_fips", "name", "registry", "hsa"}, attrRows)
	if err != nil {
		return 0, err
	}

	if _, err := db.CopyFromSchema(ctx, c.pool, "geo", "boundary_geom",
		[]string{"level", "key", "year", "centroid_x", "centroid_y", "geom"}, geomRows); err != nil {
		return 0, err
	}

	return n, nil
}

// RecordLoad implements Store.
func (c *PostgresCatalog) RecordLoad(ctx context.Context, lvl fips.Level, stateFIPS string, year, rowCount, durationMs int) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO geo.load_status (level, state_fips, year, row_count, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (level, state_fips, year) DO UPDATE SET
			row_count = EXCLUDED.row_count,
			loaded_at = now(),
			duration_ms = EXCLUDED.duration_ms`,
		lvl.String(), stateFIPS, year, rowCount, durationMs,
	)
	if err != nil {
		return eris.Wrap(err, "catalog: record load")
	}
	return nil
}

// IsLoaded implements Store.
func (c *PostgresCatalog) IsLoaded(ctx context.Context, lvl fips.Level, stateFIPS string, year int) (bool, error) {
	var count int
	err := c.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM geo.load_status WHERE level = $1 AND state_fips = $2 AND year = $3`,
		lvl.String(), stateFIPS, year,
	).Scan(&count)
	if err != nil {
		return false, eris.Wrap(err, "catalog: check load status")
	}
	return count > 0, nil
}

// Status implements Store.
func (c *PostgresCatalog) Status(ctx context.Context) ([]LoadStatus, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT level, state_fips, year, row_count, loaded_at, duration_ms
		FROM geo.load_status ORDER BY level, state_fips, year`)
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
