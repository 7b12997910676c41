package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ratemap.db", cfg.Store.Path)
	assert.Equal(t, "https://www2.census.gov/geo/tiger", cfg.Catalog.TigerBase)
	assert.Equal(t, "https://seer.cancer.gov/boundaries", cfg.Catalog.SEERBase)
	assert.Equal(t, 3, cfg.Catalog.Concurrency)
	assert.Equal(t, "location", cfg.Input.IDColumn)
	assert.Equal(t, "value", cfg.Input.ValueColumn)
	assert.Equal(t, "pvalue", cfg.Input.HatchColumn)
	assert.Equal(t, 2000, cfg.Render.Year)
	assert.Equal(t, 5, cfg.Render.Categories)
	assert.Equal(t, "blues", cfg.Render.Palette)
	assert.Equal(t, "DATA", cfg.Render.CountyB)
	assert.Equal(t, "DATA", cfg.Render.TractB)
	assert.Equal(t, "DATA", cfg.Render.HSAB)
	assert.Equal(t, "NONE", cfg.Render.SEERB)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/boundaries
render:
  categories: 7
  palette: reds
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/boundaries", cfg.Store.DatabaseURL)
	assert.Equal(t, 7, cfg.Render.Categories)
	assert.Equal(t, "reds", cfg.Render.Palette)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset keys keep their defaults
	assert.Equal(t, 2000, cfg.Render.Year)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("RATEMAP_STORE_DRIVER", "postgres")
	t.Setenv("RATEMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("RATEMAP_SERVER_PORT", "3000")
	t.Setenv("RATEMAP_RENDER_CATEGORIES", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 9, cfg.Render.Categories)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "ratemap.db"
	cfg.Catalog.TigerBase = "https://www2.census.gov/geo/tiger"
	cfg.Catalog.Concurrency = 3
	cfg.Render.Categories = 5
	cfg.Render.Palette = "blues"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRender_Defaults(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("render"))
}

func TestValidateRender_BadCategories(t *testing.T) {
	cfg := validDefaults()

	cfg.Render.Categories = 2
	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "render.categories must be between 3 and 11")

	cfg.Render.Categories = 12
	err = cfg.Validate("render")
	assert.Error(t, err)

	cfg.Render.Categories = 11
	assert.NoError(t, cfg.Validate("render"))
}

func TestValidateRender_NoPalette(t *testing.T) {
	cfg := validDefaults()
	cfg.Render.Palette = ""

	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "render.palette")

	cfg.Render.PaletteFile = "palettes.yaml"
	assert.NoError(t, cfg.Validate("render"))
}

func TestValidatePostgresRequiresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/boundaries"
	assert.NoError(t, cfg.Validate("render"))
}

func TestValidateSQLiteRequiresPath(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Path = ""

	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateCatalog_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Catalog.Concurrency = 0
	err := cfg.Validate("catalog")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "catalog.concurrency must be between 1 and 10")

	cfg.Catalog.Concurrency = 11
	err = cfg.Validate("catalog")
	assert.Error(t, err)

	cfg.Catalog.Concurrency = 10
	assert.NoError(t, cfg.Validate("catalog"))
}

func TestValidateCatalog_MissingBase(t *testing.T) {
	cfg := validDefaults()
	cfg.Catalog.TigerBase = ""

	err := cfg.Validate("catalog")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "catalog.tiger_base is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
