package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Render  RenderConfig  `yaml:"render" mapstructure:"render"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the boundary catalog backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`             // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`                 // sqlite database file
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"` // postgres connection string
}

// CatalogConfig configures boundary dataset imports.
type CatalogConfig struct {
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	TigerBase   string `yaml:"tiger_base" mapstructure:"tiger_base"`
	SEERBase    string `yaml:"seer_base" mapstructure:"seer_base"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// InputConfig names the input table columns.
type InputConfig struct {
	IDColumn    string `yaml:"id_column" mapstructure:"id_column"`
	ValueColumn string `yaml:"value_column" mapstructure:"value_column"`
	HatchColumn string `yaml:"hatch_column" mapstructure:"hatch_column"`
	Sheet       string `yaml:"sheet" mapstructure:"sheet"`
}

// RenderConfig holds render-pass defaults; flags override per invocation.
type RenderConfig struct {
	Year        int    `yaml:"year" mapstructure:"year"`
	Categories  int    `yaml:"categories" mapstructure:"categories"`
	Palette     string `yaml:"palette" mapstructure:"palette"`
	PaletteFile string `yaml:"palette_file" mapstructure:"palette_file"`
	CountyB     string `yaml:"county_b" mapstructure:"county_b"`
	TractB      string `yaml:"tract_b" mapstructure:"tract_b"`
	HSAB        string `yaml:"hsa_b" mapstructure:"hsa_b"`
	SEERB       string `yaml:"seer_b" mapstructure:"seer_b"`
	US48Only    bool   `yaml:"us48_only" mapstructure:"us48_only"`
}

// ServerConfig configures the render server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RATEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "ratemap.db")
	v.SetDefault("catalog.temp_dir", "/tmp/ratemap")
	v.SetDefault("catalog.tiger_base", "https://www2.census.gov/geo/tiger")
	v.SetDefault("catalog.seer_base", "https://seer.cancer.gov/boundaries")
	v.SetDefault("catalog.concurrency", 3)
	v.SetDefault("input.id_column", "location")
	v.SetDefault("input.value_column", "value")
	v.SetDefault("input.hatch_column", "pvalue")
	v.SetDefault("render.year", 2000)
	v.SetDefault("render.categories", 5)
	v.SetDefault("render.palette", "blues")
	v.SetDefault("render.county_b", "DATA")
	v.SetDefault("render.tract_b", "DATA")
	v.SetDefault("render.hsa_b", "DATA")
	v.SetDefault("render.seer_b", "NONE")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode.
// Modes: "render", "catalog", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "render":
		if c.Render.Categories < 3 || c.Render.Categories > 11 {
			problems = append(problems, "render.categories must be between 3 and 11")
		}
		if c.Render.Palette == "" && c.Render.PaletteFile == "" {
			problems = append(problems, "render.palette or render.palette_file is required")
		}
	case "catalog":
		if c.Catalog.Concurrency < 1 || c.Catalog.Concurrency > 10 {
			problems = append(problems, "catalog.concurrency must be between 1 and 10")
		}
		if c.Catalog.TigerBase == "" {
			problems = append(problems, "catalog.tiger_base is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Render.Categories < 3 || c.Render.Categories > 11 {
			problems = append(problems, "render.categories must be between 3 and 11")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
