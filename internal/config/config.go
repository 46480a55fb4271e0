package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/wuimap/internal/wui"
)

// Config holds the full application configuration.
type Config struct {
	WUI       wui.Params      `yaml:"wui" mapstructure:"wui"`
	Grid      GridConfig      `yaml:"grid" mapstructure:"grid"`
	Sweep     SweepConfig     `yaml:"sweep" mapstructure:"sweep"`
	Workspace WorkspaceConfig `yaml:"workspace" mapstructure:"workspace"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	PostGIS   PostGISConfig   `yaml:"postgis" mapstructure:"postgis"`
	Tabulate  TabulateConfig  `yaml:"tabulate" mapstructure:"tabulate"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// GridConfig pins the expected land-cover cell size. Zero accepts any.
type GridConfig struct {
	CellSize float64 `yaml:"cell_size" mapstructure:"cell_size"`
}

// SweepConfig sets the window radii. An explicit list wins over the range.
type SweepConfig struct {
	Radii []int `yaml:"radii" mapstructure:"radii"`
	Start int   `yaml:"start" mapstructure:"start"`
	Stop  int   `yaml:"stop" mapstructure:"stop"`
	Step  int   `yaml:"step" mapstructure:"step"`
}

// List returns the configured radii.
func (s SweepConfig) List() []int {
	if len(s.Radii) > 0 {
		return s.Radii
	}
	if s.Step <= 0 || s.Start <= 0 || s.Stop < s.Start {
		return nil
	}
	var out []int
	for n := s.Start; n <= s.Stop; n += s.Step {
		out = append(out, n)
	}
	return out
}

// WorkspaceConfig locates scratch and promoted output directories.
type WorkspaceConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostGISConfig configures the optional polygon sink. An empty URL disables it.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SRID        int    `yaml:"srid" mapstructure:"srid"`
}

// TabulateConfig configures county tabulation.
type TabulateConfig struct {
	ZoneField string `yaml:"zone_field" mapstructure:"zone_field"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	Radius    int    `yaml:"radius" mapstructure:"radius"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. With path empty,
// config.yaml in the working directory is read when present; a named path
// must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("WUIMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("wui.water_code", wui.DefaultWaterCode)
	v.SetDefault("wui.flammable_codes", wui.DefaultFlammableCodes)
	v.SetDefault("wui.patch_tag_area", wui.DefaultPatchTagArea)
	v.SetDefault("wui.large_patch_area", wui.DefaultLargePatchArea)
	v.SetDefault("wui.patch_buffer", wui.DefaultPatchBuffer)
	v.SetDefault("wui.density_threshold", wui.DefaultDensityThreshold)
	v.SetDefault("wui.cover_threshold", wui.DefaultCoverThreshold)
	v.SetDefault("grid.cell_size", 30.0)
	v.SetDefault("sweep.start", 100)
	v.SetDefault("sweep.stop", 1000)
	v.SetDefault("sweep.step", 100)
	v.SetDefault("workspace.dir", "/tmp/wuimap")
	v.SetDefault("workspace.output_dir", "output")
	v.SetDefault("store.path", "wuimap.db")
	v.SetDefault("postgis.database_url", "")
	v.SetDefault("postgis.srid", 0)
	v.SetDefault("tabulate.zone_field", "countynumb")
	v.SetDefault("tabulate.output_dir", "output/tabulate")
	v.SetDefault("tabulate.radius", 500)
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

// Validate checks the settings a command needs. Modes are "run", "tabulate"
// and "runs".
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "run":
		if err := c.WUI.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(c.Sweep.List()) == 0 {
			errs = append(errs, "sweep must name at least one radius")
		}
		for _, n := range c.Sweep.Radii {
			if n <= 0 {
				errs = append(errs, fmt.Sprintf("sweep.radii must be > 0, got %d", n))
			}
		}
		if c.Grid.CellSize < 0 {
			errs = append(errs, "grid.cell_size must be >= 0")
		}
		if c.Workspace.Dir == "" {
			errs = append(errs, "workspace.dir is required")
		}
		if c.Workspace.OutputDir == "" {
			errs = append(errs, "workspace.output_dir is required")
		}
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required")
		}
	case "tabulate":
		if c.Tabulate.ZoneField == "" {
			errs = append(errs, "tabulate.zone_field is required")
		}
		if c.Tabulate.Radius <= 0 {
			errs = append(errs, "tabulate.radius must be > 0")
		}
	case "runs":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
