package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/config"
)

var (
	cfg *config.Config

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "wuimap",
	Short: "Wildland-urban interface mapping",
	Long:  "Classifies housing and land cover into intermix and interface WUI maps with a moving-window method, sweeps window radii per scenario, and tabulates WUI area per county and year.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(configPath, logLevel)
		if err != nil {
			return err
		}
		cfg = c
		return eris.Wrap(config.InitLogger(cfg.Log), "init logger")
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// loadConfig reads the settings at path and applies the --log-level override.
func loadConfig(path, level string) (*config.Config, error) {
	c, err := config.Load(path)
	if err != nil {
		return nil, eris.Wrap(err, "load config")
	}
	if level != "" {
		c.Log.Level = level
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file holding WUI thresholds, sweep radii and PostGIS URL (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
