package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wujiyu305/worker-mailer/internal/config"
	"github.com/wujiyu305/worker-mailer/internal/logger"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "worker-mailer",
	Short:        "Compose MIME email and deliver it through SMTP, SES, Graph or Resend",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if logFormat != "" {
			loaded.Logging.Format = logFormat
		}

		setupLogger(loaded.Logging)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func setupLogger(c config.LoggingConfig) {
	level, err := logger.ParseLevel(c.Level)
	slog.SetDefault(logger.New(level, c.Format, os.Stderr))
	if err != nil {
		slog.Warn("invalid log level, using info", "level", c.Level)
	}
}
