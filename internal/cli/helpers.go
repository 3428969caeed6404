package cli

import (
	"fmt"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/catalog"
	"github.com/blackarch/wordlistctl/pkg/config"
)

// These variables will be set by the main package
var (
	ConfigPath   *string
	Verbose      *bool
	OutputFormat *string
)

// loadConfig loads the configuration, applies the global flags and
// initializes the logger from the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with CLI flags if provided
	if OutputFormat != nil && *OutputFormat != "" {
		cfg.Settings.OutputFormat = *OutputFormat
	}
	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.InitLogger(cfg.Settings.LogLevel, logger.OutputFormat(cfg.Settings.OutputFormat))
	logger.Debugf("Configuration loaded from %s", getConfigPath())

	return cfg, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.Settings.Catalog)
	if err != nil {
		return nil, err
	}
	logger.Debug("Catalog loaded", logger.Fields{"path": cfg.Settings.Catalog, "entries": cat.Len()})
	return cat, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// An empty path makes LoadConfig fail with ErrEmptyConfigPath.
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err})
		return ""
	}
	return defaultPath
}
