// Package factory loads, defaults and validates the xApp configuration file.
package factory

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/free5gc/hwxapp/internal/logger"
)

// DefaultConfigPath is used when no path is given on the command line.
const DefaultConfigPath = "config/xappcfg.yaml"

// Loader provides methods to load and validate the configuration.
type Loader interface {
	Load(path string) (*Config, error)
}

// DefaultLoader is a simple YAML file loader/validator with defaults.
type DefaultLoader struct{}

// Load reads YAML from the given path, applies defaults, and validates.
func (l *DefaultLoader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

// Parse unmarshals YAML content, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal yaml")
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// ReadConfig loads the configuration with the DefaultLoader.
func ReadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	loader := &DefaultLoader{}

	cfg, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	logger.CfgLog.Infof("configuration loaded from %s (version=%s)", path, cfg.Info.Version)
	return cfg, nil
}

// Default returns a configuration with every default applied, as if an
// empty file had been loaded.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}
