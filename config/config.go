package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/hashicorp/go-multierror"
	"github.com/ledgercache/ledgercache/log"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Configurable is implemented by each config section
type Configurable interface {
	// IsEnabled returns true when the feature configured by this section is enabled.
	IsEnabled() bool

	// LogConfig logs the receiver's configuration.
	LogConfig(*logrus.Entry)
}

// Config main configuration
type Config struct {
	Cache   CachingConfig `yaml:"cache"`
	Log     log.Config    `yaml:"log"`
	API     APIConfig     `yaml:"api"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// NewDefaultConfig returns a config with all default values applied
func NewDefaultConfig() (*Config, error) {
	cfg := new(Config)

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("can't apply default values: %w", err)
	}

	return cfg, nil
}

// LoadConfig creates new config from YAML file. An empty path yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg, err := NewDefaultConfig()
	if err != nil {
		return nil, err
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file %s: %w", path, err)
	}

	if err := unmarshalConfig(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unmarshalConfig(data []byte, cfg *Config) error {
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("wrong file structure: %w", err)
	}

	return cfg.Validate()
}

// Validate checks all sections and reports every problem found
func (c *Config) Validate() error {
	err := multierror.Append(nil,
		c.Cache.validate(),
		c.API.validate(),
		c.Metrics.validate(),
	)

	return err.ErrorOrNil()
}

// LogConfig logs every enabled section with its own prefix
func (c *Config) LogConfig(logger *logrus.Entry) {
	sections := []struct {
		name string
		cfg  Configurable
	}{
		{"cache", &c.Cache},
		{"api", &c.API},
		{"metrics", &c.Metrics},
	}

	logger.Infof("log = %s/%s", c.Log.Level, c.Log.Format)

	for _, s := range sections {
		if !s.cfg.IsEnabled() {
			logger.Infof("%s: disabled", s.name)

			continue
		}

		logger.Infof("%s:", s.name)
		s.cfg.LogConfig(logger.WithField("prefix", s.name))
	}
}
