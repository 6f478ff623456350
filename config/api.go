package config

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// APIConfig configuration of the REST interface
type APIConfig struct {
	Enable bool `yaml:"enable" default:"true"`
	// HTTP listen address
	Addr string `yaml:"addr" default:":4000"`
	// allow cross origin requests from any origin
	Cors bool `yaml:"cors" default:"false"`
}

// IsEnabled implements `config.Configurable`.
func (c *APIConfig) IsEnabled() bool {
	return c.Enable
}

// LogConfig implements `config.Configurable`.
func (c *APIConfig) LogConfig(logger *logrus.Entry) {
	logger.Infof("addr = %s", c.Addr)
	logger.Infof("cors = %t", c.Cors)
}

func (c *APIConfig) validate() error {
	if c.Enable && c.Addr == "" {
		return errors.New("api.addr is required if the API is enabled")
	}

	return nil
}
