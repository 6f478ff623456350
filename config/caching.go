package config

import (
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// CachingConfig configuration of the key/value cache
type CachingConfig struct {
	// 0 means unbounded
	Capacity        uint64   `yaml:"capacity"`
	EntryTTL        Duration `yaml:"entryTTL"`
	CleanupInterval Duration `yaml:"cleanupInterval" default:"1m"`
}

// IsEnabled implements `config.Configurable`.
func (c *CachingConfig) IsEnabled() bool {
	return true
}

// IsBounded returns true if a capacity is configured
func (c *CachingConfig) IsBounded() bool {
	return c.Capacity > 0
}

// ExpiresEntries returns true if entries get a TTL
func (c *CachingConfig) ExpiresEntries() bool {
	return c.EntryTTL.IsAboveZero()
}

// LogConfig implements `config.Configurable`.
func (c *CachingConfig) LogConfig(logger *logrus.Entry) {
	if c.IsBounded() {
		logger.Infof("capacity = %d", c.Capacity)
	} else {
		logger.Info("capacity = unbounded")
	}

	if c.ExpiresEntries() {
		logger.Infof("entryTTL = %s", c.EntryTTL)
	} else {
		logger.Info("entryTTL = never expires")
	}

	logger.Infof("cleanupInterval = %s", c.CleanupInterval)
}

func (c *CachingConfig) validate() error {
	var err *multierror.Error

	if c.EntryTTL.ToDuration() < 0 {
		err = multierror.Append(err, errors.New("cache.entryTTL must not be negative"))
	}

	if c.CleanupInterval.ToDuration() < time.Millisecond {
		err = multierror.Append(err, errors.New("cache.cleanupInterval must be at least 1ms"))
	}

	return err.ErrorOrNil()
}
