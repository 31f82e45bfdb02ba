// Package config loads the declarative job list: which symbols, timeframes
// and indicator configurations the engine runs. It is plain input data
// passed into entry points, never a process-wide singleton.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/engine"
	"indicator-lab/internal/indicator"
)

// ErrEmptyConfig is returned when a required section is missing.
var ErrEmptyConfig = errors.New("empty config section")

// Config is the declarative run description.
type Config struct {
	Symbols    []string           `json:"symbols"`
	Timeframes []string           `json:"timeframes"`
	Indicators []indicator.Params `json:"indicators"`
}

// Load reads and validates a JSON config file. Malformed timeframe tokens
// and unknown or invalid indicator parameters are configuration errors and
// fail the load, never silently skipped.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks every section eagerly so a bad entry aborts before any
// tuple runs.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: symbols", ErrEmptyConfig)
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("%w: timeframes", ErrEmptyConfig)
	}
	if len(c.Indicators) == 0 {
		return fmt.Errorf("%w: indicators", ErrEmptyConfig)
	}

	for _, token := range c.Timeframes {
		if _, err := domain.ParseTimeframe(token); err != nil {
			return err
		}
	}
	for _, params := range c.Indicators {
		if _, err := indicator.New(params); err != nil {
			return fmt.Errorf("indicator %q: %w", params.Family, err)
		}
	}
	return nil
}

// Jobs expands the config into the full (symbol, timeframe, configuration)
// tuple list, in declaration order.
func (c *Config) Jobs(force bool) ([]engine.Job, error) {
	var jobs []engine.Job
	for _, symbol := range c.Symbols {
		for _, token := range c.Timeframes {
			tf, err := domain.ParseTimeframe(token)
			if err != nil {
				return nil, err
			}
			for _, params := range c.Indicators {
				jobs = append(jobs, engine.Job{
					Symbol:    symbol,
					Timeframe: tf,
					Params:    params,
					Force:     force,
				})
			}
		}
	}
	return jobs, nil
}
