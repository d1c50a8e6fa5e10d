package collide

import (
	"github.com/akmonengine/collide/bvh"
	"github.com/akmonengine/collide/epa"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const DEFAULT_WORKERS = 1

// Config gathers the tunables of a Scene.
type Config struct {
	Tree    bvh.Config `yaml:"tree"`
	EPA     epa.Config `yaml:"epa"`
	Workers int        `yaml:"workers"`
}

func DefaultConfig() Config {
	return Config{
		Tree:    bvh.DefaultConfig(),
		EPA:     epa.DefaultConfig(),
		Workers: DEFAULT_WORKERS,
	}
}

func (c Config) Validate() error {
	err := multierr.Combine(c.Tree.Validate(), c.EPA.Validate())
	if c.Workers < 1 {
		err = multierr.Append(err, errors.Errorf("collide: workers must be at least 1, got %d", c.Workers))
	}

	return err
}

// ParseConfig reads a YAML document over the defaults: missing keys keep
// their default value.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "collide: parsing config")
	}

	return cfg, cfg.Validate()
}
