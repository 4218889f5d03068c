// Package config reads the simulator settings from a JSON file.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"vmsim/frames"
)

// Config holds the machine and kernel parameters.
type Config struct {
	PageSize      int           `json:"page_size"`
	NumPhysPages  int           `json:"num_phys_pages"`
	UserStackSize int           `json:"user_stack_size"`
	SwapPolicy    frames.Policy `json:"swap_policy"`
	RandomSeed    int64         `json:"random_seed"`
	MaxImageSize  int           `json:"max_image_size"`
	FSRoot        string        `json:"fs_root"`
	LogLevel      string        `json:"log_level"`
	LogPath       string        `json:"log_path"`
}

// Default returns the settings used for keys missing from the file.
func Default() Config {
	return Config{
		PageSize:      128,
		NumPhysPages:  32,
		UserStackSize: 1024,
		SwapPolicy:    frames.Aging,
		RandomSeed:    1,
		MaxImageSize:  1 << 20,
		FSRoot:        "./disk",
		LogLevel:      "INFO",
	}
}

// Load reads the file at path on top of the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate rejects settings the kernel cannot run with.
func (c Config) Validate() error {
	switch {
	case c.PageSize <= 0:
		return errors.Errorf("page_size must be positive, got %d", c.PageSize)
	case c.NumPhysPages <= 0:
		return errors.Errorf("num_phys_pages must be positive, got %d", c.NumPhysPages)
	case c.UserStackSize < 0:
		return errors.Errorf("user_stack_size must not be negative, got %d", c.UserStackSize)
	case c.MaxImageSize <= 0:
		return errors.Errorf("max_image_size must be positive, got %d", c.MaxImageSize)
	case c.MaxImageSize < c.PageSize:
		return errors.Errorf("max_image_size %d is smaller than a page", c.MaxImageSize)
	}
	switch c.SwapPolicy {
	case frames.FailFast, frames.Aging, frames.Random:
	default:
		return errors.Errorf("unknown swap_policy %d", int(c.SwapPolicy))
	}
	return nil
}
