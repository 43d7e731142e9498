package main

import (
	"fmt"

	"github.com/vyrodovalexey/bifrost/internal/config"
)

// loadConfig resolves the startup configuration. With no path the built-in
// defaults are used; the legacy environment variables apply either way.
func loadConfig(path string, lookup config.LookupFunc) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if path == "" {
		cfg = config.DefaultConfig()
	} else {
		cfg, err = config.NewLoader(config.WithLookup(lookup)).Load(path)
		if err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnvOverrides(cfg, lookup); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// reloadLoader returns the load function used by the watcher, so reloaded
// files go through the same overrides and validation as the startup file.
func reloadLoader(lookup config.LookupFunc) config.LoadFunc {
	return func(path string) (*config.Config, error) {
		return loadConfig(path, lookup)
	}
}
