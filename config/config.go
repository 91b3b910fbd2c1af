// Package config exposes the global configuration store used by the
// katapayadi components together with helpers for creating flags bound to it.
package config

import (
	"github.com/achilleasa/katapayadi/config/provider"
	"github.com/achilleasa/katapayadi/config/store"
)

// Versions used when merging configuration sources into Store. Values from a
// source with a higher version override values from lower ones.
const (
	VersionDefaults = 0
	VersionFile     = 50
	VersionEnv      = 100
)

var (
	// Store is the global configuration store instance that is used to
	// configure the various katapayadi components.
	Store store.Store
)

// SetDefaults updates the global store instance with the default values for a
// particular configuration path.
func SetDefaults(path string, cfg map[string]string) error {
	_, err := Store.SetKeys(VersionDefaults, path, cfg)
	return err
}

// LoadFile registers a YAML configuration file as a value provider for the
// global store.
func LoadFile(filename string) error {
	return LoadFileInto(&Store, filename)
}

// LoadFileInto registers a YAML configuration file as a value provider for s.
func LoadFileInto(s *store.Store, filename string) error {
	p, err := provider.NewYAMLFile(filename)
	if err != nil {
		return err
	}

	s.RegisterValueProvider(VersionFile, p)
	return nil
}

func init() {
	Store.RegisterValueProvider(VersionEnv, provider.NewEnvVars())
}
