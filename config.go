package pgtestenv

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/giantswarm/pgtestenv/internal/core"
)

// instanceConfig holds configuration for New. It wraps core.Config via
// embedding, keeping internal/core types out of the public API signature.
type instanceConfig struct {
	core.Config

	logger *slog.Logger
	hooks  core.Hooks
}

// defaultInstanceConfig returns an instanceConfig populated with all
// default values. Both New and test helpers start from it.
func defaultInstanceConfig() instanceConfig {
	return instanceConfig{Config: core.DefaultConfig()}
}

// toCoreConfig returns a copy of the embedded core.Config whose slices and
// maps are not shared with the options that built it.
func (c instanceConfig) toCoreConfig() core.Config {
	cfg := c.Config
	cfg.InitDBArgs = slices.Clone(c.InitDBArgs)
	cfg.ServerSettings = maps.Clone(c.ServerSettings)
	cfg.Binaries.WellKnown = slices.Clone(c.Binaries.WellKnown)
	return cfg
}
