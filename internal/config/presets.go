package config

import (
	"sort"
	"time"
)

// Presets mirror the gmxapi folding examples. Each is applied on top of
// DefaultConfig.
var Presets = map[string]func(*Config){
	// figure1 runs the initial simulation to completion before folding.
	"figure1": func(c *Config) {
		c.Workflow = "figure1"
		c.Fold.InitialRun = true
		c.Fold.InitialBudget = 0
		c.Fold.StopOnNative = true
	},
	// fs-peptide caps the initial simulation like every loop iteration.
	"fs-peptide": func(c *Config) {
		c.Workflow = "fs-peptide"
		c.Fold.InitialRun = true
		c.Fold.InitialBudget = DefaultBudget
		c.Fold.StopOnNative = true
	},
	// demo forces several short iterations regardless of convergence.
	"demo": func(c *Config) {
		c.Workflow = "demo"
		c.Fold.InitialRun = false
		c.Fold.Budget = 36 * time.Second
		c.Fold.MaxIterations = 5
		c.Fold.StopOnNative = false
	},
}

var presetInfo = map[string]string{
	"figure1":    "prepare, unbounded initial run, fold until RMSD < 0.3 nm",
	"fs-peptide": "prepare, initial 2h run, fold until RMSD < 0.3 nm",
	"demo":       "5 short iterations, sampling without early stop",
}

// GetPreset returns DefaultConfig with the named preset applied, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func PresetDescription(name string) string {
	return presetInfo[name]
}
