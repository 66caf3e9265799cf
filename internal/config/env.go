package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. GMXFLOW_FOLD_THRESHOLD.
const EnvPrefix = "GMXFLOW"

// NewViper returns a viper instance reading GMXFLOW_* variables plus the
// bare INPUT_DIR variable used by the gmxapi example scripts.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("input.dir", "INPUT_DIR", EnvPrefix+"_INPUT_DIR")
	return v
}

// ApplyEnv overrides fields set in the environment seen by v.
func (c *Config) ApplyEnv(v *viper.Viper) {
	if v.IsSet("input.dir") {
		c.Input.Dir = v.GetString("input.dir")
	}
	if v.IsSet("input.system") {
		c.Input.System = v.GetString("input.system")
	}
	if v.IsSet("gromacs.binary") {
		c.Gromacs.Binary = v.GetString("gromacs.binary")
	}
	if v.IsSet("fold.threshold") {
		c.Fold.Threshold = v.GetFloat64("fold.threshold")
	}
	if v.IsSet("fold.budget") {
		c.Fold.Budget = v.GetDuration("fold.budget")
	}
	if v.IsSet("fold.max_iterations") {
		c.Fold.MaxIterations = v.GetInt("fold.max_iterations")
	}
	if v.IsSet("ensemble.replicas") {
		c.Ensemble.Replicas = v.GetInt("ensemble.replicas")
	}
	if v.IsSet("ensemble.replica_index") {
		c.Ensemble.ReplicaIndex = v.GetInt("ensemble.replica_index")
	}
	if v.IsSet("storage.data_dir") {
		c.Storage.DataDir = v.GetString("storage.data_dir")
	}
	if v.IsSet("log.level") {
		c.Log.Level = v.GetString("log.level")
	}
}
