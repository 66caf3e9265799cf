package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/gmxflow/internal/ensemble"
	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/gmx"
)

const (
	DefaultInputDir    = "./input"
	DefaultSystem      = "fs-peptide"
	DefaultStructure   = "start0.pdb"
	DefaultReference   = "ref.pdb"
	DefaultMDP         = "grompp.mdp"
	DefaultThreshold   = 0.3
	DefaultBudget      = 2 * time.Hour
	DefaultDataDir     = "data"
	DefaultWorkDir     = "work"
	DefaultWorkflow    = "fs-peptide"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultReplicaSize = 1
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Workflow string         `yaml:"workflow"`
	Gromacs  GromacsConfig  `yaml:"gromacs"`
	Input    InputConfig    `yaml:"input"`
	Fold     FoldConfig     `yaml:"fold"`
	Ensemble EnsembleConfig `yaml:"ensemble"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

type GromacsConfig struct {
	Binary     string `yaml:"binary"`
	ForceField string `yaml:"force_field"`
	Water      string `yaml:"water"`
	RMSGroups  string `yaml:"rms_groups"`
}

type InputConfig struct {
	Dir       string `yaml:"dir"`
	System    string `yaml:"system"`
	Structure string `yaml:"structure"`
	Reference string `yaml:"reference"`
	MDP       string `yaml:"mdp"`
}

type FoldConfig struct {
	Threshold     float64           `yaml:"threshold"`
	Budget        time.Duration     `yaml:"budget"`
	MaxIterations int               `yaml:"max_iterations"`
	StopOnNative  bool              `yaml:"stop_on_native"`
	Criterion     string            `yaml:"criterion"`
	InitialRun    bool              `yaml:"initial_run"`
	InitialBudget time.Duration     `yaml:"initial_budget"`
	MDRunFlags    map[string]string `yaml:"mdrun_flags,omitempty"`
}

type EnsembleConfig struct {
	Replicas     int `yaml:"replicas"`
	ReplicaIndex int `yaml:"replica_index"`
	MaxParallel  int `yaml:"max_parallel"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	WorkDir string `yaml:"work_dir"`
	Archive bool   `yaml:"archive"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Workflow: DefaultWorkflow,
		Gromacs: GromacsConfig{
			Binary:     gmx.DefaultBinary,
			ForceField: gmx.DefaultForceField,
			Water:      gmx.DefaultWater,
			RMSGroups:  gmx.DefaultRMSGroups,
		},
		Input: InputConfig{
			Dir:       DefaultInputDir,
			System:    DefaultSystem,
			Structure: DefaultStructure,
			Reference: DefaultReference,
			MDP:       DefaultMDP,
		},
		Fold: FoldConfig{
			Threshold:     DefaultThreshold,
			Budget:        DefaultBudget,
			StopOnNative:  true,
			Criterion:     string(fold.CriterionLatest),
			InitialRun:    true,
			InitialBudget: DefaultBudget,
		},
		Ensemble: EnsembleConfig{
			Replicas:     DefaultReplicaSize,
			ReplicaIndex: -1,
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir,
			WorkDir: DefaultWorkDir,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads path on top of base, so keys absent from the file keep
// base's values. base is modified and returned.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, base); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return base, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Gromacs.Binary == "" {
		return fmt.Errorf("%w: gromacs.binary is empty", ErrInvalid)
	}
	if math.IsNaN(c.Fold.Threshold) || math.IsInf(c.Fold.Threshold, 0) {
		return fmt.Errorf("%w: fold.threshold must be finite", ErrInvalid)
	}
	if c.Fold.Budget < 0 || c.Fold.InitialBudget < 0 {
		return fmt.Errorf("%w: budgets cannot be negative", ErrInvalid)
	}
	if c.Fold.MaxIterations < 0 {
		return fmt.Errorf("%w: fold.max_iterations cannot be negative", ErrInvalid)
	}
	if !c.Fold.StopOnNative && c.Fold.MaxIterations == 0 {
		return fmt.Errorf("%w: fold.stop_on_native=false needs fold.max_iterations", ErrInvalid)
	}
	switch fold.Criterion(c.Fold.Criterion) {
	case fold.CriterionLatest, fold.CriterionBest:
	default:
		return fmt.Errorf("%w: unknown fold.criterion %q", ErrInvalid, c.Fold.Criterion)
	}
	if err := c.EnsembleConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// SystemDir is the directory holding the input files.
func (c *Config) SystemDir() string {
	return filepath.Join(c.Input.Dir, c.Input.System)
}

func (c *Config) StructurePath() string { return c.inputPath(c.Input.Structure) }

func (c *Config) ReferencePath() string { return c.inputPath(c.Input.Reference) }

func (c *Config) MDPPath() string { return c.inputPath(c.Input.MDP) }

func (c *Config) inputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.SystemDir(), name)
}

// RequiredInputs lists the files that must exist before any work starts.
func (c *Config) RequiredInputs() []string {
	return []string{c.StructurePath(), c.ReferencePath(), c.MDPPath()}
}

func (c *Config) FoldConfig() fold.Config {
	return fold.Config{
		Threshold:     c.Fold.Threshold,
		Budget:        c.Fold.Budget,
		MaxIterations: c.Fold.MaxIterations,
		StopOnNative:  c.Fold.StopOnNative,
		Criterion:     fold.Criterion(c.Fold.Criterion),
		Flags:         c.Fold.MDRunFlags,
	}
}

func (c *Config) EnsembleConfig() ensemble.Config {
	return ensemble.Config{
		ReplicaCount: c.Ensemble.Replicas,
		ReplicaIndex: c.Ensemble.ReplicaIndex,
		MaxParallel:  c.Ensemble.MaxParallel,
	}
}

func (c *Config) ForceField() gmx.ForceField {
	return gmx.ForceField{Name: c.Gromacs.ForceField, Water: c.Gromacs.Water}
}
