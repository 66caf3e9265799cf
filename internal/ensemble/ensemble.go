// Package ensemble fans a per-replica pipeline out over independent
// replicas. Replica identity is always passed in explicitly.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

var ErrInvalidConfig = errors.New("ensemble: invalid configuration")

type Config struct {
	ReplicaCount int
	// ReplicaIndex selects a single replica when >= 0, for ensembles
	// launched one process per replica. -1 runs every replica here.
	ReplicaIndex int
	// MaxParallel bounds concurrently running replicas; 0 means no bound.
	MaxParallel int
}

func DefaultConfig() Config {
	return Config{ReplicaCount: 1, ReplicaIndex: -1}
}

func (c Config) Validate() error {
	if c.ReplicaCount < 1 {
		return fmt.Errorf("%w: replica count must be at least 1, got %d", ErrInvalidConfig, c.ReplicaCount)
	}
	if c.ReplicaIndex < -1 || c.ReplicaIndex >= c.ReplicaCount {
		return fmt.Errorf("%w: replica index %d must be -1 or in [0, %d)", ErrInvalidConfig, c.ReplicaIndex, c.ReplicaCount)
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("%w: max parallel cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Replicas returns the indices this process is responsible for.
func (c Config) Replicas() []int {
	if c.ReplicaIndex >= 0 {
		return []int{c.ReplicaIndex}
	}
	out := make([]int, c.ReplicaCount)
	for i := range out {
		out[i] = i
	}
	return out
}

// Replica identifies one member of the ensemble.
type Replica struct {
	Index int
	Count int
}

func (r Replica) Name() string {
	return fmt.Sprintf("replica-%02d", r.Index)
}

// Dir returns the replica's private directory under root.
func (r Replica) Dir(root string) string {
	return filepath.Join(root, r.Name())
}

// ReplicaError attributes a failure to a replica.
type ReplicaError struct {
	Replica int
	Wrapped error
}

func (e *ReplicaError) Error() string {
	return fmt.Sprintf("replica %d: %v", e.Replica, e.Wrapped)
}

func (e *ReplicaError) Unwrap() error {
	return e.Wrapped
}

// Run calls fn once per replica concurrently. Results are ordered like
// cfg.Replicas(). The first failure cancels the remaining replicas.
func Run[T any](ctx context.Context, cfg Config, fn func(ctx context.Context, r Replica) (T, error)) ([]T, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	indices := cfg.Replicas()
	results := make([]T, len(indices))

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MaxParallel > 0 {
		g.SetLimit(cfg.MaxParallel)
	}
	for i, idx := range indices {
		r := Replica{Index: idx, Count: cfg.ReplicaCount}
		g.Go(func() error {
			res, err := fn(ctx, r)
			if err != nil {
				return &ReplicaError{Replica: r.Index, Wrapped: err}
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
