// Package graph is a small deferred-execution task graph. Nodes declare
// named input slots bound either to literal values or to another node's
// output; Evaluate runs the dependency closure of the requested targets in
// topological order, executing each node at most once.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/gmxflow/internal/logger"
)

var (
	ErrCycle         = errors.New("graph: cycle detected")
	ErrUnknownNode   = errors.New("graph: unknown node")
	ErrDuplicateNode = errors.New("graph: duplicate node")
	ErrNotEvaluated  = errors.New("graph: node not evaluated")
	ErrMissingInput  = errors.New("graph: missing input")
	ErrInputType     = errors.New("graph: input type mismatch")
)

// NodeError reports the node whose operation failed.
type NodeError struct {
	Node    string
	Wrapped error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.Node, e.Wrapped)
}

func (e *NodeError) Unwrap() error {
	return e.Wrapped
}

// Handle names the output of a node. Handles may refer to nodes that are
// added later; they are resolved at evaluation time.
type Handle struct {
	node string
}

func (h Handle) Node() string { return h.node }

func (h Handle) String() string { return h.node }

// Input binds one slot of a node.
type Input struct {
	value any
	ref   *Handle
}

func Literal(v any) Input { return Input{value: v} }

func Ref(h Handle) Input { return Input{ref: &h} }

// IsRef reports whether the slot is bound to another node.
func (in Input) IsRef() bool { return in.ref != nil }

// Inputs are the resolved slot values handed to an Op.
type Inputs map[string]any

// Get returns the slot value as T.
func Get[T any](in Inputs, slot string) (T, error) {
	var zero T
	raw, ok := in[slot]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingInput, slot)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: slot %s holds %T, want %T", ErrInputType, slot, raw, zero)
	}
	return v, nil
}

type Op func(ctx context.Context, in Inputs) (any, error)

type node struct {
	name   string
	op     Op
	inputs map[string]Input
}

type Graph struct {
	nodes   map[string]*node
	results map[string]any
	runs    map[string]int
}

func New() *Graph {
	return &Graph{
		nodes:   make(map[string]*node),
		results: make(map[string]any),
		runs:    make(map[string]int),
	}
}

// Add registers a node and returns the handle to its output.
func (g *Graph) Add(name string, op Op, inputs map[string]Input) (Handle, error) {
	if name == "" {
		return Handle{}, fmt.Errorf("%w: empty node name", ErrUnknownNode)
	}
	if _, exists := g.nodes[name]; exists {
		return Handle{}, fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}
	if op == nil {
		return Handle{}, fmt.Errorf("node %q: nil operation", name)
	}
	bound := make(map[string]Input, len(inputs))
	for slot, in := range inputs {
		bound[slot] = in
	}
	g.nodes[name] = &node{name: name, op: op, inputs: bound}
	return Handle{node: name}, nil
}

// MustAdd is Add for graphs assembled from static code.
func (g *Graph) MustAdd(name string, op Op, inputs map[string]Input) Handle {
	h, err := g.Add(name, op, inputs)
	if err != nil {
		panic(err)
	}
	return h
}

// Handle returns a handle to a node by name without checking it exists.
func (g *Graph) Handle(name string) Handle { return Handle{node: name} }

// Nodes lists node names in sorted order.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Order returns the execution order of the targets' dependency closure.
func (g *Graph) Order(targets ...Handle) ([]string, error) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	order := make([]string, 0, len(g.nodes))

	for _, t := range targets {
		if !visited[t.node] {
			if err := g.dfs(t.node, "", visited, recStack, &order); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

func (g *Graph) dfs(name, from string, visited, recStack map[string]bool, order *[]string) error {
	n, ok := g.nodes[name]
	if !ok {
		if from == "" {
			return fmt.Errorf("%w: %s", ErrUnknownNode, name)
		}
		return fmt.Errorf("%w: %s (referenced by %s)", ErrUnknownNode, name, from)
	}
	visited[name] = true
	recStack[name] = true

	for _, slot := range sortedSlots(n.inputs) {
		in := n.inputs[slot]
		if !in.IsRef() {
			continue
		}
		dep := in.ref.node
		if !visited[dep] {
			if err := g.dfs(dep, name, visited, recStack, order); err != nil {
				return err
			}
		} else if recStack[dep] {
			return fmt.Errorf("%w: %s -> %s", ErrCycle, name, dep)
		}
	}

	recStack[name] = false
	*order = append(*order, name)
	return nil
}

// Evaluate executes every node the targets depend on. Nodes evaluated by a
// previous call are not run again.
func (g *Graph) Evaluate(ctx context.Context, targets ...Handle) error {
	order, err := g.Order(targets...)
	if err != nil {
		return err
	}

	for _, name := range order {
		if _, done := g.results[name]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		n := g.nodes[name]
		in := make(Inputs, len(n.inputs))
		for slot, bound := range n.inputs {
			if bound.IsRef() {
				in[slot] = g.results[bound.ref.node]
			} else {
				in[slot] = bound.value
			}
		}

		logger.Debug("evaluating node", "node", name)
		out, err := n.op(ctx, in)
		g.runs[name]++
		if err != nil {
			return &NodeError{Node: name, Wrapped: err}
		}
		g.results[name] = out
	}
	return nil
}

// Evaluated reports whether the node has a memoized result.
func (g *Graph) Evaluated(h Handle) bool {
	_, ok := g.results[h.node]
	return ok
}

// Runs reports how many times the node's operation was executed.
func (g *Graph) Runs(h Handle) int { return g.runs[h.node] }

// Result returns the evaluated output of h as T.
func Result[T any](g *Graph, h Handle) (T, error) {
	var zero T
	if _, ok := g.nodes[h.node]; !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownNode, h.node)
	}
	raw, ok := g.results[h.node]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotEvaluated, h.node)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: node %s produced %T, want %T", ErrInputType, h.node, raw, zero)
	}
	return v, nil
}

func sortedSlots(inputs map[string]Input) []string {
	slots := make([]string, 0, len(inputs))
	for slot := range inputs {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots
}
