// Package pipeline runs the per-request question-answering flow as a fixed
// two-stage state machine: retrieve, then answer. The machine itself has no
// branching and no retries; it only guarantees ordering, with retrieval
// output fully materialized in the state before synthesis starts.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/repopilot/repopilot/internal/retriever"
)

// End is the terminal pseudo-node.
const End = "__end__"

// State is the transient per-request conversation state. It is created at
// request start and discarded after the response; nothing here persists.
type State struct {
	ID        string
	Namespace string
	Question  string
	Hits      []retriever.Hit
	Answer    string
}

// NewState stamps a fresh request state.
func NewState(namespace, question string) *State {
	return &State{ID: uuid.NewString(), Namespace: namespace, Question: question}
}

// NodeFunc mutates the state for one stage.
type NodeFunc func(ctx context.Context, state *State) error

// Graph is a strictly sequential state machine: each node has at most one
// outgoing edge, evaluated single-threaded per request.
type Graph struct {
	nodes map[string]NodeFunc
	edges map[string]string
	entry string
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]NodeFunc), edges: make(map[string]string)}
}

func (g *Graph) AddNode(name string, fn NodeFunc) *Graph {
	g.nodes[name] = fn
	return g
}

func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = to
	return g
}

func (g *Graph) SetEntryPoint(name string) *Graph {
	g.entry = name
	return g
}

// Run walks the graph from the entry point until End, threading the state
// through every node in order. A node error stops the machine immediately.
func (g *Graph) Run(ctx context.Context, state *State) error {
	current := g.entry
	steps := 0
	for current != End {
		fn, ok := g.nodes[current]
		if !ok {
			return fmt.Errorf("pipeline: unknown node %q", current)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, state); err != nil {
			return fmt.Errorf("pipeline: node %s: %w", current, err)
		}
		next, ok := g.edges[current]
		if !ok {
			return fmt.Errorf("pipeline: node %q has no outgoing edge", current)
		}
		current = next
		if steps++; steps > len(g.nodes)+1 {
			return fmt.Errorf("pipeline: cycle detected")
		}
	}
	return nil
}
