// Package topics flattens the topic graph: includes merge triggers into
// one pool, inherits add strictly lower-precedence fallback layers.
package topics

import (
	"sort"

	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/pattern"
	"github.com/nathoo/rivecore/types"
)

// Trigger is a compiled trigger. Immutable after build.
type Trigger struct {
	Topic      string
	Pattern    *pattern.Pattern
	Previous   *pattern.Pattern // nil when the trigger has no previous-reply constraint
	Redirect   string
	Replies    []types.ReplyDef
	Conditions []types.ConditionDef
	Weight     int
	Order      int
	Source     string
}

// Score is the specificity of the trigger's pattern.
func (t *Trigger) Score() int { return t.Pattern.Score() }

// Topic is a named group of triggers with its graph edges.
type Topic struct {
	Name     string
	Inherits []string
	Includes []string
	Triggers []*Trigger
}

// Graph is the flattened topic structure shared by every session.
type Graph struct {
	topics map[string]*Topic
	layers map[string][][]*Trigger
}

type edge struct {
	to       string
	inherits bool
}

// Build validates the edges between topics and precomputes the
// candidate layers of every topic. Edges naming unknown topics or closing
// a cycle are dropped and reported as *errs.TopicGraphError; the rest of
// the graph is still usable.
func Build(list []*Topic) (*Graph, []error) {
	g := &Graph{
		topics: map[string]*Topic{},
		layers: map[string][][]*Trigger{},
	}
	for _, t := range list {
		g.topics[t.Name] = t
	}

	var problems []error
	names := g.Names()

	// 1. Drop edges to unknown topics.
	edges := map[string][]edge{}
	for _, name := range names {
		t := g.topics[name]
		for _, to := range t.Includes {
			if _, ok := g.topics[to]; !ok {
				problems = append(problems, &errs.TopicGraphError{Topic: name, Target: to})
				continue
			}
			edges[name] = append(edges[name], edge{to: to})
		}
		for _, to := range t.Inherits {
			if _, ok := g.topics[to]; !ok {
				problems = append(problems, &errs.TopicGraphError{Topic: name, Target: to})
				continue
			}
			edges[name] = append(edges[name], edge{to: to, inherits: true})
		}
	}

	// 2. Break cycles.
	problems = append(problems, breakCycles(names, edges)...)

	// 3. Rewrite the edge lists from what survived.
	for _, name := range names {
		t := g.topics[name]
		t.Includes, t.Inherits = nil, nil
		for _, e := range edges[name] {
			if e.inherits {
				t.Inherits = append(t.Inherits, e.to)
			} else {
				t.Includes = append(t.Includes, e.to)
			}
		}
	}

	// 4. Precompute layers.
	for _, name := range names {
		g.layers[name] = g.flatten(name)
	}
	return g, problems
}

// breakCycles runs a depth-first search in name order and removes every
// back edge it finds.
func breakCycles(names []string, edges map[string][]edge) []error {
	const (
		white = iota
		grey
		black
	)
	color := map[string]int{}
	var path []string
	var problems []error

	var visit func(name string)
	visit = func(name string) {
		color[name] = grey
		path = append(path, name)
		kept := edges[name][:0]
		for _, e := range edges[name] {
			switch color[e.to] {
			case grey:
				problems = append(problems, &errs.TopicGraphError{
					Topic:  name,
					Target: e.to,
					Cycle:  cyclePath(path, e.to),
				})
				continue
			case white:
				visit(e.to)
			}
			kept = append(kept, e)
		}
		edges[name] = kept
		path = path[:len(path)-1]
		color[name] = black
	}

	for _, name := range names {
		if color[name] == white {
			visit(name)
		}
	}
	return problems
}

func cyclePath(path []string, to string) []string {
	for i, n := range path {
		if n == to {
			cycle := append([]string(nil), path[i:]...)
			return append(cycle, to)
		}
	}
	return []string{to}
}

// flatten computes the layers of a topic: its own pool first, then the
// pools of inherited topics breadth first.
func (g *Graph) flatten(name string) [][]*Trigger {
	var layers [][]*Trigger
	seen := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if pool := g.pool(current); len(pool) > 0 {
			layers = append(layers, pool)
		}
		for _, parent := range g.topics[current].Inherits {
			if !seen[parent] {
				seen[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return layers
}

type ranked struct {
	t   *Trigger
	own bool
}

// pool merges a topic's own triggers with those of every topic it
// includes, directly or transitively, and ranks them.
func (g *Graph) pool(name string) []*Trigger {
	var all []ranked
	for _, t := range g.topics[name].Triggers {
		all = append(all, ranked{t: t, own: true})
	}
	seen := map[string]bool{name: true}
	var include func(n string)
	include = func(n string) {
		for _, inc := range g.topics[n].Includes {
			if seen[inc] {
				continue
			}
			seen[inc] = true
			for _, t := range g.topics[inc].Triggers {
				all = append(all, ranked{t: t})
			}
			include(inc)
		}
	}
	include(name)

	// Rank: specificity (desc) → weight (desc) → own before included → source order (asc).
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if sa, sb := a.t.Score(), b.t.Score(); sa != sb {
			return sa > sb
		}
		if a.t.Weight != b.t.Weight {
			return a.t.Weight > b.t.Weight
		}
		if a.own != b.own {
			return a.own
		}
		return a.t.Order < b.t.Order
	})

	out := make([]*Trigger, len(all))
	for i, r := range all {
		out[i] = r.t
	}
	return out
}

// Layers returns the candidate triggers of a topic in precedence order.
func (g *Graph) Layers(name string) [][]*Trigger {
	return g.layers[name]
}

// Has reports whether the topic exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.topics[name]
	return ok
}

// Topic returns the named topic.
func (g *Graph) Topic(name string) (*Topic, bool) {
	t, ok := g.topics[name]
	return t, ok
}

// Names returns every topic name, sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.topics))
	for n := range g.topics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
