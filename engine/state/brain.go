package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/pattern"
	"github.com/nathoo/rivecore/engine/subst"
	"github.com/nathoo/rivecore/engine/topics"
	"github.com/nathoo/rivecore/types"
)

// Brain is the compiled rule set. Immutable after NewBrain and safe to
// share between sessions.
type Brain struct {
	Topics   *topics.Graph
	Arrays   map[string][]string
	Pre      *subst.Table
	Person   *subst.Table
	Post     *subst.Table
	BotVars  map[string]string
	Globals  map[string]string
	Objects  []types.ObjectDef
	Triggers int
}

// NewBrain compiles a rule set. Triggers whose patterns fail to compile
// and topic edges that would form a cycle are left out and reported; the
// returned brain is always usable.
func NewBrain(rs *types.RuleSet) (*Brain, []error) {
	b := &Brain{
		Arrays:  map[string][]string{},
		Pre:     subst.New(rs.Subs),
		Person:  subst.New(rs.Person),
		Post:    subst.New(rs.Post),
		BotVars: copyMap(rs.BotVars),
		Globals: copyMap(rs.Globals),
		Objects: rs.Objects,
	}
	for name, items := range rs.Arrays {
		b.Arrays[strings.ToLower(name)] = append([]string(nil), items...)
	}
	arrays := pattern.Arrays(func(name string) ([]string, bool) {
		items, ok := b.Arrays[name]
		return items, ok
	})

	var problems []error
	merged := map[string]*topics.Topic{}
	var order []*topics.Topic

	for _, td := range rs.Topics {
		name := strings.ToLower(td.Name)
		t, ok := merged[name]
		if !ok {
			t = &topics.Topic{Name: name}
			merged[name] = t
			order = append(order, t)
		}
		t.Inherits = appendUnique(t.Inherits, td.Inherits...)
		t.Includes = appendUnique(t.Includes, td.Includes...)

		for _, def := range td.Triggers {
			trig, err := compileTrigger(name, def, arrays)
			if err != nil {
				problems = append(problems, err)
				continue
			}
			t.Triggers = append(t.Triggers, trig)
			b.Triggers++
		}
	}
	if _, ok := merged[DefaultTopic]; !ok {
		order = append(order, &topics.Topic{Name: DefaultTopic})
	}

	graph, graphProblems := topics.Build(order)
	b.Topics = graph
	problems = append(problems, graphProblems...)
	return b, problems
}

func compileTrigger(topic string, def types.TriggerDef, arrays pattern.Arrays) (*topics.Trigger, error) {
	p, err := pattern.Compile(def.Pattern, arrays)
	if err != nil {
		return nil, withSource(err, def.Source)
	}
	t := &topics.Trigger{
		Topic:      topic,
		Pattern:    p,
		Redirect:   def.Redirect,
		Replies:    def.Replies,
		Conditions: def.Conditions,
		Weight:     def.Weight,
		Order:      def.SourceOrder,
		Source:     def.Source,
	}
	if def.Previous != "" {
		prev, err := pattern.Compile(def.Previous, arrays)
		if err != nil {
			return nil, withSource(err, def.Source)
		}
		t.Previous = prev
	}
	if t.Redirect == "" && len(t.Replies) == 0 && len(t.Conditions) == 0 {
		return nil, &errs.PatternError{Pattern: def.Pattern, Source: def.Source, Reason: "trigger has no replies"}
	}
	return t, nil
}

func withSource(err error, source string) error {
	var pe *errs.PatternError
	if errors.As(err, &pe) {
		pe.Source = source
		return pe
	}
	return fmt.Errorf("%s: %w", source, err)
}

// BotVar returns a bot variable from the rule set.
func (b *Brain) BotVar(name string) (string, bool) {
	v, ok := b.BotVars[name]
	return v, ok
}

// Global returns a global from the rule set.
func (b *Brain) Global(name string) (string, bool) {
	v, ok := b.Globals[name]
	return v, ok
}

// HasBegin reports whether the rule set defines a begin block.
func (b *Brain) HasBegin() bool {
	return len(b.Topics.Layers(BeginTopic)) > 0
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		it = strings.ToLower(it)
		dup := false
		for _, x := range list {
			if x == it {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, it)
		}
	}
	return list
}
