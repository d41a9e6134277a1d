// Package errs defines the error kinds raised while building a brain and
// while answering a turn.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// PatternError reports a trigger whose pattern could not be compiled.
// The trigger is left out of the brain.
type PatternError struct {
	Pattern string
	Source  string
	Reason  string
}

func (e *PatternError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: pattern %q: %s", e.Source, e.Pattern, e.Reason)
	}
	return fmt.Sprintf("pattern %q: %s", e.Pattern, e.Reason)
}

// TopicGraphError reports an inherits/includes edge that was rejected,
// either because it closes a cycle or names an unknown topic.
type TopicGraphError struct {
	Topic  string
	Target string
	Cycle  []string
}

func (e *TopicGraphError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("topic %q: cycle through %v", e.Topic, e.Cycle)
	}
	return fmt.Sprintf("topic %q: references unknown topic %q", e.Topic, e.Target)
}

// TagError reports a tag that could not be applied. The turn continues.
type TagError struct {
	Tag    string
	Reason string
}

func (e *TagError) Error() string {
	return fmt.Sprintf("tag <%s>: %s", e.Tag, e.Reason)
}

// MacroError reports a macro call that failed, timed out or was not found.
type MacroError struct {
	Name   string
	Method string
	Err    error
}

func (e *MacroError) Error() string {
	name := e.Name
	if e.Method != "" {
		name += "." + e.Method
	}
	return fmt.Sprintf("macro %s: %v", name, e.Err)
}

func (e *MacroError) Unwrap() error { return e.Err }

// RecursionLimitError aborts redirect chasing for the rest of the turn.
type RecursionLimitError struct {
	Limit int
	Input string
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("redirect depth %d exceeded at %q", e.Limit, e.Input)
}

// NoMatchError records that no trigger matched the input.
type NoMatchError struct {
	Input string
	Topic string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no trigger matched %q in topic %q", e.Input, e.Topic)
}

// Kind returns a short label for err suitable for logs and metric labels.
func Kind(err error) string {
	var (
		pe *PatternError
		ge *TopicGraphError
		te *TagError
		me *MacroError
		re *RecursionLimitError
		ne *NoMatchError
	)
	switch {
	case errors.As(err, &pe):
		return "pattern"
	case errors.As(err, &ge):
		return "topic_graph"
	case errors.As(err, &te):
		return "tag"
	case errors.As(err, &me):
		return "macro"
	case errors.As(err, &re):
		return "recursion"
	case errors.As(err, &ne):
		return "no_match"
	default:
		return "other"
	}
}

// Fatal reports whether err ends the current turn. Everything else is
// collected and the turn carries on.
func Fatal(err error) bool {
	var (
		re *RecursionLimitError
		me *MacroError
	)
	if errors.As(err, &me) {
		return false
	}
	return errors.As(err, &re) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
