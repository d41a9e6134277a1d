// Package effects implements centralized session mutation via the Apply
// function. Every effect type is one atomic operation: on error the
// session is left as it was.
package effects

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

// Apply applies one effect to the session.
func Apply(s *types.Session, eff types.Effect) error {
	switch eff.Type {
	case "set":
		state.SetVar(s, eff.Name, eff.Value)

	case "add", "sub", "mult", "div":
		return arithmetic(s, eff)

	case "bot":
		state.SetBotVar(s, eff.Name, eff.Value)

	case "global":
		state.SetGlobal(s, eff.Name, eff.Value)

	case "topic":
		state.SetTopic(s, eff.Value)

	default:
		return &errs.TagError{Tag: eff.Type, Reason: "unknown effect"}
	}
	return nil
}

// arithmetic updates a numeric user variable. An undefined variable
// counts as zero.
func arithmetic(s *types.Session, eff types.Effect) error {
	current := 0.0
	if v, ok := state.GetVar(s, eff.Name); ok {
		n, err := ParseNumber(v)
		if err != nil {
			return &errs.TagError{Tag: eff.Type, Reason: fmt.Sprintf("variable %q holds non-numeric value %q", eff.Name, v)}
		}
		current = n
	}
	operand, err := ParseNumber(eff.Value)
	if err != nil {
		return &errs.TagError{Tag: eff.Type, Reason: fmt.Sprintf("non-numeric operand %q", eff.Value)}
	}

	switch eff.Type {
	case "add":
		current += operand
	case "sub":
		current -= operand
	case "mult":
		current *= operand
	case "div":
		if operand == 0 {
			return &errs.TagError{Tag: eff.Type, Reason: fmt.Sprintf("division of %q by zero", eff.Name)}
		}
		current /= operand
	}
	state.SetVar(s, eff.Name, FormatNumber(current))
	return nil
}

// ParseNumber parses a decimal number, ignoring surrounding whitespace.
func ParseNumber(v string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a finite number: %q", v)
	}
	return n, nil
}

// FormatNumber prints whole numbers without a fractional part.
func FormatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
