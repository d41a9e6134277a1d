// Package rules finds the trigger that answers an input and evaluates
// conditional branches.
package rules

import (
	"github.com/nathoo/rivecore/engine/effects"
	"github.com/nathoo/rivecore/types"
)

// Operands resolves one side of a condition. defined is false when the
// expression names a variable that was never set.
type Operands interface {
	Operand(expr string) (value string, defined bool, err error)
}

// EvalCondition evaluates a single branch. The error is only non-nil when
// resolving an operand aborted the turn.
func EvalCondition(c types.ConditionDef, ops Operands) (bool, error) {
	left, defined, err := ops.Operand(c.Left)
	if err != nil {
		return false, err
	}
	if c.Op == "?" {
		return defined && left != "", nil
	}
	right, _, err := ops.Operand(c.Right)
	if err != nil {
		return false, err
	}

	switch c.Op {
	case "eq", "==", "=":
		return equal(left, right), nil

	case "ne", "!=", "<>":
		return !equal(left, right), nil

	case "<", "<=", ">", ">=":
		l, errL := effects.ParseNumber(left)
		r, errR := effects.ParseNumber(right)
		if errL != nil || errR != nil {
			return false, nil
		}
		switch c.Op {
		case "<":
			return l < r, nil
		case "<=":
			return l <= r, nil
		case ">":
			return l > r, nil
		default:
			return l >= r, nil
		}

	default:
		return false, nil
	}
}

// FirstTrue returns the index of the first branch that holds, or -1.
func FirstTrue(conds []types.ConditionDef, ops Operands) (int, error) {
	for i, c := range conds {
		ok, err := EvalCondition(c, ops)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

// equal compares numerically when both sides are numbers.
func equal(a, b string) bool {
	if x, err := effects.ParseNumber(a); err == nil {
		if y, err := effects.ParseNumber(b); err == nil {
			return x == y
		}
	}
	return a == b
}
