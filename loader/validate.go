package loader

import (
	"fmt"
	"strings"

	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

// ValidationError collects all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

// Known condition operators.
var validOps = map[string]bool{
	"eq": true, "==": true, "=": true,
	"ne": true, "!=": true, "<>": true,
	"<": true, "<=": true, ">": true, ">=": true,
	"?": true,
}

// validate checks the compiled rule set for consistency. Syntax errors
// collected while reading are reported here too. Warnings are appended to
// coll.warnings.
func validate(rs *types.RuleSet, coll *collector) error {
	ve := &ValidationError{Errors: append([]string(nil), coll.errors...)}

	for name, items := range rs.Arrays {
		if len(items) == 0 {
			ve.Errors = append(ve.Errors, fmt.Sprintf("array %q is empty", name))
		}
	}

	known := map[string]bool{state.DefaultTopic: true}
	for _, t := range rs.Topics {
		known[t.Name] = true
	}

	for _, t := range rs.Topics {
		for _, ref := range t.Inherits {
			if !known[ref] {
				ve.Warnings = append(ve.Warnings, fmt.Sprintf(
					"topic %q inherits undefined topic %q", t.Name, ref))
			}
		}
		for _, ref := range t.Includes {
			if !known[ref] {
				ve.Warnings = append(ve.Warnings, fmt.Sprintf(
					"topic %q includes undefined topic %q", t.Name, ref))
			}
		}
		validateTriggers(t, ve)
	}

	if begin, ok := findTopic(rs, state.BeginTopic); ok {
		hasRequest := false
		for _, trig := range begin.Triggers {
			if trig.Pattern == "request" {
				hasRequest = true
				break
			}
		}
		if !hasRequest {
			ve.Warnings = append(ve.Warnings, "begin block has no \"request\" trigger")
		}
	}

	coll.warnings = append(coll.warnings, ve.Warnings...)
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateTriggers(t types.TopicDef, ve *ValidationError) {
	seen := map[string]string{}
	for _, trig := range t.Triggers {
		if trig.Redirect == "" && len(trig.Replies) == 0 && len(trig.Conditions) == 0 {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"%s: trigger %q has no replies", trig.Source, trig.Pattern))
		}
		if trig.Redirect != "" && len(trig.Replies) > 0 {
			ve.Warnings = append(ve.Warnings, fmt.Sprintf(
				"%s: trigger %q has a redirect, its replies are never used", trig.Source, trig.Pattern))
		}
		for _, c := range trig.Conditions {
			if !validOps[c.Op] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"%s: unknown condition operator %q", trig.Source, c.Op))
			}
		}

		key := trig.Pattern + "\x00" + trig.Previous
		if first, dup := seen[key]; dup {
			ve.Warnings = append(ve.Warnings, fmt.Sprintf(
				"%s: trigger %q in topic %q duplicates %s", trig.Source, trig.Pattern, t.Name, first))
			continue
		}
		seen[key] = trig.Source
	}
}

func findTopic(rs *types.RuleSet, name string) (types.TopicDef, bool) {
	for _, t := range rs.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return types.TopicDef{}, false
}
