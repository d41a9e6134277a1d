package loader

import (
	"errors"
	"strings"
	"testing"

	"github.com/nathoo/rivecore/types"
)

func validRuleSet() *types.RuleSet {
	return &types.RuleSet{
		Arrays: map[string][]string{"colors": {"red", "blue"}},
		Topics: []types.TopicDef{
			{
				Name: "random",
				Triggers: []types.TriggerDef{
					{Pattern: "hello", Replies: []types.ReplyDef{{Text: "hi", Weight: 1}}, Source: "a.rs:1"},
					{Pattern: "hey", Redirect: "hello", Source: "a.rs:3"},
				},
			},
			{Name: "games", Inherits: []string{"random"}},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	coll := newCollector()
	if err := validate(validRuleSet(), coll); err != nil {
		t.Fatalf("expected valid, got: %v", err)
	}
	if len(coll.warnings) != 0 {
		t.Errorf("unexpected warnings: %v", coll.warnings)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(rs *types.RuleSet)
		want   string
	}{
		{
			name: "no replies",
			mutate: func(rs *types.RuleSet) {
				rs.Topics[0].Triggers = append(rs.Topics[0].Triggers, types.TriggerDef{Pattern: "empty", Source: "a.rs:9"})
			},
			want: `a.rs:9: trigger "empty" has no replies`,
		},
		{
			name: "bad operator",
			mutate: func(rs *types.RuleSet) {
				rs.Topics[0].Triggers[0].Conditions = []types.ConditionDef{{Left: "a", Op: "~", Right: "b", Reply: "c"}}
			},
			want: `unknown condition operator "~"`,
		},
		{
			name: "empty array",
			mutate: func(rs *types.RuleSet) {
				rs.Arrays["nothing"] = nil
			},
			want: `array "nothing" is empty`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := validRuleSet()
			tt.mutate(rs)
			err := validate(rs, newCollector())
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if len(ve.Errors) != 1 || !strings.Contains(ve.Errors[0], tt.want) {
				t.Errorf("errors = %v, want %q", ve.Errors, tt.want)
			}
		})
	}
}

func TestValidate_CollectedErrors(t *testing.T) {
	coll := newCollector()
	coll.errorf("a.rs:2", "reply without a trigger")
	err := validate(validRuleSet(), coll)
	if err == nil || !strings.Contains(err.Error(), "a.rs:2: reply without a trigger") {
		t.Errorf("error = %v", err)
	}
}

func TestValidate_Warnings(t *testing.T) {
	rs := validRuleSet()
	rs.Topics[1].Includes = []string{"ghost"}
	rs.Topics[0].Triggers[1].Replies = []types.ReplyDef{{Text: "unused", Weight: 1}}
	rs.Topics[0].Triggers = append(rs.Topics[0].Triggers,
		types.TriggerDef{Pattern: "hello", Replies: []types.ReplyDef{{Text: "again", Weight: 1}}, Source: "b.rs:4"})
	rs.Topics = append(rs.Topics, types.TopicDef{Name: "__begin__"})

	coll := newCollector()
	if err := validate(rs, coll); err != nil {
		t.Fatalf("warnings should not fail validation: %v", err)
	}

	want := []string{
		`topic "games" includes undefined topic "ghost"`,
		`trigger "hey" has a redirect`,
		`b.rs:4: trigger "hello" in topic "random" duplicates a.rs:1`,
		`begin block has no "request" trigger`,
	}
	joined := strings.Join(coll.warnings, "\n")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Errorf("warnings missing %q:\n%s", w, joined)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	ve := &ValidationError{Errors: []string{"one", "two"}}
	msg := ve.Error()
	if !strings.HasPrefix(msg, "validation failed with 2 error(s):") {
		t.Errorf("message = %q", msg)
	}
	if !strings.Contains(msg, "\n  one\n  two") {
		t.Errorf("message = %q", msg)
	}
}
