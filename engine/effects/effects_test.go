package effects

import (
	"errors"
	"testing"

	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

func TestApply_Set(t *testing.T) {
	s := state.NewSession("u")
	if err := Apply(s, types.Effect{Type: "set", Name: "name", Value: "Bob"}); err != nil {
		t.Fatal(err)
	}
	if v, _ := state.GetVar(s, "name"); v != "Bob" {
		t.Errorf("name = %q", v)
	}
	if err := Apply(s, types.Effect{Type: "set", Name: "name", Value: "undef"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := state.GetVar(s, "name"); ok {
		t.Error("undef should delete the var")
	}
}

func TestApply_AddFromUndefined(t *testing.T) {
	s := state.NewSession("u")
	for _, v := range []string{"5", "3"} {
		if err := Apply(s, types.Effect{Type: "add", Name: "points", Value: v}); err != nil {
			t.Fatal(err)
		}
	}
	if v, _ := state.GetVar(s, "points"); v != "8" {
		t.Errorf("points = %q, want 8", v)
	}
}

func TestApply_Arithmetic(t *testing.T) {
	tests := []struct {
		op    string
		start string
		value string
		want  string
	}{
		{"add", "10", "2.5", "12.5"},
		{"sub", "10", "4", "6"},
		{"mult", "3", "4", "12"},
		{"div", "5", "2", "2.5"},
		{"div", "9", "3", "3"},
		{"sub", "1", "5", "-4"},
	}
	for _, tt := range tests {
		s := state.NewSession("u")
		state.SetVar(s, "n", tt.start)
		if err := Apply(s, types.Effect{Type: tt.op, Name: "n", Value: tt.value}); err != nil {
			t.Errorf("%s %s %s: %v", tt.start, tt.op, tt.value, err)
			continue
		}
		if v, _ := state.GetVar(s, "n"); v != tt.want {
			t.Errorf("%s %s %s = %q, want %q", tt.start, tt.op, tt.value, v, tt.want)
		}
	}
}

func TestApply_ArithmeticErrorsLeaveValue(t *testing.T) {
	tests := []struct {
		name  string
		start string
		eff   types.Effect
	}{
		{"non-numeric variable", "Bob", types.Effect{Type: "add", Name: "n", Value: "5"}},
		{"non-numeric operand", "1", types.Effect{Type: "mult", Name: "n", Value: "lots"}},
		{"division by zero", "7", types.Effect{Type: "div", Name: "n", Value: "0"}},
	}
	for _, tt := range tests {
		s := state.NewSession("u")
		state.SetVar(s, "n", tt.start)
		err := Apply(s, tt.eff)
		var te *errs.TagError
		if !errors.As(err, &te) {
			t.Errorf("%s: expected TagError, got %v", tt.name, err)
		}
		if v, _ := state.GetVar(s, "n"); v != tt.start {
			t.Errorf("%s: value changed to %q", tt.name, v)
		}
	}
}

func TestApply_BotGlobalTopic(t *testing.T) {
	s := state.NewSession("u")
	_ = Apply(s, types.Effect{Type: "bot", Name: "name", Value: "Bob"})
	_ = Apply(s, types.Effect{Type: "global", Name: "debug", Value: "1"})
	_ = Apply(s, types.Effect{Type: "topic", Value: "apology"})
	if s.BotVars["name"] != "Bob" || s.Globals["debug"] != "1" || s.Topic != "apology" {
		t.Errorf("session = %+v", s)
	}
}

func TestApply_Unknown(t *testing.T) {
	if err := Apply(state.NewSession("u"), types.Effect{Type: "explode"}); err == nil {
		t.Error("expected error for unknown effect")
	}
}
