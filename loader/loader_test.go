package loader

import (
	"errors"
	"strings"
	"testing"

	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

// topicByName finds a topic in a rule set, failing the test if absent.
func topicByName(t *testing.T, rs *types.RuleSet, name string) types.TopicDef {
	t.Helper()
	for _, td := range rs.Topics {
		if td.Name == name {
			return td
		}
	}
	t.Fatalf("topic %q not found", name)
	return types.TopicDef{}
}

// triggerByPattern finds a trigger in a topic, failing the test if absent.
func triggerByPattern(t *testing.T, td types.TopicDef, pattern string) types.TriggerDef {
	t.Helper()
	for _, trig := range td.Triggers {
		if trig.Pattern == pattern {
			return trig
		}
	}
	t.Fatalf("trigger %q not found in topic %q", pattern, td.Name)
	return types.TriggerDef{}
}

func TestLoad_Directory(t *testing.T) {
	res, err := Load("testdata/bot")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rs := res.Rules

	// Definitions from both formats.
	if rs.BotVars["name"] != "Aiden" {
		t.Errorf("bot name = %q, want Aiden", rs.BotVars["name"])
	}
	if rs.BotVars["master"] != "kirsle" {
		t.Errorf("bot master = %q, want kirsle", rs.BotVars["master"])
	}
	if rs.Globals["depth"] != "25" {
		t.Errorf("global depth = %q, want 25", rs.Globals["depth"])
	}
	if got := strings.Join(rs.Arrays["colors"], ","); got != "red,blue,green" {
		t.Errorf("colors = %q", got)
	}
	if got := strings.Join(rs.Arrays["greek"], ","); got != "alpha,beta,gamma delta" {
		t.Errorf("greek = %q", got)
	}
	if got := strings.Join(rs.Arrays["fruit"], ","); got != "apple,pear" {
		t.Errorf("fruit = %q", got)
	}
	if len(rs.Subs) != 3 {
		t.Errorf("expected 3 subs, got %d", len(rs.Subs))
	}
	if len(rs.Person) != 2 {
		t.Errorf("expected 2 person subs, got %d", len(rs.Person))
	}

	// Topics in first-seen order, Lua topics last.
	var names []string
	for _, td := range rs.Topics {
		names = append(names, td.Name)
	}
	want := []string{state.BeginTopic, state.DefaultTopic, "sarcastic", "games"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("topics = %v, want %v", names, want)
	}

	sarcastic := topicByName(t, rs, "sarcastic")
	if len(sarcastic.Inherits) != 1 || sarcastic.Inherits[0] != "random" {
		t.Errorf("sarcastic inherits = %v", sarcastic.Inherits)
	}
	games := topicByName(t, rs, "games")
	if len(games.Includes) != 1 || games.Includes[0] != "sarcastic" {
		t.Errorf("games includes = %v", games.Includes)
	}

	// Objects from the script and from Lua.
	if len(rs.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(rs.Objects))
	}
	langs := map[string]string{}
	for _, o := range rs.Objects {
		langs[o.Name] = o.Language
	}
	if langs["shout"] != "lua" || langs["reverse"] != "javascript" {
		t.Errorf("object languages = %v", langs)
	}

	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestLoad_Triggers(t *testing.T) {
	res, err := Load("testdata/bot")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	random := topicByName(t, res.Rules, state.DefaultTopic)

	hello := triggerByPattern(t, random, "hello bot")
	if len(hello.Replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(hello.Replies))
	}
	if hello.Replies[0].Weight != 1 {
		t.Errorf("default weight = %d, want 1", hello.Replies[0].Weight)
	}
	if hello.Replies[1].Text != "Hi there!" || hello.Replies[1].Weight != 3 {
		t.Errorf("weighted reply = %+v", hello.Replies[1])
	}
	if !strings.HasPrefix(hello.Source, "main.rs:") {
		t.Errorf("source = %q", hello.Source)
	}

	sorry := triggerByPattern(t, random, "sorry")
	if sorry.Previous != "you're really mean" {
		t.Errorf("previous = %q", sorry.Previous)
	}

	hi := triggerByPattern(t, random, "hi")
	if hi.Redirect != "hello bot" {
		t.Errorf("redirect = %q", hi.Redirect)
	}

	story := triggerByPattern(t, random, "tell me a story")
	if got := story.Replies[0].Text; got != `Once upon a time, there was a bot.\nThe end.` {
		t.Errorf("continued reply = %q", got)
	}

	age := triggerByPattern(t, random, "how old am i")
	wantConds := []types.ConditionDef{
		{Left: "<get age>", Op: "==", Right: "undefined", Reply: "I don't know."},
		{Left: "<get age>", Op: ">=", Right: "18", Reply: "You're an adult."},
		{Left: "<bot age>", Op: "<", Right: "18", Reply: "You're younger than me?"},
	}
	if len(age.Conditions) != len(wantConds) {
		t.Fatalf("expected %d conditions, got %d", len(wantConds), len(age.Conditions))
	}
	for i, want := range wantConds {
		if age.Conditions[i] != want {
			t.Errorf("condition %d = %+v, want %+v", i, age.Conditions[i], want)
		}
	}

	// Lua triggers without a topic land in random.
	fruit := triggerByPattern(t, random, "what fruit do you like")
	if fruit.Replies[0].Text != "I like @fruit." {
		t.Errorf("fruit reply = %q", fruit.Replies[0].Text)
	}
	master := triggerByPattern(t, random, "am i the master")
	if len(master.Conditions) != 1 || master.Conditions[0].Right != "<bot master>" {
		t.Errorf("master conditions = %+v", master.Conditions)
	}

	// Source order follows the file order: extra.lua before main.rs.
	if fruit.SourceOrder >= hello.SourceOrder {
		t.Errorf("lua order %d should precede script order %d", fruit.SourceOrder, hello.SourceOrder)
	}
}

func TestLoad_BrokenScript(t *testing.T) {
	_, err := Load("testdata/broken")
	if err == nil {
		t.Fatal("expected validation error")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if len(ve.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
	for i, want := range []string{"reply without a trigger", "has no operator", "has no replies"} {
		if !strings.Contains(ve.Errors[i], want) {
			t.Errorf("error %d = %q, want it to mention %q", i, ve.Errors[i], want)
		}
	}
}

func TestLoad_MissingDir(t *testing.T) {
	if _, err := Load("testdata/nope"); err == nil {
		t.Error("expected error for missing directory")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestParse_Script(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(t *testing.T, rs *types.RuleSet)
	}{
		{
			name: "trigger normalization",
			src:  "+ Hello   THERE\\sBot\n- hi",
			check: func(t *testing.T, rs *types.RuleSet) {
				triggerByPattern(t, topicByName(t, rs, "random"), "hello there bot")
			},
		},
		{
			name: "undef removes definitions",
			src:  "! var name = Aiden\n! var name = undef\n! array a = x y\n! array a = undef\n+ x\n- y",
			check: func(t *testing.T, rs *types.RuleSet) {
				if _, ok := rs.BotVars["name"]; ok {
					t.Error("name should be removed")
				}
				if _, ok := rs.Arrays["a"]; ok {
					t.Error("array should be removed")
				}
			},
		},
		{
			name: "topic close returns to random",
			src:  "> topic a\n+ x\n- y\n< topic\n+ z\n- w",
			check: func(t *testing.T, rs *types.RuleSet) {
				triggerByPattern(t, topicByName(t, rs, "a"), "x")
				triggerByPattern(t, topicByName(t, rs, "random"), "z")
			},
		},
		{
			name: "topic includes and inherits",
			src:  "> topic a includes b c inherits d\n+ x\n- y\n< topic\n> topic b\n< topic\n> topic c\n< topic\n> topic d\n< topic",
			check: func(t *testing.T, rs *types.RuleSet) {
				a := topicByName(t, rs, "a")
				if strings.Join(a.Includes, ",") != "b,c" || strings.Join(a.Inherits, ",") != "d" {
					t.Errorf("includes = %v, inherits = %v", a.Includes, a.Inherits)
				}
			},
		},
		{
			name: "block comment on one line",
			src:  "/* note */ + x\n- y",
			check: func(t *testing.T, rs *types.RuleSet) {
				triggerByPattern(t, topicByName(t, rs, "random"), "x")
			},
		},
		{
			name: "object without language",
			src:  "> object legacy\nmy ($rs) = @_;\n< object\n+ x\n- y",
			check: func(t *testing.T, rs *types.RuleSet) {
				if len(rs.Objects) != 1 || rs.Objects[0].Language != "perl" {
					t.Errorf("objects = %+v", rs.Objects)
				}
				if rs.Objects[0].Code != "my ($rs) = @_;" {
					t.Errorf("code = %q", rs.Objects[0].Code)
				}
			},
		},
		{
			name: "trigger weight",
			src:  "+ x{weight=20}\n- y",
			check: func(t *testing.T, rs *types.RuleSet) {
				x := triggerByPattern(t, topicByName(t, rs, "random"), "x")
				if x.Weight != 20 {
					t.Errorf("weight = %d, want 20", x.Weight)
				}
			},
		},
		{
			name: "defined check",
			src:  "+ x\n* <get name> ? => known\n- unknown",
			check: func(t *testing.T, rs *types.RuleSet) {
				x := triggerByPattern(t, topicByName(t, rs, "random"), "x")
				if len(x.Conditions) != 1 || x.Conditions[0].Op != "?" || x.Conditions[0].Right != "" {
					t.Errorf("conditions = %+v", x.Conditions)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse("test.rs", tt.src)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			tt.check(t, res.Rules)
		})
	}
}

func TestParse_Warnings(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"perl eval", "& print 1\n+ x\n- y", "perl evaluation"},
		{"unknown command", "$ what\n+ x\n- y", "unknown command"},
		{"unknown definition", "! local concat = space\n+ x\n- y", "unsupported definition"},
		{"unterminated comment", "+ x\n- y\n/* never closed", "unterminated block comment"},
		{"redirect with replies", "+ x\n@ y\n- z\n+ y\n- w", "never used"},
		{"duplicate trigger", "+ x\n- y\n+ x\n- z", "duplicates"},
		{"missing topic", "> topic a inherits ghost\n+ x\n- y\n< topic", "undefined topic"},
		{"begin without request", "> begin\n+ hello\n- hi\n< begin", "no \"request\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse("test.rs", tt.src)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			found := false
			for _, w := range res.Warnings {
				if strings.Contains(w, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("warnings %v do not mention %q", res.Warnings, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"continuation first", "^ dangling", "continuation without"},
		{"condition without trigger", "* a == b => c", "condition without a trigger"},
		{"missing arrow", "+ x\n* a == b\n- y", "has no \"=>\""},
		{"question with right side", "+ x\n* a ? b => c\n- y", "takes no right side"},
		{"topic without name", "> topic\n+ x\n- y", "topic without a name"},
		{"empty array", "! array a = |\n+ x\n- y", "is empty"},
		{"unclosed object", "> object x lua\nreturn 1", "missing \"< object\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.rs", tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}
