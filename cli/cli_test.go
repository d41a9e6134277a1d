package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nathoo/rivecore/config"
	"github.com/nathoo/rivecore/engine"
	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/loader"
	"github.com/nathoo/rivecore/store"
)

const testBot = `
! var name = Aiden

+ hello
- Hello, human.

+ my name is *
- <set name=<formal>>Nice to meet you, <get name>.

+ what is my name
- You are <get name>.

+ tell me a story
- Once upon a time{nextreply}The end.

+ play a game
- Okay.{topic=game}

> topic game
  + *
  - We are playing.
< topic
`

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	res, err := loader.Parse("test.rs", testBot)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	brain, problems := state.NewBrain(res.Rules)
	if len(problems) > 0 {
		t.Fatalf("NewBrain problems: %v", problems)
	}
	cfg := config.Default()
	cfg.Seed = 7
	return engine.New(brain, engine.Options{Config: &cfg})
}

func newTestCLI(t *testing.T, input string) (*CLI, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c := &CLI{
		Engine:  newTestEngine(t),
		User:    "tester",
		In:      strings.NewReader(input),
		Out:     &out,
		SaveDir: t.TempDir(),
	}
	return c, &out
}

func run(t *testing.T, c *CLI) {
	t.Helper()
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestCLI_BasicChat(t *testing.T) {
	c, out := newTestCLI(t, "hello\nmy name is ada\nwhat is my name\n/quit\n")
	run(t, c)

	output := out.String()
	for _, want := range []string{"Hello, human.", "Nice to meet you, Ada.", "You are Ada.", "Goodbye."} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestCLI_ChunksOnSeparateLines(t *testing.T) {
	c, out := newTestCLI(t, "tell me a story\n")
	run(t, c)

	if !strings.Contains(out.String(), "Once upon a time\nThe end.\n") {
		t.Errorf("expected one line per chunk:\n%s", out.String())
	}
}

func TestCLI_EndOfInput(t *testing.T) {
	c, out := newTestCLI(t, "hello")
	run(t, c)
	if !strings.Contains(out.String(), "Hello, human.") {
		t.Error("expected the last line to be answered without a newline")
	}
}

func TestCLI_HelpCommand(t *testing.T) {
	c, out := newTestCLI(t, "/help\n/quit\n")
	run(t, c)

	output := out.String()
	for _, cmd := range []string{"/save", "/load", "/reset", "/vars", "/topic", "/trace", "/quit"} {
		if !strings.Contains(output, cmd) {
			t.Errorf("expected %s in help output", cmd)
		}
	}
}

func TestCLI_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	// Chat a bit and save.
	var out bytes.Buffer
	c := &CLI{
		Engine:  newTestEngine(t),
		User:    "first",
		In:      strings.NewReader("my name is ada\n/save test\n/quit\n"),
		Out:     &out,
		SaveDir: dir,
	}
	run(t, c)
	if !strings.Contains(out.String(), "Session saved to test.") {
		t.Errorf("expected save confirmation:\n%s", out.String())
	}

	// A different user on a fresh engine loads it.
	var out2 bytes.Buffer
	c2 := &CLI{
		Engine:  newTestEngine(t),
		User:    "second",
		In:      strings.NewReader("/load test\nwhat is my name\n/vars\n/quit\n"),
		Out:     &out2,
		SaveDir: dir,
	}
	run(t, c2)

	output := out2.String()
	if !strings.Contains(output, "Session loaded from test (turn 1).") {
		t.Errorf("expected load confirmation:\n%s", output)
	}
	if !strings.Contains(output, "You are Ada.") {
		t.Errorf("expected the loaded name:\n%s", output)
	}
	if !strings.Contains(output, "User: second") {
		t.Errorf("loaded session should keep the shell's user:\n%s", output)
	}
}

func TestCLI_VarsCommand(t *testing.T) {
	c, out := newTestCLI(t, "my name is ada\n/vars\n/quit\n")
	run(t, c)

	output := out.String()
	for _, want := range []string{"[User: tester]", "[Turn: 1]", "[Topic: random]", "[Vars: name=Ada]"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestCLI_TopicCommand(t *testing.T) {
	c, out := newTestCLI(t, "/topic\n/topic game\nhello\n/topic nowhere\n/quit\n")
	run(t, c)

	output := out.String()
	for _, want := range []string{"[Topic: random]", "[Topic set to game.]", "We are playing.", "Unknown topic: nowhere"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestCLI_Reset(t *testing.T) {
	c, out := newTestCLI(t, "my name is ada\n/reset\nwhat is my name\n/quit\n")
	run(t, c)

	output := out.String()
	if !strings.Contains(output, "Session reset.") {
		t.Error("expected reset confirmation")
	}
	if !strings.Contains(output, "You are undefined.") {
		t.Errorf("expected the name to be forgotten:\n%s", output)
	}
}

func TestCLI_PersistsToStore(t *testing.T) {
	c, _ := newTestCLI(t, "play a game\n/quit\n")
	run(t, c)

	s, err := c.Engine.Store.Load(context.Background(), "tester")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Topic != "game" {
		t.Errorf("stored topic = %q, want game", s.Topic)
	}
}

func TestCLI_ResetForgetsStore(t *testing.T) {
	c, _ := newTestCLI(t, "hello\n/reset\n/quit\n")
	run(t, c)

	if _, err := c.Engine.Store.Load(context.Background(), "tester"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCLI_UnknownMetaCommand(t *testing.T) {
	c, out := newTestCLI(t, "/bogus\n/quit\n")
	run(t, c)

	if !strings.Contains(out.String(), "Unknown command") {
		t.Error("expected unknown command message")
	}
}

func TestCLI_TraceToggle(t *testing.T) {
	c, out := newTestCLI(t, "/trace\nhello\nxyzzy\n/trace\n/quit\n")
	run(t, c)

	output := out.String()
	for _, want := range []string{
		"Trace output enabled",
		"[[trace] Trigger: test.rs:",
		"[[trace] Trigger: (none)]",
		"[[trace] RNG: seed=7 position=",
		"no_match: no trigger matched",
		"Trace output disabled",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestCLI_ScriptPlayback(t *testing.T) {
	c, out := newTestCLI(t, "# a comment\nhello\n/quit\n")
	c.EchoInput = true
	run(t, c)

	output := out.String()
	if strings.Contains(output, "a comment") {
		t.Error("comment lines should be skipped")
	}
	if !strings.Contains(output, "> hello\nHello, human.") {
		t.Errorf("expected echoed input:\n%s", output)
	}
}

func TestCLI_EmptyInput(t *testing.T) {
	c, out := newTestCLI(t, "\n\n/quit\n")
	run(t, c)

	if strings.Contains(out.String(), "ERR:") {
		t.Error("empty lines should be silently skipped by CLI")
	}
}

func TestCLI_LoadNonexistent(t *testing.T) {
	c, out := newTestCLI(t, "/load nonexistent\n/quit\n")
	run(t, c)

	if !strings.Contains(out.String(), "Load failed") {
		t.Error("expected load failure message")
	}
}

func TestNew_AnonymousUser(t *testing.T) {
	a := New(newTestEngine(t), "")
	b := New(newTestEngine(t), "")
	if a.User == "" || a.User == b.User {
		t.Errorf("anonymous users = %q, %q", a.User, b.User)
	}
	if c := New(newTestEngine(t), "named"); c.User != "named" {
		t.Errorf("user = %q", c.User)
	}
}
