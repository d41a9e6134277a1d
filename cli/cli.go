// Package cli provides terminal I/O, output formatting, and meta-command
// dispatch for chatting with a rivecore bot.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nathoo/rivecore/engine"
	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/save"
	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

// CLI handles terminal interaction with one user.
type CLI struct {
	Engine    *engine.Engine
	User      string
	In        io.Reader
	Out       io.Writer
	SaveDir   string
	Trace     bool
	EchoInput bool // echo each input line after the prompt (for script playback)

	session *types.Session
}

// New creates a CLI wired to the given engine. An empty user gets a fresh
// anonymous id.
func New(eng *engine.Engine, user string) *CLI {
	if user == "" {
		user = uuid.NewString()
	}
	home, _ := os.UserHomeDir()
	return &CLI{
		Engine:  eng,
		User:    user,
		In:      os.Stdin,
		Out:     os.Stdout,
		SaveDir: filepath.Join(home, ".rivecore", "saves"),
	}
}

// Run loads the user's session, then loops: prompt → input → reply. It
// returns when input ends, /quit is typed or a store operation fails.
func (c *CLI) Run(ctx context.Context) error {
	s, err := c.Engine.Session(ctx, c.User)
	if err != nil {
		return err
	}
	c.session = s

	scanner := bufio.NewScanner(c.In)
	for {
		c.print("> ")
		if !scanner.Scan() {
			c.printLine("")
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		// Skip comment lines (for script files).
		if strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			c.printLine(input)
		}

		// Meta-commands start with '/'.
		if strings.HasPrefix(input, "/") {
			quit, err := c.handleMeta(ctx, input)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := c.Engine.Reply(ctx, c.session, input)
		if err != nil {
			return err
		}
		if err := c.Engine.SaveSession(ctx, c.session); err != nil {
			return err
		}
		c.printResult(res)

		if c.Trace {
			c.printTrace(res)
		}
	}
}

// handleMeta dispatches meta-commands. Returns true if the shell should exit.
func (c *CLI) handleMeta(ctx context.Context, input string) (bool, error) {
	parts := strings.Fields(input)
	cmd := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "/quit", "/exit":
		c.printSystem("Goodbye.")
		return true, nil

	case "/save":
		c.cmdSave(arg)

	case "/load":
		return false, c.cmdLoad(ctx, arg)

	case "/reset":
		return false, c.cmdReset(ctx)

	case "/help":
		c.cmdHelp()

	case "/vars":
		c.cmdVars()

	case "/topic":
		return false, c.cmdTopic(ctx, arg)

	case "/trace":
		c.Trace = !c.Trace
		if c.Trace {
			c.printSystem("Trace output enabled.")
		} else {
			c.printSystem("Trace output disabled.")
		}

	default:
		c.printSystem(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd))
	}

	return false, nil
}

func (c *CLI) cmdSave(name string) {
	if name == "" {
		name = "quicksave"
	}

	data, err := save.Save(c.session)
	if err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}

	if err := os.MkdirAll(c.SaveDir, 0o755); err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}

	path := filepath.Join(c.SaveDir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}

	c.printSystem(fmt.Sprintf("Session saved to %s.", name))
}

func (c *CLI) cmdLoad(ctx context.Context, name string) error {
	if name == "" {
		name = "quicksave"
	}

	path := filepath.Join(c.SaveDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		c.printSystem(fmt.Sprintf("Load failed: %v", err))
		return nil
	}

	sd, err := save.Load(data)
	if err != nil {
		c.printSystem(fmt.Sprintf("Load failed: %v", err))
		return nil
	}

	// The snapshot is applied to this shell's user, whoever saved it.
	save.ApplySave(c.session, sd)
	c.session.UserID = c.User
	if err := c.Engine.SaveSession(ctx, c.session); err != nil {
		return err
	}
	c.printSystem(fmt.Sprintf("Session loaded from %s (turn %d).", name, sd.Turn))
	return nil
}

func (c *CLI) cmdReset(ctx context.Context) error {
	if err := c.Engine.ResetSession(ctx, c.User); err != nil {
		return err
	}
	state.Reset(c.session)
	c.printSystem("Session reset.")
	return nil
}

func (c *CLI) cmdTopic(ctx context.Context, name string) error {
	if name == "" {
		c.printSystem(fmt.Sprintf("Topic: %s", c.session.Topic))
		return nil
	}
	if !c.Engine.Brain.Topics.Has(strings.ToLower(name)) {
		c.printSystem(fmt.Sprintf("Unknown topic: %s. Topics: %s", name,
			strings.Join(c.Engine.Brain.Topics.Names(), ", ")))
		return nil
	}
	state.SetTopic(c.session, name)
	c.printSystem(fmt.Sprintf("Topic set to %s.", c.session.Topic))
	return c.Engine.SaveSession(ctx, c.session)
}

func (c *CLI) cmdHelp() {
	help := []string{
		"System:",
		"  /save [name]  Save the session (default: quicksave)",
		"  /load [name]  Load a saved session (default: quicksave)",
		"  /reset        Forget everything about you",
		"  /vars         Show your variables",
		"  /topic [name] Show or change the current topic",
		"  /trace        Toggle debug trace output",
		"  /quit         Exit",
		"  /help         Show this help",
		"",
		"Anything else is sent to the bot.",
	}
	for _, line := range help {
		c.printLine(line)
	}
}

func (c *CLI) cmdVars() {
	s := c.session
	c.printSystem(fmt.Sprintf("User: %s", s.UserID))
	c.printSystem(fmt.Sprintf("Turn: %d", s.TurnCount))
	c.printSystem(fmt.Sprintf("Topic: %s", s.Topic))
	if len(s.Vars) > 0 {
		c.printSystem(fmt.Sprintf("Vars: %s", formatVars(s.Vars)))
	}
	if len(s.BotVars) > 0 {
		c.printSystem(fmt.Sprintf("Bot vars: %s", formatVars(s.BotVars)))
	}
	if len(s.Globals) > 0 {
		c.printSystem(fmt.Sprintf("Globals: %s", formatVars(s.Globals)))
	}
}

// formatVars prints a map in key order.
func formatVars(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, " ")
}

func (c *CLI) printTrace(res types.TurnResult) {
	trigger := res.Trigger
	if !res.Matched {
		trigger = "(none)"
	}
	c.printSystem(fmt.Sprintf("[trace] Trigger: %s", trigger))
	c.printSystem(fmt.Sprintf("[trace] Topic: %s", res.Topic))
	if rng, ok := c.Engine.RNG.(*engine.RNG); ok {
		c.printSystem(fmt.Sprintf("[trace] RNG: seed=%d position=%d", rng.Seed(), rng.Position()))
	}
	if len(res.Errors) > 0 {
		c.printSystem(fmt.Sprintf("[trace] Errors: %d", len(res.Errors)))
		for _, e := range res.Errors {
			c.printSystem(fmt.Sprintf("[trace]   %s: %v", errs.Kind(e), e))
		}
	}
}

func (c *CLI) printResult(res types.TurnResult) {
	for _, chunk := range res.ReplyChunks {
		c.printLine(chunk)
	}
}

func (c *CLI) printLine(text string) {
	fmt.Fprintln(c.Out, text)
}

func (c *CLI) print(text string) {
	fmt.Fprint(c.Out, text)
}

func (c *CLI) printSystem(text string) {
	fmt.Fprintf(c.Out, "[%s]\n", text)
}
