package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nathoo/rivecore/engine"
	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/save"
	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

// rawLine stores an unstyled output line with its classification,
// so we can re-wrap and re-style when the terminal is resized.
type rawLine struct {
	text     string
	kind     lineKind
	isInput  bool // true for echoed user input
	isSystem bool // true for system messages
}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	ctx     context.Context
	engine  *engine.Engine
	session *types.Session

	viewport viewport.Model
	input    textinput.Model
	history  *History

	rawLines []rawLine // accumulated conversation lines (unstyled, for re-wrapping)

	width    int
	height   int
	ready    bool
	trace    bool
	quitting bool
	saveDir  string
	err      error // store failure that ended the program
}

// replyMsg carries output into the Update loop.
type replyMsg struct {
	input    string   // echoed user input (empty for the greeting)
	lines    []string // output lines
	isSystem bool     // true for meta-command output
}

// New creates a TUI model chatting as the session's user.
func New(ctx context.Context, eng *engine.Engine, s *types.Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 256
	ti.PromptStyle = styleInputPrompt

	h := NewHistory(100)
	h.Seed(s.Inputs)

	home, _ := os.UserHomeDir()
	return Model{
		ctx:     ctx,
		engine:  eng,
		session: s,
		input:   ti,
		history: h,
		saveDir: filepath.Join(home, ".rivecore", "saves"),
	}
}

// Run loads the user's session and starts the Bubble Tea program.
func Run(ctx context.Context, eng *engine.Engine, user string) error {
	s, err := eng.Session(ctx, user)
	if err != nil {
		return err
	}
	p := tea.NewProgram(New(ctx, eng, s), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}

// Init returns the initial command that produces the greeting.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.greeting())
}

func (m Model) greeting() tea.Cmd {
	return func() tea.Msg {
		b := m.engine.Brain
		lines := []string{
			fmt.Sprintf("%s is listening. %d triggers in %d topics.",
				m.botName(), b.Triggers, len(b.Topics.Names())),
			"Type /help for commands.",
		}
		if m.session.TurnCount > 0 {
			lines = append(lines, fmt.Sprintf("Resuming your conversation at turn %d.", m.session.TurnCount))
		}
		return replyMsg{lines: lines, isSystem: true}
	}
}

// Update handles messages (key presses, window resize, replies).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := m.height - 2 // 1 status bar + 1 input line
		if vpHeight < 1 {
			vpHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.KeyMap = viewportKeyMap()
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}

		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m.handleEnter()

		case "up":
			if prev, ok := m.history.Prev(); ok {
				m.input.SetValue(prev)
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if next, ok := m.history.Next(); ok {
				m.input.SetValue(next)
				m.input.CursorEnd()
			} else {
				m.input.SetValue("")
				m.history.ResetCursor()
			}
			return m, nil

		case "pgup", "pgdown":
			var vpCmd tea.Cmd
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}

	case replyMsg:
		m = m.appendOutput(msg)
	}

	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	cmds = append(cmds, inputCmd)

	return m, tea.Batch(cmds...)
}

// handleEnter processes the submitted input line.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if input == "" {
		return m, nil
	}

	m.history.Push(input)
	m.history.ResetCursor()

	// Meta-commands.
	if strings.HasPrefix(input, "/") {
		output, quit, err := m.handleMeta(input)
		if err != nil {
			return m.fail(err)
		}
		m = m.appendOutput(replyMsg{input: input, lines: output, isSystem: true})
		if quit {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	res, err := m.engine.Reply(m.ctx, m.session, input)
	if err == nil {
		err = m.engine.SaveSession(m.ctx, m.session)
	}
	if err != nil {
		return m.fail(err)
	}
	output := res.ReplyChunks
	if m.trace {
		output = append(output, m.formatTrace(res)...)
	}
	m = m.appendOutput(replyMsg{input: input, lines: output})
	return m, nil
}

// fail ends the program on a store or context failure.
func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	m.err = err
	m.quitting = true
	return m, tea.Quit
}

// appendOutput adds lines to the conversation and refreshes the viewport.
func (m Model) appendOutput(msg replyMsg) Model {
	if msg.input != "" {
		m.rawLines = append(m.rawLines, rawLine{
			text: "> " + msg.input, isInput: true,
		})
	}

	for _, line := range msg.lines {
		rl := rawLine{text: line, isSystem: msg.isSystem}
		if !msg.isSystem {
			rl.kind = classifyLine(line)
		}
		m.rawLines = append(m.rawLines, rl)
	}

	// Blank line separator between turns.
	m.rawLines = append(m.rawLines, rawLine{})

	m.refreshViewport()

	return m
}

// refreshViewport re-wraps and re-styles all raw lines at the current width
// and updates the viewport content.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	width := m.width
	if width < 10 {
		width = 10
	}

	var styled []string
	for _, rl := range m.rawLines {
		if rl.text == "" {
			styled = append(styled, "")
			continue
		}

		wrapped := wordWrap(rl.text, width)

		switch {
		case rl.isInput:
			styled = append(styled, styleUserInput.Render(wrapped))
		case rl.isSystem:
			styled = append(styled, styledSystemMsg(wrapped))
		default:
			styled = append(styled, renderLineKind(wrapped, rl.kind))
		}
	}

	m.viewport.SetContent(strings.Join(styled, "\n"))
	m.viewport.GotoBottom()
}

// renderLineKind applies the style for a given lineKind.
func renderLineKind(line string, kind lineKind) string {
	switch kind {
	case kindSystem:
		return styleSystem.Render(line)
	case kindError:
		return styleError.Render(line)
	case kindTrace:
		return styleTrace.Render(line)
	default:
		return styleReply.Render(line)
	}
}

// wordWrap wraps text to fit within the given width, breaking at word
// boundaries. Replies with literal newlines are wrapped line by line.
func wordWrap(text string, width int) string {
	if strings.Contains(text, "\n") {
		lines := strings.Split(text, "\n")
		for i, l := range lines {
			lines[i] = wordWrap(l, width)
		}
		return strings.Join(lines, "\n")
	}
	if width <= 0 || len(text) <= width {
		return text
	}

	var result strings.Builder
	lineLen := 0
	for i, word := range strings.Fields(text) {
		wLen := len(word)

		if i == 0 {
			result.WriteString(word)
			lineLen = wLen
			continue
		}

		if lineLen+1+wLen > width {
			result.WriteString("\n")
			result.WriteString(word)
			lineLen = wLen
		} else {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + wLen
		}
	}

	return result.String()
}

// View renders the full TUI layout: viewport + status bar + input.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	return m.viewport.View() + "\n" + m.renderStatusBar() + "\n" + m.input.View()
}

// handleMeta dispatches meta-commands. Returns output lines and quit flag.
// The error is only non-nil when the session store failed.
func (m *Model) handleMeta(input string) ([]string, bool, error) {
	parts := strings.Fields(input)
	cmd := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "/quit", "/exit":
		return []string{"Goodbye."}, true, nil

	case "/save":
		return m.cmdSave(arg), false, nil

	case "/load":
		out, err := m.cmdLoad(arg)
		return out, false, err

	case "/reset":
		if err := m.engine.ResetSession(m.ctx, m.session.UserID); err != nil {
			return nil, false, err
		}
		state.Reset(m.session)
		return []string{"Session reset."}, false, nil

	case "/help":
		return m.cmdHelp(), false, nil

	case "/vars":
		return m.cmdVars(), false, nil

	case "/topic":
		out, err := m.cmdTopic(arg)
		return out, false, err

	case "/trace":
		m.trace = !m.trace
		if m.trace {
			return []string{"Trace output enabled."}, false, nil
		}
		return []string{"Trace output disabled."}, false, nil

	default:
		return []string{fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd)}, false, nil
	}
}

func (m *Model) cmdSave(name string) []string {
	if name == "" {
		name = "quicksave"
	}

	data, err := save.Save(m.session)
	if err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}

	if err := os.MkdirAll(m.saveDir, 0o755); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}

	path := filepath.Join(m.saveDir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}

	return []string{fmt.Sprintf("Session saved to %s.", name)}
}

func (m *Model) cmdLoad(name string) ([]string, error) {
	if name == "" {
		name = "quicksave"
	}

	path := filepath.Join(m.saveDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}, nil
	}

	sd, err := save.Load(data)
	if err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}, nil
	}

	user := m.session.UserID
	save.ApplySave(m.session, sd)
	m.session.UserID = user
	if err := m.engine.SaveSession(m.ctx, m.session); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Session loaded from %s (turn %d).", name, sd.Turn)}, nil
}

func (m *Model) cmdTopic(name string) ([]string, error) {
	if name == "" {
		return []string{fmt.Sprintf("Topic: %s", m.session.Topic)}, nil
	}
	if !m.engine.Brain.Topics.Has(strings.ToLower(name)) {
		return []string{fmt.Sprintf("Unknown topic: %s.", name)}, nil
	}
	state.SetTopic(m.session, name)
	if err := m.engine.SaveSession(m.ctx, m.session); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Topic set to %s.", m.session.Topic)}, nil
}

func (m *Model) cmdHelp() []string {
	return []string{
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
		"Navigation: PgUp/PgDn to scroll, Up/Down for input history",
	}
}

func (m *Model) cmdVars() []string {
	s := m.session
	output := []string{
		fmt.Sprintf("User: %s", s.UserID),
		fmt.Sprintf("Turn: %d", s.TurnCount),
		fmt.Sprintf("Topic: %s", s.Topic),
	}
	for _, name := range sortedKeys(s.Vars) {
		output = append(output, fmt.Sprintf("  %s = %s", name, s.Vars[name]))
	}
	return output
}

func (m *Model) formatTrace(res types.TurnResult) []string {
	trigger := res.Trigger
	if !res.Matched {
		trigger = "(none)"
	}
	lines := []string{fmt.Sprintf("[trace] Trigger: %s", trigger)}
	if rng, ok := m.engine.RNG.(*engine.RNG); ok {
		lines = append(lines, fmt.Sprintf("[trace] RNG: seed=%d position=%d", rng.Seed(), rng.Position()))
	}
	for _, e := range res.Errors {
		lines = append(lines, fmt.Sprintf("[trace]   %s: %v", errs.Kind(e), e))
	}
	return lines
}

// viewportKeyMap returns a viewport keymap with Up/Down disabled
// (we use those for input history).
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
