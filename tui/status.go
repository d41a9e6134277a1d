package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nathoo/rivecore/engine"
)

// topicDisplayName derives a human-readable name from a topic name.
// "random" -> "Random", "small_talk" -> "Small Talk".
func topicDisplayName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// botName is the bot's "name" variable, session override first.
func (m Model) botName() string {
	if name, ok := m.session.BotVars["name"]; ok && name != "" {
		return name
	}
	if name, ok := m.engine.Brain.BotVar("name"); ok && name != "" {
		return name
	}
	return "rivecore"
}

// renderStatusBar produces a full-width inverted status line showing
// the bot, the current topic, the user, and the turn count.
func (m Model) renderStatusBar() string {
	s := m.session

	left := fmt.Sprintf(" %s | Topic: %s", m.botName(), topicDisplayName(s.Topic))
	right := fmt.Sprintf("T:%d ", s.TurnCount)
	if m.trace {
		if rng, ok := m.engine.RNG.(*engine.RNG); ok {
			right = fmt.Sprintf("RNG:%d | T:%d ", rng.Position(), s.TurnCount)
		}
	}

	// Show the user if it fits.
	candidate := fmt.Sprintf("User: %s | %s", s.UserID, right)
	if lipgloss.Width(left)+lipgloss.Width(candidate)+2 < m.width {
		right = candidate
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return styleStatusBar.Width(m.width).Render(bar)
}

// sortedKeys returns the session variable names in order.
func sortedKeys(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
