// Package tui provides a Bubble Tea terminal UI for chatting with a
// rivecore bot.
package tui

// History is a bounded buffer of submitted lines with cursor-based
// navigation, oldest first.
type History struct {
	entries []string
	max     int
	cursor  int // -1 = not navigating, 0..len-1 = position in entries
}

// NewHistory creates a history buffer with the given maximum size.
func NewHistory(max int) *History {
	return &History{
		entries: make([]string, 0, max),
		max:     max,
		cursor:  -1,
	}
}

// Seed fills the history from a session's remembered inputs, which are
// stored most recent first. Undefined placeholders are skipped.
func (h *History) Seed(recentFirst []string) {
	for i := len(recentFirst) - 1; i >= 0; i-- {
		if line := recentFirst[i]; line != "" && line != "undefined" {
			h.Push(line)
		}
	}
	h.cursor = -1
}

// Push adds a line. Consecutive duplicates are skipped.
func (h *History) Push(line string) {
	if len(h.entries) > 0 && h.entries[len(h.entries)-1] == line {
		return
	}
	h.entries = append(h.entries, line)
	if len(h.entries) > h.max {
		h.entries = h.entries[1:]
	}
}

// Len returns the number of stored lines.
func (h *History) Len() int { return len(h.entries) }

// Prev returns the previous (older) entry.
// Returns ("", false) if history is empty.
func (h *History) Prev() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.cursor == -1 {
		h.cursor = len(h.entries) - 1
	} else if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// Next returns the next (newer) entry.
// Returns ("", false) when past the most recent entry (back to fresh input).
func (h *History) Next() (string, bool) {
	if h.cursor == -1 {
		return "", false
	}
	h.cursor++
	if h.cursor >= len(h.entries) {
		h.cursor = -1
		return "", false
	}
	return h.entries[h.cursor], true
}

// ResetCursor resets the navigation cursor to the "not navigating" state.
func (h *History) ResetCursor() {
	h.cursor = -1
}
