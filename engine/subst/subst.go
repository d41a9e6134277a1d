// Package subst implements ordered find/replace tables applied on whole
// words. Longer patterns are tried first and replaced text is never
// scanned again, so swaps like "i" <-> "you" are safe.
package subst

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nathoo/rivecore/types"
)

// Table is an immutable substitution table.
type Table struct {
	entries []types.SubstEntry
}

// New builds a table from entries. Patterns are case-folded; a later
// entry for the same pattern replaces an earlier one.
func New(entries []types.SubstEntry) *Table {
	index := map[string]int{}
	var list []types.SubstEntry
	for _, e := range entries {
		from := strings.ToLower(strings.TrimSpace(e.From))
		if from == "" {
			continue
		}
		if i, ok := index[from]; ok {
			list[i].To = e.To
			continue
		}
		index[from] = len(list)
		list = append(list, types.SubstEntry{From: from, To: e.To})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return len(list[i].From) > len(list[j].From)
	})
	return &Table{entries: list}
}

// Len returns the number of patterns in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns the patterns in match order.
func (t *Table) Entries() []types.SubstEntry {
	if t == nil {
		return nil
	}
	return append([]types.SubstEntry(nil), t.entries...)
}

// Apply runs one left-to-right pass over text.
func (t *Table) Apply(text string) string {
	if t.Len() == 0 || text == "" {
		return text
	}
	var b strings.Builder
	for i := 0; i < len(text); {
		if e, ok := t.matchAt(text, i); ok {
			b.WriteString(e.To)
			i += len(e.From)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		b.WriteString(text[i : i+size])
		i += size
	}
	return b.String()
}

func (t *Table) matchAt(text string, i int) (types.SubstEntry, bool) {
	for _, e := range t.entries {
		end := i + len(e.From)
		if end > len(text) || !strings.EqualFold(text[i:end], e.From) {
			continue
		}
		first, _ := utf8.DecodeRuneInString(e.From)
		last, _ := utf8.DecodeLastRuneInString(e.From)
		if i > 0 && isWord(first) {
			prev, _ := utf8.DecodeLastRuneInString(text[:i])
			if isWord(prev) {
				continue
			}
		}
		if end < len(text) && isWord(last) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if isWord(next) {
				continue
			}
		}
		return e, true
	}
	return types.SubstEntry{}, false
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}
