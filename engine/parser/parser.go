// Package parser turns raw user input into the message the matcher works
// on. Intentionally dumb: substitutions, case folding and punctuation
// stripping only.
package parser

import (
	"strings"
	"unicode"

	"github.com/nathoo/rivecore/engine/subst"
)

// DefaultSplitters are the sentence splitters used when none are configured.
const DefaultSplitters = ".!?;"

// Parse applies the pre-substitution table to input and normalizes it.
func Parse(input string, pre *subst.Table) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}
	return Normalize(pre.Apply(input))
}

// Normalize lowercases s, keeps only letters, digits and spaces, and
// collapses runs of whitespace.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// Sentences splits input on any of the splitter runes, dropping empty
// pieces. The pre-substitution table runs first so emoticons such as ";)"
// survive the split.
func Sentences(input string, pre *subst.Table, splitters string) []string {
	if splitters == "" {
		splitters = DefaultSplitters
	}
	input = pre.Apply(strings.ToLower(strings.TrimSpace(input)))
	parts := strings.FieldsFunc(input, func(r rune) bool {
		return strings.ContainsRune(splitters, r)
	})

	var out []string
	for _, p := range parts {
		if p = Normalize(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
