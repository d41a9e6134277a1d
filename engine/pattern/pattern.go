// Package pattern compiles trigger text into a list of segments and
// aligns normalized input against it.
//
// Syntax: literal words, wildcards ("*" any text, "#" digits, "_" letters),
// optionals "[a|b]", alternations "(a|b)" and "(?:a|b)", and array-set
// references "@name".
package pattern

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/parser"
)

// Kind identifies a segment type.
type Kind int

const (
	Literal Kind = iota
	Wildcard
	Optional
	Alternation
	ArrayRef
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Wildcard:
		return "wildcard"
	case Optional:
		return "optional"
	case Alternation:
		return "alternation"
	case ArrayRef:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Segment is one node of a compiled pattern.
type Segment struct {
	Kind    Kind
	Text    string      // Literal
	Wild    rune        // Wildcard: '*', '#' or '_'
	Greedy  bool        // Wildcard
	Alts    [][]Segment // Optional, Alternation
	Array   string      // ArrayRef
	Items   []string    // ArrayRef, resolved at compile time, longest first
	Capture int         // capture slot, -1 if the segment does not capture

	inner []int // Optional: capture slots to clear when skipped
}

// Pattern is a compiled trigger or previous-reply pattern. Immutable.
type Pattern struct {
	Source   string
	Segments []Segment
	Captures int
}

// Arrays resolves array-set names while compiling.
type Arrays func(name string) ([]string, bool)

// Compile parses text into a Pattern. Unknown arrays and unbalanced
// groups are reported as *errs.PatternError.
func Compile(text string, arrays Arrays) (*Pattern, error) {
	c := &compiler{
		text:   text,
		src:    []rune(strings.Join(strings.Fields(strings.ToLower(text)), " ")),
		arrays: arrays,
	}
	segs, stop, err := c.seq()
	if err != nil {
		return nil, err
	}
	if stop != 0 {
		return nil, c.fail(fmt.Sprintf("unexpected %q", stop))
	}
	if len(segs) == 0 {
		return nil, c.fail("empty pattern")
	}
	return &Pattern{Source: text, Segments: segs, Captures: c.slots}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests.
func MustCompile(text string, arrays Arrays) *Pattern {
	p, err := Compile(text, arrays)
	if err != nil {
		panic(err)
	}
	return p
}

// Score is the specificity of the pattern: literal words 4, arrays 3,
// alternations 2, optionals, "#" and "_" 1, "*" 0.
func (p *Pattern) Score() int {
	score := 0
	for _, s := range p.Segments {
		switch s.Kind {
		case Literal:
			score += 4 * len(strings.Fields(s.Text))
		case ArrayRef:
			score += 3
		case Alternation:
			score += 2
		case Optional:
			score++
		case Wildcard:
			if s.Wild != '*' {
				score++
			}
		}
	}
	return score
}

func (p *Pattern) String() string { return p.Source }

type compiler struct {
	text      string
	src       []rune
	pos       int
	arrays    Arrays
	slots     int
	noCapture int // > 0 while inside an alternation
}

func (c *compiler) fail(reason string) error {
	return &errs.PatternError{Pattern: c.text, Reason: reason}
}

func (c *compiler) slot() int {
	if c.noCapture > 0 {
		return -1
	}
	c.slots++
	return c.slots - 1
}

// seq parses segments up to the end of input or one of ")", "]", "|",
// which is returned unconsumed (0 at end of input).
func (c *compiler) seq() ([]Segment, rune, error) {
	var segs []Segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, Segment{Kind: Literal, Text: lit.String(), Capture: -1})
			lit.Reset()
		}
	}

	for c.pos < len(c.src) {
		r := c.src[c.pos]
		switch {
		case r == '*' || r == '#' || r == '_':
			flush()
			c.pos++
			segs = append(segs, Segment{Kind: Wildcard, Wild: r, Greedy: true, Capture: c.slot()})

		case r == '[':
			flush()
			c.pos++
			first := c.slots
			alts, err := c.group(']')
			if err != nil {
				return nil, 0, err
			}
			seg := Segment{Kind: Optional, Alts: alts, Capture: -1}
			for i := first; i < c.slots; i++ {
				seg.inner = append(seg.inner, i)
			}
			segs = append(segs, seg)

		case r == '(':
			flush()
			c.pos++
			capture := true
			if strings.HasPrefix(string(c.src[c.pos:]), "?:") {
				c.pos += 2
				capture = false
			}
			slot := -1
			if capture {
				slot = c.slot()
			}
			c.noCapture++
			alts, err := c.group(')')
			c.noCapture--
			if err != nil {
				return nil, 0, err
			}
			segs = append(segs, Segment{Kind: Alternation, Alts: alts, Capture: slot})

		case r == '@':
			flush()
			c.pos++
			name := c.ident()
			if name == "" {
				return nil, 0, c.fail("empty array name")
			}
			items, ok := c.arrays.lookup(name)
			if !ok {
				return nil, 0, c.fail(fmt.Sprintf("unknown array %q", name))
			}
			segs = append(segs, Segment{Kind: ArrayRef, Array: name, Items: items, Capture: c.slot()})

		case r == ')' || r == ']' || r == '|':
			flush()
			return trimOptionals(segs), r, nil

		case r == ' ':
			lit.WriteRune(r)
			c.pos++

		case unicode.IsLetter(r) || unicode.IsDigit(r):
			lit.WriteRune(r)
			c.pos++

		default:
			// Punctuation never survives input normalization.
			c.pos++
		}
	}
	flush()
	return trimOptionals(segs), 0, nil
}

// group parses "|"-separated alternatives up to the closing rune.
func (c *compiler) group(closing rune) ([][]Segment, error) {
	var alts [][]Segment
	for {
		segs, stop, err := c.seq()
		if err != nil {
			return nil, err
		}
		alts = append(alts, trimEdges(segs))
		switch stop {
		case '|':
			c.pos++
		case closing:
			c.pos++
			for _, alt := range alts {
				if len(alt) > 0 {
					return alts, nil
				}
			}
			return nil, c.fail("empty group")
		case 0:
			return nil, c.fail(fmt.Sprintf("missing %q", closing))
		default:
			return nil, c.fail(fmt.Sprintf("unexpected %q", stop))
		}
	}
}

func (c *compiler) ident() string {
	start := c.pos
	for c.pos < len(c.src) {
		r := c.src[c.pos]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		c.pos++
	}
	return string(c.src[start:c.pos])
}

func (a Arrays) lookup(name string) ([]string, bool) {
	if a == nil {
		return nil, false
	}
	raw, ok := a(name)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	var items []string
	for _, it := range raw {
		if it = parser.Normalize(it); it != "" {
			items = append(items, it)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return len(items[i]) > len(items[j]) })
	return items, len(items) > 0
}

// trimOptionals moves the whitespace around optionals into the optionals
// themselves, so a skipped optional leaves a single separator behind.
func trimOptionals(segs []Segment) []Segment {
	for i := range segs {
		if segs[i].Kind != Optional {
			continue
		}
		if i > 0 && segs[i-1].Kind == Literal {
			segs[i-1].Text = strings.TrimRight(segs[i-1].Text, " ")
		}
		if i+1 < len(segs) && segs[i+1].Kind == Literal {
			segs[i+1].Text = strings.TrimLeft(segs[i+1].Text, " ")
		}
	}
	out := segs[:0]
	for _, s := range segs {
		if s.Kind == Literal && s.Text == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// trimEdges drops the padding inside a group, as in "( a | b )".
func trimEdges(segs []Segment) []Segment {
	if n := len(segs); n > 0 {
		if segs[0].Kind == Literal {
			segs[0].Text = strings.TrimLeft(segs[0].Text, " ")
		}
		if segs[n-1].Kind == Literal {
			segs[n-1].Text = strings.TrimRight(segs[n-1].Text, " ")
		}
	}
	out := segs[:0]
	for _, s := range segs {
		if s.Kind == Literal && s.Text == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
