package loader

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

// line is one logical script line after comments are removed and "^"
// continuations are joined.
type line struct {
	num  int
	cmd  byte
	data string
}

// script walks the lines of one .rs file.
type script struct {
	coll  *collector
	name  string
	topic string
	trig  *types.TriggerDef // trigger being filled in
}

func (s *script) source(num int) string {
	return fmt.Sprintf("%s:%d", s.name, num)
}

// parseScript reads one .rs script into the collector. Syntax errors are
// collected rather than returned so a load reports all of them at once.
func parseScript(coll *collector, name, src string) {
	s := &script{coll: coll, name: name, topic: state.DefaultTopic}
	raw := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")

	var lines []line
	inComment := false
	for i := 0; i < len(raw); i++ {
		text := strings.TrimSpace(raw[i])

		// Block comments.
		if inComment {
			if end := strings.Index(text, "*/"); end >= 0 {
				inComment = false
				text = strings.TrimSpace(text[end+2:])
			} else {
				continue
			}
		}
		if strings.HasPrefix(text, "/*") {
			if end := strings.Index(text, "*/"); end >= 0 {
				text = strings.TrimSpace(text[end+2:])
			} else {
				inComment = true
				continue
			}
		}
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}

		// Object bodies are kept verbatim up to "< object".
		if text[0] == '>' && strings.HasPrefix(strings.TrimSpace(text[1:]), "object") {
			i = s.object(raw, i)
			continue
		}

		if text[0] == '^' {
			if len(lines) == 0 {
				coll.errorf(s.source(i+1), "continuation without a previous command")
				continue
			}
			prev := &lines[len(lines)-1]
			prev.data = joinContinuation(prev.data, strings.TrimSpace(text[1:]))
			continue
		}
		lines = append(lines, line{num: i + 1, cmd: text[0], data: strings.TrimSpace(text[1:])})
	}
	if inComment {
		coll.warnf(name, "unterminated block comment")
	}

	for _, l := range lines {
		s.command(l)
	}
	s.flush()
}

// joinContinuation appends a "^" line. Text ending in a literal "\n"
// continues without a space.
func joinContinuation(prev, next string) string {
	if strings.HasSuffix(prev, `\n`) {
		return prev + next
	}
	return prev + " " + next
}

func (s *script) command(l line) {
	src := s.source(l.num)
	switch l.cmd {
	case '!':
		s.define(src, l.data)

	case '>':
		s.flush()
		s.label(src, l.data)

	case '<':
		s.flush()
		switch strings.TrimSpace(l.data) {
		case "begin", "topic":
			s.topic = state.DefaultTopic
		default:
			s.coll.warnf(src, "unknown label close %q", l.data)
		}

	case '+':
		s.flush()
		text, weight := extractWeight(l.data)
		s.trig = &types.TriggerDef{
			Pattern:     triggerText(text),
			Weight:      weight,
			SourceOrder: s.coll.nextSourceOrder(),
			Source:      src,
		}

	case '-':
		if s.trig == nil {
			s.coll.errorf(src, "reply without a trigger")
			return
		}
		text, weight := extractWeight(l.data)
		s.trig.Replies = append(s.trig.Replies, types.ReplyDef{Text: text, Weight: max(weight, 1)})

	case '%':
		if s.trig == nil {
			s.coll.errorf(src, "previous without a trigger")
			return
		}
		s.trig.Previous = triggerText(l.data)

	case '@':
		if s.trig == nil {
			s.coll.errorf(src, "redirect without a trigger")
			return
		}
		s.trig.Redirect = l.data

	case '*':
		if s.trig == nil {
			s.coll.errorf(src, "condition without a trigger")
			return
		}
		cond, err := parseCondition(l.data)
		if err != nil {
			s.coll.errorf(src, "%v", err)
			return
		}
		s.trig.Conditions = append(s.trig.Conditions, cond)

	case '&':
		s.coll.warnf(src, "perl evaluation is not supported, line ignored")

	default:
		s.coll.warnf(src, "unknown command %q", string(l.cmd))
	}
}

// flush files the pending trigger under the current topic.
func (s *script) flush() {
	if s.trig == nil {
		return
	}
	t := s.coll.topic(s.topic)
	t.Triggers = append(t.Triggers, *s.trig)
	s.trig = nil
}

// define handles "! type name = value".
func (s *script) define(src, data string) {
	kind, rest, _ := strings.Cut(data, " ")
	name, value, found := strings.Cut(rest, "=")
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)

	switch kind {
	case "version":
		return
	case "global", "var", "array", "sub", "person", "post":
		if !found || name == "" {
			s.coll.errorf(src, "expected \"! %s name = value\"", kind)
			return
		}
	default:
		s.coll.warnf(src, "unsupported definition %q ignored", kind)
		return
	}

	undef := value == state.Unset
	switch kind {
	case "global":
		setOrDelete(s.coll.globals, name, value, undef)
	case "var":
		setOrDelete(s.coll.botVars, name, value, undef)
	case "array":
		name = strings.ToLower(name)
		if undef {
			delete(s.coll.arrays, name)
			return
		}
		s.coll.arrays[name] = splitArray(value)
	case "sub":
		s.coll.subs = append(s.coll.subs, types.SubstEntry{From: name, To: value})
	case "person":
		s.coll.person = append(s.coll.person, types.SubstEntry{From: name, To: value})
	case "post":
		s.coll.post = append(s.coll.post, types.SubstEntry{From: name, To: value})
	}
}

func setOrDelete(m map[string]string, name, value string, undef bool) {
	if undef {
		delete(m, name)
		return
	}
	m[name] = value
}

// splitArray splits on "|" when present, so items may contain spaces,
// otherwise on whitespace.
func splitArray(value string) []string {
	var items []string
	if strings.Contains(value, "|") {
		for _, it := range strings.Split(value, "|") {
			if it = strings.TrimSpace(it); it != "" {
				items = append(items, it)
			}
		}
		return items
	}
	return strings.Fields(value)
}

// label handles "> begin", "> topic name [includes ...] [inherits ...]".
func (s *script) label(src, data string) {
	fields := strings.Fields(data)
	if len(fields) == 0 {
		s.coll.errorf(src, "empty label")
		return
	}
	switch fields[0] {
	case "begin":
		s.topic = state.BeginTopic
		s.coll.topic(state.BeginTopic)

	case "topic":
		if len(fields) < 2 {
			s.coll.errorf(src, "topic without a name")
			return
		}
		s.topic = strings.ToLower(fields[1])
		t := s.coll.topic(s.topic)
		var list *[]string
		for _, f := range fields[2:] {
			switch f {
			case "includes":
				list = &t.Includes
			case "inherits":
				list = &t.Inherits
			default:
				if list == nil {
					s.coll.errorf(src, "unexpected %q after topic name", f)
					return
				}
				*list = append(*list, strings.ToLower(f))
			}
		}

	default:
		s.coll.warnf(src, "unknown label %q", fields[0])
	}
}

// object reads "> object name [language]" up to "< object" and returns the
// index of the closing line.
func (s *script) object(raw []string, start int) int {
	src := s.source(start + 1)
	fields := strings.Fields(strings.TrimSpace(strings.TrimSpace(raw[start])[1:]))
	if len(fields) < 2 {
		s.coll.errorf(src, "object without a name")
	}
	lang := "perl"
	if len(fields) > 2 {
		lang = strings.ToLower(fields[2])
	}

	var body []string
	for i := start + 1; i < len(raw); i++ {
		if strings.TrimSpace(raw[i]) == "< object" {
			if len(fields) >= 2 {
				s.coll.objects = append(s.coll.objects, types.ObjectDef{
					Name:     fields[1],
					Language: lang,
					Code:     strings.Join(body, "\n"),
					Source:   src,
				})
			}
			return i
		}
		body = append(body, raw[i])
	}
	s.coll.errorf(src, "object %s is missing \"< object\"", strings.Join(fields[1:], " "))
	return len(raw)
}

// extractWeight removes a "{weight=N}" tag and returns N (0 when absent).
func extractWeight(text string) (string, int) {
	start := strings.Index(text, "{weight=")
	if start < 0 {
		return strings.TrimSpace(text), 0
	}
	end := strings.Index(text[start:], "}")
	if end < 0 {
		return strings.TrimSpace(text), 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(text[start+len("{weight=") : start+end]))
	if err != nil {
		n = 0
	}
	return strings.TrimSpace(text[:start] + text[start+end+1:]), n
}

// triggerText lowercases a trigger, turns "\s" into a space and collapses
// whitespace.
func triggerText(text string) string {
	text = strings.ReplaceAll(text, `\s`, " ")
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// condOps are tried in order at every position, longest first.
var condOps = []string{"==", "!=", "<>", "<=", ">=", "<", ">", "=", "?", " eq ", " ne "}

// parseCondition reads "left op right => reply". A bare name on the left
// means <get name>; "#name" means <bot name>.
func parseCondition(data string) (types.ConditionDef, error) {
	expr, reply, found := strings.Cut(data, "=>")
	if !found {
		return types.ConditionDef{}, fmt.Errorf("condition %q has no \"=>\"", data)
	}

	i, op := findOp(expr)
	if i < 0 {
		return types.ConditionDef{}, fmt.Errorf("condition %q has no operator", data)
	}
	left := strings.TrimSpace(expr[:i])
	right := strings.TrimSpace(expr[i+len(op):])
	op = strings.TrimSpace(op)
	if left == "" {
		return types.ConditionDef{}, fmt.Errorf("condition %q has no left side", data)
	}
	if op == "?" && right != "" {
		return types.ConditionDef{}, fmt.Errorf("condition %q: \"?\" takes no right side", data)
	}
	return types.ConditionDef{
		Left:  legacyOperand(left),
		Op:    op,
		Right: right,
		Reply: strings.TrimSpace(reply),
	}, nil
}

// findOp returns the position of the first operator outside of tags.
func findOp(expr string) (int, string) {
	for i := 0; i < len(expr); i++ {
		if expr[i] == '<' && i+1 < len(expr) && isTagStart(expr[i+1]) {
			if end := strings.IndexByte(expr[i:], '>'); end > 0 {
				i += end
				continue
			}
		}
		for _, op := range condOps {
			if strings.HasPrefix(expr[i:], op) {
				return i, op
			}
		}
	}
	return -1, ""
}

func isTagStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '@'
}

func legacyOperand(s string) string {
	if strings.ContainsAny(s, "<>{} ") {
		return s
	}
	if name, ok := strings.CutPrefix(s, "#"); ok && isIdent(name) {
		return "<bot " + name + ">"
	}
	if isIdent(s) {
		return "<get " + s + ">"
	}
	return s
}

func isIdent(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return s != ""
}
