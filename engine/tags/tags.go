// Package tags renders reply templates in a single left-to-right pass.
// Tag bodies and arguments are rendered before the enclosing tag is
// applied, so tags nest freely.
package tags

import (
	"context"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nathoo/rivecore/engine/effects"
	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/macro"
	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

// ChunkBreak separates the parts of a multi-part reply in rendered text.
const ChunkBreak = "\x1e"

// Random picks a uniform index in [0, n).
type Random interface {
	Intn(n int) int
}

// Macros dispatches object macro calls.
type Macros interface {
	Invoke(ctx context.Context, call macro.Call) (string, error)
}

// Lookup resolves a name supplied by the host.
type Lookup func(name string) (string, bool)

// Processor renders the templates of one matched trigger.
type Processor struct {
	Ctx      context.Context
	Session  *types.Session
	Brain    *state.Brain
	Stars    []string
	BotStars []string
	Random   Random
	Macros   Macros
	Env      Lookup // host environment
	BotVar   Lookup // host bot variables, consulted after the rule set
	Redirect func(text string) (string, error)
	Report   func(err error) // receives recoverable errors
}

// Render evaluates every tag in tmpl. The returned error is only non-nil
// when the turn must stop (recursion limit, cancelled context).
func (p *Processor) Render(tmpl string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); {
		n, out, err := p.step(tmpl, i)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
		i += n
	}
	return b.String(), nil
}

// step renders whatever starts at s[i] and reports how many bytes it used.
func (p *Processor) step(s string, i int) (int, string, error) {
	switch s[i] {
	case '\\':
		if i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				return 2, "\n", nil
			case 's':
				return 2, " ", nil
			case '\\', '#', '&', '@':
				return 2, s[i+1 : i+2], nil
			}
		}
	case '<':
		if n, out, ok, err := p.angle(s, i); ok || err != nil {
			return n, out, err
		}
	case '{':
		if n, out, ok, err := p.brace(s, i); ok || err != nil {
			return n, out, err
		}
	case '&':
		if n, out, ok, err := p.ampersand(s, i); ok || err != nil {
			return n, out, err
		}
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	return size, s[i : i+size], nil
}

func (p *Processor) fail(tag, reason string) {
	p.report(&errs.TagError{Tag: tag, Reason: reason})
}

func (p *Processor) report(err error) {
	if p.Report != nil {
		p.Report(err)
	}
}

// --- <angle> tags -------------------------------------------------------

var angleTags = map[string]bool{
	"star": true, "botstar": true, "input": true, "reply": true, "id": true,
	"get": true, "set": true, "add": true, "sub": true, "mult": true, "div": true,
	"bot": true, "env": true, "@": true, "call": true,
	"formal": true, "sentence": true, "uppercase": true, "lowercase": true, "person": true,
}

func (p *Processor) angle(s string, i int) (int, string, bool, error) {
	name := tagName(s[i+1:])
	base, index := splitIndex(name)
	if !angleTags[base] {
		return 0, "", false, nil
	}
	if base == "call" {
		return p.call(s, i)
	}
	end := closing(s, i, '<', '>')
	if end < 0 {
		p.fail(name, "unterminated tag")
		return 0, "", false, nil
	}
	arg := strings.TrimSpace(s[i+1+len(name) : end])
	out, err := p.angleTag(base, index, arg)
	return end + 1 - i, out, true, err
}

func (p *Processor) angleTag(name string, index int, arg string) (string, error) {
	switch name {
	case "star":
		return nth(p.Stars, index), nil
	case "botstar":
		return nth(p.BotStars, index), nil
	case "input":
		return state.Input(p.Session, index), nil
	case "reply":
		return state.Reply(p.Session, index), nil
	case "id":
		return p.Session.UserID, nil

	case "get":
		key, err := p.Render(arg)
		if err != nil {
			return "", err
		}
		if v, ok := state.GetVar(p.Session, strings.TrimSpace(key)); ok {
			return v, nil
		}
		return state.Undefined, nil

	case "set", "add", "sub", "mult", "div":
		return "", p.assign(name, name, arg)

	case "bot":
		if strings.Contains(arg, "=") {
			return "", p.assign("bot", "bot", arg)
		}
		key, err := p.Render(arg)
		if err != nil {
			return "", err
		}
		if v, ok := p.botVar(strings.TrimSpace(key)); ok {
			return v, nil
		}
		return state.Undefined, nil

	case "env":
		key, err := p.Render(arg)
		if err != nil {
			return "", err
		}
		if v, ok := p.env(strings.TrimSpace(key)); ok {
			return v, nil
		}
		return state.Undefined, nil

	case "@":
		return p.redirect(nth(p.Stars, 1))

	case "person":
		return p.Brain.Person.Apply(nth(p.Stars, 1)), nil

	default: // formal, sentence, uppercase, lowercase
		return transform(name, nth(p.Stars, 1)), nil
	}
}

// assign renders "name=value" and applies it as an effect.
func (p *Processor) assign(tag, effect, arg string) error {
	rendered, err := p.Render(arg)
	if err != nil {
		return err
	}
	key, value, found := strings.Cut(rendered, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		p.fail(tag, "expected name=value")
		return nil
	}
	if err := effects.Apply(p.Session, types.Effect{Type: effect, Name: key, Value: strings.TrimSpace(value)}); err != nil {
		p.report(err)
	}
	return nil
}

func (p *Processor) botVar(name string) (string, bool) {
	if v, ok := p.Session.BotVars[name]; ok {
		return v, true
	}
	if v, ok := p.Brain.BotVar(name); ok {
		return v, true
	}
	if p.BotVar != nil {
		if v, ok := p.BotVar(name); ok {
			return v, true
		}
	}
	if env, ok := strings.CutPrefix(name, "ENV_"); ok && p.Env != nil {
		return p.Env(env)
	}
	return "", false
}

func (p *Processor) env(name string) (string, bool) {
	if v, ok := p.Session.Globals[name]; ok {
		return v, true
	}
	if v, ok := p.Brain.Global(name); ok {
		return v, true
	}
	if p.Env != nil {
		return p.Env(name)
	}
	return "", false
}

// --- {brace} tags -------------------------------------------------------

var blockTags = []string{"random", "formal", "sentence", "uppercase", "lowercase", "person"}

func (p *Processor) brace(s string, i int) (int, string, bool, error) {
	rest := s[i+1:]
	switch {
	case strings.HasPrefix(rest, "ok}"):
		return 4, "{ok}", true, nil
	case strings.HasPrefix(rest, "nextreply}"):
		return len("{nextreply}"), ChunkBreak, true, nil
	}

	for _, name := range blockTags {
		if !strings.HasPrefix(rest, name+"}") {
			continue
		}
		bodyEnd, end := closeBlock(s, i, name)
		if end < 0 {
			p.fail(name, "missing {/"+name+"}")
			return 0, "", false, nil
		}
		body := s[i+len(name)+2 : bodyEnd]
		out, err := p.block(name, body)
		return end - i, out, true, err
	}

	var kind string
	switch {
	case strings.HasPrefix(rest, "@"):
		kind = "@"
	case strings.HasPrefix(rest, "topic="):
		kind = "topic="
	case strings.HasPrefix(rest, "weight="):
		kind = "weight="
	case strings.HasPrefix(rest, "!"):
		kind = "!"
	default:
		return 0, "", false, nil
	}
	end := closing(s, i, '{', '}')
	if end < 0 {
		p.fail(kind, "unterminated tag")
		return 0, "", false, nil
	}
	content := s[i+1+len(kind) : end]
	n := end + 1 - i

	switch kind {
	case "@":
		target, err := p.Render(content)
		if err != nil {
			return n, "", true, err
		}
		out, err := p.redirect(target)
		return n, out, true, err

	case "topic=":
		topic, err := p.Render(content)
		if err != nil {
			return n, "", true, err
		}
		if err := effects.Apply(p.Session, types.Effect{Type: "topic", Value: topic}); err != nil {
			p.report(err)
		}
		return n, "", true, nil

	case "weight=":
		return n, "", true, nil

	default:
		return n, "", true, p.define(content)
	}
}

func (p *Processor) block(name, body string) (string, error) {
	if name == "random" {
		return p.random(body)
	}
	out, err := p.Render(body)
	if err != nil {
		return "", err
	}
	if name == "person" {
		return p.Brain.Person.Apply(out), nil
	}
	return transform(name, out), nil
}

// random renders one alternative. Without "|" the body is split on spaces.
func (p *Processor) random(body string) (string, error) {
	alts := splitTop(body, '|')
	if len(alts) == 1 {
		alts = strings.Fields(body)
	}
	if len(alts) == 0 {
		return "", nil
	}
	pick := 0
	if p.Random != nil {
		pick = p.Random.Intn(len(alts))
	}
	return p.Render(alts[pick])
}

// define handles "{!var name = value}" and "{!global name = value}".
func (p *Processor) define(content string) error {
	content = strings.TrimSpace(content)
	kind, rest, _ := strings.Cut(content, " ")
	if kind != "var" && kind != "global" {
		p.fail("!"+kind, "unsupported inline definition")
		return nil
	}
	return p.assign("!"+kind, map[string]string{"var": "bot", "global": "global"}[kind], rest)
}

func (p *Processor) redirect(text string) (string, error) {
	text = strings.TrimSpace(text)
	if p.Redirect == nil {
		p.fail("@", "redirects are not available here")
		return "", nil
	}
	return p.Redirect(text)
}

// --- macros -------------------------------------------------------------

// ampersand handles "&name(args)" and "&name.method(args)".
func (p *Processor) ampersand(s string, i int) (int, string, bool, error) {
	j := i + 1
	name := identAt(s, j)
	if name == "" {
		return 0, "", false, nil
	}
	j += len(name)
	method := ""
	if j < len(s) && s[j] == '.' {
		method = identAt(s, j+1)
		if method == "" {
			return 0, "", false, nil
		}
		j += 1 + len(method)
	}
	if j >= len(s) || s[j] != '(' {
		return 0, "", false, nil
	}
	end := closing(s, j, '(', ')')
	if end < 0 {
		p.fail("&"+name, "unterminated macro call")
		return 0, "", false, nil
	}
	args, err := p.Render(s[j+1 : end])
	if err != nil {
		return 0, "", true, err
	}
	out, err := p.invoke(name, method, strings.TrimSpace(args))
	return end + 1 - i, out, true, err
}

// call handles "<call>name args</call>".
func (p *Processor) call(s string, i int) (int, string, bool, error) {
	const openTag, closeTag = "<call>", "</call>"
	if !strings.HasPrefix(s[i:], openTag) {
		return 0, "", false, nil
	}
	idx := strings.Index(s[i:], closeTag)
	if idx < 0 {
		p.fail("call", "missing </call>")
		return 0, "", false, nil
	}
	body, err := p.Render(s[i+len(openTag) : i+idx])
	if err != nil {
		return 0, "", true, err
	}
	n := idx + len(closeTag)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		p.fail("call", "missing macro name")
		return n, "", true, nil
	}
	out, err := p.invoke(fields[0], "", strings.Join(fields[1:], " "))
	return n, out, true, err
}

func (p *Processor) invoke(name, method, args string) (string, error) {
	call := macro.Call{
		Name:   name,
		Method: method,
		Args:   args,
		UserID: p.Session.UserID,
		Vars:   state.Vars(p.Session),
	}
	if p.Macros == nil {
		p.report(&errs.MacroError{Name: name, Method: method, Err: macro.ErrUnknown})
		return "", nil
	}
	out, err := p.Macros.Invoke(p.Ctx, call)
	if err != nil {
		p.report(err)
		if p.Ctx != nil && p.Ctx.Err() != nil {
			return "", p.Ctx.Err()
		}
		return "", nil
	}
	return out, nil
}

// --- operands -----------------------------------------------------------

// Operand resolves one side of a condition. A bare <get>, <bot> or <env>
// reports whether the variable is defined; anything else is rendered.
func (p *Processor) Operand(expr string) (string, bool, error) {
	expr = strings.TrimSpace(expr)
	if kind, name, ok := simpleLookup(expr); ok {
		var v string
		var defined bool
		switch kind {
		case "get":
			v, defined = state.GetVar(p.Session, name)
		case "bot":
			v, defined = p.botVar(name)
		case "env":
			v, defined = p.env(name)
		}
		if !defined {
			return state.Undefined, false, nil
		}
		return v, true, nil
	}
	out, err := p.Render(expr)
	return strings.TrimSpace(out), true, err
}

func simpleLookup(expr string) (kind, name string, ok bool) {
	if !strings.HasPrefix(expr, "<") || !strings.HasSuffix(expr, ">") {
		return "", "", false
	}
	inner := expr[1 : len(expr)-1]
	if strings.ContainsAny(inner, "<>{}=") {
		return "", "", false
	}
	fields := strings.Fields(inner)
	if len(fields) != 2 {
		return "", "", false
	}
	switch fields[0] {
	case "get", "bot", "env":
		return fields[0], fields[1], true
	}
	return "", "", false
}

// --- helpers ------------------------------------------------------------

func nth(list []string, n int) string {
	if n < 1 || n > len(list) {
		return state.Undefined
	}
	return list[n-1]
}

// tagName reads the name at the start of s: letters, digits and "@".
func tagName(s string) string {
	for i, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '@' {
			return s[:i]
		}
	}
	return s
}

// splitIndex splits "star12" into ("star", 12). Names without a numeric
// suffix get index 1.
func splitIndex(name string) (string, int) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) || i == 0 {
		return name, 1
	}
	n, err := strconv.Atoi(name[i:])
	if err != nil {
		return name, 1
	}
	return name[:i], n
}

func identAt(s string, i int) string {
	j := i
	for j < len(s) {
		c := s[j]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			break
		}
		j++
	}
	return s[i:j]
}

// closing returns the index of the delimiter that closes the one at s[i].
func closing(s string, i int, lo, hi byte) int {
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case lo:
			depth++
		case hi:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// closeBlock finds the "{/name}" matching the "{name}" at s[i]. It returns
// the offset where the body ends and the offset just past the closing tag.
func closeBlock(s string, i int, name string) (int, int) {
	openTag, closeTag := "{"+name+"}", "{/"+name+"}"
	depth := 0
	for j := i; j < len(s); {
		switch {
		case strings.HasPrefix(s[j:], openTag):
			depth++
			j += len(openTag)
		case strings.HasPrefix(s[j:], closeTag):
			depth--
			if depth == 0 {
				return j, j + len(closeTag)
			}
			j += len(closeTag)
		default:
			j++
		}
	}
	return -1, -1
}

// splitTop splits s on sep outside of nested <...> and {...}.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '{':
			depth++
		case '>', '}':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func transform(name, s string) string {
	switch name {
	case "formal":
		return formal(s)
	case "sentence":
		return sentence(s)
	case "uppercase":
		return strings.ToUpper(s)
	case "lowercase":
		return strings.ToLower(s)
	}
	return s
}

// formal capitalizes every word.
func formal(s string) string {
	var b strings.Builder
	start := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			start = true
			b.WriteRune(r)
			continue
		}
		if start {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		start = false
	}
	return b.String()
}

// sentence capitalizes the first letter and lowercases the rest.
func sentence(s string) string {
	s = strings.ToLower(s)
	for i, r := range s {
		if unicode.IsLetter(r) {
			return s[:i] + string(unicode.ToUpper(r)) + s[i+utf8.RuneLen(r):]
		}
	}
	return s
}
