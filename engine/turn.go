package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/engine/parser"
	"github.com/nathoo/rivecore/engine/rules"
	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/engine/tags"
	"github.com/nathoo/rivecore/types"
)

// turn carries the per-turn state: the redirect budget, the collected
// errors and what matched.
type turn struct {
	ctx       context.Context
	e         *Engine
	s         *types.Session
	budget    int
	lastReply []string // previous bot reply: normalized, then pre-substituted
	input     string   // normalized input, for the history
	trigger   string
	matched   bool
	errs      []error
}

func newTurn(ctx context.Context, e *Engine, s *types.Session) *turn {
	last := state.LastReply(s)
	return &turn{
		ctx:       ctx,
		e:         e,
		s:         s,
		budget:    e.Config.Depth,
		lastReply: []string{parser.Normalize(last), parser.Parse(last, e.Brain.Pre)},
	}
}

func (t *turn) report(err error) {
	t.errs = append(t.errs, err)
	t.e.report(t.s.UserID, err)
}

func (t *turn) result(chunks []string) types.TurnResult {
	return types.TurnResult{
		ReplyChunks: chunks,
		Errors:      t.errs,
		Topic:       t.s.Topic,
		Trigger:     t.trigger,
		Matched:     t.matched,
	}
}

// run answers the raw input, wrapping it in the begin block when the
// rule set has one.
func (t *turn) run(raw string) (string, error) {
	if err := t.ctx.Err(); err != nil {
		return "", err
	}
	if !t.e.Brain.HasBegin() {
		return t.answer(raw)
	}

	// 1. Ask the begin block for "request".
	begin, matched, err := t.respond(state.BeginTopic, "request", true)
	if err != nil {
		if !t.tolerate(err) {
			return "", err
		}
		matched = false
	}
	if !matched {
		return t.answer(raw)
	}

	// 2. Without {ok} the begin reply is the whole answer.
	if !strings.Contains(begin, "{ok}") {
		t.input = parser.Parse(raw, t.e.Brain.Pre)
		return begin, nil
	}

	// 3. Otherwise the real reply replaces {ok}.
	reply, err := t.answer(raw)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(begin, "{ok}", reply), nil
}

// answer replies to every sentence of the input in order.
func (t *turn) answer(raw string) (string, error) {
	var sentences []string
	if t.e.Config.SplitSentences {
		sentences = parser.Sentences(raw, t.e.Brain.Pre, t.e.Config.SentenceSplitters)
	} else if msg := parser.Parse(raw, t.e.Brain.Pre); msg != "" {
		sentences = []string{msg}
	}
	t.input = strings.Join(sentences, " ")
	if len(sentences) == 0 {
		sentences = []string{""}
	}

	var replies []string
	for _, msg := range sentences {
		reply, matched, err := t.respond(t.s.Topic, msg, false)
		if err != nil {
			if !t.tolerate(err) {
				return "", err
			}
			reply = t.e.Config.Replies.Recursion
		} else if !matched {
			t.report(&errs.NoMatchError{Input: msg, Topic: t.s.Topic})
			reply = t.e.Config.Replies.NoMatch
		}
		if reply = strings.TrimSpace(reply); reply != "" {
			replies = append(replies, reply)
		}
	}
	return strings.Join(replies, " "), nil
}

// tolerate records a recursion error and reports whether the turn can
// carry on.
func (t *turn) tolerate(err error) bool {
	var re *errs.RecursionLimitError
	if errors.As(err, &re) {
		t.report(err)
		return true
	}
	return false
}

// respond finds the trigger for msg in topic and renders its reply. The
// first trigger matched at the top level is what the turn reports.
func (t *turn) respond(topic, msg string, begin bool) (string, bool, error) {
	m, ok := rules.Find(t.e.Brain.Topics, topic, msg, t.lastReply...)
	if !ok {
		return "", false, nil
	}
	if !begin && !t.matched {
		t.matched = true
		t.trigger = m.Trigger.Source
	}

	p := t.processor(m, begin)

	// 1. Redirects replace the trigger's own replies.
	if m.Trigger.Redirect != "" {
		target, err := p.Render(m.Trigger.Redirect)
		if err != nil {
			return "", true, err
		}
		reply, err := t.redirect(target, begin)
		return reply, true, err
	}

	// 2. The first condition that holds wins.
	if len(m.Trigger.Conditions) > 0 {
		idx, err := rules.FirstTrue(m.Trigger.Conditions, p)
		if err != nil {
			return "", true, err
		}
		if idx >= 0 {
			reply, err := p.Render(m.Trigger.Conditions[idx].Reply)
			return reply, true, err
		}
	}

	// 3. Otherwise a weighted pick among the replies.
	tmpl, ok := rules.PickReply(m.Trigger.Replies, t.e.RNG)
	if !ok {
		return t.e.Config.Replies.NoReply, true, nil
	}
	reply, err := p.Render(tmpl)
	return reply, true, err
}

// redirect answers target as if the user had typed it, spending one unit
// of the turn's budget.
func (t *turn) redirect(target string, begin bool) (string, error) {
	t.budget--
	if t.budget < 0 {
		return "", &errs.RecursionLimitError{Limit: t.e.Config.Depth, Input: target}
	}
	if err := t.ctx.Err(); err != nil {
		return "", err
	}

	msg := parser.Normalize(target)
	topic := t.s.Topic
	if begin {
		topic = state.BeginTopic
	}
	reply, matched, err := t.respond(topic, msg, begin)
	if err != nil {
		return "", err
	}
	if !matched {
		t.report(&errs.NoMatchError{Input: msg, Topic: topic})
		return t.e.Config.Replies.NoMatch, nil
	}
	return reply, nil
}

func (t *turn) processor(m rules.Match, begin bool) *tags.Processor {
	p := &tags.Processor{
		Ctx:      t.ctx,
		Session:  t.s,
		Brain:    t.e.Brain,
		Stars:    m.Stars,
		BotStars: m.BotStars,
		Random:   t.e.RNG,
		Macros:   t.e.Macros,
		Redirect: func(text string) (string, error) { return t.redirect(text, begin) },
		Report:   t.report,
	}
	if t.e.env != nil {
		p.Env = t.e.env.Env
	}
	if t.e.botVars != nil {
		p.BotVar = t.e.botVars.BotVar
	}
	return p
}

// splitChunks breaks a rendered reply on {nextreply} markers.
func splitChunks(reply string) []string {
	var chunks []string
	for _, c := range strings.Split(reply, tags.ChunkBreak) {
		if c = strings.TrimSpace(c); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

func joinChunks(chunks []string) string {
	return strings.Join(chunks, " ")
}
