package rules

import (
	"github.com/nathoo/rivecore/engine/topics"
)

// Match is a trigger aligned with the input.
type Match struct {
	Trigger  *topics.Trigger
	Stars    []string // input captures
	BotStars []string // previous-reply captures
}

// MatchTrigger checks one trigger against the normalized input and the
// forms of the last bot reply (normalized as said, and after
// pre-substitution). A previous-reply pattern may match any form, tried in
// order. Such a trigger never matches before the bot has said anything.
func MatchTrigger(t *topics.Trigger, input string, lastReply ...string) (Match, bool) {
	var botStars []string
	if t.Previous != nil {
		caps, ok := matchPrevious(t, lastReply)
		if !ok {
			return Match{}, false
		}
		botStars = caps
	}

	stars, ok := t.Pattern.Match(input)
	if !ok {
		return Match{}, false
	}
	return Match{Trigger: t, Stars: stars, BotStars: botStars}, true
}

func matchPrevious(t *topics.Trigger, forms []string) ([]string, bool) {
	for i, form := range forms {
		if form == "" || (i > 0 && form == forms[i-1]) {
			continue
		}
		if caps, ok := t.Previous.Match(form); ok {
			return caps, true
		}
	}
	return nil, false
}
