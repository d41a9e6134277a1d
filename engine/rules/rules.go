package rules

import (
	"github.com/nathoo/rivecore/engine/topics"
	"github.com/nathoo/rivecore/types"
)

// Random picks an index by weight.
type Random interface {
	WeightedSelect(weights []int) int
}

// Find runs the matching pipeline for one input and returns the winning
// trigger. Layers are already ranked by the topic graph. lastReply holds
// the forms of the previous bot reply, see MatchTrigger.
func Find(g *topics.Graph, topic, input string, lastReply ...string) (Match, bool) {
	// Step 1: Collect candidate layers (own + included, then inherited).
	layers := g.Layers(topic)

	for _, layer := range layers {
		// Step 2: Triggers bound to the previous reply go first.
		if m, ok := scan(layer, input, lastReply, true); ok {
			return m, true
		}
		// Step 3: Then everything else, in rank order.
		if m, ok := scan(layer, input, lastReply, false); ok {
			return m, true
		}
	}

	// No trigger matched. The caller supplies the fallback.
	return Match{}, false
}

func scan(layer []*topics.Trigger, input string, lastReply []string, withPrevious bool) (Match, bool) {
	for _, t := range layer {
		if (t.Previous != nil) != withPrevious {
			continue
		}
		if m, ok := MatchTrigger(t, input, lastReply...); ok {
			return m, true
		}
	}
	return Match{}, false
}

// PickReply selects one reply template by weight. Weights below 1 count
// as 1.
func PickReply(replies []types.ReplyDef, rnd Random) (string, bool) {
	switch len(replies) {
	case 0:
		return "", false
	case 1:
		return replies[0].Text, true
	}
	weights := make([]int, len(replies))
	for i, r := range replies {
		weights[i] = max(r.Weight, 1)
	}
	return replies[rnd.WeightedSelect(weights)].Text, true
}
