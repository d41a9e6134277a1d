// Package types defines the shared data structures for the rivecore engine.
// This package contains only type definitions: no logic, no methods.
package types

// SubstEntry is one find/replace pair of a substitution table.
type SubstEntry struct {
	From string
	To   string
}

// ReplyDef is a reply template with its selection weight.
type ReplyDef struct {
	Text   string
	Weight int // default 1
}

// ConditionDef is one conditional branch: Left Op Right => Reply.
// Left and Right are tag expressions; Op "?" ignores Right.
type ConditionDef struct {
	Left  string
	Op    string // "eq", "ne", "<", "<=", ">", ">=", "?" (and aliases)
	Right string
	Reply string
}

// TriggerDef is a trigger as written in the rule source.
type TriggerDef struct {
	Pattern     string
	Previous    string // optional previous-reply pattern
	Redirect    string // optional @ redirect text
	Replies     []ReplyDef
	Conditions  []ConditionDef
	Weight      int
	SourceOrder int
	Source      string // "file:line"
}

// TopicDef groups triggers under a name.
type TopicDef struct {
	Name     string
	Inherits []string // first listed has the highest precedence
	Includes []string
	Triggers []TriggerDef
}

// ObjectDef is an object macro body in a given language.
type ObjectDef struct {
	Name     string
	Language string
	Code     string
	Source   string
}

// RuleSet is everything a loader produces for the brain compiler.
type RuleSet struct {
	Globals map[string]string
	BotVars map[string]string
	Arrays  map[string][]string
	Subs    []SubstEntry
	Person  []SubstEntry
	Post    []SubstEntry
	Topics  []TopicDef
	Objects []ObjectDef
}

// Effect is a single atomic session mutation produced by a tag.
type Effect struct {
	Type  string // "set", "add", "sub", "mult", "div", "bot", "global", "topic"
	Name  string
	Value string
}

// Session is the mutable conversation state of one user.
type Session struct {
	UserID    string
	Vars      map[string]string // absent key = undefined
	BotVars   map[string]string // per-session bot variable overrides
	Globals   map[string]string // per-session global overrides
	Topic     string
	Inputs    []string // most recent first
	Replies   []string // most recent first
	LastMatch string
	TurnCount int
}

// TurnResult is the output of a single turn.
type TurnResult struct {
	ReplyChunks []string
	Errors      []error
	Topic       string // topic after the turn
	Trigger     string // source of the matched trigger, empty when none
	Matched     bool
}
