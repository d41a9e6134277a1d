// Package state holds the compiled brain shared by every session and the
// helpers that read and write a session's variables and history.
package state

import (
	"strings"

	"github.com/nathoo/rivecore/types"
)

const (
	// DefaultTopic is the topic every new session starts in.
	DefaultTopic = "random"
	// BeginTopic holds the triggers of the "> begin" block.
	BeginTopic = "__begin__"
	// Undefined is the text rendered for a variable that was never set.
	Undefined = "undefined"
	// Unset is the value that deletes a variable when assigned.
	Unset = "undef"
	// DefaultHistory is the number of inputs and replies kept per session.
	DefaultHistory = 9
)

// NewSession creates a fresh session for a user.
func NewSession(userID string) *types.Session {
	return &types.Session{
		UserID:  userID,
		Vars:    map[string]string{},
		BotVars: map[string]string{},
		Globals: map[string]string{},
		Topic:   DefaultTopic,
		Inputs:  []string{},
		Replies: []string{},
	}
}

// Ensure fills in anything a decoded session may be missing.
func Ensure(s *types.Session) {
	if s.Vars == nil {
		s.Vars = map[string]string{}
	}
	if s.BotVars == nil {
		s.BotVars = map[string]string{}
	}
	if s.Globals == nil {
		s.Globals = map[string]string{}
	}
	if s.Topic == "" {
		s.Topic = DefaultTopic
	}
	if s.Inputs == nil {
		s.Inputs = []string{}
	}
	if s.Replies == nil {
		s.Replies = []string{}
	}
}

// GetVar returns a user variable and whether it is defined.
func GetVar(s *types.Session, name string) (string, bool) {
	v, ok := s.Vars[name]
	return v, ok
}

// SetVar sets a user variable. Assigning "undef" removes it.
func SetVar(s *types.Session, name, value string) {
	assign(s.Vars, name, value)
}

// SetBotVar records a bot variable override for this session only.
func SetBotVar(s *types.Session, name, value string) {
	assign(s.BotVars, name, value)
}

// SetGlobal records a global override for this session only.
func SetGlobal(s *types.Session, name, value string) {
	assign(s.Globals, name, value)
}

func assign(m map[string]string, name, value string) {
	if strings.TrimSpace(value) == Unset {
		delete(m, name)
		return
	}
	m[name] = value
}

// Vars returns a copy of the user variables.
func Vars(s *types.Session) map[string]string {
	out := make(map[string]string, len(s.Vars))
	for k, v := range s.Vars {
		out[k] = v
	}
	return out
}

// Remember pushes the turn onto the history, keeping at most size entries.
func Remember(s *types.Session, input, reply string, size int) {
	if size < 1 {
		size = DefaultHistory
	}
	s.Inputs = push(s.Inputs, input, size)
	s.Replies = push(s.Replies, reply, size)
}

func push(list []string, item string, size int) []string {
	list = append([]string{item}, list...)
	if len(list) > size {
		list = list[:size]
	}
	return list
}

// Input returns the n-th most recent input (1-based).
func Input(s *types.Session, n int) string {
	return nth(s.Inputs, n)
}

// Reply returns the n-th most recent reply (1-based).
func Reply(s *types.Session, n int) string {
	return nth(s.Replies, n)
}

// LastReply returns the most recent bot reply, or "" before the first turn.
func LastReply(s *types.Session) string {
	if len(s.Replies) == 0 {
		return ""
	}
	return s.Replies[0]
}

func nth(list []string, n int) string {
	if n < 1 || n > len(list) {
		return Undefined
	}
	return list[n-1]
}

// SetTopic moves the session to a topic.
func SetTopic(s *types.Session, topic string) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		topic = DefaultTopic
	}
	s.Topic = topic
}

// Reset clears everything but the user id.
func Reset(s *types.Session) {
	*s = *NewSession(s.UserID)
}
