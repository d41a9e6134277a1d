// Package save implements JSON serialization and deserialization of sessions.
package save

import (
	"encoding/json"
	"fmt"

	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

// Version is written into every snapshot.
const Version = "1"

// SaveData is the JSON-serializable session format.
type SaveData struct {
	Version   string            `json:"version"`
	User      string            `json:"user"`
	Turn      int               `json:"turn"`
	Topic     string            `json:"topic"`
	Vars      map[string]string `json:"vars"`
	BotVars   map[string]string `json:"bot_vars,omitempty"`
	Globals   map[string]string `json:"globals,omitempty"`
	Inputs    []string          `json:"inputs"`
	Replies   []string          `json:"replies"`
	LastMatch string            `json:"last_match,omitempty"`
}

// Save serializes a session to JSON bytes.
func Save(s *types.Session) ([]byte, error) {
	data := SaveData{
		Version:   Version,
		User:      s.UserID,
		Turn:      s.TurnCount,
		Topic:     s.Topic,
		Vars:      s.Vars,
		BotVars:   s.BotVars,
		Globals:   s.Globals,
		Inputs:    s.Inputs,
		Replies:   s.Replies,
		LastMatch: s.LastMatch,
	}
	return json.MarshalIndent(data, "", "  ")
}

// Load deserializes JSON bytes into SaveData.
func Load(data []byte) (*SaveData, error) {
	var sd SaveData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, err
	}
	if sd.Version != "" && sd.Version != Version {
		return nil, fmt.Errorf("unsupported save version %q", sd.Version)
	}
	return &sd, nil
}

// ApplySave applies loaded save data onto a session. The user id of the
// session is kept.
func ApplySave(s *types.Session, sd *SaveData) {
	s.Vars = sd.Vars
	s.BotVars = sd.BotVars
	s.Globals = sd.Globals
	s.Topic = sd.Topic
	s.Inputs = sd.Inputs
	s.Replies = sd.Replies
	s.LastMatch = sd.LastMatch
	s.TurnCount = sd.Turn
	state.Ensure(s)
}

// Decode builds a session from a snapshot.
func Decode(data []byte) (*types.Session, error) {
	sd, err := Load(data)
	if err != nil {
		return nil, err
	}
	s := state.NewSession(sd.User)
	ApplySave(s, sd)
	return s, nil
}
