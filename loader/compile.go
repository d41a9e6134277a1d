package loader

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/types"
)

// getString returns a string field from a Lua table, or "" if missing.
func getString(tbl *lua.LTable, key string) string {
	v := tbl.RawGetString(key)
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

// getInt returns an int field from a Lua table, or 0 if missing.
func getInt(tbl *lua.LTable, key string) int {
	if n, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return int(n)
	}
	return 0
}

// getTable returns a table field from a Lua table, or nil if missing.
func getTable(tbl *lua.LTable, key string) *lua.LTable {
	if t, ok := tbl.RawGetString(key).(*lua.LTable); ok {
		return t
	}
	return nil
}

// tableStrings returns the array part of a table as strings.
func tableStrings(tbl *lua.LTable) []string {
	if tbl == nil {
		return nil
	}
	var out []string
	for i := 1; i <= tbl.MaxN(); i++ {
		if v := tbl.RawGetInt(i); v != lua.LNil {
			out = append(out, v.String())
		}
	}
	return out
}

func substEntry(L *lua.LState) types.SubstEntry {
	return types.SubstEntry{From: L.CheckString(1), To: L.CheckString(2)}
}

func objectDef(name, lang, code, source string) types.ObjectDef {
	return types.ObjectDef{Name: name, Language: strings.ToLower(lang), Code: code, Source: source}
}

// compile converts everything collected into a RuleSet.
func compile(coll *collector) (*types.RuleSet, error) {
	// Lua topics first so their inherits/includes exist before triggers land.
	for _, raw := range coll.luaTopics {
		t := coll.topic(raw.name)
		for _, name := range tableStrings(getTable(raw.table, "inherits")) {
			t.Inherits = append(t.Inherits, strings.ToLower(name))
		}
		for _, name := range tableStrings(getTable(raw.table, "includes")) {
			t.Includes = append(t.Includes, strings.ToLower(name))
		}
	}
	for _, raw := range coll.luaTriggers {
		def, err := compileTrigger(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", raw.source, err)
		}
		topic := raw.topic
		if topic == "" {
			topic = state.DefaultTopic
		}
		t := coll.topic(topic)
		t.Triggers = append(t.Triggers, def)
	}

	rs := &types.RuleSet{
		Globals: coll.globals,
		BotVars: coll.botVars,
		Arrays:  coll.arrays,
		Subs:    coll.subs,
		Person:  coll.person,
		Post:    coll.post,
		Objects: coll.objects,
	}
	for _, name := range coll.names {
		rs.Topics = append(rs.Topics, *coll.topics[name])
	}
	return rs, nil
}

// compileTrigger converts a Trigger{} table into a TriggerDef.
func compileTrigger(raw rawTrigger) (types.TriggerDef, error) {
	tbl := raw.table
	pattern := getString(tbl, "pattern")
	if s, ok := tbl.RawGetInt(1).(lua.LString); ok {
		pattern = string(s)
	}
	if pattern == "" {
		return types.TriggerDef{}, fmt.Errorf("trigger has no pattern")
	}

	def := types.TriggerDef{
		Pattern:     triggerText(pattern),
		Previous:    triggerText(getString(tbl, "previous")),
		Redirect:    getString(tbl, "redirect"),
		Weight:      getInt(tbl, "weight"),
		SourceOrder: raw.order,
		Source:      raw.source,
	}

	replies, err := compileReplies(tbl.RawGetString("reply"))
	if err != nil {
		return def, err
	}
	def.Replies = replies

	if conds := getTable(tbl, "conditions"); conds != nil {
		for i := 1; i <= conds.MaxN(); i++ {
			c, ok := conds.RawGetInt(i).(*lua.LTable)
			if !ok {
				return def, fmt.Errorf("condition %d is not a table", i)
			}
			def.Conditions = append(def.Conditions, types.ConditionDef{
				Left:  getString(c, "left"),
				Op:    getString(c, "op"),
				Right: getString(c, "right"),
				Reply: getString(c, "reply"),
			})
		}
	}
	return def, nil
}

// compileReplies accepts "text", {"a", "b"} or {"a", Weighted("b", 3)}.
func compileReplies(v lua.LValue) ([]types.ReplyDef, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LString:
		return []types.ReplyDef{{Text: string(val), Weight: 1}}, nil
	case *lua.LTable:
		var out []types.ReplyDef
		for i := 1; i <= val.MaxN(); i++ {
			switch item := val.RawGetInt(i).(type) {
			case lua.LString:
				out = append(out, types.ReplyDef{Text: string(item), Weight: 1})
			case *lua.LTable:
				out = append(out, types.ReplyDef{Text: getString(item, "text"), Weight: max(getInt(item, "weight"), 1)})
			default:
				return nil, fmt.Errorf("reply %d must be a string or Weighted(...)", i)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("reply must be a string or a table, got %s", v.Type())
	}
}
