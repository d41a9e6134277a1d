package loader

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/rivecore/engine/macro"
	"github.com/nathoo/rivecore/engine/state"
)

// rawTrigger holds a Trigger{} table before compilation. topic is filled
// in when a Topic or Begin block claims the trigger.
type rawTrigger struct {
	table  *lua.LTable
	topic  string
	order  int
	source string
}

// rawTopic holds a Topic "name" {} table before compilation.
type rawTopic struct {
	name   string
	table  *lua.LTable
	source string
}

// runLua executes one .lua rule file in a sandboxed VM.
func runLua(coll *collector, path string) error {
	L := macro.NewSandbox()
	defer L.Close()
	registerAPI(L, coll)
	return L.DoFile(path)
}

// registerAPI registers all Lua constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	registerDefinitions(L, coll)
	registerConstructors(L, coll)
	registerHelpers(L)
}

// where reports the current Lua source position as "file:line".
func where(L *lua.LState) string {
	return strings.TrimSuffix(L.Where(1), ":")
}

func registerDefinitions(L *lua.LState, coll *collector) {
	// Global("name", value), Var("name", value)
	L.SetGlobal("Global", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		value := L.CheckAny(2).String()
		setOrDelete(coll.globals, name, value, value == state.Unset)
		return 0
	}))
	L.SetGlobal("Var", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		value := L.CheckAny(2).String()
		setOrDelete(coll.botVars, name, value, value == state.Unset)
		return 0
	}))

	// Array("name", {"a", "b"}) or Array("name", nil) to remove it.
	L.SetGlobal("Array", L.NewFunction(func(L *lua.LState) int {
		name := strings.ToLower(L.CheckString(1))
		tbl, ok := L.Get(2).(*lua.LTable)
		if !ok {
			delete(coll.arrays, name)
			return 0
		}
		coll.arrays[name] = tableStrings(tbl)
		return 0
	}))

	// Sub("from", "to"), Person("from", "to"), Post("from", "to")
	L.SetGlobal("Sub", L.NewFunction(func(L *lua.LState) int {
		coll.subs = append(coll.subs, substEntry(L))
		return 0
	}))
	L.SetGlobal("Person", L.NewFunction(func(L *lua.LState) int {
		coll.person = append(coll.person, substEntry(L))
		return 0
	}))
	L.SetGlobal("Post", L.NewFunction(func(L *lua.LState) int {
		coll.post = append(coll.post, substEntry(L))
		return 0
	}))

	// Object("name", "language", code)
	L.SetGlobal("Object", L.NewFunction(func(L *lua.LState) int {
		coll.objects = append(coll.objects, objectDef(L.CheckString(1), L.CheckString(2), L.CheckString(3), where(L)))
		return 0
	}))
}

func registerConstructors(L *lua.LState, coll *collector) {
	// Trigger { "pattern", reply = ..., previous = ..., redirect = ...,
	// conditions = {...}, weight = N }. Unclaimed triggers go to "random".
	// Returns a marker table so Topic and Begin can claim it.
	L.SetGlobal("Trigger", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.luaTriggers = append(coll.luaTriggers, rawTrigger{
			table:  tbl,
			order:  coll.nextSourceOrder(),
			source: where(L),
		})
		marker := L.NewTable()
		marker.RawSetString("__trigger", lua.LNumber(len(coll.luaTriggers)-1))
		L.Push(marker)
		return 1
	}))

	// Topic "name" { inherits = {...}, includes = {...}, Trigger{...}, ... }
	// Topic("name") is curried and returns a function that takes the table.
	L.SetGlobal("Topic", L.NewFunction(func(L *lua.LState) int {
		name := strings.ToLower(L.CheckString(1))
		source := where(L)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			coll.luaTopics = append(coll.luaTopics, rawTopic{name: name, table: tbl, source: source})
			claim(coll, tbl, name)
			return 0
		}))
		return 1
	}))

	// Begin { Trigger{"request", ...}, ... }
	L.SetGlobal("Begin", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.luaTopics = append(coll.luaTopics, rawTopic{name: state.BeginTopic, table: tbl, source: where(L)})
		claim(coll, tbl, state.BeginTopic)
		return 0
	}))
}

// claim moves the triggers listed in a topic table into that topic.
func claim(coll *collector, tbl *lua.LTable, topic string) {
	for i := 1; i <= tbl.MaxN(); i++ {
		marker, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			continue
		}
		if n, ok := marker.RawGetString("__trigger").(lua.LNumber); ok {
			if idx := int(n); idx >= 0 && idx < len(coll.luaTriggers) {
				coll.luaTriggers[idx].topic = topic
			}
		}
	}
}

func registerHelpers(L *lua.LState) {
	// Weighted("text", weight)
	L.SetGlobal("Weighted", L.NewFunction(func(L *lua.LState) int {
		tbl := L.NewTable()
		tbl.RawSetString("text", lua.LString(L.CheckString(1)))
		tbl.RawSetString("weight", L.CheckNumber(2))
		L.Push(tbl)
		return 1
	}))

	// Cond("left", "op", "right", "reply")
	L.SetGlobal("Cond", L.NewFunction(func(L *lua.LState) int {
		tbl := L.NewTable()
		tbl.RawSetString("left", lua.LString(L.CheckString(1)))
		tbl.RawSetString("op", lua.LString(L.CheckString(2)))
		tbl.RawSetString("right", lua.LString(L.OptString(3, "")))
		tbl.RawSetString("reply", lua.LString(L.CheckString(4)))
		L.Push(tbl)
		return 1
	}))
}
