package macro

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// LuaHandler runs a "> object name lua" body. The body is compiled once;
// every call gets a fresh sandboxed VM and receives
// (method, args, vars, user) as "...".
type LuaHandler struct {
	name  string
	proto *lua.FunctionProto
}

// NewLua compiles a Lua macro body.
func NewLua(name, code string) (*LuaHandler, error) {
	chunk, err := parse.Parse(strings.NewReader(code), name)
	if err != nil {
		return nil, fmt.Errorf("parsing lua: %w", err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compiling lua: %w", err)
	}
	return &LuaHandler{name: name, proto: proto}, nil
}

func (h *LuaHandler) Invoke(ctx context.Context, call Call) (string, error) {
	L := NewSandbox()
	defer L.Close()
	L.SetContext(ctx)

	args := L.NewTable()
	for _, a := range strings.Fields(call.Args) {
		args.Append(lua.LString(a))
	}
	vars := L.NewTable()
	for k, v := range call.Vars {
		vars.RawSetString(k, lua.LString(v))
	}

	fn := L.NewFunctionFromProto(h.proto)
	err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
		lua.LString(call.Method), args, vars, lua.LString(call.UserID))
	if err != nil {
		return "", err
	}
	ret := L.Get(-1)
	L.Pop(1)
	if ret == lua.LNil {
		return "", nil
	}
	return lua.LVAsString(ret), nil
}

// NewSandbox returns a Lua VM with only the safe standard libraries and
// without the globals that reach outside the VM. The caller closes it.
func NewSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(L)
	sandbox(L)
	return L
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	// Base library (print, type, tostring, tonumber, pairs, ipairs, etc.)
	lua.OpenBase(L)
	// Table library (table.insert, table.concat, etc.)
	lua.OpenTable(L)
	// String library (string.format, string.upper, etc.)
	lua.OpenString(L)
	// Math library (math.floor, math.max, etc.)
	lua.OpenMath(L)
}

// sandbox removes globals that reach outside the VM.
func sandbox(L *lua.LState) {
	dangerous := []string{
		"dofile", "loadfile", "load", "loadstring", "require", "module",
		"rawset", "rawget", "rawequal",
		"collectgarbage", "print",
	}
	for _, name := range dangerous {
		L.SetGlobal(name, lua.LNil)
	}

	// Remove math.randomseed to preserve determinism.
	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		tbl.RawSetString("randomseed", lua.LNil)
	}
}
