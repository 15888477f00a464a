// Package sandbox provides a fresh, resource-bounded Lua VM per script
// execution, with a curated set of globals (§4.5). It never imports the
// manifest or SDK binding packages: callers hand it a table of already-bound
// SDK functions and get a VM they can Run a script string against.
package sandbox

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Config controls one execution's resource bounds (§4.5, §6).
type Config struct {
	Timeout       time.Duration
	MemoryLimitMB int
	MaxAPICalls   int
}

// blockedGlobals are base-library entries that reach file I/O, process
// execution, or dynamic code loading; OpenBase installs them, so they are
// deleted immediately after (§4.5 Blocked list).
var blockedGlobals = []string{
	"load", "loadstring", "loadfile", "dofile", "dostring",
	"require", "module", "collectgarbage",
}

// newState builds a fresh VM exposing exactly the globals §4.5 names:
// string/table/math (frozen), os.clock only, print (log-buffer only),
// json.encode/decode, and sdk (caller-supplied).
func newState(sdk map[string]lua.LGFunction, log func(string)) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	})

	lua.OpenBase(L)
	lua.OpenString(L)
	lua.OpenTable(L)
	lua.OpenMath(L)

	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	freeze(L, "string")
	freeze(L, "table")
	freeze(L, "math")

	L.SetGlobal("print", L.NewFunction(printFunc(log)))

	osTable := L.NewTable()
	start := time.Now()
	L.SetField(osTable, "clock", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Since(start).Seconds()))
		return 1
	}))
	L.SetGlobal("os", osTable)
	freeze(L, "os")

	jsonTable := L.NewTable()
	L.SetField(jsonTable, "encode", L.NewFunction(jsonEncode))
	L.SetField(jsonTable, "decode", L.NewFunction(jsonDecode))
	L.SetGlobal("json", jsonTable)
	freeze(L, "json")

	sdkTable := L.NewTable()
	for name, fn := range sdk {
		L.SetField(sdkTable, name, L.NewFunction(fn))
	}
	L.SetGlobal("sdk", sdkTable)
	freeze(L, "sdk")

	return L
}

// printFunc builds the print() implementation: arguments are coerced to
// text, space-joined, and appended to the log buffer. Never written to any
// OS stream (§4.5).
func printFunc(log func(string)) lua.LGFunction {
	return func(L *lua.LState) int {
		n := L.GetTop()
		if n == 0 {
			log("")
			return 0
		}
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		line := parts[0]
		for _, p := range parts[1:] {
			line += " " + p
		}
		log(line)
		return 0
	}
}

// freeze wraps the global table named name in a shadow table whose
// metatable rejects writes and hides itself from getmetatable,
// approximating Lua's read-only-table idiom for the standard library
// modules (§4.5: "in their read-only forms").
func freeze(L *lua.LState, name string) {
	tbl, ok := L.GetGlobal(name).(*lua.LTable)
	if !ok {
		return
	}
	mt := L.NewTable()
	L.SetField(mt, "__index", tbl)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("attempt to modify a read-only table")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	shadow := L.NewTable()
	L.SetMetatable(shadow, mt)
	L.SetGlobal(name, shadow)
}
