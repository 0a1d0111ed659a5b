package script

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
)

// PrepareResult is the result of running a Lua operation script.
type PrepareResult struct {
	Content        string // the prompt to send (or the reply when SendToProvider is false)
	SendToProvider bool   // if false, skip the provider and return Content directly
}

// RunPrepare runs the Lua script at scriptPath, calling the global
// prepare(text) function. The script must return either a string (the full
// prompt, SendToProvider true) or a table with send_to_provider (bool) and
// message (string) to resolve the operation locally. Scripts can use
// os.getenv for environment variables.
func RunPrepare(scriptPath, text string) (*PrepareResult, error) {
	lState := lua.NewState()
	defer lState.Close()

	lState.PreloadModule("os", osModuleLoader)

	absPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("script path: %w", err)
	}
	if err := lState.DoFile(absPath); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	fn := lState.GetGlobal("prepare")
	if fn.Type() == lua.LTNil {
		return nil, fmt.Errorf("script must define global function prepare(text)")
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("prepare must be a function, got %s", fn.Type().String())
	}

	lState.Push(fn)
	lState.Push(lua.LString(text))
	if err := lState.PCall(1, 1, nil); err != nil {
		return nil, fmt.Errorf("prepare(): %w", err)
	}

	ret := lState.Get(-1)
	lState.Pop(1)

	switch ret.Type() {
	case lua.LTString:
		return &PrepareResult{Content: ret.String(), SendToProvider: true}, nil
	case lua.LTTable:
		tbl := ret.(*lua.LTable)
		sendToProvider := true
		var message string
		tbl.ForEach(func(k, v lua.LValue) {
			if k.String() == "send_to_provider" && v.Type() == lua.LTBool {
				sendToProvider = v.(lua.LBool) == lua.LTrue
			}
			if k.String() == "message" && v.Type() == lua.LTString {
				message = v.String()
			}
		})
		return &PrepareResult{Content: message, SendToProvider: sendToProvider}, nil
	default:
		return nil, fmt.Errorf("prepare() must return string or table { send_to_provider, message }, got %s", ret.Type().String())
	}
}

// osModuleLoader provides os.getenv for scripts loaded via require,
// so operation scripts can pick up environment-driven prompt fragments.
func osModuleLoader(lState *lua.LState) int {
	mod := lState.NewTable()
	lState.SetField(mod, "getenv", lState.NewFunction(func(ls *lua.LState) int {
		key := ls.CheckString(1)
		val := os.Getenv(key)
		if val == "" {
			ls.Push(lua.LNil)
		} else {
			ls.Push(lua.LString(val))
		}
		return 1
	}))
	lState.Push(mod)
	return 1
}
