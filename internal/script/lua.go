package script

import (
	"context"
	"fmt"
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	logx "repod/pkg/logx"
)

type luaBackend struct{}

// compile accepts a bare expression as well as a chunk, like the lua REPL:
// "a * 2" is compiled as "return a * 2".
func (luaBackend) compile(name, body string) (program, error) {
	if chunk, err := parse.Parse(strings.NewReader("return "+body), name); err == nil {
		if proto, err := lua.Compile(chunk, name); err == nil {
			return &luaProgram{proto: proto}, nil
		}
	}
	chunk, err := parse.Parse(strings.NewReader(body), name)
	if err != nil {
		return nil, err
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, err
	}
	return &luaProgram{proto: proto}, nil
}

type luaProgram struct {
	proto *lua.FunctionProto
}

func (p *luaProgram) run(ctx context.Context, vars map[string]any, h *host) (*Result, error) {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	installLua(ctx, L, h)
	baseline := map[string]struct{}{}
	L.G.Global.ForEach(func(k, _ lua.LValue) {
		baseline[k.String()] = struct{}{}
	})
	for k, v := range vars {
		L.SetGlobal(k, toLua(L, v))
	}

	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	var value any
	if L.GetTop() > 0 {
		value = fromLua(L.Get(1))
	}

	out := make(map[string]any, len(vars))
	L.G.Global.ForEach(func(k, v lua.LValue) {
		name := k.String()
		_, input := vars[name]
		if _, builtin := baseline[name]; builtin && !input {
			return
		}
		if v.Type() == lua.LTFunction && !input {
			return
		}
		out[name] = fromLua(v)
	})
	for k := range vars {
		if _, ok := out[k]; !ok {
			out[k] = nil
		}
	}
	return &Result{value: value, vars: out}, nil
}

func installLua(ctx context.Context, L *lua.LState, h *host) {
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		args := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			args = append(args, L.ToStringMeta(L.Get(i)).String())
		}
		h.print(logx.LevelInfo, args...)
		return 0
	}))
	if h.storage == nil {
		return
	}

	st := L.NewTable()
	L.SetFuncs(st, map[string]lua.LGFunction{
		"exists": func(L *lua.LState) int {
			ok, err := h.exists(ctx, L.CheckString(1))
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			L.Push(lua.LBool(ok))
			return 1
		},
		"read": func(L *lua.LState) int {
			s, err := h.read(ctx, L.CheckString(1))
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			L.Push(lua.LString(s))
			return 1
		},
		"write": func(L *lua.LState) int {
			if err := h.write(ctx, L.CheckString(1), L.CheckString(2)); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		"list": func(L *lua.LState) int {
			keys, err := h.list(ctx, L.OptString(1, ""))
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			t := L.CreateTable(len(keys), 0)
			for _, k := range keys {
				t.Append(lua.LString(k))
			}
			L.Push(t)
			return 1
		},
		"remove": func(L *lua.LState) int {
			if err := h.remove(ctx, L.CheckString(1)); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
	})
	L.SetGlobal("storage", st)
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []string:
		t := L.CreateTable(len(x), 0)
		for _, s := range x {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.CreateTable(len(x), 0)
		for _, e := range x {
			t.Append(toLua(L, e))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(x))
		for k, e := range x {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// fromLua maps integral numbers to int64 and other numbers to float64.
// Tables with only a 1..n sequence become []any, other tables map[string]any.
func fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case *lua.LTable:
		n := x.MaxN()
		count := 0
		x.ForEach(func(lua.LValue, lua.LValue) { count++ })
		if n > 0 && n == count {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLua(x.RawGetInt(i)))
			}
			return out
		}
		out := map[string]any{}
		x.ForEach(func(k, e lua.LValue) { out[k.String()] = fromLua(e) })
		return out
	default:
		if v == lua.LNil {
			return nil
		}
		return v.String()
	}
}
