package script

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	logx "repod/pkg/logx"
)

// resultGlobal is the module global that carries a Starlark script's value.
// A body that is a single expression is bound to it implicitly.
const resultGlobal = "result"

// bindingsName is the predeclared dict through which caller bindings reach
// module globals.
const bindingsName = "__bindings__"

var starlarkOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

type starlarkBackend struct{}

// Free names are resolved as predeclared so caller bindings can be supplied
// per call; an unbound name fails when the program runs.
func isPredeclared(name string) bool { return !starlark.Universe.Has(name) }

func (starlarkBackend) compile(name, body string) (program, error) {
	src := body
	if _, err := starlarkOptions.ParseExpr(name, body, 0); err == nil {
		src = resultGlobal + " = (\n" + body + "\n)\n"
	}
	globals, err := moduleGlobals(name, src)
	if err != nil {
		return nil, err
	}
	f, err := starlarkOptions.Parse(name, src, 0)
	if err != nil {
		return nil, err
	}
	if len(globals) > 0 {
		pre, err := starlarkOptions.Parse(name, bindingPrelude(globals), 0)
		if err != nil {
			return nil, err
		}
		f.Stmts = append(pre.Stmts, f.Stmts...)
	}
	prog, err := starlark.FileProgram(f, isPredeclared)
	if err != nil {
		return nil, err
	}
	return &starlarkProgram{name: name, prog: prog}, nil
}

// moduleGlobals lists the names the module binds at top level.
func moduleGlobals(name, src string) ([]string, error) {
	f, err := starlarkOptions.Parse(name, src, 0)
	if err != nil {
		return nil, err
	}
	if err := resolve.File(f, isPredeclared, starlark.Universe.Has); err != nil {
		return nil, err
	}
	mod := f.Module.(*resolve.Module)
	names := make([]string, 0, len(mod.Globals))
	for _, b := range mod.Globals {
		names = append(names, b.First.Name)
	}
	return names, nil
}

// bindingPrelude seeds each module global from the caller's bindings, so a
// script can reassign a variable it was given.
func bindingPrelude(globals []string) string {
	var b strings.Builder
	for _, g := range globals {
		fmt.Fprintf(&b, "if %q in %s:\n    %s = %s[%q]\n", g, bindingsName, g, bindingsName, g)
	}
	return b.String()
}

type starlarkProgram struct {
	name string
	prog *starlark.Program
}

func (p *starlarkProgram) run(ctx context.Context, vars map[string]any, h *host) (*Result, error) {
	thread := &starlark.Thread{
		Name:  p.name,
		Print: func(_ *starlark.Thread, msg string) { h.print(logx.LevelInfo, msg) },
	}
	predeclared := starlarkHost(ctx, h)
	inputs := make(starlark.StringDict, len(vars))
	bindings := starlark.NewDict(len(vars))
	for k, v := range vars {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", k, err)
		}
		inputs[k] = sv
		predeclared[k] = sv
		if err := bindings.SetKey(starlark.String(k), sv); err != nil {
			return nil, err
		}
	}
	predeclared[bindingsName] = bindings

	release := watchContext(ctx, func(err error) { thread.Cancel(err.Error()) })
	globals, err := p.prog.Init(thread, predeclared)
	release()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	// Inputs report their post-run values: a rebinding shows up in globals,
	// an in-place mutation in the value that was passed in.
	out := make(map[string]any, len(vars)+len(globals))
	for k, sv := range inputs {
		out[k] = fromStarlark(sv)
	}
	names := make([]string, 0, len(globals))
	for k := range globals {
		names = append(names, k)
	}
	sort.Strings(names)
	var value any
	for _, k := range names {
		v := globals[k]
		if k == resultGlobal {
			value = fromStarlark(v)
		}
		if _, isFn := v.(starlark.Callable); isFn {
			continue
		}
		out[k] = fromStarlark(v)
	}
	return &Result{value: value, vars: out}, nil
}

func starlarkHost(ctx context.Context, h *host) starlark.StringDict {
	d := starlark.StringDict{}
	if h.storage == nil {
		return d
	}
	builtin := func(name string, fn func(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return fn(args, kwargs)
		})
	}
	d["storage"] = &starlarkstruct.Module{
		Name: "storage",
		Members: starlark.StringDict{
			"exists": builtin("exists", func(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var key string
				if err := starlark.UnpackArgs("exists", args, kwargs, "key", &key); err != nil {
					return nil, err
				}
				ok, err := h.exists(ctx, key)
				return starlark.Bool(ok), err
			}),
			"read": builtin("read", func(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var key string
				if err := starlark.UnpackArgs("read", args, kwargs, "key", &key); err != nil {
					return nil, err
				}
				s, err := h.read(ctx, key)
				return starlark.String(s), err
			}),
			"write": builtin("write", func(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var key, value string
				if err := starlark.UnpackArgs("write", args, kwargs, "key", &key, "value", &value); err != nil {
					return nil, err
				}
				return starlark.None, h.write(ctx, key, value)
			}),
			"list": builtin("list", func(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				prefix := ""
				if err := starlark.UnpackArgs("list", args, kwargs, "prefix?", &prefix); err != nil {
					return nil, err
				}
				keys, err := h.list(ctx, prefix)
				if err != nil {
					return nil, err
				}
				elems := make([]starlark.Value, 0, len(keys))
				for _, k := range keys {
					elems = append(elems, starlark.String(k))
				}
				return starlark.NewList(elems), nil
			}),
			"remove": builtin("remove", func(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var key string
				if err := starlark.UnpackArgs("remove", args, kwargs, "key", &key); err != nil {
					return nil, err
				}
				return starlark.None, h.remove(ctx, key)
			}),
		},
	}
	return d
}

func toStarlark(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case bool:
		return starlark.Bool(x), nil
	case string:
		return starlark.String(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int32:
		return starlark.MakeInt64(int64(x)), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case uint64:
		return starlark.MakeUint64(x), nil
	case float32:
		return starlark.Float(x), nil
	case float64:
		return starlark.Float(x), nil
	case []string:
		elems := make([]starlark.Value, 0, len(x))
		for _, s := range x {
			elems = append(elems, starlark.String(s))
		}
		return starlark.NewList(elems), nil
	case []any:
		elems := make([]starlark.Value, 0, len(x))
		for _, e := range x {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(x))
		for k, e := range x {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func fromStarlark(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.String:
		return string(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		return x.String()
	case starlark.Float:
		return float64(x)
	case *starlark.List:
		out := make([]any, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			out = append(out, fromStarlark(x.Index(i)))
		}
		return out
	case starlark.Tuple:
		out := make([]any, 0, len(x))
		for _, e := range x {
			out = append(out, fromStarlark(e))
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				k = item[0].String()
			}
			out[k] = fromStarlark(item[1])
		}
		return out
	default:
		return v.String()
	}
}
