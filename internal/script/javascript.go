package script

import (
	"context"
	"errors"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"

	"repod/internal/storage"
	logx "repod/pkg/logx"
)

type jsBackend struct{}

func (jsBackend) compile(name, body string) (program, error) {
	p, err := goja.Compile(name, body, false)
	if err != nil {
		return nil, err
	}
	return &jsProgram{prog: p}, nil
}

type jsProgram struct {
	prog *goja.Program
}

func (p *jsProgram) run(ctx context.Context, vars map[string]any, h *host) (*Result, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if err := installJS(ctx, vm, h); err != nil {
		return nil, err
	}
	baseline := map[string]struct{}{}
	for _, k := range vm.GlobalObject().Keys() {
		baseline[k] = struct{}{}
	}
	for k, v := range vars {
		if err := vm.Set(k, v); err != nil {
			return nil, err
		}
	}

	release := watchContext(ctx, func(err error) { vm.Interrupt(err) })
	val, err := vm.RunProgram(p.prog)
	release()
	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	out := make(map[string]any, len(vars))
	global := vm.GlobalObject()
	for _, k := range global.Keys() {
		_, input := vars[k]
		if _, builtin := baseline[k]; builtin && !input {
			continue
		}
		v := global.Get(k)
		if _, isFn := goja.AssertFunction(v); isFn && !input {
			continue
		}
		out[k] = exportJS(v)
	}
	for k := range vars {
		if _, ok := out[k]; !ok {
			out[k] = exportJS(global.Get(k))
		}
	}
	return &Result{value: exportJS(val), vars: out}, nil
}

func exportJS(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func installJS(ctx context.Context, vm *goja.Runtime, h *host) error {
	registry := require.NewRegistry(require.WithLoader(sourceLoader(ctx, h.storage)))
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(jsPrinter{h}))
	registry.Enable(vm)
	console.Enable(vm)

	if err := vm.Set("print", func(call goja.FunctionCall) goja.Value {
		args := make([]any, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			args = append(args, a.String())
		}
		h.print(logx.LevelInfo, args...)
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if h.storage == nil {
		return nil
	}

	st := vm.NewObject()
	fns := map[string]any{
		"exists": func(key string) (bool, error) { return h.exists(ctx, key) },
		"read":   func(key string) (string, error) { return h.read(ctx, key) },
		"write":  func(key, value string) error { return h.write(ctx, key, value) },
		"list":   func(prefix string) ([]string, error) { return h.list(ctx, prefix) },
		"remove": func(key string) error { return h.remove(ctx, key) },
	}
	for name, fn := range fns {
		if err := st.Set(name, fn); err != nil {
			return err
		}
	}
	return vm.Set("storage", st)
}

// sourceLoader resolves require() paths against the configuration storage.
func sourceLoader(ctx context.Context, st storage.Storage) require.SourceLoader {
	return func(path string) ([]byte, error) {
		if st == nil {
			return nil, require.ModuleFileDoesNotExistError
		}
		key := strings.TrimPrefix(strings.TrimPrefix(path, "./"), "/")
		b, err := st.Value(ctx, key)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, require.ModuleFileDoesNotExistError
		}
		return b, err
	}
}

type jsPrinter struct{ h *host }

func (p jsPrinter) Log(s string)   { p.h.print(logx.LevelInfo, s) }
func (p jsPrinter) Warn(s string)  { p.h.print(logx.LevelWarn, s) }
func (p jsPrinter) Error(s string) { p.h.print(logx.LevelError, s) }
func (p jsPrinter) Info(s string)  { p.h.print(logx.LevelInfo, s) }
func (p jsPrinter) Debug(s string) { p.h.print(logx.LevelInfo, s) }
