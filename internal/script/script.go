package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"repod/internal/storage"
	logx "repod/pkg/logx"
)

var (
	ErrUnknownEngine          = errors.New("script: unknown engine")
	ErrCompilationUnsupported = errors.New("script: engine does not support compilation")
)

// Kind is a supported script engine.
type Kind int

const (
	JavaScript Kind = iota + 1
	Starlark
	Lua
	Expr
)

type kindInfo struct {
	name       string
	aliases    []string
	compilable bool
	backend    backend
}

var kinds = map[Kind]kindInfo{
	JavaScript: {name: "javascript", aliases: []string{"js", "ecmascript"}, compilable: true, backend: jsBackend{}},
	Starlark:   {name: "starlark", aliases: []string{"python", "star"}, compilable: true, backend: starlarkBackend{}},
	Lua:        {name: "lua", compilable: true, backend: luaBackend{}},
	Expr:       {name: "expr", aliases: []string{"expression"}, compilable: false, backend: exprBackend{}},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Compilable reports whether NewCompiled accepts k.
func (k Kind) Compilable() bool { return kinds[k].compilable }

// Kinds lists the supported engines in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseKind resolves an engine by name or alias, case-insensitively.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k, info := range kinds {
		if info.name == n {
			return k, nil
		}
		for _, a := range info.aliases {
			if a == n {
				return k, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
}

// ExecutionError reports a parse or runtime failure inside a script.
type ExecutionError struct {
	Engine Kind
	Script string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("script %s (%s): %v", e.Script, e.Engine, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Result is the outcome of one call.
type Result struct {
	value any
	vars  map[string]any
}

// Value is the value the script produced: the last expression for JavaScript
// and Expr, the returned value for Lua, and the "result" global for Starlark.
func (r *Result) Value() any { return r.value }

// Variable returns a binding from the script's context after execution.
func (r *Result) Variable(name string) (any, bool) {
	v, ok := r.vars[name]
	return v, ok
}

// Variables returns a copy of the binding context after execution.
func (r *Result) Variables() map[string]any {
	out := make(map[string]any, len(r.vars))
	for k, v := range r.vars {
		out[k] = v
	}
	return out
}

// Script is an executable script bound to one engine.
type Script interface {
	Kind() Kind
	// Call runs the script with only the engine built-ins visible.
	Call(ctx context.Context) (*Result, error)
	// CallWith runs the script with vars bound as engine-scope variables.
	CallWith(ctx context.Context, vars map[string]any) (*Result, error)
}

type Option func(*host)

// WithStorage exposes st to scripts as the storage built-in.
func WithStorage(st storage.Storage) Option { return func(h *host) { h.storage = st } }

// WithLogger routes print and console output to log.
func WithLogger(log logx.Logger) Option { return func(h *host) { h.log = log } }

// WithName sets the file name reported in positions and errors.
func WithName(name string) Option { return func(h *host) { h.name = name } }

type backend interface {
	compile(name, body string) (program, error)
}

type program interface {
	run(ctx context.Context, vars map[string]any, h *host) (*Result, error)
}

func newHost(kind Kind, opts []Option) *host {
	h := &host{name: "<" + kind.String() + ">"}
	for _, o := range opts {
		o(h)
	}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	return h
}

// New returns a standard script: body is compiled on every call.
func New(kind Kind, body string, opts ...Option) (Script, error) {
	info, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, kind)
	}
	return &standardScript{kind: kind, body: body, be: info.backend, host: newHost(kind, opts)}, nil
}

// NewCompiled compiles body once. Compile failures are reported as *ExecutionError.
func NewCompiled(kind Kind, body string, opts ...Option) (Script, error) {
	info, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, kind)
	}
	if !info.compilable {
		return nil, fmt.Errorf("%w: %s", ErrCompilationUnsupported, kind)
	}
	h := newHost(kind, opts)
	prog, err := info.backend.compile(h.name, body)
	if err != nil {
		return nil, &ExecutionError{Engine: kind, Script: h.name, Err: err}
	}
	return &compiledScript{kind: kind, prog: prog, host: h}, nil
}

type standardScript struct {
	kind Kind
	body string
	be   backend
	host *host
}

func (s *standardScript) Kind() Kind { return s.kind }

func (s *standardScript) Call(ctx context.Context) (*Result, error) { return s.CallWith(ctx, nil) }

func (s *standardScript) CallWith(ctx context.Context, vars map[string]any) (*Result, error) {
	prog, err := s.be.compile(s.host.name, s.body)
	if err != nil {
		return nil, &ExecutionError{Engine: s.kind, Script: s.host.name, Err: err}
	}
	return execute(ctx, s.kind, prog, vars, s.host)
}

type compiledScript struct {
	kind Kind
	prog program
	host *host
}

func (s *compiledScript) Kind() Kind { return s.kind }

func (s *compiledScript) Call(ctx context.Context) (*Result, error) { return s.CallWith(ctx, nil) }

func (s *compiledScript) CallWith(ctx context.Context, vars map[string]any) (*Result, error) {
	return execute(ctx, s.kind, s.prog, vars, s.host)
}

func execute(ctx context.Context, kind Kind, prog program, vars map[string]any, h *host) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ExecutionError{Engine: kind, Script: h.name, Err: err}
	}
	res, err := prog.run(ctx, copyVars(vars), h)
	if err != nil {
		return nil, &ExecutionError{Engine: kind, Script: h.name, Err: err}
	}
	return res, nil
}

func copyVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// watchContext calls stop once if ctx ends before the returned release is called.
func watchContext(ctx context.Context, stop func(error)) (release func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stop(ctx.Err())
		case <-done:
		}
	}()
	return func() { close(done) }
}
