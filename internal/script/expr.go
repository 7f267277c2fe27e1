package script

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	logx "repod/pkg/logx"
)

// exprBackend evaluates rule expressions. Its programs are typed against the
// environment they are compiled with, so it compiles on every call and cannot
// produce a program shared across calls. Evaluation cannot be interrupted;
// ctx is checked before it starts.
type exprBackend struct{}

func (exprBackend) compile(name, body string) (program, error) {
	return &exprProgram{body: body}, nil
}

type exprProgram struct {
	body string
}

func (p *exprProgram) run(ctx context.Context, vars map[string]any, h *host) (*Result, error) {
	env := make(map[string]any, len(vars))
	for k, v := range vars {
		env[k] = v
	}
	opts := append([]expr.Option{expr.Env(env)}, exprHost(ctx, h)...)
	prog, err := expr.Compile(p.body, opts...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return nil, err
	}
	return &Result{value: out, vars: vars}, nil
}

func exprHost(ctx context.Context, h *host) []expr.Option {
	opts := []expr.Option{
		expr.Function("print", func(params ...any) (any, error) {
			h.print(logx.LevelInfo, params...)
			return nil, nil
		}),
	}
	if h.storage == nil {
		return opts
	}
	str := func(params []any, i int) (string, error) {
		if i >= len(params) {
			return "", fmt.Errorf("missing argument %d", i+1)
		}
		s, ok := params[i].(string)
		if !ok {
			return "", fmt.Errorf("argument %d: want string, got %T", i+1, params[i])
		}
		return s, nil
	}
	return append(opts,
		expr.Function("exists", func(params ...any) (any, error) {
			key, err := str(params, 0)
			if err != nil {
				return nil, err
			}
			return h.exists(ctx, key)
		}),
		expr.Function("read", func(params ...any) (any, error) {
			key, err := str(params, 0)
			if err != nil {
				return nil, err
			}
			return h.read(ctx, key)
		}),
		expr.Function("write", func(params ...any) (any, error) {
			key, err := str(params, 0)
			if err != nil {
				return nil, err
			}
			value, err := str(params, 1)
			if err != nil {
				return nil, err
			}
			return true, h.write(ctx, key, value)
		}),
	)
}
