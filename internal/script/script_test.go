package script

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"repod/internal/storage"
)

func asNumber(t *testing.T, v any) float64 {
	t.Helper()
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	default:
		t.Fatalf("value %v (%T) is not a number", v, v)
		return 0
	}
}

func TestCallWithValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind Kind
		body string
	}{
		{JavaScript, "a * 2"},
		{Lua, "a * 2"},
		{Lua, "return a * 2"},
		{Starlark, "a * 2"},
		{Starlark, "result = a * 2"},
		{Expr, "a * 2"},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String()+"/"+tc.body, func(t *testing.T) {
			s, err := New(tc.kind, tc.body)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res, err := s.CallWith(context.Background(), map[string]any{"a": 3})
			if err != nil {
				t.Fatalf("CallWith: %v", err)
			}
			if got := asNumber(t, res.Value()); got != 6 {
				t.Fatalf("Value() = %v, want 6", got)
			}
		})
	}
}

func TestVariablesAfterExecution(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind Kind
		body string
		name string
	}{
		{JavaScript, "a = a * 3", "a"},
		{Lua, "a = a * 3", "a"},
		{Starlark, "a = a * 3", "a"},
		{Starlark, "b = a * 3", "b"},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			s, err := New(tc.kind, tc.body)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res, err := s.CallWith(context.Background(), map[string]any{"a": 4})
			if err != nil {
				t.Fatalf("CallWith: %v", err)
			}
			v, ok := res.Variable(tc.name)
			if !ok {
				t.Fatalf("Variable(%q) missing; variables = %v", tc.name, res.Variables())
			}
			if got := asNumber(t, v); got != 12 {
				t.Fatalf("Variable(%q) = %v, want 12", tc.name, got)
			}
			if _, ok := res.Variable("missing"); ok {
				t.Fatalf("Variable(missing) reported present")
			}
		})
	}
}

func TestStarlarkInputMutationIsVisible(t *testing.T) {
	t.Parallel()

	s, err := New(Starlark, "l.append(4)\nn = len(l)")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := s.CallWith(context.Background(), map[string]any{"l": []any{1, 2, 3}})
	if err != nil {
		t.Fatalf("CallWith: %v", err)
	}
	v, ok := res.Variable("l")
	if !ok {
		t.Fatalf("Variable(l) missing; variables = %v", res.Variables())
	}
	l, ok := v.([]any)
	if !ok || len(l) != 4 || asNumber(t, l[3]) != 4 {
		t.Fatalf("Variable(l) = %v, want [1 2 3 4]", v)
	}
	if n, _ := res.Variable("n"); asNumber(t, n) != 4 {
		t.Fatalf("Variable(n) = %v, want 4", n)
	}
}

func TestStarlarkCompiledRebindingUsesEachCallsInput(t *testing.T) {
	t.Parallel()

	s, err := NewCompiled(Starlark, "a = a * 3")
	if err != nil {
		t.Fatalf("NewCompiled: %v", err)
	}
	for _, in := range []int{2, 5} {
		res, err := s.CallWith(context.Background(), map[string]any{"a": in})
		if err != nil {
			t.Fatalf("CallWith(%d): %v", in, err)
		}
		if v, _ := res.Variable("a"); asNumber(t, v) != float64(in*3) {
			t.Fatalf("a = %v, want %d", v, in*3)
		}
	}
	if _, err := s.Call(context.Background()); err == nil {
		t.Fatalf("Call without a binding should fail")
	}
}

func TestBuiltinsAreNotVariables(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{JavaScript, Lua, Starlark} {
		s, _ := New(kind, "x = 1", WithStorage(storage.NewMemory()))
		res, err := s.Call(context.Background())
		if err != nil {
			t.Fatalf("%s Call: %v", kind, err)
		}
		vars := res.Variables()
		if len(vars) != 1 {
			t.Fatalf("%s Variables() = %v, want only x", kind, vars)
		}
	}
}

func TestCallWithoutBindingsFails(t *testing.T) {
	t.Parallel()

	for _, kind := range Kinds() {
		s, err := New(kind, "a * 2")
		if err != nil {
			t.Fatalf("New(%s): %v", kind, err)
		}
		_, err = s.Call(context.Background())
		var ee *ExecutionError
		if !errors.As(err, &ee) {
			t.Fatalf("%s Call() err = %v, want *ExecutionError", kind, err)
		}
		if ee.Engine != kind {
			t.Fatalf("ExecutionError.Engine = %s, want %s", ee.Engine, kind)
		}
	}
}

func TestCompiledScriptIsolatesCalls(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind Kind
		body string
	}{
		{JavaScript, "var counter = (typeof counter === 'undefined' ? 0 : counter) + 1; counter"},
		{Lua, "counter = (counter or 0) + 1\nreturn counter"},
	}
	for _, tc := range cases {
		s, err := NewCompiled(tc.kind, tc.body)
		if err != nil {
			t.Fatalf("NewCompiled(%s): %v", tc.kind, err)
		}
		for i := 0; i < 3; i++ {
			res, err := s.Call(context.Background())
			if err != nil {
				t.Fatalf("%s call %d: %v", tc.kind, i, err)
			}
			if got := asNumber(t, res.Value()); got != 1 {
				t.Fatalf("%s call %d Value() = %v, want 1", tc.kind, i, got)
			}
		}
	}
}

func TestCompiledScriptAcceptsDifferentBindings(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{JavaScript, Lua, Starlark} {
		s, err := NewCompiled(kind, "a * 2")
		if err != nil {
			t.Fatalf("NewCompiled(%s): %v", kind, err)
		}
		for _, a := range []int{1, 5} {
			res, err := s.CallWith(context.Background(), map[string]any{"a": a})
			if err != nil {
				t.Fatalf("%s CallWith(a=%d): %v", kind, a, err)
			}
			if got := asNumber(t, res.Value()); got != float64(2*a) {
				t.Fatalf("%s Value() = %v, want %d", kind, got, 2*a)
			}
		}
	}
}

func TestConstructionErrors(t *testing.T) {
	t.Parallel()

	if _, err := New(Kind(99), "1"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("New(unknown) err = %v, want ErrUnknownEngine", err)
	}
	if _, err := NewCompiled(Kind(99), "1"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("NewCompiled(unknown) err = %v, want ErrUnknownEngine", err)
	}
	if _, err := NewCompiled(Expr, "1 + 1"); !errors.Is(err, ErrCompilationUnsupported) {
		t.Fatalf("NewCompiled(expr) err = %v, want ErrCompilationUnsupported", err)
	}
	var ee *ExecutionError
	if _, err := NewCompiled(JavaScript, "function ("); !errors.As(err, &ee) {
		t.Fatalf("NewCompiled(bad syntax) err = %v, want *ExecutionError", err)
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	cases := map[string]Kind{
		"javascript": JavaScript,
		"JS":         JavaScript,
		"python":     Starlark,
		"starlark":   Starlark,
		" lua ":      Lua,
		"expr":       Expr,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("groovy"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("ParseKind(groovy) err = %v, want ErrUnknownEngine", err)
	}
	if !JavaScript.Compilable() || Expr.Compilable() {
		t.Fatalf("Compilable() table mismatch")
	}
}

func TestRuntimeErrorIsReported(t *testing.T) {
	t.Parallel()

	cases := map[Kind]string{
		JavaScript: "throw new Error('boom')",
		Lua:        "error('boom')",
		Starlark:   "fail('boom')",
	}
	for kind, body := range cases {
		s, _ := New(kind, body)
		_, err := s.Call(context.Background())
		var ee *ExecutionError
		if !errors.As(err, &ee) || !strings.Contains(err.Error(), "boom") {
			t.Fatalf("%s Call() err = %v, want *ExecutionError mentioning boom", kind, err)
		}
	}
}

func TestContextCancelsExecution(t *testing.T) {
	t.Parallel()

	cases := map[Kind]string{
		JavaScript: "for (;;) {}",
		Lua:        "while true do end",
	}
	for kind, body := range cases {
		s, _ := New(kind, body)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		start := time.Now()
		_, err := s.Call(ctx)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("%s Call() err = %v, want deadline exceeded", kind, err)
		}
		if time.Since(start) > 5*time.Second {
			t.Fatalf("%s took %s to stop", kind, time.Since(start))
		}
	}
}

func TestStorageBuiltins(t *testing.T) {
	t.Parallel()

	cases := map[Kind]string{
		JavaScript: `storage.write("out/result.txt", "Hello " + storage.read("in.txt")); storage.exists("out/result.txt")`,
		Lua:        `storage.write("out/result.txt", "Hello " .. storage.read("in.txt"))
return storage.exists("out/result.txt")`,
		Starlark: `storage.write("out/result.txt", "Hello " + storage.read("in.txt"))
result = storage.exists("out/result.txt")`,
		Expr: `write("out/result.txt", "Hello " + read("in.txt")) && exists("out/result.txt")`,
	}
	for kind, body := range cases {
		t.Run(kind.String(), func(t *testing.T) {
			ctx := context.Background()
			st := storage.NewMemory()
			if err := st.Save(ctx, "in.txt", []byte("world")); err != nil {
				t.Fatalf("Save: %v", err)
			}
			s, err := New(kind, body, WithStorage(st))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res, err := s.Call(ctx)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if res.Value() != true {
				t.Fatalf("Value() = %v, want true", res.Value())
			}
			b, err := st.Value(ctx, "out/result.txt")
			if err != nil || string(b) != "Hello world" {
				t.Fatalf("result = %q, %v; want Hello world", b, err)
			}
		})
	}
}

func TestJavaScriptRequireFromStorage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.Save(ctx, "lib/math.js", []byte("module.exports = { double: function (x) { return x * 2; } };"))

	s, _ := New(JavaScript, `console.log("loading"); require("./lib/math.js").double(21)`, WithStorage(st))
	res, err := s.Call(ctx)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got := asNumber(t, res.Value()); got != 42 {
		t.Fatalf("Value() = %v, want 42", got)
	}
}

func TestStorageMissingWithoutOption(t *testing.T) {
	t.Parallel()

	s, _ := New(JavaScript, `typeof storage`)
	res, err := s.Call(context.Background())
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Value() != "undefined" {
		t.Fatalf("typeof storage = %v, want undefined", res.Value())
	}
}
