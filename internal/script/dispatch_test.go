package script

import "testing"

func TestEngineFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key  string
		want Kind
		ok   bool
	}{
		{"scripts/a.js", JavaScript, true},
		{"scripts/job.lua", Lua, true},
		{"scripts/job.star", Starlark, true},
		{"scripts/job.py", Starlark, true},
		{"rules/allow.expr", Expr, true},
		{"scripts/b.unknownext", 0, false},
		{"scripts/noext", 0, false},
		{"scripts.d/noext", 0, false},
		{"scripts/a.py.bak", 0, false},
		{"scripts/a.", 0, false},
		{"scripts/a.JS", 0, false},
	}
	for _, tc := range cases {
		got, ok := EngineFor(tc.key)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("EngineFor(%q) = %v, %v; want %v, %v", tc.key, got, ok, tc.want, tc.ok)
		}
	}
}
