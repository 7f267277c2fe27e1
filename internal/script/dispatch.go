package script

import "strings"

var extensions = map[string]Kind{
	"js":   JavaScript,
	"star": Starlark,
	"py":   Starlark,
	"lua":  Lua,
	"expr": Expr,
}

// EngineFor picks the engine for a storage key from the text after the last
// '.' anywhere in the key. Keys without a known extension have no engine.
func EngineFor(key string) (Kind, bool) {
	i := strings.LastIndexByte(key, '.')
	if i < 0 {
		return 0, false
	}
	k, ok := extensions[key[i+1:]]
	return k, ok
}
