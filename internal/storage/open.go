package storage

import (
	"errors"
	"strings"

	logx "repod/pkg/logx"
)

// Open initializes the configured storage.
func Open(cfg Config, log logx.Logger) (Storage, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch normalizeType(cfg.Type) {
	case "fs":
		return openFS(cfg, log)
	case "in-memory":
		return openMemory(log), nil
	case "sqlite":
		return openSQLite(cfg, log)
	case "":
		return nil, errors.New("storage type is required")
	default:
		return nil, errors.New("unknown storage type: " + cfg.Type)
	}
}

func normalizeType(t string) string {
	switch t = strings.ToLower(strings.TrimSpace(t)); t {
	case "file", "filesystem":
		return "fs"
	case "memory", "mem", "inmemory":
		return "in-memory"
	case "sqlite3":
		return "sqlite"
	default:
		return t
	}
}
