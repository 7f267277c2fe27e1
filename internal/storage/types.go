package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("storage: key not found")
	ErrInvalidKey = errors.New("storage: invalid key")
	ErrClosed     = errors.New("storage: closed")
)

// Storage is the key/value contract consumed by the scheduler, the script
// runner and the caches. Keys are slash-delimited and relative.
type Storage interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Value returns ErrNotFound for a missing key.
	Value(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	// List returns keys under prefix, sorted. An empty prefix lists everything.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config configures a storage.
//
// Type values: "fs" (Path is the root directory), "in-memory",
// "sqlite" (Path is the database file).
type Config struct {
	Type        string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Fingerprint identifies equal configurations; the storages cache is keyed by it.
func (c Config) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d",
		normalizeType(c.Type), strings.TrimSpace(c.Path), c.BusyTimeout)))
	return hex.EncodeToString(sum[:8])
}

// Key joins parts into a normalized storage key.
func Key(parts ...string) string {
	return strings.TrimPrefix(path.Join(append([]string{"/"}, parts...)...), "/")
}

// CleanKey normalizes key and rejects keys that are empty or escape the root.
func CleanKey(key string) (string, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	k := strings.TrimPrefix(path.Clean("/"+raw), "/")
	if k == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return k, nil
}

// cleanPrefix is CleanKey for List: empty is allowed and a trailing slash is kept.
func cleanPrefix(prefix string) (string, error) {
	if strings.TrimSpace(prefix) == "" {
		return "", nil
	}
	k, err := CleanKey(prefix)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(strings.TrimSpace(prefix), "/") {
		k += "/"
	}
	return k, nil
}
