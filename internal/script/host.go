package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"repod/internal/storage"
	logx "repod/pkg/logx"
)

var errNoStorage = errors.New("storage is not available to this script")

// host is the surface every engine exposes to scripts.
type host struct {
	name    string
	storage storage.Storage
	log     logx.Logger
}

func (h *host) print(level logx.Level, args ...any) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	msg := strings.Join(parts, " ")
	l := h.log.With(logx.String("script", h.name))
	switch level {
	case logx.LevelWarn:
		l.Warn(msg)
	case logx.LevelError:
		l.Error(msg)
	default:
		l.Info(msg)
	}
}

func (h *host) exists(ctx context.Context, key string) (bool, error) {
	if h.storage == nil {
		return false, errNoStorage
	}
	return h.storage.Exists(ctx, key)
}

func (h *host) read(ctx context.Context, key string) (string, error) {
	if h.storage == nil {
		return "", errNoStorage
	}
	b, err := h.storage.Value(ctx, key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *host) write(ctx context.Context, key, value string) error {
	if h.storage == nil {
		return errNoStorage
	}
	return h.storage.Save(ctx, key, []byte(value))
}

func (h *host) list(ctx context.Context, prefix string) ([]string, error) {
	if h.storage == nil {
		return nil, errNoStorage
	}
	return h.storage.List(ctx, prefix)
}

func (h *host) remove(ctx context.Context, key string) error {
	if h.storage == nil {
		return errNoStorage
	}
	return h.storage.Delete(ctx, key)
}
