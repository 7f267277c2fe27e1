package caches

import (
	"context"

	"repod/internal/storage"
)

// Watch wraps st so that saving or deleting a configuration file invalidates
// the cache entry built from it. Reads pass through untouched.
//
//	users/<name>.yaml  -> users[name]
//	roles/<name>.yaml  -> policy[name]
//	_storages.yaml     -> every storage
//	<repo>.yaml        -> filters[repo]
func (r *Registry) Watch(st storage.Storage) storage.Storage {
	return &watched{Storage: st, r: r}
}

type watched struct {
	storage.Storage
	r *Registry
}

func (w *watched) Save(ctx context.Context, key string, data []byte) error {
	err := w.Storage.Save(ctx, key, data)
	w.r.touched(key)
	return err
}

func (w *watched) Delete(ctx context.Context, key string) error {
	err := w.Storage.Delete(ctx, key)
	w.r.touched(key)
	return err
}

func (r *Registry) touched(key string) {
	key, err := storage.CleanKey(key)
	if err != nil {
		return
	}
	if key == StoragesKey {
		r.storages.InvalidateAll()
		return
	}
	if name, ok := nameOf(key, UsersDir); ok {
		r.users.Invalidate(name)
		return
	}
	if name, ok := nameOf(key, RolesDir); ok {
		r.Policy().Invalidate(name)
		return
	}
	if name, ok := nameOf(key, ""); ok {
		r.filters.Invalidate(name)
	}
}
