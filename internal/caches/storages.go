package caches

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"repod/internal/cache"
	"repod/internal/storage"
	logx "repod/pkg/logx"
)

// StoragesKey is the file of named storage aliases:
//
//	storages:
//	  default: {type: fs, path: /var/lib/repod/data}
//	  scratch: {type: in-memory}
const StoragesKey = "_storages.yaml"

type storageAlias struct {
	Type        string `yaml:"type"`
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"`
}

type storagesFile struct {
	Storages map[string]storageAlias `yaml:"storages"`
}

// Storages caches opened storage instances by configuration fingerprint.
// Invalidated instances are closed.
type Storages struct {
	log  logx.Logger
	src  storage.Storage
	open func(storage.Config, logx.Logger) (storage.Storage, error)

	cfgs sync.Map // fingerprint -> storage.Config
	c    *cache.Cache[storage.Storage]
}

func newStorages(src storage.Storage, log logx.Logger) *Storages {
	s := &Storages{log: log, src: src, open: storage.Open}
	s.c = cache.New[storage.Storage]("storages", s.load,
		cache.WithOnEvict[storage.Storage](func(key string, st storage.Storage) {
			if err := st.Close(); err != nil {
				s.log.Warn("close evicted storage failed", logx.String("fingerprint", key), logx.Err(err))
			}
		}))
	return s
}

// Get returns the storage for cfg, opening it on first use.
func (s *Storages) Get(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
	fp := cfg.Fingerprint()
	s.cfgs.LoadOrStore(fp, cfg)
	return s.c.Get(ctx, fp)
}

// Named resolves a storage alias declared in _storages.yaml.
func (s *Storages) Named(ctx context.Context, name string) (storage.Storage, error) {
	var f storagesFile
	if _, err := readYAML(ctx, s.src, &f, StoragesKey); err != nil {
		return nil, err
	}
	alias, ok := f.Storages[name]
	if !ok {
		return nil, fmt.Errorf("%w: storage alias %q", storage.ErrNotFound, name)
	}
	cfg := storage.Config{Type: alias.Type, Path: alias.Path}
	if v := strings.TrimSpace(alias.BusyTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("storage alias %q: busy_timeout: %w", name, err)
		}
		cfg.BusyTimeout = d
	}
	return s.Get(ctx, cfg)
}

func (s *Storages) load(_ context.Context, fp string) (storage.Storage, error) {
	v, ok := s.cfgs.Load(fp)
	if !ok {
		return nil, fmt.Errorf("%w: storage fingerprint %s", storage.ErrNotFound, fp)
	}
	cfg := v.(storage.Config)
	st, err := s.open(cfg, s.log)
	if err != nil {
		return nil, err
	}
	s.log.Debug("storage opened", logx.String("type", cfg.Type), logx.String("fingerprint", fp))
	return st, nil
}

func (s *Storages) Len() int { return s.c.Len() }

func (s *Storages) Invalidate(key string) { s.c.Invalidate(key) }

func (s *Storages) InvalidateAll() { s.c.InvalidateAll() }
