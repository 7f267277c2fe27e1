package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"

	logx "repod/pkg/logx"
)

// aferoStore backs both the "fs" and the "in-memory" drivers.
type aferoStore struct {
	fs     afero.Fs
	log    logx.Logger
	closed atomic.Bool
}

func openFS(cfg Config, log logx.Logger) (Storage, error) {
	root := strings.TrimSpace(cfg.Path)
	if root == "" {
		return nil, errors.New("fs storage path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	log.Debug("fs storage opened", logx.String("path", root))
	return &aferoStore{fs: afero.NewBasePathFs(afero.NewOsFs(), root), log: log}, nil
}

func openMemory(log logx.Logger) Storage {
	return &aferoStore{fs: afero.NewMemMapFs(), log: log}
}

// NewMemory returns an empty in-memory storage.
func NewMemory() Storage { return openMemory(logx.Nop()) }

func (s *aferoStore) name(key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return "/" + k, nil
}

func (s *aferoStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *aferoStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	name, err := s.name(key)
	if err != nil {
		return false, err
	}
	fi, err := s.fs.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

func (s *aferoStore) Value(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	name, err := s.name(key)
	if err != nil {
		return nil, err
	}
	b, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Save writes through a temp file and a rename so readers never see a partial value.
func (s *aferoStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	name, err := s.name(key)
	if err != nil {
		return err
	}
	dir := path.Dir(name)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := afero.TempFile(s.fs, dir, ".tmp-"+path.Base(name)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	return nil
}

func (s *aferoStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	p, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = afero.Walk(s.fs, "/", func(name string, fi fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if fi.IsDir() {
			return nil
		}
		key := strings.TrimPrefix(filepath.ToSlash(name), "/")
		if strings.HasPrefix(path.Base(key), ".tmp-") {
			return nil
		}
		if strings.HasPrefix(key, p) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *aferoStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	name, err := s.name(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *aferoStore) Close() error {
	s.closed.Store(true)
	return nil
}
