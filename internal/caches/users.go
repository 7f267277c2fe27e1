package caches

import (
	"context"
	"fmt"
	"strings"

	"repod/internal/storage"
	logx "repod/pkg/logx"
)

// UsersDir holds one users/<name>.yaml file per user.
const UsersDir = "users"

// User is a user record.
type User struct {
	Name     string
	Password string
	Roles    []string
	Enabled  bool
}

type userFile struct {
	Pass    string   `yaml:"pass"`
	Roles   []string `yaml:"roles"`
	Enabled *bool    `yaml:"enabled"`
}

func (r *Registry) loadUser(ctx context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("%w: user %q", storage.ErrInvalidKey, name)
	}
	var f userFile
	key, err := readYAML(ctx, r.src, &f, yamlKeys(storage.Key(UsersDir, name))...)
	if err != nil {
		return nil, err
	}
	u := &User{Name: name, Password: f.Pass, Roles: f.Roles, Enabled: f.Enabled == nil || *f.Enabled}
	r.log.Debug("user loaded", logx.String("key", key))
	return u, nil
}
