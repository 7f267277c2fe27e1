package caches

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar"

	"repod/internal/storage"
	logx "repod/pkg/logx"
)

// RolesDir holds one roles/<name>.yaml file per role.
const RolesDir = "roles"

// Role maps repository patterns to allowed actions:
//
//	permissions:
//	  "libs-*": [read, write]
//	  "*": [read]
type Role struct {
	Name        string
	Permissions map[string][]string
}

// Allows reports whether the role grants action on repo. Patterns use
// doublestar syntax; "*" as an action grants everything.
func (r *Role) Allows(repo, action string) bool {
	for pattern, actions := range r.Permissions {
		if ok, _ := doublestar.Match(pattern, repo); !ok {
			continue
		}
		for _, a := range actions {
			if a == "*" || strings.EqualFold(a, action) {
				return true
			}
		}
	}
	return false
}

type roleFile struct {
	Permissions map[string][]string `yaml:"permissions"`
}

func (r *Registry) loadRole(ctx context.Context, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("%w: role %q", storage.ErrInvalidKey, name)
	}
	var f roleFile
	key, err := readYAML(ctx, r.src, &f, yamlKeys(storage.Key(RolesDir, name))...)
	if err != nil {
		return nil, err
	}
	r.log.Debug("role loaded", logx.String("key", key))
	return &Role{Name: name, Permissions: f.Permissions}, nil
}
