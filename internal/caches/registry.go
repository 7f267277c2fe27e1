package caches

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"repod/internal/cache"
	"repod/internal/storage"
	logx "repod/pkg/logx"
)

// Policy types.
const (
	PolicyLocal = "local"
	PolicyNone  = "none"
)

var ErrPolicyDisabled = errors.New("policy is disabled")

// Options configures a Registry.
type Options struct {
	// PolicyType selects role caching: "local" (default) caches roles
	// read from roles/<name>.yaml, "none" disables the policy.
	PolicyType string
}

// Registry owns the four configuration caches.
type Registry struct {
	log logx.Logger
	src storage.Storage

	storages *Storages
	users    *cache.Cache[*User]
	roles    *cache.Cache[*Role] // nil when the policy is disabled
	filters  *cache.Cache[*Filters]
}

// New builds a Registry reading configuration files from src.
func New(src storage.Storage, opts Options, log logx.Logger) (*Registry, error) {
	if src == nil {
		return nil, errors.New("caches: nil configuration storage")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "caches"))

	r := &Registry{log: log, src: src}
	r.storages = newStorages(src, log)
	r.users = cache.New[*User]("users", r.loadUser)
	r.filters = cache.New[*Filters]("filters", r.loadFilters)

	switch strings.ToLower(strings.TrimSpace(opts.PolicyType)) {
	case "", PolicyLocal:
		r.roles = cache.New[*Role]("policy", r.loadRole)
	case PolicyNone:
	default:
		return nil, fmt.Errorf("caches: unknown policy type %q", opts.PolicyType)
	}
	return r, nil
}

// Storages returns the storages cache.
func (r *Registry) Storages() *Storages { return r.storages }

// Users returns the users cache for invalidation.
func (r *Registry) Users() cache.Cleanable { return r.users }

// Policy returns the policy cache, or a no-op when the policy is disabled.
func (r *Registry) Policy() cache.Cleanable {
	if r.roles == nil {
		return cache.Nop{}
	}
	return r.roles
}

// Filters returns the filters cache for invalidation.
func (r *Registry) Filters() cache.Cleanable { return r.filters }

// InvalidateAll drops every entry of every cache.
func (r *Registry) InvalidateAll() {
	r.storages.InvalidateAll()
	r.users.InvalidateAll()
	r.Policy().InvalidateAll()
	r.filters.InvalidateAll()
	r.log.Debug("caches invalidated")
}

// Close closes every cached storage instance.
func (r *Registry) Close() { r.storages.InvalidateAll() }

// User returns the user record for name.
func (r *Registry) User(ctx context.Context, name string) (*User, error) {
	return r.users.Get(ctx, name)
}

// Role returns the permissions of role.
func (r *Registry) Role(ctx context.Context, name string) (*Role, error) {
	if r.roles == nil {
		return nil, ErrPolicyDisabled
	}
	return r.roles.Get(ctx, name)
}

// RepoFilters returns the path filters of the repository; a repository
// without filters allows everything.
func (r *Registry) RepoFilters(ctx context.Context, repo string) (*Filters, error) {
	return r.filters.Get(ctx, repo)
}

// Allowed reports whether user may perform action on repo under the
// policy. A disabled policy allows everything.
func (r *Registry) Allowed(ctx context.Context, user, repo, action string) (bool, error) {
	if r.roles == nil {
		return true, nil
	}
	u, err := r.User(ctx, user)
	if err != nil {
		return false, err
	}
	if !u.Enabled {
		return false, nil
	}
	for _, name := range u.Roles {
		role, err := r.Role(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if role.Allows(repo, action) {
			return true, nil
		}
	}
	return false, nil
}

// readYAML decodes the first existing key among candidates.
func readYAML(ctx context.Context, src storage.Storage, out any, candidates ...string) (string, error) {
	for _, key := range candidates {
		b, err := src.Value(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := yaml.Unmarshal(b, out); err != nil {
			return key, fmt.Errorf("parse %s: %w", key, err)
		}
		return key, nil
	}
	return "", fmt.Errorf("%w: %s", storage.ErrNotFound, strings.Join(candidates, " or "))
}

func yamlKeys(base string) []string { return []string{base + ".yaml", base + ".yml"} }

// nameOf returns the entry name of a "<dir>/<name>.yaml|yml" key under dir
// ("" for top-level keys), or false when key is not such a file.
func nameOf(key, dir string) (string, bool) {
	rest := key
	if dir != "" {
		var ok bool
		if rest, ok = strings.CutPrefix(key, dir+"/"); !ok {
			return "", false
		}
	}
	if strings.Contains(rest, "/") {
		return "", false
	}
	for _, ext := range []string{".yaml", ".yml"} {
		if name, ok := strings.CutSuffix(rest, ext); ok && name != "" {
			return name, true
		}
	}
	return "", false
}
