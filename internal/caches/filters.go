package caches

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar"

	"repod/internal/storage"
	logx "repod/pkg/logx"
)

// Filters restricts which paths of a repository are served:
//
//	repo:
//	  filters:
//	    include: ["**/*.jar"]
//	    exclude: ["**/internal/**"]
type Filters struct {
	Repo    string
	Include []string
	Exclude []string
}

// Allowed reports whether path passes the filters. Excludes win over
// includes; an empty include list admits every path not excluded. A malformed
// pattern matches nothing.
func (f *Filters) Allowed(path string) bool {
	if f == nil {
		return true
	}
	path = strings.TrimPrefix(path, "/")
	for _, p := range f.Exclude {
		if ok, _ := doublestar.Match(p, path); ok {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, p := range f.Include {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

type repoFile struct {
	Repo struct {
		Filters struct {
			Include []string `yaml:"include"`
			Exclude []string `yaml:"exclude"`
		} `yaml:"filters"`
	} `yaml:"repo"`
}

func (r *Registry) loadFilters(ctx context.Context, repo string) (*Filters, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" || strings.ContainsAny(repo, "/\\") || strings.HasPrefix(repo, "_") {
		return nil, fmt.Errorf("%w: repository %q", storage.ErrInvalidKey, repo)
	}
	var f repoFile
	key, err := readYAML(ctx, r.src, &f, yamlKeys(repo)...)
	if err != nil {
		return nil, err
	}
	r.log.Debug("filters loaded", logx.String("key", key))
	return &Filters{Repo: repo, Include: f.Repo.Filters.Include, Exclude: f.Repo.Filters.Exclude}, nil
}
