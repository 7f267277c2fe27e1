// Package caches aggregates the configuration caches of the server: storage
// instances, users, role policy and repository filters.
//
// Each cache is lifecycled on its own; invalidating one never touches the
// others. Registry.Watch wraps a storage so configuration writes invalidate
// the entries they affect.
package caches
