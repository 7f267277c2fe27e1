// Package storage is the configuration storage used by repod: crontab scripts,
// user and role files, repository configs and storage aliases live here under
// slash-delimited keys ("scripts/a.js", "users/alice.yaml").
//
// Drivers:
//   - "fs": a directory on disk (afero BasePathFs)
//   - "in-memory": process-local, lost on exit (afero MemMapFs)
//   - "sqlite": a single key/value table (modernc.org/sqlite)
package storage
