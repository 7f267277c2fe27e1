// Package script runs user scripts on one of several embedded engines.
//
// A Script is built from an engine Kind and a source body. Standard scripts
// compile on every call; compiled scripts compile once and share the program
// across calls. Either way every call gets a fresh runtime, so bindings never
// leak between calls.
//
// Engines see a small host surface: print, and when configured with
// WithStorage, a storage object backed by the configuration storage.
package script
