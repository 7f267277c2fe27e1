// Package config loads the server configuration file (YAML or JSON) and
// watches it for changes.
package config
