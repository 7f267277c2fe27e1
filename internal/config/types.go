package config

import (
	"repod/internal/task/scheduler"
)

// Config is the server configuration file.
//
//	meta:
//	  storage: {type: fs, path: ./data}
//	  crontab:
//	    - key: scripts/cleanup.js
//	      cronexp: "0 0 0 * * ?"
//	  policy: {type: local}
//	log: {level: info, console: true}
//	scheduler: {timezone: UTC, workers: 2}
type Config struct {
	Meta      MetaConfig      `json:"meta"`
	Log       LogConfig       `json:"log"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type MetaConfig struct {
	Storage StorageConfig            `json:"storage"`
	Crontab []scheduler.CrontabEntry `json:"crontab,omitempty"`
	Policy  PolicyConfig             `json:"policy,omitempty"`
}

// StorageConfig selects the configuration storage.
//
// Types: "fs" (path is a directory), "in-memory", "sqlite" (path is a file).
type StorageConfig struct {
	Type        string `json:"type"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PolicyConfig selects the permission policy: "local" (roles/*.yaml,
// cached) or "none".
type PolicyConfig struct {
	Type string `json:"type,omitempty"`
}

type LogConfig struct {
	Level   string  `json:"level"`
	Console bool    `json:"console"`
	File    LogFile `json:"file"`
}

type LogFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls cron triggers and the execution engine.
//
// Defaults (when fields are omitted/zero):
//   - timezone: Local
//   - workers: 2
//   - queue_size: 64
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 100
type SchedulerConfig struct {
	Timezone string `json:"timezone,omitempty"`
	Workers  int    `json:"workers,omitempty"`

	QueueSize int `json:"queue_size,omitempty"`

	// DefaultTimeout bounds every script run. Use "0s" to disable.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}
