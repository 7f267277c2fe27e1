// Package settings is the handle jobs carry to reach the server
// configuration: the decoded config file and the configuration storage.
package settings

import (
	"repod/internal/config"
	"repod/internal/storage"
	"repod/internal/task/scheduler"
)

// Settings is immutable; a reload builds a new one.
type Settings struct {
	cfg   *config.Config
	store storage.Storage
}

func New(cfg *config.Config, store storage.Storage) *Settings {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Settings{cfg: cfg, store: store}
}

func (s *Settings) Config() *config.Config { return s.cfg }

// ConfigStorage returns the storage scripts and configuration files live in.
func (s *Settings) ConfigStorage() storage.Storage { return s.store }

// Crontab returns the configured crontab entries.
func (s *Settings) Crontab() []scheduler.CrontabEntry {
	out := make([]scheduler.CrontabEntry, len(s.cfg.Meta.Crontab))
	copy(out, s.cfg.Meta.Crontab)
	return out
}
