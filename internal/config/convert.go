package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"repod/internal/storage"
	"repod/internal/task/engine"
	"repod/internal/task/scheduler"
	logx "repod/pkg/logx"
)

func (c StorageConfig) Storage() (storage.Config, error) {
	d, err := ParseDurationField("meta.storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Type: c.Type, Path: c.Path, BusyTimeout: d}, nil
}

func (c LogConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

func (c SchedulerConfig) Scheduler() (scheduler.Config, error) {
	timeout, err := ParseDurationField("scheduler.default_timeout", c.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	delay, err := ParseDurationField("scheduler.max_queue_delay", c.MaxQueueDelay)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Timezone: strings.TrimSpace(c.Timezone),
		Engine: engine.Config{
			Workers:        c.Workers,
			QueueSize:      c.QueueSize,
			DefaultTimeout: timeout,
			MaxQueueDelay:  delay,
			HistorySize:    c.HistorySize,
		},
	}, nil
}

// Validate checks fields that cannot be checked by decoding alone.
// Crontab expressions are not checked here: a bad entry is skipped at load
// time and never rejects the whole file.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch strings.ToLower(strings.TrimSpace(cfg.Meta.Storage.Type)) {
	case "":
		errs = append(errs, errors.New("meta.storage.type is required"))
	case "fs", "file", "filesystem", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Meta.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("meta.storage.path is required for type %q", cfg.Meta.Storage.Type))
		}
	case "in-memory", "memory", "mem", "inmemory":
	default:
		errs = append(errs, fmt.Errorf("meta.storage.type: unknown type %q", cfg.Meta.Storage.Type))
	}
	if _, err := cfg.Meta.Storage.Storage(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Meta.Policy.Type)) {
	case "", "local", "none":
	default:
		errs = append(errs, fmt.Errorf("meta.policy.type: unknown type %q", cfg.Meta.Policy.Type))
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if cfg.Scheduler.Workers < 0 || cfg.Scheduler.QueueSize < 0 || cfg.Scheduler.HistorySize < 0 {
		errs = append(errs, errors.New("scheduler: workers, queue_size and history_size must be >= 0"))
	}
	if _, err := cfg.Scheduler.Scheduler(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
