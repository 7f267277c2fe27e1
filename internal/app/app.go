// Package app wires the configuration, storage, caches, scheduler and script
// runner together and keeps them in sync with the config file.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"repod/internal/caches"
	"repod/internal/config"
	"repod/internal/eventbus"
	"repod/internal/scripting"
	"repod/internal/settings"
	"repod/internal/storage"
	"repod/internal/task/scheduler"
	logx "repod/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service // nil when the logger was injected
	bus  eventbus.Bus

	raw    storage.Storage
	caches *caches.Registry
	sched  *scheduler.Service
	runner *scripting.Runner

	mu       sync.Mutex
	settings *settings.Settings
	applied  *config.Config

	cancel context.CancelFunc
	group  *errgroup.Group
}

type options struct {
	log logx.Logger
}

type Option func(*options)

// WithLogger replaces the logger built from the log section.
func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

// New loads the config file at path and builds the app. Nothing runs until
// Start.
func New(path string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	a, err := build(cfgm, cfg, o)
	if err != nil {
		return nil, err
	}
	a.applied = cfg
	cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	return a, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }
func (a *App) Caches() *caches.Registry      { return a.caches }

// Settings returns the settings the current crontab was loaded from.
func (a *App) Settings() *settings.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Start starts the scheduler, loads the crontab and follows the config file.
func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}
	rep := a.sched.LoadCrontab(a.Settings(), a.runner)
	a.log.Info("app started",
		logx.Int("jobs", len(rep.Scheduled)), logx.Int("skipped", len(rep.Skipped)))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	a.cancel, a.group = cancel, g

	updates := a.cfgm.Subscribe(4)
	g.Go(func() error { return a.cfgm.Watch(gctx) })
	g.Go(func() error {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-gctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.Reload(cfg)
			}
		}
	})
	g.Go(func() error { return a.logEvents(gctx) })
	return nil
}

// RunOnce executes the script stored under key without the scheduler.
func (a *App) RunOnce(ctx context.Context, key string) (bool, error) {
	return a.runner.RunKey(ctx, a.Settings(), key)
}

// Reload applies cfg: all jobs are replaced by the new crontab and every
// cache is dropped. Storage and scheduler settings need a restart.
func (a *App) Reload(cfg *config.Config) scheduler.LoadReport {
	a.mu.Lock()
	prev := a.applied
	a.applied = cfg
	set := settings.New(cfg, a.settings.ConfigStorage())
	a.settings = set
	a.mu.Unlock()

	sections, attrs := config.Changed(prev, cfg)
	for _, s := range sections {
		switch s {
		case config.SectionStorage, config.SectionScheduler, config.SectionPolicy:
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		case config.SectionLog:
			if a.logs != nil {
				a.logs.Apply(cfg.Log.Logx())
			}
		}
	}

	cleared := a.sched.ClearAll()
	rep := a.sched.LoadCrontab(set, a.runner)
	a.caches.InvalidateAll()

	fields := append([]logx.Field{
		logx.String("changed", strings.Join(sections, ",")),
		logx.Int("jobs_cleared", cleared),
		logx.Int("jobs", len(rep.Scheduled)),
	}, attrs...)
	a.log.Info("config applied", fields...)
	return rep
}

func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

// Stop stops the config watcher, waits for running jobs and releases
// storage. It is safe to call without Start.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	start := time.Now()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	if a.cancel != nil {
		a.cancel()
		done := make(chan error, 1)
		go func() { done <- a.group.Wait() }()
		select {
		case err := <-done:
			errs = append(errs, err)
		case <-ctx.Done():
			a.log.Warn("background loops did not stop in time", logx.Err(ctx.Err()))
		}
		a.cancel = nil
	}
	if err := a.sched.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.caches.Close()
	if err := a.raw.Close(); err != nil {
		errs = append(errs, err)
	}

	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
