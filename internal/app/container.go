package app

import (
	"go.uber.org/dig"

	"repod/internal/caches"
	"repod/internal/config"
	"repod/internal/eventbus"
	"repod/internal/scripting"
	"repod/internal/settings"
	"repod/internal/storage"
	"repod/internal/task/scheduler"
	logx "repod/pkg/logx"
)

// rawStorage is the configuration storage as opened, before cache tracking.
type rawStorage struct{ storage.Storage }

func build(cfgm *config.ConfigManager, cfg *config.Config, o options) (*App, error) {
	d := dig.New()

	provide := []any{
		func() *config.ConfigManager { return cfgm },
		func() *config.Config { return cfg },
		func() (*logx.Service, logx.Logger) { return newLogging(cfg, o) },
		eventbus.New,
		newRawStorage,
		newCaches,
		newSettings,
		newScheduler,
		scripting.NewRunner,
	}
	for _, fn := range provide {
		if err := d.Provide(fn); err != nil {
			return nil, err
		}
	}

	var a *App
	err := d.Invoke(func(
		logs *logx.Service,
		log logx.Logger,
		bus eventbus.Bus,
		raw rawStorage,
		reg *caches.Registry,
		set *settings.Settings,
		sched *scheduler.Service,
		runner *scripting.Runner,
	) {
		a = &App{
			cfgm:     cfgm,
			logs:     logs,
			log:      log.With(logx.String("comp", "app")),
			bus:      bus,
			raw:      raw.Storage,
			caches:   reg,
			settings: set,
			sched:    sched,
			runner:   runner,
		}
	})
	return a, err
}

func newLogging(cfg *config.Config, o options) (*logx.Service, logx.Logger) {
	if !o.log.IsZero() {
		return nil, o.log
	}
	return logx.New(cfg.Log.Logx())
}

func newRawStorage(cfg *config.Config, log logx.Logger) (rawStorage, error) {
	sc, err := cfg.Meta.Storage.Storage()
	if err != nil {
		return rawStorage{}, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return rawStorage{}, err
	}
	log.Info("configuration storage opened", logx.String("type", sc.Type))
	return rawStorage{st}, nil
}

func newCaches(cfg *config.Config, raw rawStorage, log logx.Logger) (*caches.Registry, error) {
	return caches.New(raw.Storage, caches.Options{PolicyType: cfg.Meta.Policy.Type}, log)
}

// newSettings hands jobs the tracked storage, so scripts that rewrite
// configuration files keep the caches consistent.
func newSettings(cfg *config.Config, raw rawStorage, reg *caches.Registry) *settings.Settings {
	return settings.New(cfg, reg.Watch(raw.Storage))
}

func newScheduler(cfg *config.Config, log logx.Logger, bus eventbus.Bus) (*scheduler.Service, error) {
	sc, err := cfg.Scheduler.Scheduler()
	if err != nil {
		return nil, err
	}
	return scheduler.New(sc, log.With(logx.String("comp", "scheduler")), bus), nil
}
