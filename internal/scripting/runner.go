// Package scripting runs scripts held in the configuration storage as
// scheduled jobs.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repod/internal/script"
	"repod/internal/storage"
	"repod/internal/task/scheduler"
	logx "repod/pkg/logx"
)

// Settings is the handle a crontab job carries to reach configuration storage.
type Settings interface {
	ConfigStorage() storage.Storage
}

var errNoSettings = errors.New("job data carries no settings handle")

// Runner executes the script named by a job's key. It implements
// scheduler.Runner.
type Runner struct {
	log logx.Logger
}

func NewRunner(log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{log: log.With(logx.String("comp", "scripting"))}
}

// Run reads the settings handle and storage key from the job data.
func (r *Runner) Run(ctx context.Context, jc *scheduler.JobContext) error {
	st, ok := jc.Data[scheduler.DataSettings].(Settings)
	if !ok {
		r.log.Error("script job misconfigured", logx.String("job", string(jc.Key)), logx.Err(errNoSettings))
		return errNoSettings
	}
	_, err := r.RunKey(ctx, st, jc.Data.String(scheduler.DataKey))
	return err
}

// RunKey executes the script stored under key. A missing key or a key without
// a known engine extension is not an error; ran reports whether anything
// was executed.
func (r *Runner) RunKey(ctx context.Context, settings Settings, key string) (ran bool, err error) {
	log := r.log.With(logx.String("key", key))
	store := settings.ConfigStorage()
	if store == nil {
		return false, fmt.Errorf("run %q: no configuration storage", key)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		log.Warn("script lookup failed", logx.Err(err))
		return false, fmt.Errorf("run %q: %w", key, err)
	}
	if !exists {
		log.Debug("script not found; nothing to run")
		return false, nil
	}
	kind, ok := script.EngineFor(key)
	if !ok {
		log.Debug("no engine for script extension; nothing to run")
		return false, nil
	}

	body, err := store.Value(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted between the check and the read.
			return false, nil
		}
		log.Warn("script read failed", logx.Err(err))
		return false, fmt.Errorf("run %q: %w", key, err)
	}

	s, err := script.New(kind, string(body),
		script.WithStorage(store),
		script.WithLogger(r.log),
		script.WithName(key),
	)
	if err != nil {
		return false, err
	}

	start := time.Now()
	res, err := s.Call(ctx)
	if err != nil {
		log.Error("script failed", logx.String("engine", kind.String()),
			logx.Duration("took", time.Since(start)), logx.Err(err))
		return true, err
	}
	log.Debug("script completed", logx.String("engine", kind.String()),
		logx.Duration("took", time.Since(start)), logx.Any("value", res.Value()))
	return true, nil
}
