package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"repod/internal/eventbus"
	"repod/internal/task/engine"
	logx "repod/pkg/logx"
)

type entry struct {
	job     Job
	cronexp string
	trigger TriggerKey
	entryID cron.EntryID
	state   *engine.RunState
}

// Service is a cron scheduler with an owned execution engine.
// The zero value is not usable; use New.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	engine *engine.Service

	c    *cron.Cron
	jobs map[JobKey]*entry
	// states outlives entries so a re-registered key still gates on a run
	// started by its previous registration.
	states map[JobKey]*engine.RunState

	enqMu       sync.Mutex
	lastEnqWarn map[JobKey]time.Time
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Service{
		cfg:         cfg,
		log:         log,
		bus:         bus,
		engine:      engine.New(cfg.Engine, log.With(logx.String("comp", "taskengine")), bus),
		jobs:        map[JobKey]*entry{},
		states:      map[JobKey]*engine.RunState{},
		lastEnqWarn: map[JobKey]time.Time{},
	}
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return Started
	}
	return Stopped
}

// Start starts the execution engine and the trigger calendar.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return &SchedulingError{Op: "start", Err: ErrAlreadyStarted}
	}
	if err := s.engine.Start(ctx); err != nil {
		return &SchedulingError{Op: "start", Err: err}
	}

	s.loc = s.loadLocationLocked()
	s.c = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
		cron.WithLogger(cronLogger{s.log}),
	)
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()))
	return nil
}

// Stop stops firing, clears the job table and waits for in-flight
// executions to finish. If ctx ends first a *SchedulingError is returned and
// the remaining executions are cancelled.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	n := len(s.jobs)
	s.jobs = map[JobKey]*entry{}
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	if err := s.engine.Stop(ctx); err != nil {
		return &SchedulingError{Op: "stop", Err: err}
	}
	s.mu.Lock()
	s.pruneStatesLocked()
	s.mu.Unlock()
	s.log.Info("scheduler stopped", logx.Int("jobs_cleared", n), logx.Duration("took", time.Since(start)))
	return nil
}

// Engine exposes the execution engine for diagnostics.
func (s *Service) Engine() *engine.Service { return s.engine }

// History returns recent executions, oldest first.
func (s *Service) History() []engine.HistoryItem { return s.engine.History() }

// stateLocked returns the run state shared by every registration of key.
func (s *Service) stateLocked(key JobKey) *engine.RunState {
	st, ok := s.states[key]
	if !ok {
		st = &engine.RunState{}
		s.states[key] = st
	}
	return st
}

// pruneStatesLocked drops states of keys that are neither scheduled nor running.
func (s *Service) pruneStatesLocked() {
	for k, st := range s.states {
		if _, ok := s.jobs[k]; !ok && !st.Running() {
			delete(s.states, k)
		}
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
