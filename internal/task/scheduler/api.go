package scheduler

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"repod/internal/eventbus"
	"repod/internal/task/engine"
	logx "repod/pkg/logx"
)

// ScheduleJob registers job under a cron trigger. A job already scheduled
// under the same key is replaced.
func (s *Service) ScheduleJob(job Job, cronexp string) error {
	job.Key = JobKey(strings.TrimSpace(string(job.Key)))
	if job.Key == "" || job.Runner == nil {
		return &SchedulingError{Op: "schedule", Key: job.Key, Err: ErrInvalidJob}
	}
	sched, err := ParseCron(cronexp)
	if err != nil {
		return &SchedulingError{Op: "schedule", Key: job.Key, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return &SchedulingError{Op: "schedule", Key: job.Key, Err: ErrNotStarted}
	}
	if old, ok := s.jobs[job.Key]; ok {
		s.c.Remove(old.entryID)
		s.log.Warn("job replaced", logx.String("job", string(job.Key)),
			logx.String("old_cronexp", old.cronexp), logx.String("cronexp", cronexp))
	}

	e := &entry{
		job:     job,
		cronexp: cronexp,
		trigger: TriggerFor(job.Key),
		state:   s.stateLocked(job.Key),
	}
	e.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.fire(e) }))
	s.jobs[job.Key] = e
	s.pruneStatesLocked()

	fields := []logx.Field{logx.String("job", string(job.Key)), logx.String("trigger", e.trigger.String()), logx.String("cronexp", cronexp)}
	if next := s.previewNextRunsLocked(sched, 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("job scheduled", fields...)
	s.bus.Publish(eventbus.Event{Type: EventScheduled, Data: JobEvent{Key: job.Key, Trigger: e.trigger.String(), CronExp: cronexp, Time: time.Now()}})
	return nil
}

// CancelJob removes the job and its trigger. Unknown keys are a no-op.
// An execution already in flight is not aborted.
func (s *Service) CancelJob(key JobKey) bool {
	s.mu.Lock()
	e, ok := s.jobs[key]
	if ok {
		delete(s.jobs, key)
		if s.c != nil {
			s.c.Remove(e.entryID)
		}
	}
	s.mu.Unlock()

	if ok {
		s.log.Debug("job cancelled", logx.String("job", string(key)))
		s.bus.Publish(eventbus.Event{Type: EventCancelled, Data: JobEvent{Key: key, Trigger: e.trigger.String(), Time: time.Now()}})
	}
	return ok
}

// ClearAll removes every job and trigger and reports how many were removed.
// A job.cancelled event is published for each removed job.
func (s *Service) ClearAll() int {
	s.mu.Lock()
	removed := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		if s.c != nil {
			s.c.Remove(e.entryID)
		}
		removed = append(removed, e)
	}
	s.jobs = map[JobKey]*entry{}
	s.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].job.Key < removed[j].job.Key })
	now := time.Now()
	for _, e := range removed {
		s.bus.Publish(eventbus.Event{Type: EventCancelled, Data: JobEvent{Key: e.job.Key, Trigger: e.trigger.String(), Time: now}})
	}
	s.log.Info("all jobs cleared", logx.Int("jobs", len(removed)))
	return len(removed)
}

// Job describes the job with the given key.
func (s *Service) Job(key JobKey) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[key]
	if !ok {
		return JobInfo{}, false
	}
	return s.infoLocked(e), true
}

// Jobs lists scheduled jobs sorted by key.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, s.infoLocked(e))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Service) infoLocked(e *entry) JobInfo {
	info := JobInfo{Key: e.job.Key, Trigger: e.trigger, CronExp: e.cronexp, Running: e.state.Running()}
	if s.c != nil {
		ce := s.c.Entry(e.entryID)
		info.Next, info.Prev = ce.Next, ce.Prev
	}
	return info
}

// fire runs on the cron goroutine; it only hands the job to the engine.
func (s *Service) fire(e *entry) {
	now := time.Now()
	jc := &JobContext{Key: e.job.Key, Trigger: e.trigger, Data: e.job.Data, FireTime: now}
	s.bus.Publish(eventbus.Event{Type: EventFired, Time: now, Data: JobEvent{Key: e.job.Key, Trigger: e.trigger.String(), CronExp: e.cronexp, Time: now}})

	runner := e.job.Runner
	err := s.engine.Enqueue(engine.Task{
		Name:    string(e.job.Key),
		Timeout: e.job.Timeout,
		Overlap: engine.OverlapSkipIfRunning,
		State:   e.state,
		Run:     func(ctx context.Context) error { return runner.Run(ctx, jc) },
	})
	if err != nil {
		s.reportEnqueueError(e.job.Key, err)
	}
}

// previewNextRunsLocked returns upcoming run times for debug logs. Call with s.mu held.
func (s *Service) previewNextRunsLocked(sched cron.Schedule, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
