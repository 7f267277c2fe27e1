package scheduler

import (
	"context"
	"time"

	"repod/internal/task/engine"
)

// Config controls the scheduler and its execution engine.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means Local
	Engine   engine.Config
}

// JobKey identifies a job in the scheduler's table.
type JobKey string

// TriggerKey identifies the trigger attached to a job.
type TriggerKey struct {
	Name  string
	Group string
}

func (k TriggerKey) String() string { return k.Group + "." + k.Name }

// TriggerGroup is the group of every cron trigger.
const TriggerGroup = "cron-group"

// TriggerFor returns the trigger key of the job with the given key.
func TriggerFor(key JobKey) TriggerKey {
	return TriggerKey{Name: "trigger-" + string(key), Group: TriggerGroup}
}

// JobData is the immutable data attached to a job at scheduling time.
// Runners must treat it as read-only; it is shared by every firing.
type JobData map[string]any

func (d JobData) String(k string) string {
	s, _ := d[k].(string)
	return s
}

// Runner is the behavior of a job.
type Runner interface {
	Run(ctx context.Context, jc *JobContext) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, jc *JobContext) error

func (f RunnerFunc) Run(ctx context.Context, jc *JobContext) error { return f(ctx, jc) }

// Job is a unit of recurring work.
type Job struct {
	Key    JobKey
	Data   JobData
	Runner Runner
	// Timeout bounds each execution; 0 uses the engine default.
	Timeout time.Duration
}

// JobContext is handed to a Runner on each firing.
type JobContext struct {
	Key      JobKey
	Trigger  TriggerKey
	Data     JobData
	FireTime time.Time
}

// JobInfo describes a scheduled job.
type JobInfo struct {
	Key     JobKey
	Trigger TriggerKey
	CronExp string
	Next    time.Time
	Prev    time.Time
	Running bool
}

// State is the scheduler lifecycle state.
type State int

const (
	Stopped State = iota
	Started
)

func (s State) String() string {
	if s == Started {
		return "started"
	}
	return "stopped"
}

// Event types published by the scheduler. Execution events come from the
// engine (engine.EventStarted and friends) with the job key as task name.
const (
	EventScheduled = "job.scheduled"
	EventCancelled = "job.cancelled"
	EventFired     = "job.fired"
)

// JobEvent is the payload of scheduler events.
type JobEvent struct {
	Key     JobKey    `json:"key"`
	Trigger string    `json:"trigger"`
	CronExp string    `json:"cronexp,omitempty"`
	Time    time.Time `json:"time"`
}
