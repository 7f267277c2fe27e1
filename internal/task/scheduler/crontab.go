package scheduler

import (
	"strings"

	logx "repod/pkg/logx"
)

// CrontabEntry is a declarative "run key on cronexp" pair.
type CrontabEntry struct {
	Key     string `json:"key"`
	CronExp string `json:"cronexp"`
}

// CrontabSource yields crontab entries. It is also passed through job data so
// runners can reach the settings the entry came from.
type CrontabSource interface {
	Crontab() []CrontabEntry
}

// Job data keys set by LoadCrontab.
const (
	DataKey      = "key"
	DataSettings = "settings"
)

// SkippedEntry is a crontab entry LoadCrontab did not schedule.
type SkippedEntry struct {
	Entry  CrontabEntry
	Reason error
}

type LoadReport struct {
	Scheduled []JobKey
	Skipped   []SkippedEntry
}

// CrontabJobKey is the identity of the job created for an entry.
func CrontabJobKey(e CrontabEntry) JobKey {
	return JobKey(strings.TrimSpace(e.CronExp) + " " + strings.TrimSpace(e.Key))
}

// LoadCrontab schedules one job per valid entry of src, each running run.
// Invalid entries are logged and skipped; they never abort the load.
func (s *Service) LoadCrontab(src CrontabSource, run Runner) LoadReport {
	var rep LoadReport
	if src == nil {
		return rep
	}
	entries := src.Crontab()
	seen := make(map[JobKey]struct{}, len(entries))

	skip := func(e CrontabEntry, err error) {
		rep.Skipped = append(rep.Skipped, SkippedEntry{Entry: e, Reason: err})
		s.log.Warn("crontab entry skipped",
			logx.String("key", e.Key), logx.String("cronexp", e.CronExp), logx.Err(err))
	}

	for _, e := range entries {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			skip(e, ErrInvalidJob)
			continue
		}
		if err := ValidateCron(e.CronExp); err != nil {
			skip(e, err)
			continue
		}
		id := CrontabJobKey(e)
		if _, dup := seen[id]; dup {
			skip(e, ErrDuplicateEntry)
			continue
		}
		seen[id] = struct{}{}

		job := Job{
			Key:    id,
			Data:   JobData{DataKey: key, DataSettings: src},
			Runner: run,
		}
		if err := s.ScheduleJob(job, e.CronExp); err != nil {
			skip(e, err)
			continue
		}
		rep.Scheduled = append(rep.Scheduled, id)
	}

	if len(entries) > 0 {
		s.log.Info("crontab loaded",
			logx.Int("scheduled", len(rep.Scheduled)), logx.Int("skipped", len(rep.Skipped)))
	}
	return rep
}
