// Package scheduler fires jobs on cron triggers.
//
// The scheduler owns the job table and the trigger calendar (robfig/cron);
// execution is delegated to an owned engine.Service, which gates overlap so a
// job never runs concurrently with itself. The crontab loader turns
// configuration entries into scheduled jobs.
package scheduler
